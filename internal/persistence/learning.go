// Package persistence implements atomic JSON snapshotting of the learning
// state, grounded on the write-tempfile-then-rename pattern used for bot
// state durability in the example pack.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// FileStore persists domain.LearningState as a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes snapshot atomically: marshal, write to path+".tmp", then
// rename over path. If the rename fails (e.g. a platform or filesystem
// that refuses rename-over-existing), it falls back to a direct
// copy-overwrite.
func (s *FileStore) Save(ctx context.Context, snapshot domain.LearningState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		if werr := os.WriteFile(s.path, data, 0o644); werr != nil {
			return werr
		}
		os.Remove(tmp)
	}
	return nil
}

// Load reads the snapshot file. It returns (zero-value, false, nil) if the
// file does not exist yet — the caller's signal to start from scratch.
func (s *FileStore) Load(ctx context.Context) (domain.LearningState, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.LearningState{}, false, nil
		}
		return domain.LearningState{}, false, err
	}

	var state domain.LearningState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.LearningState{}, false, err
	}
	return state, true, nil
}
