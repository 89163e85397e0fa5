package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

func TestLoad_ReturnsFalseWhenFileMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	snapshot := domain.LearningState{
		SchemaVersion: 1,
		SavedAtMs:     123456,
		PolicyParams:  map[string]float64{"min_strength": 0.6},
		BucketStats: map[string]domain.BucketStat{
			"TRENDING": {Key: "TRENDING", Wins: 3, Losses: 1, TotalPnL: 10.5},
		},
	}
	require.NoError(t, s.Save(context.Background(), snapshot))

	loaded, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, snapshot.PolicyParams, loaded.PolicyParams)
	assert.Equal(t, snapshot.BucketStats["TRENDING"].Wins, loaded.BucketStats["TRENDING"].Wins)
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), domain.LearningState{SchemaVersion: 1}))

	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_OverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), domain.LearningState{SchemaVersion: 1, SavedAtMs: 1}))
	require.NoError(t, s.Save(context.Background(), domain.LearningState{SchemaVersion: 1, SavedAtMs: 2}))

	loaded, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), loaded.SavedAtMs)
}
