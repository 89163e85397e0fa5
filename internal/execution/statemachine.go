package execution

import (
	"strings"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// TransitionResult is the outcome of one state-machine transition.
type TransitionResult struct {
	Status  domain.OrderStatus
	Filled  float64
	Terminal bool
}

// transition is the pure event→(status, filled, terminal) mapping every
// REST response and WS message is pushed through. filled_new is always
// monotonic non-decreasing relative to currentFilled.
func transition(event string, currentFilled, volume, executed, remaining float64) TransitionResult {
	filled := currentFilled
	if executed > 0 {
		filled = max(filled, executed)
	}
	if remaining > 0 && volume > remaining {
		filled = max(filled, volume-remaining)
	}

	switch strings.ToLower(event) {
	case "filled", "done":
		filled = max(filled, volume)
		return TransitionResult{Status: domain.StatusFilled, Filled: filled, Terminal: true}

	case "cancel", "cancelled":
		return TransitionResult{Status: domain.StatusCancelled, Filled: filled, Terminal: true}

	case "rejected", "reject", "prevented":
		return TransitionResult{Status: domain.StatusRejected, Filled: filled, Terminal: true}

	case "partially_filled", "partial_fill", "wait", "watch", "trade":
		switch {
		case filled >= volume-1e-8:
			return TransitionResult{Status: domain.StatusFilled, Filled: filled, Terminal: true}
		case filled > 0:
			return TransitionResult{Status: domain.StatusPartiallyFilled, Filled: filled}
		default:
			return TransitionResult{Status: domain.StatusSubmitted, Filled: filled}
		}

	case "submitted", "pending", "new":
		return TransitionResult{Status: statusForFilled(filled), Filled: filled}

	default:
		return TransitionResult{Status: statusForFilled(filled), Filled: filled}
	}
}

func statusForFilled(filled float64) domain.OrderStatus {
	if filled > 0 {
		return domain.StatusPartiallyFilled
	}
	return domain.StatusSubmitted
}
