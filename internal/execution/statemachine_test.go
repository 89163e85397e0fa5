package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

func TestTransition_DoneFills(t *testing.T) {
	r := transition("done", 0, 1.0, 0, 0)
	assert.Equal(t, domain.StatusFilled, r.Status)
	assert.True(t, r.Terminal)
	assert.Equal(t, 1.0, r.Filled)
}

// A "filled"/"done" event always means the full order volume executed,
// even if an earlier partial-fill update under-reported the running total
// (e.g. a stale executed_volume on the terminal message itself).
func TestTransition_FilledAlwaysReportsFullVolumeDespiteStalePriorFill(t *testing.T) {
	r := transition("filled", 0.3, 1.0, 0.3, 0)
	assert.Equal(t, domain.StatusFilled, r.Status)
	assert.True(t, r.Terminal)
	assert.Equal(t, 1.0, r.Filled)
}

func TestTransition_TradePartial(t *testing.T) {
	r := transition("trade", 0, 2.0, 0.4, 1.6)
	assert.Equal(t, domain.StatusPartiallyFilled, r.Status)
	assert.False(t, r.Terminal)
	assert.InDelta(t, 0.4, r.Filled, 0.01)
}

func TestTransition_CancelIsTerminal(t *testing.T) {
	r := transition("cancel", 0.2, 1.0, 0.2, 0.8)
	assert.Equal(t, domain.StatusCancelled, r.Status)
	assert.True(t, r.Terminal)
}

func TestTransition_PreventedIsRejected(t *testing.T) {
	r := transition("prevented", 0, 1.0, 0, 1.0)
	assert.Equal(t, domain.StatusRejected, r.Status)
	assert.True(t, r.Terminal)
}

func TestTransition_CaseInsensitive(t *testing.T) {
	r := transition("DONE", 0, 1.0, 0, 0)
	assert.Equal(t, domain.StatusFilled, r.Status)
}

func TestTransition_WaitFullyFilledBecomesTerminal(t *testing.T) {
	r := transition("wait", 0, 1.0, 1.0, 0)
	assert.Equal(t, domain.StatusFilled, r.Status)
	assert.True(t, r.Terminal)
}

func TestTransition_SubmittedWithNoFillStaysSubmitted(t *testing.T) {
	r := transition("submitted", 0, 1.0, 0, 0)
	assert.Equal(t, domain.StatusSubmitted, r.Status)
	assert.False(t, r.Terminal)
}

func TestTransition_FilledVolumeMonotonic(t *testing.T) {
	r := transition("trade", 0.5, 1.0, 0.3, 0.7)
	assert.GreaterOrEqual(t, r.Filled, 0.5)
}

func TestTransition_UnknownEventConservative(t *testing.T) {
	r := transition("some_unmapped_event", 0.3, 1.0, 0, 0)
	assert.Equal(t, domain.StatusPartiallyFilled, r.Status)
	assert.False(t, r.Terminal)
}
