package alarming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

func TestTracker_RaiseHoldClear(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	hot := Evaluate(protocol.Snapshot{Light: 500, Distance: 40, Smoke: 200, Temperature: 36})
	got := tr.Observe(hot, t0)
	require.Len(t, got, 2)
	require.Equal(t, protocol.AlertTypeRaised, got[0].Type)
	require.Equal(t, "smoke", got[0].Record.ID)
	require.Equal(t, "temp", got[1].Record.ID)

	// Still active: no transitions, but the record is refreshed
	hotter := Evaluate(protocol.Snapshot{Light: 500, Distance: 40, Smoke: 210, Temperature: 36})
	require.Empty(t, tr.Observe(hotter, t0.Add(time.Second)))

	state := tr.GetState("smoke")
	require.Equal(t, AlarmStateActive, state.Status)
	require.Equal(t, t0, state.ActiveSince)
	require.Contains(t, state.Record.Message, "210")

	got = tr.Observe(Evaluate(protocol.Baseline), t0.Add(2*time.Second))
	require.Len(t, got, 2)
	for _, g := range got {
		require.Equal(t, protocol.AlertTypeCleared, g.Type)
	}
	require.Equal(t, "smoke", got[0].Record.ID)
	require.Equal(t, "temp", got[1].Record.ID)

	require.Equal(t, AlarmStateClear, tr.GetState("smoke").Status)
	require.Empty(t, tr.GetAllStates())
}
