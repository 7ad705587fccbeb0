package alarming

import (
	"sync"
	"time"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

// AlarmState represents the current state of one alert rule
type AlarmState struct {
	Status      string               `json:"status"` // CLEAR, ALARMING
	Record      protocol.AlertRecord `json:"record"`
	ActiveSince time.Time            `json:"active_since"`
	LastChecked time.Time            `json:"last_checked"`
}

const (
	AlarmStateClear  = "CLEAR"
	AlarmStateActive = "ALARMING"
)

// Transition is a change of one rule between clear and alarming.
type Transition struct {
	Type   string // protocol.AlertTypeRaised or protocol.AlertTypeCleared
	Record protocol.AlertRecord
	At     time.Time
}

// Tracker remembers which alerts are active so that callers can react to
// an alert being raised or cleared instead of to every evaluation.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*AlarmState
}

// NewTracker creates a tracker with every rule clear
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*AlarmState)}
}

// Observe records the alerts active at now and returns the transitions
// relative to the previous observation: raised alerts in the order given,
// then cleared alerts in rule order.
func (t *Tracker) Observe(alerts []protocol.AlertRecord, now time.Time) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var transitions []Transition
	active := make(map[string]bool, len(alerts))

	for _, a := range alerts {
		active[a.ID] = true

		state, ok := t.states[a.ID]
		if ok {
			// Alarm already active, refresh
			state.Record = a
			state.LastChecked = now
			continue
		}

		t.states[a.ID] = &AlarmState{
			Status:      AlarmStateActive,
			Record:      a,
			ActiveSince: now,
			LastChecked: now,
		}
		transitions = append(transitions, Transition{Type: protocol.AlertTypeRaised, Record: a, At: now})
	}

	for _, rule := range Rules {
		state, ok := t.states[rule.ID]
		if !ok || active[rule.ID] {
			continue
		}
		delete(t.states, rule.ID)
		transitions = append(transitions, Transition{Type: protocol.AlertTypeCleared, Record: state.Record, At: now})
	}

	return transitions
}

// GetState returns the state of one rule; rules never raised report CLEAR.
func (t *Tracker) GetState(id string) AlarmState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[id]; ok {
		return *state
	}
	return AlarmState{Status: AlarmStateClear}
}

// GetAllStates returns the states of all active alerts, keyed by rule id
func (t *Tracker) GetAllStates() map[string]AlarmState {
	t.mu.Lock()
	defer t.mu.Unlock()

	states := make(map[string]AlarmState, len(t.states))
	for id, state := range t.states {
		states[id] = *state
	}
	return states
}
