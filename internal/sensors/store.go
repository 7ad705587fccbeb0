package sensors

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/alarming"
	"github.com/smukkama/sensor-dashboard/internal/history"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// Sink accepts frames from the active stream adapter.
type Sink func(protocol.Frame)

// Options configures a Store. Zero values are replaced with defaults.
type Options struct {
	Now    func() time.Time
	Logger *zap.Logger
}

// View is a consistent copy of the store state. History and Alerts must
// be treated as read-only.
type View struct {
	Ready     bool                     `json:"ready"`
	Synthetic bool                     `json:"synthetic"`
	Source    protocol.Source          `json:"source,omitempty"`
	Snapshot  protocol.Snapshot        `json:"snapshot"`
	Derived   alarming.Derived         `json:"derived"`
	Alerts    []protocol.AlertRecord   `json:"alerts"`
	History   []protocol.HistorySample `json:"history"`
	Updates   uint64                   `json:"updates"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Store holds the latest sensor state. It has exactly one writer, the Sink
// returned by New, and any number of readers and observers.
type Store struct {
	mu    sync.RWMutex
	view  View
	local *history.Ring[protocol.HistorySample]

	observersMu sync.Mutex
	observers   map[string]func(View)

	now func() time.Time
	log *zap.Logger
}

// New creates a store and the sink that feeds it. synthetic is the
// connection verdict and never changes for the store's lifetime.
func New(synthetic bool, opts Options) (*Store, Sink) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		view: View{
			Synthetic: synthetic,
			Snapshot:  protocol.Baseline,
			Derived:   alarming.Derive(protocol.Baseline),
			Alerts:    []protocol.AlertRecord{},
			History:   []protocol.HistorySample{},
		},
		local:     history.NewRing[protocol.HistorySample](protocol.LocalHistoryLimit),
		observers: make(map[string]func(View)),
		now:       opts.Now,
		log:       logger.OrNop(opts.Logger),
	}
	return s, s.apply
}

// Synthetic reports whether the store is fed by the mock generator because
// the remote store is not configured.
func (s *Store) Synthetic() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Synthetic
}

// View returns the current state
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Subscribe registers fn to be called with the new state after every
// update. The returned function removes the registration.
func (s *Store) Subscribe(fn func(View)) func() {
	id := uuid.New().String()

	s.observersMu.Lock()
	s.observers[id] = fn
	s.observersMu.Unlock()

	return func() {
		s.observersMu.Lock()
		delete(s.observers, id)
		s.observersMu.Unlock()
	}
}

func (s *Store) apply(f protocol.Frame) {
	now := s.now()
	alerts := alarming.Evaluate(f.Snapshot)

	s.mu.Lock()
	if f.History != nil {
		// Frame history replaces ours; keep its tail so frames without
		// history continue from it.
		s.local.Reset()
		for _, h := range f.History {
			s.local.Push(h)
		}
		s.view.History = f.History
	} else {
		s.local.Push(protocol.SampleOf(f.Snapshot, now.UnixMilli()))
		s.view.History = s.local.Slice()
	}

	s.view.Ready = true
	s.view.Source = f.Source
	s.view.Snapshot = f.Snapshot
	s.view.Derived = alarming.Derive(f.Snapshot)
	s.view.Alerts = alerts
	s.view.Updates++
	s.view.UpdatedAt = now
	view := s.view
	s.mu.Unlock()

	s.log.Debug("sensor state updated",
		zap.String("source", string(f.Source)),
		zap.Int("alerts", len(alerts)),
		zap.Int("history", len(view.History)),
		zap.Uint64("updates", view.Updates))

	s.notify(view)
}

func (s *Store) notify(view View) {
	s.observersMu.Lock()
	observers := make([]func(View), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.observersMu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
}
