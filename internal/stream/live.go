package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// LiveOptions configures the live adapter.
type LiveOptions struct {
	CurrentKey string
	HistoryKey string
	Now        func() time.Time
	Logger     *zap.Logger
}

// StartLive watches the current and history keys and emits the merged
// state after every update of either. Updates that arrive while the
// watches are still being established are merged and emitted once, after
// both watches are in place; if establishing either watch fails nothing is
// emitted and the error is returned.
func StartLive(ctx context.Context, w Watcher, opts LiveOptions, onFrame func(protocol.Frame)) (Cancel, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.OrNop(opts.Logger)

	d := newDelivery(onFrame)

	// Guarded by d.mu. The snapshot stays at the baseline until the current
	// key first reports; History stays nil until the history key does.
	latest := protocol.Frame{Snapshot: protocol.Baseline, Source: protocol.SourceLive}
	established := false
	pending := false

	merge := func(apply func() bool) func() (protocol.Frame, bool) {
		return func() (protocol.Frame, bool) {
			if !apply() {
				return protocol.Frame{}, false
			}
			if !established {
				pending = true
				return protocol.Frame{}, false
			}
			return latest, true
		}
	}

	unwatchCurrent, err := w.Watch(ctx, opts.CurrentKey, func(raw any) {
		d.run(merge(func() bool {
			snap, ok := protocol.NormalizeCurrent(raw)
			if !ok {
				log.Debug("ignoring current value that is not a record",
					zap.String("key", opts.CurrentKey),
					zap.String("type", fmt.Sprintf("%T", raw)))
				return false
			}
			latest.Snapshot = snap
			return true
		}))
	})
	if err != nil {
		d.stop()
		return nil, fmt.Errorf("failed to watch current path: %w", err)
	}

	unwatchHistory, err := w.Watch(ctx, opts.HistoryKey, func(raw any) {
		d.run(merge(func() bool {
			samples, ok := protocol.NormalizeHistory(raw, opts.Now())
			if !ok {
				log.Debug("ignoring history value that is not a collection",
					zap.String("key", opts.HistoryKey),
					zap.String("type", fmt.Sprintf("%T", raw)))
				return false
			}
			latest.History = samples
			return true
		}))
	})
	if err != nil {
		d.stop()
		unwatchCurrent()
		return nil, fmt.Errorf("failed to watch history path: %w", err)
	}

	d.run(func() (protocol.Frame, bool) {
		established = true
		return latest, pending
	})

	log.Info("live stream started",
		zap.String("current", opts.CurrentKey),
		zap.String("history", opts.HistoryKey))

	return Cancel(sync.OnceFunc(func() {
		d.stop()
		unwatchCurrent()
		unwatchHistory()
	})), nil
}
