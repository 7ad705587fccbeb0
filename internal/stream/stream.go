package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

// Cancel stops a stream. It is safe to call more than once, and from inside
// the frame callback. Once it returns no new callback invocation starts.
type Cancel func()

// Watcher pushes the value of a store key on registration and after every
// change. *rtdb.Client satisfies it.
type Watcher interface {
	Watch(ctx context.Context, key string, fn func(raw any)) (unwatch func(), err error)
}

// Mode reports which adapter feeds a subscription.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// delivery serializes frame callbacks for one stream and drops them once
// the stream is stopped. stop does not take mu, so a callback may cancel
// its own stream.
type delivery struct {
	mu      sync.Mutex
	stopped atomic.Bool
	onFrame func(protocol.Frame)
}

func newDelivery(onFrame func(protocol.Frame)) *delivery {
	return &delivery{onFrame: onFrame}
}

// run computes a frame with step and delivers it. step runs under the
// delivery lock; returning false skips the callback.
func (d *delivery) run(step func() (protocol.Frame, bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped.Load() {
		return
	}
	frame, ok := step()
	if !ok {
		return
	}
	d.onFrame(frame)
}

func (d *delivery) stop() {
	d.stopped.Store(true)
}
