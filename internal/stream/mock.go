package stream

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/history"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/scheduler"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// DefaultMockInterval is the tick period of the mock generator.
const DefaultMockInterval = 2 * time.Second

const touchProbability = 0.08

// walk bounds one metric's random walk: each tick adds a uniform delta in
// [minDelta, maxDelta] and clamps the result to [lo, hi].
type walk struct {
	minDelta, maxDelta float64
	lo, hi             float64
}

var (
	lightWalk       = walk{minDelta: -40, maxDelta: 40, lo: 80, hi: 800}
	distanceWalk    = walk{minDelta: -5, maxDelta: 5, lo: 5, hi: 60}
	smokeWalk       = walk{minDelta: -5, maxDelta: 12, lo: 60, hi: 260}
	temperatureWalk = walk{minDelta: -0.4, maxDelta: 0.6, lo: 20, hi: 42}
)

// MockOptions configures the mock generator. Zero values are replaced with
// defaults.
type MockOptions struct {
	Interval time.Duration
	Rand     *rand.Rand
	Now      func() time.Time
	// Scheduler drives the ticks. When nil the generator runs its own and
	// stops it on cancel.
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

type generator struct {
	rng     *rand.Rand
	now     func() time.Time
	current protocol.Snapshot
	samples *history.Ring[protocol.HistorySample]
}

// StartMock emits the baseline snapshot with an empty history before
// returning, then a random-walk step every interval.
func StartMock(onFrame func(protocol.Frame), opts MockOptions) Cancel {
	if opts.Interval <= 0 {
		opts.Interval = DefaultMockInterval
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.OrNop(opts.Logger)

	g := &generator{
		rng:     opts.Rand,
		now:     opts.Now,
		current: protocol.Baseline,
		samples: history.NewRing[protocol.HistorySample](protocol.LocalHistoryLimit),
	}
	d := newDelivery(onFrame)

	d.run(func() (protocol.Frame, bool) {
		return protocol.Frame{
			Snapshot: g.current,
			History:  []protocol.HistorySample{},
			Source:   protocol.SourceMock,
		}, true
	})

	sched := opts.Scheduler
	owned := sched == nil
	if owned {
		sched = scheduler.New()
		sched.Start()
	}

	id := "mock-" + uuid.New().String()
	err := sched.Every(id, opts.Interval, func() {
		d.run(func() (protocol.Frame, bool) { return g.step(), true })
	})
	if err != nil {
		log.Error("mock generator could not schedule ticks", zap.Error(err))
	} else {
		log.Info("mock generator started", zap.Duration("interval", opts.Interval))
	}

	return Cancel(sync.OnceFunc(func() {
		d.stop()
		sched.Cancel(id)
		if owned {
			sched.Stop()
		}
	}))
}

// step advances every metric one tick and records the result.
func (g *generator) step() protocol.Frame {
	prev := g.current
	next := protocol.Snapshot{
		Touch:       g.rng.Float64() < touchProbability,
		Light:       g.advance(prev.Light, lightWalk),
		Distance:    g.advance(prev.Distance, distanceWalk),
		Smoke:       g.advance(prev.Smoke, smokeWalk),
		Temperature: g.advance(prev.Temperature, temperatureWalk),
	}
	g.current = next
	g.samples.Push(protocol.SampleOf(next, g.now().UnixMilli()))

	return protocol.Frame{
		Snapshot: next,
		History:  g.samples.Slice(),
		Source:   protocol.SourceMock,
	}
}

func (g *generator) advance(v float64, w walk) float64 {
	v += w.minDelta + g.rng.Float64()*(w.maxDelta-w.minDelta)
	return min(w.hi, max(w.lo, v))
}
