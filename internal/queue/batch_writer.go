package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// BatchPublisher sends several messages in one request. *Producer
// satisfies it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// BatchWriter collects frames and publishes them in batches, when the batch
// is full or when the flush interval elapses. Frames are published without
// history.
type BatchWriter struct {
	publisher     BatchPublisher
	batchSize     int
	flushInterval time.Duration
	log           *zap.Logger

	frames   chan protocol.Frame
	dropped  atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(publisher BatchPublisher, batchSize int, flushInterval time.Duration, log *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchWriter{
		publisher:     publisher,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           logger.OrNop(log),
		frames:        make(chan protocol.Frame, batchSize*4),
		stopCh:        make(chan struct{}),
	}
}

// Start begins batching frames
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
}

// Stop flushes pending frames and stops the batch writer
func (bw *BatchWriter) Stop() {
	bw.stopOnce.Do(func() { close(bw.stopCh) })
	bw.wg.Wait()
}

// Add queues a frame without blocking. Frames are dropped while the queue
// is full.
func (bw *BatchWriter) Add(f protocol.Frame) {
	f.History = nil
	select {
	case bw.frames <- f:
	default:
		bw.dropped.Add(1)
	}
}

// Dropped returns the number of frames dropped because the queue was full
func (bw *BatchWriter) Dropped() uint64 {
	return bw.dropped.Load()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.stopCh:
			// Drain what is queued, then flush before stopping
			for {
				select {
				case f := <-bw.frames:
					batch = bw.append(batch, f)
				default:
					bw.flush(ctx, batch)
					return
				}
			}

		case <-ctx.Done():
			return

		case <-ticker.C:
			// Periodic flush
			if len(batch) > 0 {
				bw.flush(ctx, batch)
				batch = nil
			}

		case f := <-bw.frames:
			batch = bw.append(batch, f)

			// Flush if batch is full
			if len(batch) >= bw.batchSize {
				bw.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (bw *BatchWriter) append(batch []kafka.Message, f protocol.Frame) []kafka.Message {
	data, err := protocol.EncodeFrame(&f)
	if err != nil {
		bw.log.Warn("failed to encode frame", zap.Error(err))
		return batch
	}
	return append(batch, kafka.Message{Key: []byte(f.Source), Value: data})
}

func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	if err := bw.publisher.PublishBatch(ctx, batch); err != nil {
		bw.log.Warn("failed to publish frame batch", zap.Int("frames", len(batch)), zap.Error(err))
		return
	}
	bw.log.Debug("flushed frame batch", zap.Int("frames", len(batch)))
}
