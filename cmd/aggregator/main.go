package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/aggregation"
	"github.com/smukkama/sensor-dashboard/internal/history"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/queue"
	"github.com/smukkama/sensor-dashboard/internal/scheduler"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// Two hours of frames at the mock cadence.
const sampleCapacity = 3600

const hourlyDelay = time.Minute

// sampleLog holds recent frames as history samples stamped with the time
// Kafka recorded them.
type sampleLog struct {
	mu      sync.Mutex
	samples *history.Ring[protocol.HistorySample]
}

func (l *sampleLog) add(s protocol.HistorySample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples.Push(s)
}

func (l *sampleLog) slice() []protocol.HistorySample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.samples.Slice()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	fmt.Println("Starting Aggregation Service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicFrames, "aggregator-group", zl.Named("consumer"))
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	sched := scheduler.New()
	sched.Start()
	defer sched.Stop()
	fmt.Println("Scheduler started")

	samples := &sampleLog{samples: history.NewRing[protocol.HistorySample](sampleCapacity)}
	scheduleHourlyAggregation(sched, samples, zl)

	fmt.Println("\n✓ Aggregation Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	err = consumer.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		frame, err := protocol.DecodeFrame(msg.Value)
		if err != nil {
			zl.Warn("failed to decode frame", zap.Error(err))
			return nil
		}
		samples.add(protocol.SampleOf(frame.Snapshot, msg.Time.UnixMilli()))
		return nil
	})
	if err != nil {
		zl.Error("consumer stopped", zap.Error(err))
	}

	fmt.Println("\nShutting down gracefully...")
}

func scheduleHourlyAggregation(sched *scheduler.Scheduler, samples *sampleLog, zl *zap.Logger) {
	taskID := "hourly-aggregation"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun := aggregation.NextRunTime(time.Now(), hourlyDelay)
		zl.Info("next hourly aggregation scheduled", zap.Time("at", nextRun))

		callback := func() {
			previousHour := nextRun.Add(-hourlyDelay).Add(-time.Hour)
			buckets := aggregation.Hourly(samples.slice(), time.UTC)
			if bucket, ok := aggregation.Bucket(buckets, previousHour.UTC()); ok {
				fields := []zap.Field{
					zap.Time("hour", bucket.Hour),
					zap.Int("samples", bucket.SampleCount),
				}
				for _, metric := range aggregation.Metrics {
					if avg, ok := bucket.Averages[metric]; ok {
						fields = append(fields, zap.Float64(metric, avg))
					}
				}
				zl.Info("hourly averages", fields...)
			} else {
				zl.Info("no frames in previous hour", zap.Time("hour", previousHour))
			}

			// Schedule next run
			scheduleNext()
		}

		if err := sched.Schedule(taskID, nextRun, callback); err != nil {
			zl.Warn("failed to schedule hourly aggregation", zap.Error(err))
		}
	}

	scheduleNext()
}
