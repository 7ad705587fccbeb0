package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/alarming"
	"github.com/smukkama/sensor-dashboard/internal/api"
	"github.com/smukkama/sensor-dashboard/internal/connection"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/queue"
	"github.com/smukkama/sensor-dashboard/internal/scheduler"
	"github.com/smukkama/sensor-dashboard/internal/sensors"
	"github.com/smukkama/sensor-dashboard/internal/server"
	"github.com/smukkama/sensor-dashboard/internal/stream"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

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

	fmt.Println("Starting Sensor Dashboard...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New()
	sched.Start()
	defer sched.Stop()

	store, sink := sensors.New(!cfg.Store.Complete(), sensors.Options{Logger: zl.Named("store")})

	// Alert transitions go to Kafka when enabled; the tracker runs either way
	var alertPublisher alarming.Publisher
	var frameWriter *queue.BatchWriter
	if cfg.Kafka.Enabled {
		for _, topic := range []string{cfg.Kafka.TopicAlerts, cfg.Kafka.TopicFrames} {
			if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, 1, 1); err != nil {
				zl.Info("topic creation failed (may already exist)", zap.String("topic", topic), zap.Error(err))
			}
		}

		alertProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
		defer alertProducer.Close()
		alertPublisher = alertProducer

		frameProducer := queue.NewProducerWithConfig(queue.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.TopicFrames,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		})
		defer frameProducer.Close()
		frameWriter = queue.NewBatchWriter(frameProducer, 100, 5*time.Second, zl.Named("frames"))
		frameWriter.Start(ctx)
		defer frameWriter.Stop()

		fmt.Printf("Kafka producers initialized (alerts=%s, frames=%s)\n", cfg.Kafka.TopicAlerts, cfg.Kafka.TopicFrames)
	}

	notifier := alarming.NewNotifier(alertPublisher, zl.Named("alarming"))
	views := make(chan sensors.View, 1)
	unsubscribe := store.Subscribe(func(v sensors.View) {
		offerLatest(views, v)
		if frameWriter != nil {
			frameWriter.Add(protocol.Frame{Snapshot: v.Snapshot, Source: v.Source})
		}
	})
	defer unsubscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-views:
				if err := notifier.Process(ctx, v.Snapshot, v.Alerts, v.Source, v.UpdatedAt); err != nil {
					zl.Warn("failed to publish alert notifications", zap.Error(err))
				}
			}
		}
	}()

	cancelStream, mode := stream.Subscribe(ctx, stream.SubscribeOptions{
		Store: cfg.Store,
		Mock: stream.MockOptions{
			Interval:  cfg.Mock.Interval,
			Scheduler: sched,
		},
		Logger: zl.Named("stream"),
	}, sink)
	defer cancelStream()
	fmt.Printf("Sensor stream started (mode=%s)\n", mode)

	// Feed server
	connManager := connection.NewManager(cfg.Feed.MaxConnections)
	feed := server.NewTCPServer(&cfg.Feed, connManager, sched, store, zl.Named("feed"))
	if err := feed.Start(); err != nil {
		log.Fatalf("Failed to start feed server: %v", err)
	}
	defer feed.Stop()

	// REST API
	apiServer := api.New(cfg.HTTP, store, notifier.Tracker(), zl.Named("api"))
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Run(ctx)
	}()

	// Print statistics periodically
	if err := sched.Every("stats", 30*time.Second, func() {
		stats := connManager.Stats()
		schedStats := sched.Stats()
		view := store.View()
		fields := []zap.Field{
			zap.Int("connections", stats.TotalConnections),
			zap.Int("max_connections", stats.MaxConnections),
			zap.Int("unique_clients", stats.UniqueClients),
			zap.Any("clients", connManager.CountByClient()),
			zap.Int("scheduled_tasks", schedStats.ScheduledTasks),
			zap.Uint64("updates", view.Updates),
			zap.Int("active_alerts", len(view.Alerts)),
		}
		if frameWriter != nil {
			fields = append(fields, zap.Uint64("frames_dropped", frameWriter.Dropped()))
		}
		zl.Info("dashboard statistics", fields...)
	}); err != nil {
		zl.Warn("failed to schedule statistics", zap.Error(err))
	}

	fmt.Println("\n✓ Sensor Dashboard is running")
	if store.Synthetic() {
		fmt.Println("✓ Using synthetic sensor data (store not configured)")
	}
	fmt.Printf("✓ Feed server listening on port %d\n", cfg.Feed.Port)
	fmt.Printf("✓ REST API listening on %s\n", cfg.HTTP.ListenAddr())
	fmt.Println("✓ Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down gracefully...")
		if err := <-apiErr; err != nil {
			zl.Warn("REST API shutdown failed", zap.Error(err))
		}
	case err := <-apiErr:
		zl.Error("REST API stopped", zap.Error(err))
	}
}

// offerLatest hands v to the notifier without blocking the store. A view
// still waiting in the slot is superseded by the newer one.
func offerLatest(views chan sensors.View, v sensors.View) {
	for {
		select {
		case views <- v:
			return
		default:
		}
		select {
		case <-views:
		default:
		}
	}
}
