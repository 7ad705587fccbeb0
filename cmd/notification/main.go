package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/notification"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/queue"
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

	fmt.Println("Starting Notification Service...")

	// Create email notifier
	notifier := notification.NewEmailNotifier(&cfg.SMTP, zl.Named("email"))

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		zl.Info("notifications will be logged only", zap.Error(err))
	}

	// Create consumer for alert notifications
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "notification-group", zl.Named("consumer"))
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("\n✓ Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	err = consumer.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		alert, err := protocol.DecodeAlertNotification(msg.Value)
		if err != nil {
			// Undecodable messages are committed and skipped
			zl.Warn("failed to decode notification", zap.Error(err))
			return nil
		}

		if err := notifier.SendAlertNotification(alert); err != nil {
			return fmt.Errorf("alert %s: %w", alert.AlertID, err)
		}
		return nil
	})
	if err != nil {
		zl.Error("consumer stopped", zap.Error(err))
	}

	fmt.Println("\nShutting down gracefully...")
}
