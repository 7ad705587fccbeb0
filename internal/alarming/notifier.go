package alarming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// Publisher delivers an encoded notification under a partition key.
// *queue.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Notifier publishes an AlertNotification whenever an alert is raised or
// cleared.
type Notifier struct {
	tracker   *Tracker
	publisher Publisher
	log       *zap.Logger
}

// NewNotifier creates a notifier with its own tracker
func NewNotifier(publisher Publisher, log *zap.Logger) *Notifier {
	return &Notifier{
		tracker:   NewTracker(),
		publisher: publisher,
		log:       logger.OrNop(log),
	}
}

// Tracker exposes the notifier's alert state
func (n *Notifier) Tracker() *Tracker {
	return n.tracker
}

// Process records the alerts evaluated for snap and publishes one
// notification per transition. Publishing continues past failures; the
// joined error reports all of them.
func (n *Notifier) Process(ctx context.Context, snap protocol.Snapshot, alerts []protocol.AlertRecord, source protocol.Source, now time.Time) error {
	var errs []error
	for _, tr := range n.tracker.Observe(alerts, now) {
		notification := &protocol.AlertNotification{
			Type:       tr.Type,
			AlertID:    tr.Record.ID,
			Severity:   tr.Record.Severity,
			Title:      tr.Record.Title,
			Message:    tr.Record.Message,
			Source:     source,
			Snapshot:   snap,
			OccurredAt: tr.At,
		}

		if tr.Type == protocol.AlertTypeRaised {
			n.log.Info("🚨 alert raised", zap.String("alert", tr.Record.ID), zap.String("severity", string(tr.Record.Severity)))
		} else {
			n.log.Info("✅ alert cleared", zap.String("alert", tr.Record.ID))
		}

		if err := n.sendNotification(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendNotification(ctx context.Context, notification *protocol.AlertNotification) error {
	if n.publisher == nil {
		return nil
	}

	data, err := protocol.EncodeAlertNotification(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := n.publisher.Publish(ctx, notification.AlertID, data); err != nil {
		return fmt.Errorf("failed to publish %s notification for %s: %w", notification.Type, notification.AlertID, err)
	}
	return nil
}
