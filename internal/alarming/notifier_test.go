package alarming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

type published struct {
	key   string
	value []byte
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, value: value})
	return nil
}

func TestNotifier_PublishesTransitionsOnly(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, nil)
	ctx := context.Background()
	now := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	door := protocol.Snapshot{Touch: true, Light: 500, Distance: 40, Smoke: 90, Temperature: 28}
	require.NoError(t, n.Process(ctx, door, Evaluate(door), protocol.SourceLive, now))
	require.NoError(t, n.Process(ctx, door, Evaluate(door), protocol.SourceLive, now.Add(time.Second)))
	require.Len(t, pub.sent, 1)

	require.NoError(t, n.Process(ctx, protocol.Baseline, Evaluate(protocol.Baseline), protocol.SourceLive, now.Add(2*time.Second)))
	require.Len(t, pub.sent, 2)

	raised, err := protocol.DecodeAlertNotification(pub.sent[0].value)
	require.NoError(t, err)
	require.Equal(t, "touch", pub.sent[0].key)
	require.Equal(t, protocol.AlertTypeRaised, raised.Type)
	require.Equal(t, "Door sensor triggered.", raised.Message)
	require.True(t, raised.Snapshot.Touch)
	require.Equal(t, now, raised.OccurredAt)

	cleared, err := protocol.DecodeAlertNotification(pub.sent[1].value)
	require.NoError(t, err)
	require.Equal(t, protocol.AlertTypeCleared, cleared.Type)
	require.Equal(t, "touch", cleared.AlertID)
}

func TestNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	n := NewNotifier(pub, nil)

	s := protocol.Snapshot{Light: 100, Distance: 10}
	err := n.Process(context.Background(), s, Evaluate(s), protocol.SourceMock, time.Now())
	require.ErrorContains(t, err, "broker down")

	// The transition is recorded even though publishing failed
	require.Equal(t, AlarmStateActive, n.Tracker().GetState("light").Status)
}

func TestNotifier_NilPublisher(t *testing.T) {
	n := NewNotifier(nil, nil)
	s := protocol.Snapshot{Smoke: 999}
	require.NoError(t, n.Process(context.Background(), s, Evaluate(s), protocol.SourceMock, time.Now()))
}
