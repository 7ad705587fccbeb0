package notification

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/config"
)

func smokeNotification(typ string) *protocol.AlertNotification {
	return &protocol.AlertNotification{
		Type:       typ,
		AlertID:    "smoke",
		Severity:   protocol.SeverityDanger,
		Title:      "High Smoke Detected",
		Message:    "Smoke level 200 ppm exceeds safe threshold of 150 ppm.",
		Source:     protocol.SourceLive,
		Snapshot:   protocol.Snapshot{Light: 500, Distance: 40, Smoke: 200, Temperature: 28.5},
		OccurredAt: time.Date(2025, 12, 24, 18, 30, 0, 0, time.UTC),
	}
}

func TestRenderRaised(t *testing.T) {
	subject, body, err := Render(smokeNotification(protocol.AlertTypeRaised))
	require.NoError(t, err)
	require.Equal(t, "🚨 Sensor Alert [DANGER] - High Smoke Detected", subject)
	require.Contains(t, body, "Details: Smoke level 200 ppm exceeds safe threshold of 150 ppm.")
	require.Contains(t, body, "Smoke:       200 ppm")
	require.Contains(t, body, "Temperature: 28.5 °C")
	require.Contains(t, body, "Touch:       idle")
	require.Contains(t, body, "Raised At: 2025-12-24 18:30:00 UTC")
}

func TestRenderRaisedWithoutMessage(t *testing.T) {
	n := smokeNotification(protocol.AlertTypeRaised)
	n.Message = ""
	_, body, err := Render(n)
	require.NoError(t, err)
	require.NotContains(t, body, "Details:")
}

func TestRenderCleared(t *testing.T) {
	subject, body, err := Render(smokeNotification(protocol.AlertTypeCleared))
	require.NoError(t, err)
	require.Equal(t, "✅ Sensor Alert CLEARED - High Smoke Detected", subject)
	require.Contains(t, body, "no longer holds")
	require.Contains(t, body, "Alert ID: smoke")
}

func TestRenderUnknownType(t *testing.T) {
	_, _, err := Render(smokeNotification("ALERT_SNOOZED"))
	require.Error(t, err)
}

func TestSendSkippedWhenUnconfigured(t *testing.T) {
	e := NewEmailNotifier(&config.SMTPConfig{Host: "smtp.example.com", Port: 587}, nil)
	e.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called without credentials")
		return nil
	}

	require.False(t, e.Configured())
	require.NoError(t, e.SendAlertNotification(smokeNotification(protocol.AlertTypeRaised)))
	require.Error(t, e.TestConnection())
}

func TestSendBuildsMessage(t *testing.T) {
	cfg := &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "secret",
		From:     "dashboard@example.com",
		To:       "ops@example.com",
	}
	e := NewEmailNotifier(cfg, nil)
	e.now = func() time.Time { return time.Date(2025, 12, 24, 18, 31, 0, 0, time.UTC) }

	var gotAddr string
	var gotTo []string
	var gotMsg string
	e.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		require.Equal(t, "dashboard@example.com", from)
		return nil
	}

	require.NoError(t, e.SendAlertNotification(smokeNotification(protocol.AlertTypeRaised)))
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, []string{"ops@example.com"}, gotTo)
	require.True(t, strings.HasPrefix(gotMsg, "From: dashboard@example.com\r\nTo: ops@example.com\r\n"))
	require.Contains(t, gotMsg, "Subject: 🚨 Sensor Alert [DANGER] - High Smoke Detected\r\n")
	require.Contains(t, gotMsg, "Date: Wed, 24 Dec 2025 18:31:00 +0000\r\n")

	e.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }
	require.ErrorContains(t, e.SendAlertNotification(smokeNotification(protocol.AlertTypeCleared)), "relay denied")
}
