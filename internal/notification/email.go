package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

var raisedTemplate = template.Must(template.New("raised").Parse(`
Sensor Alert Raised
===================

Alert: {{.Title}}
Severity: {{.Severity}}
{{- if .Message}}
Details: {{.Message}}
{{- end}}
Source: {{.Source}}
Raised At: {{.OccurredAt.Format "2006-01-02 15:04:05 MST"}}

Readings:
  Temperature: {{printf "%.1f" .Snapshot.Temperature}} °C
  Light:       {{printf "%.0f" .Snapshot.Light}} lux
  Distance:    {{printf "%.0f" .Snapshot.Distance}} cm
  Smoke:       {{printf "%.0f" .Snapshot.Smoke}} ppm
  Touch:       {{if .Snapshot.Touch}}detected{{else}}idle{{end}}

Alert ID: {{.AlertID}}

---
Sensor Dashboard Notification System
`))

var clearedTemplate = template.Must(template.New("cleared").Parse(`
Sensor Alert Cleared
====================

Alert: {{.Title}}
Cleared At: {{.OccurredAt.Format "2006-01-02 15:04:05 MST"}}
Source: {{.Source}}

The condition behind this alert no longer holds.

Alert ID: {{.AlertID}}

---
Sensor Dashboard Notification System
`))

// SendFunc delivers a fully formatted message. It matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
	send   SendFunc
	now    func() time.Time
	log    *zap.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, log *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		config: cfg,
		send:   smtp.SendMail,
		now:    time.Now,
		log:    logger.OrNop(log),
	}
}

// Configured reports whether SMTP credentials are present. Without them
// notifications are only logged.
func (e *EmailNotifier) Configured() bool {
	return e.config.Username != "" && e.config.Password != ""
}

// SendAlertNotification sends an email for an alert notification
func (e *EmailNotifier) SendAlertNotification(n *protocol.AlertNotification) error {
	subject, body, err := Render(n)
	if err != nil {
		return err
	}
	return e.sendEmail(subject, body)
}

// Render builds the subject and body of the email for n.
func Render(n *protocol.AlertNotification) (string, string, error) {
	var subject string
	var tmpl *template.Template

	switch n.Type {
	case protocol.AlertTypeRaised:
		subject = fmt.Sprintf("🚨 Sensor Alert [%s] - %s", strings.ToUpper(string(n.Severity)), n.Title)
		tmpl = raisedTemplate
	case protocol.AlertTypeCleared:
		subject = fmt.Sprintf("✅ Sensor Alert CLEARED - %s", n.Title)
		tmpl = clearedTemplate
	default:
		return "", "", fmt.Errorf("unknown notification type: %s", n.Type)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, n); err != nil {
		return "", "", fmt.Errorf("failed to render email template: %w", err)
	}
	return subject, buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if !e.Configured() {
		e.log.Info("SMTP not configured, skipping email",
			zap.String("subject", subject),
			zap.String("body", body))
		return nil
	}

	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&message, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	fmt.Fprintf(&message, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(message.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.log.Info("email sent", zap.String("subject", subject))
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if !e.Configured() {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	e.log.Info("SMTP connection test successful", zap.String("addr", addr))
	return nil
}
