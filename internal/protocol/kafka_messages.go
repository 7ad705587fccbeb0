package protocol

import (
	"encoding/json"
	"time"
)

// AlertNotification is published when an alert becomes active or clears
type AlertNotification struct {
	Type       string    `json:"type"` // ALERT_RAISED, ALERT_CLEARED
	AlertID    string    `json:"alert_id"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Message    string    `json:"message,omitempty"`
	Source     Source    `json:"source"`
	Snapshot   Snapshot  `json:"snapshot"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	AlertTypeRaised  = "ALERT_RAISED"
	AlertTypeCleared = "ALERT_CLEARED"
)

// EncodeAlertNotification encodes an AlertNotification to JSON
func EncodeAlertNotification(n *AlertNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeAlertNotification decodes JSON to AlertNotification
func DecodeAlertNotification(data []byte) (*AlertNotification, error) {
	var n AlertNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// EncodeFrame encodes a Frame to JSON
func EncodeFrame(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame decodes JSON to Frame
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
