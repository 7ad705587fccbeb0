package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType represents the type of message
type MessageType string

const (
	// Client to Server
	MsgTypeSubscribe MessageType = "subscribe"
	MsgTypeKeepalive MessageType = "keepalive"

	// Server to Client
	MsgTypeAck    MessageType = "ack"
	MsgTypeUpdate MessageType = "update"
)

// BaseMessage is the common structure for all messages
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// SubscribeMessage is sent by a feed client right after connecting
type SubscribeMessage struct {
	Type   MessageType `json:"type"`
	Client string      `json:"client"`
}

// KeepaliveMessage is sent by the client to stay registered
type KeepaliveMessage struct {
	Type MessageType `json:"type"`
}

// AckMessage is sent by the server in response to messages
type AckMessage struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
}

// AckStatus constants
const (
	AckStatusSubscribed = "subscribed"
	AckStatusAlive      = "alive"
	AckStatusError      = "error"
)

// UpdateMessage is pushed to feed clients after every store update
type UpdateMessage struct {
	Type             MessageType   `json:"type"`
	Source           Source        `json:"source"`
	Synthetic        bool          `json:"synthetic"`
	Snapshot         Snapshot      `json:"snapshot"`
	AmbientDark      bool          `json:"ambient_dark"`
	NearObjectActive bool          `json:"near_object_active"`
	Alerts           []AlertRecord `json:"alerts"`
	HistoryLen       int           `json:"history_len"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Seq              uint64        `json:"seq"`
}

// ParseMessage parses a JSON line into the appropriate message type
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MsgTypeSubscribe:
		var msg SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid subscribe message: %w", err)
		}
		if err := validateSubscribe(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MsgTypeKeepalive:
		var msg KeepaliveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid keepalive message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// DecodeServerMessage parses a line sent by the feed server
func DecodeServerMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MsgTypeAck:
		var msg AckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid ack message: %w", err)
		}
		return &msg, nil

	case MsgTypeUpdate:
		var msg UpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid update message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

func validateSubscribe(msg *SubscribeMessage) error {
	msg.Client = strings.TrimSpace(msg.Client)
	if msg.Client == "" {
		return fmt.Errorf("client is required")
	}
	return nil
}

// EncodeMessage encodes a message to JSON
func EncodeMessage(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// NewAckMessage creates a new acknowledgment message
func NewAckMessage(status string) *AckMessage {
	return &AckMessage{
		Type:   MsgTypeAck,
		Status: status,
	}
}
