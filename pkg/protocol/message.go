// Package protocol defines the JSON messages the actuator host publishes to
// dashboards (websocket), MQTT subscribers and the journal API.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-gesture/pkg/motion"
)

// MessageType identifies the type of message
type MessageType string

const (
	TypeMotion MessageType = "motion" // Executor lifecycle event
	TypeStatus MessageType = "status" // Periodic host status
)

// Message is the base wrapper for all published messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// MotionData is the payload of a TypeMotion message.
type MotionData struct {
	Event     string  `json:"event"`
	Command   string  `json:"command"`
	JobID     string  `json:"job_id,omitempty"`
	At        int64   `json:"at"` // Unix milliseconds
	ElapsedMs float64 `json:"elapsed_ms,omitempty"`
	Ticks     int     `json:"ticks,omitempty"`
}

// NewMotionData converts an executor event.
func NewMotionData(e motion.Event) MotionData {
	return MotionData{
		Event:     string(e.Type),
		Command:   string(e.Command),
		JobID:     e.JobID,
		At:        e.At.UnixMilli(),
		ElapsedMs: float64(e.Elapsed) / float64(time.Millisecond),
		Ticks:     e.Ticks,
	}
}

// NewMotionMessage wraps an executor event in a Message.
func NewMotionMessage(e motion.Event) (*Message, error) {
	return NewMessage(TypeMotion, NewMotionData(e))
}

// StatusData is the payload of a TypeStatus message.
type StatusData struct {
	Executor motion.State `json:"executor"`
	Position *motion.Vec3 `json:"position,omitempty"`
	Clients  int          `json:"clients"`
}

// NewStatusMessage creates a status message.
func NewStatusMessage(s StatusData) (*Message, error) {
	return NewMessage(TypeStatus, s)
}
