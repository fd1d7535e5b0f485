// Package protocol defines the WebSocket messages exchanged between a
// camera feeder and the frame gate, and the events pushed to dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Camera → Gate messages
	TypeFrame     MessageType = "frame"     // Encoded still frame
	TypeConfigure MessageType = "configure" // Detector overrides
	TypeReset     MessageType = "reset"     // Clear cooldowns and tracking

	// Gate → Camera messages
	TypeDecision MessageType = "decision" // Gate decision for one frame
	TypeError    MessageType = "error"    // Frame or request rejected
	TypeSession  MessageType = "session"  // Session bound on connect

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Error codes carried in ErrorData.
const (
	CodeBadMessage        = "bad_message"
	CodeDecode            = "decode"
	CodeDimensionMismatch = "dimension_mismatch"
	CodeInvalidConfig     = "invalid_config"
	CodeInternal          = "internal"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
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
func (m *Message) ParseData(v any) error {
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
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Camera → Gate Message Types
// =============================================================================

// FrameData contains one encoded still frame
type FrameData struct {
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Format      string `json:"format,omitempty"` // "jpeg", "png"
	Data        string `json:"data"`             // base64 encoded
	FrameID     uint64 `json:"frame_id,omitempty"`
	TimestampMs uint64 `json:"timestamp_ms,omitempty"`
}

// ConfigureData carries detector overrides; omitted fields are unchanged.
type ConfigureData struct {
	BufferDurationMs *uint64  `json:"buffer_duration_ms,omitempty"`
	ChangeThreshold  *float32 `json:"change_threshold,omitempty"`
	FrameIntervalMs  *uint64  `json:"frame_interval_ms,omitempty"`
	VolatileEnabled  *bool    `json:"volatile_enabled,omitempty"`
}

// =============================================================================
// Gate → Camera Message Types
// =============================================================================

// DecisionData is the gate's answer for one frame. It is also the event
// fanned out to dashboards.
type DecisionData struct {
	SessionID          string  `json:"session_id"`
	FrameID            uint64  `json:"frame_id,omitempty"`
	Fire               bool    `json:"fire"`
	Confidence         float32 `json:"confidence"`
	TrackedObjectCount int     `json:"tracked_object_count"`
	SceneState         string  `json:"scene_state"`
	FrameCount         uint64  `json:"frame_count"`
	TimestampMs        uint64  `json:"timestamp_ms,omitempty"`
}

// ErrorData reports a rejected frame or request.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	FrameID uint64 `json:"frame_id,omitempty"`
}

// SessionData tells a camera which session its connection is bound to.
type SessionData struct {
	SessionID string `json:"session_id"`
	Created   bool   `json:"created"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
