package protocol

import (
	"encoding/base64"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from encoded image bytes
func NewFrameMessage(format string, image []byte, frameID, timestampMs uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Format:      format,
		Data:        base64.StdEncoding.EncodeToString(image),
		FrameID:     frameID,
		TimestampMs: timestampMs,
	})
}

// NewConfigureMessage creates a configure message
func NewConfigureMessage(cfg ConfigureData) (*Message, error) {
	return NewMessage(TypeConfigure, cfg)
}

// NewResetMessage creates a reset message
func NewResetMessage() (*Message, error) {
	return NewMessage(TypeReset, nil)
}

// NewDecisionMessage creates a decision message
func NewDecisionMessage(d DecisionData) (*Message, error) {
	return NewMessage(TypeDecision, d)
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string, frameID uint64) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Code:    code,
		Message: message,
		FrameID: frameID,
	})
}

// NewSessionMessage creates a session binding message
func NewSessionMessage(sessionID string, created bool) (*Message, error) {
	return NewMessage(TypeSession, SessionData{
		SessionID: sessionID,
		Created:   created,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetConfigureData extracts configure data from a message
func (m *Message) GetConfigureData() (*ConfigureData, error) {
	var data ConfigureData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDecisionData extracts decision data from a message
func (m *Message) GetDecisionData() (*DecisionData, error) {
	var data DecisionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSessionData extracts session data from a message
func (m *Message) GetSessionData() (*SessionData, error) {
	var data SessionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
