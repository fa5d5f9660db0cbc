package collab

import (
	"encoding/json"
	"time"
)

// Binary frames carry full encoded document states. Text frames carry
// Messages that describe room events.
type MessageType string

const (
	TypeJoined MessageType = "joined"
	TypeReset  MessageType = "reset"
	TypeError  MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type JoinedPayload struct {
	SessionID string `json:"session_id"`
	Peers     int    `json:"peers"`
	HasState  bool   `json:"has_state"`
}

type ResetPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
