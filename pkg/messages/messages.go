package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
)

const (
	// MessageBufferSize represents the maximum size of an inbound frame
	MessageBufferSize = 32768
)

// Message types
const (
	MessageTypeClientPing        = "ping"
	MessageTypeServerMatchFound  = "match_found"
	MessageTypeServerStateUpdate = "state_update"
	MessageTypeServerGameOver    = "game_over"
	MessageTypeServerError       = "error"
)

// Error kinds carried by ServerError
const (
	ErrorKindNoGame           = "NoGame"
	ErrorKindNoPlayer         = "NoPlayer"
	ErrorKindMalformedMessage = "MalformedMessage"
	ErrorKindRejected         = "Rejected"
)

// Message represents a generic message for serialization/deserialization.
// Inbound messages carry an action name as their type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMatchFound tells a player it was paired with an opponent
type ServerMatchFound struct {
	GameID   string `json:"game_id"`
	Opponent string `json:"opponent"`
}

// ServerStateUpdate carries a game's state. Game-wide updates leave the player fields empty.
type ServerStateUpdate struct {
	GameID      string                 `json:"game_id"`
	Tick        int64                  `json:"tick"`
	PlayerName  string                 `json:"player_name,omitempty"`
	PlayerState *gametypes.PlayerState `json:"player_state,omitempty"`
}

// ServerGameOver is the last message of a game
type ServerGameOver struct {
	GameID string `json:"game_id"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ServerError rejects a single client request
type ServerError struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	PlayerName string `json:"player_name"`
}

// RegisterResponse is the reply to POST /register
type RegisterResponse struct {
	URL string `json:"url"`
}

// UnregisterRequest is the body of POST /unregister
type UnregisterRequest struct {
	ID string `json:"id"`
}

// PublishResponse is the reply to POST /publish
type PublishResponse struct {
	Delivered int `json:"delivered"`
}

// NewMessage builds a Message with a JSON encoded payload
func NewMessage(messageType string, payload interface{}) (*Message, error) {
	m := &Message{Type: messageType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %v", messageType, err)
		}
		m.Payload = b
	}
	return m, nil
}

// SerializeMessage encodes a Message as a single JSON text frame
func SerializeMessage(m *Message) ([]byte, error) {
	if m == nil || m.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return b, nil
}

// DeserializeMessage decodes a Message from a JSON text frame
func DeserializeMessage(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &ErrMalformedMessage{Reason: err.Error()}
	}
	if m.Type == "" {
		return nil, &ErrMalformedMessage{Reason: "missing message type"}
	}
	return m, nil
}

// IsPing reports whether a frame is a keepalive: either bare ping or the JSON string "ping".
func IsPing(data []byte) bool {
	data = bytes.TrimSpace(data)
	return string(data) == MessageTypeClientPing || string(data) == `"`+MessageTypeClientPing+`"`
}

// ParseClientMessage decodes an inbound frame into an action.
// Keepalives are reported with ping set and a nil action.
func ParseClientMessage(data []byte) (action *gametypes.Action, ping bool, err error) {
	if IsPing(data) {
		return nil, true, nil
	}
	m, err := DeserializeMessage(data)
	if err != nil {
		return nil, false, err
	}
	if m.Type == MessageTypeClientPing {
		return nil, true, nil
	}
	return &gametypes.Action{
		Type:    m.Type,
		Payload: m.Payload,
	}, false, nil
}

// DecodePayload unmarshals the payload of a message into v
func DecodePayload(m *Message, v interface{}) error {
	if len(m.Payload) == 0 {
		return &ErrMalformedMessage{Reason: fmt.Sprintf("%s message has no payload", m.Type)}
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return &ErrMalformedMessage{Reason: fmt.Sprintf("failed to decode %s payload: %v", m.Type, err)}
	}
	return nil
}

// ErrMalformedMessage is returned for frames that are not a valid message
type ErrMalformedMessage struct {
	Reason string
}

func (e *ErrMalformedMessage) Error() string {
	return fmt.Sprintf("MalformedMessage: %s", e.Reason)
}

func IsMalformedMessage(err error) bool {
	var e *ErrMalformedMessage
	return errors.As(err, &e)
}
