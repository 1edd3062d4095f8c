// Package streaming defines the JSON envelopes the game engine sends to the
// overlay over WebSocket.
package streaming

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glowe/dartviz/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeLastThrow = "last_throw"
	TypeGameState = "game_state"
	TypeUndo      = "undo"
	TypeClear     = "clear"
	TypeLayout    = "layout"
	TypeAck       = "ack"
)

// ErrUnknownType is returned by Decode for an unsupported message type.
var ErrUnknownType = errors.New("unknown message type")

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the overlay's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// NewAck builds the ack for a message type.
func NewAck(msgType string) AckMessage {
	return AckMessage{Type: TypeAck, For: msgType}
}

// Marshal builds a JSON-encoded Envelope from a message type and payload. A
// nil payload is omitted.
func Marshal(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Decode parses an envelope and its typed payload. Types without a payload
// return nil.
func Decode(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeLastThrow:
		var t core.Throw
		if err := decodePayload(env, &t); err != nil {
			return env.Type, nil, err
		}
		return env.Type, &t, nil
	case TypeGameState:
		var gs core.GameState
		if err := decodePayload(env, &gs); err != nil {
			return env.Type, nil, err
		}
		return env.Type, &gs, nil
	case TypeLayout:
		var l core.Layout
		if err := decodePayload(env, &l); err != nil {
			return env.Type, nil, err
		}
		return env.Type, &l, nil
	case TypeUndo, TypeClear:
		return env.Type, nil, nil
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("decode %s payload: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
