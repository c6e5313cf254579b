// Package wire defines the JSON frames exchanged between a guarded client and
// the server over a websocket.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/stigoleg/session-guard/internal/guard"
)

// MessageType identifies a frame.
type MessageType string

const (
	// client -> server
	MsgBatch MessageType = "batch"

	// server -> client
	MsgState   MessageType = "state"
	MsgPong    MessageType = "pong"
	MsgAck     MessageType = "ack"
	MsgExpired MessageType = "expired"
	MsgError   MessageType = "error"
)

// Invocation methods carried in a batch.
const (
	MethodPing   = "ping"
	MethodAction = "action"
)

// ActionToggleKeepAlive asks the server to flip keep-alive on the session's
// guard.
const ActionToggleKeepAlive = "toggle-keepalive"

// Message is the envelope of every frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Invocation is one queued call from the client.
type Invocation struct {
	Method string `json:"method"`
	Name   string `json:"name,omitempty"`
}

// Ping returns a ping invocation.
func Ping() Invocation { return Invocation{Method: MethodPing} }

// Action returns an application action invocation.
func Action(name string) Invocation { return Invocation{Method: MethodAction, Name: name} }

// BatchPayload is all traffic queued on the client since the last flush.
type BatchPayload struct {
	Invocations []Invocation `json:"invocations"`
}

// HasPing reports whether the batch carries a ping.
func (b BatchPayload) HasPing() bool {
	for _, inv := range b.Invocations {
		if inv.Method == MethodPing {
			return true
		}
	}
	return false
}

// StatePayload pushes the guard fields that changed.
type StatePayload = guard.ConfigUpdate

// AckPayload confirms an application action.
type AckPayload struct {
	Name string `json:"name"`
}

// ErrorPayload reports a request the server could not handle.
type ErrorPayload struct {
	Message string `json:"message"`
}

// New builds a message with payload encoded as JSON. A nil payload is omitted.
func New(t MessageType, payload any) (Message, error) {
	m := Message{Type: t}
	if payload == nil {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	m.Payload = raw
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
