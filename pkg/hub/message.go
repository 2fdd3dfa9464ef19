// Package hub fans camera events (status, audio levels, analysis results)
// out to websocket viewers and in-process subscribers.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g., JPEG frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Event is the JSON envelope pushed to websocket clients.
type Event struct {
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event. A payload that cannot be encoded is left out.
func NewEvent(kind string, payload interface{}) Event {
	e := Event{Type: kind, Time: time.Now().UTC()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}
	return e
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
