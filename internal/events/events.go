package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire form shared by the SSE feed and the executor stream.
type Envelope struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(sessionID, typ string, v int, data any) Envelope {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Envelope{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		SessionID: sessionID,
		Data:      raw,
	}
}

// MakeEvent builds an envelope and returns it encoded, ready for Hub.Publish.
func MakeEvent(sessionID, typ string, v int, data any) string {
	b, _ := json.Marshal(NewEnvelope(sessionID, typ, v, data))
	return string(b)
}
