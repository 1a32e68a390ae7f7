package events

import (
	"encoding/json"
	"fmt"
	"time"

	"kitascrape-engine/internal/domain"
)

// Kind tags an executor event.
type Kind string

const (
	KindLog      Kind = "log"
	KindProgress Kind = "progress"
	KindData     Kind = "data"
	KindStats    Kind = "stats"
	KindStatus   Kind = "status"
	KindError    Kind = "error"
)

// Event is one item of an executor's ordered event stream. Only the fields
// belonging to Kind are meaningful.
type Event struct {
	Kind      Kind
	SessionID string

	Log     domain.LogEntry
	Percent float64
	Label   string
	Items   []domain.Item
	Stats   domain.Stats
	Status  domain.Status
	Message string
}

func LogEvent(sessionID string, level domain.LogLevel, msg string) Event {
	return Event{Kind: KindLog, SessionID: sessionID, Log: domain.LogEntry{
		Timestamp: time.Now().UTC(), Level: level, Message: msg,
	}}
}

func ProgressEvent(sessionID string, percent float64, label string) Event {
	return Event{Kind: KindProgress, SessionID: sessionID, Percent: percent, Label: label}
}

func DataEvent(sessionID string, items []domain.Item) Event {
	return Event{Kind: KindData, SessionID: sessionID, Items: items}
}

func StatsEvent(sessionID string, st domain.Stats) Event {
	return Event{Kind: KindStats, SessionID: sessionID, Stats: st}
}

func StatusEvent(sessionID string, st domain.Status) Event {
	return Event{Kind: KindStatus, SessionID: sessionID, Status: st}
}

func ErrorEvent(sessionID, msg string) Event {
	return Event{Kind: KindError, SessionID: sessionID, Message: msg}
}

// Wire payloads, one per kind.
type (
	logPayload struct {
		Message   string    `json:"message"`
		Level     string    `json:"level"`
		Timestamp time.Time `json:"timestamp"`
	}
	progressPayload struct {
		Percent float64 `json:"percent"`
		Label   string  `json:"label"`
	}
	dataPayload struct {
		Items []domain.Item `json:"items"`
	}
	statusPayload struct {
		Value string `json:"value"`
	}
	errorPayload struct {
		Message string `json:"message"`
	}
)

const wireVersion = 1

// Envelope encodes e for the executor stream.
func (e Event) Envelope() Envelope {
	var data any
	switch e.Kind {
	case KindLog:
		data = logPayload{Message: e.Log.Message, Level: string(e.Log.Level), Timestamp: e.Log.Timestamp}
	case KindProgress:
		data = progressPayload{Percent: e.Percent, Label: e.Label}
	case KindData:
		data = dataPayload{Items: e.Items}
	case KindStats:
		data = e.Stats
	case KindStatus:
		data = statusPayload{Value: string(e.Status)}
	case KindError:
		data = errorPayload{Message: e.Message}
	}
	return NewEnvelope(e.SessionID, string(e.Kind), wireVersion, data)
}

// FromEnvelope decodes an executor stream envelope.
func FromEnvelope(env Envelope) (Event, error) {
	e := Event{Kind: Kind(env.Type), SessionID: env.SessionID}
	var err error
	switch e.Kind {
	case KindLog:
		var p logPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			e.Log = domain.LogEntry{Timestamp: p.Timestamp, Level: domain.ParseLogLevel(p.Level), Message: p.Message}
		}
	case KindProgress:
		var p progressPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			e.Percent, e.Label = p.Percent, p.Label
		}
	case KindData:
		var p dataPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			e.Items = p.Items
		}
	case KindStats:
		err = json.Unmarshal(env.Data, &e.Stats)
	case KindStatus:
		var p statusPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			st, ok := domain.ParseStatus(p.Value)
			if !ok {
				return Event{}, fmt.Errorf("unknown status %q", p.Value)
			}
			e.Status = st
		}
	case KindError:
		var p errorPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			e.Message = p.Message
		}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return e, nil
}
