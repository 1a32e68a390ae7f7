package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/domain"
)

// roundTrip pushes an event through its JSON wire form.
func roundTrip(t *testing.T, e Event) Event {
	t.Helper()
	b, err := json.Marshal(e.Envelope())
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	out, err := FromEnvelope(env)
	require.NoError(t, err)
	return out
}

func TestEventWireForm(t *testing.T) {
	t.Run("data keeps item order", func(t *testing.T) {
		items := []domain.Item{{ID: "A", Name: "Kita A"}, {ID: "B", Name: "Kita B"}}
		got := roundTrip(t, DataEvent("s", items))
		assert.Equal(t, KindData, got.Kind)
		assert.Equal(t, "s", got.SessionID)
		assert.Equal(t, items, got.Items)
	})

	t.Run("status", func(t *testing.T) {
		got := roundTrip(t, StatusEvent("s", domain.StatusCompleted))
		assert.Equal(t, domain.StatusCompleted, got.Status)
	})

	t.Run("log level normalised", func(t *testing.T) {
		e := LogEvent("s", domain.LevelWarning, "slow page")
		got := roundTrip(t, e)
		assert.Equal(t, domain.LevelWarning, got.Log.Level)
		assert.Equal(t, "slow page", got.Log.Message)
		assert.True(t, e.Log.Timestamp.Equal(got.Log.Timestamp))
	})

	t.Run("stats", func(t *testing.T) {
		st := domain.Stats{UnitsProcessed: 2, ItemsCollected: 7, ErrorCount: 1}
		assert.Equal(t, st, roundTrip(t, StatsEvent("s", st)).Stats)
	})
}

func TestFromEnvelope_Rejects(t *testing.T) {
	_, err := FromEnvelope(Envelope{Type: "telemetry"})
	assert.Error(t, err)

	_, err = FromEnvelope(Envelope{Type: "status", Data: json.RawMessage(`{"value":"sleeping"}`)})
	assert.Error(t, err)

	_, err = FromEnvelope(Envelope{Type: "progress", Data: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}
