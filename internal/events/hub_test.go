package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_LossyDropsWhenFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 15; i++ {
		h.Publish("x")
	}
	assert.Len(t, ch, 10)
	assert.Equal(t, 1, h.Len())
}

func TestHub_StrictEvictsSlowSubscriber(t *testing.T) {
	h := NewStrictHub(2)
	evicted := 0
	h.OnEvict(func() { evicted++ })
	slow := h.Subscribe()
	h.Publish("a")
	h.Publish("b")
	h.Publish("c")

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1, evicted)
	got := []string{}
	for msg := range slow {
		got = append(got, msg)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	// Unsubscribing an evicted channel must not panic.
	h.Unsubscribe(slow)
}

func TestMakeEvent(t *testing.T) {
	raw := MakeEvent("s-1", "session.status", 1, map[string]string{"status": "running"})

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "session.status", env.Type)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "s-1", env.SessionID)
	assert.JSONEq(t, `{"status":"running"}`, string(env.Data))
	assert.False(t, env.At.IsZero())
}
