package sessionlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_EmitWritesOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Emit(Event{Type: EventSessionStart, SessionID: "s1", ClientAddr: "127.0.0.1:1234", Success: true})
	l.Emit(Event{Type: EventCommandReceived, SessionID: "s1", CommandID: "c1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "session_start", first["event_type"])
	assert.Equal(t, "s1", first["session_id"])
}

func TestLogger_TracksPerSessionStats(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Emit(Event{Type: EventSessionStart, SessionID: "s1", ClientAddr: "10.0.0.1:5", Success: true})
	l.Emit(Event{Type: EventCommandReceived, SessionID: "s1", Success: true})
	l.Emit(Event{Type: EventCommandReceived, SessionID: "s1", Success: true})

	stats, ok := l.SessionStats("s1")
	require.True(t, ok)
	assert.Equal(t, 2, stats.CommandCount)
	assert.Equal(t, "10.0.0.1:5", stats.ClientAddr)
}

func TestLogger_SessionEndRemovesStats(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Emit(Event{Type: EventSessionStart, SessionID: "s1", Success: true})
	l.Emit(Event{Type: EventSessionEnd, SessionID: "s1", Success: true})

	_, ok := l.SessionStats("s1")
	assert.False(t, ok)
}

func TestLogger_DisabledConfigDiscardsOutput(t *testing.T) {
	l := New(Config{Enabled: false})
	l.Emit(Event{Type: EventSessionStart, SessionID: "s1", Success: true})

	stats, ok := l.SessionStats("s1")
	assert.True(t, ok, "stats still track in-memory even when file writes are disabled")
	assert.Equal(t, 0, stats.CommandCount)
}
