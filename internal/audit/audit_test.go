package audit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []*AuditEvent
}

func (w *recordingWriter) WriteEvent(event *AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func TestLogChunkSentAndReceived(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(100, w)

	logger.LogChunkSent("channel-1", "v2", 0, 64, 5*time.Millisecond, nil)
	logger.LogChunkReceived("channel-1", "v2", 0, 48, 3*time.Millisecond, nil)

	events := logger.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeChunkSent, events[0].EventType)
	assert.True(t, events[0].Success)
	assert.Equal(t, 64, events[0].BytesProcessed)
	assert.Equal(t, EventTypeChunkReceived, events[1].EventType)
	assert.Equal(t, 48, events[1].BytesProcessed)
}

func TestLogAuthFailure(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(100, w)

	logger.LogAuthFailure("channel-1", "v1", 7, errors.New("tag mismatch"))

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAuthFailure, events[0].EventType)
	assert.False(t, events[0].Success)
	assert.Equal(t, int64(7), events[0].ChunkIndex)
	assert.Equal(t, "tag mismatch", events[0].Error)
}

func TestLogMalformedFrame(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(100, w)

	logger.LogMalformedFrame("channel-1", "bad_start", errors.New("unexpected byte"))

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeMalformedFrame, events[0].EventType)
	assert.Equal(t, "bad_start", events[0].Operation)
}

func TestLogRearm(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(100, w)

	logger.LogRearm("channel-1", true, nil)

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeRearm, events[0].EventType)
	assert.True(t, events[0].Success)
}

func TestMaxEventsEviction(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(2, w)

	logger.LogRearm("a", true, nil)
	logger.LogRearm("b", true, nil)
	logger.LogRearm("c", true, nil)

	events := logger.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ChannelID)
	assert.Equal(t, "c", events[1].ChannelID)
}

func TestRedactMetadataByGlob(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLoggerWithRedaction(100, w, []string{"AT+CPIN=*"})

	logger.LogChunkSent("channel-1", "v2", 0, 12, time.Millisecond, map[string]interface{}{
		"at_command": "AT+CPIN=1234",
		"other":      "AT+CSQ",
	})

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "[REDACTED]", events[0].Metadata["at_command"])
	assert.Equal(t, "AT+CSQ", events[0].Metadata["other"])
}

func TestRedactMetadataNoPatternsIsNoop(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(100, w)

	logger.LogChunkSent("channel-1", "v1", 0, 12, time.Millisecond, map[string]interface{}{
		"at_command": "AT+CPIN=1234",
	})

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "AT+CPIN=1234", events[0].Metadata["at_command"])
}
