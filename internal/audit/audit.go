package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	glob "github.com/ryanuber/go-glob"

	"github.com/kenneth/c2c-secure-channel/internal/config"
)

// EventType names the kind of channel event an AuditEvent records.
type EventType string

const (
	// EventTypeChunkSent is emitted for every egress chunk successfully framed.
	EventTypeChunkSent EventType = "chunk_sent"
	// EventTypeChunkReceived is emitted for every ingress chunk successfully
	// verified and decrypted.
	EventTypeChunkReceived EventType = "chunk_received"
	// EventTypeAuthFailure is emitted when a chunk's tag fails verification.
	EventTypeAuthFailure EventType = "auth_failure"
	// EventTypeMalformedFrame is emitted when the framer rejects malformed
	// input (bad start/end markers, oversized length, misaligned ciphertext).
	EventTypeMalformedFrame EventType = "malformed_frame"
	// EventTypeRearm is emitted every time a security context's Arm() is
	// called, including the first arming.
	EventTypeRearm EventType = "rearm"
)

// AuditEvent represents a single audit log entry for a secure channel
// operation. Unlike the teacher's S3-object-shaped event, it carries no
// bucket/key/HTTP fields — only what the channel itself produces.
type AuditEvent struct {
	Timestamp      time.Time              `json:"timestamp"`
	EventType      EventType              `json:"event_type"`
	Operation      string                 `json:"operation"`
	ChannelID      string                 `json:"channel_id,omitempty"`
	Scheme         string                 `json:"scheme,omitempty"`
	ChunkIndex     int64                  `json:"chunk_index,omitempty"`
	BytesProcessed int                    `json:"bytes_processed,omitempty"`
	Success        bool                   `json:"success"`
	Error          string                 `json:"error,omitempty"`
	Duration       time.Duration          `json:"duration_ms"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for channel audit logging.
type Logger interface {
	// Log logs an arbitrary audit event.
	Log(event *AuditEvent) error

	// LogChunkSent logs a successfully framed egress chunk.
	LogChunkSent(channelID, scheme string, chunkIndex int64, bytesProcessed int, duration time.Duration, metadata map[string]interface{})

	// LogChunkReceived logs a successfully verified and decrypted ingress chunk.
	LogChunkReceived(channelID, scheme string, chunkIndex int64, bytesProcessed int, duration time.Duration, metadata map[string]interface{})

	// LogAuthFailure logs a tag-verification or padding failure.
	LogAuthFailure(channelID, scheme string, chunkIndex int64, err error)

	// LogMalformedFrame logs a framing-level rejection.
	LogMalformedFrame(channelID, reason string, err error)

	// LogRearm logs a security context's Arm() transition.
	LogRearm(channelID string, success bool, err error)

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu          sync.Mutex
	events      []*AuditEvent
	maxEvents   int
	writer      EventWriter
	redactGlobs []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger that redacts any string
// metadata value matching one of the given glob patterns (e.g.
// "AT+CPIN=*" to scrub SIM PINs out of intercepted AT-command metadata
// before it reaches the sink).
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactGlobs []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:      make([]*AuditEvent, 0, maxEvents),
		maxEvents:   maxEvents,
		writer:      writer,
		redactGlobs: redactGlobs,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("audit: unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactCommandGlobs), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// Best-effort: a sink outage must never block the data path.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata scrubs any string metadata value that glob-matches one of
// the configured redaction patterns. Patterns are intended for AT-command
// content intercepted by the channel (C7) that may embed secrets, e.g.
// "AT+CPIN=*" or "AT+CGDCONT=*,*,*<apn-secret>*".
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactGlobs) == 0 || len(metadata) == 0 {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, pattern := range l.redactGlobs {
			if glob.Glob(pattern, s) {
				clone[k] = "[REDACTED]"
				break
			}
		}
	}
	return clone
}

// LogChunkSent logs a successfully framed egress chunk.
func (l *auditLogger) LogChunkSent(channelID, scheme string, chunkIndex int64, bytesProcessed int, duration time.Duration, metadata map[string]interface{}) {
	l.Log(&AuditEvent{
		Timestamp:      time.Now(),
		EventType:      EventTypeChunkSent,
		Operation:      "chunk_sent",
		ChannelID:      channelID,
		Scheme:         scheme,
		ChunkIndex:     chunkIndex,
		BytesProcessed: bytesProcessed,
		Success:        true,
		Duration:       duration,
		Metadata:       l.redactMetadata(metadata),
	})
}

// LogChunkReceived logs a successfully verified and decrypted ingress chunk.
func (l *auditLogger) LogChunkReceived(channelID, scheme string, chunkIndex int64, bytesProcessed int, duration time.Duration, metadata map[string]interface{}) {
	l.Log(&AuditEvent{
		Timestamp:      time.Now(),
		EventType:      EventTypeChunkReceived,
		Operation:      "chunk_received",
		ChannelID:      channelID,
		Scheme:         scheme,
		ChunkIndex:     chunkIndex,
		BytesProcessed: bytesProcessed,
		Success:        true,
		Duration:       duration,
		Metadata:       l.redactMetadata(metadata),
	})
}

// LogAuthFailure logs a tag-verification or padding failure. Per the
// decided Open Question on mid-stream auth failure (no invalidation of
// prior chunks), this event carries no side effect beyond the log entry.
func (l *auditLogger) LogAuthFailure(channelID, scheme string, chunkIndex int64, err error) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeAuthFailure,
		Operation:  "auth_failure",
		ChannelID:  channelID,
		Scheme:     scheme,
		ChunkIndex: chunkIndex,
		Success:    false,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogMalformedFrame logs a framing-level rejection (ErrMalformed), labeled
// with a short reason code.
func (l *auditLogger) LogMalformedFrame(channelID, reason string, err error) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeMalformedFrame,
		Operation: reason,
		ChannelID: channelID,
		Success:   false,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogRearm logs a security context's Arm() transition.
func (l *auditLogger) LogRearm(channelID string, success bool, err error) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeRearm,
		Operation: "rearm",
		ChannelID: channelID,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
