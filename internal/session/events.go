package session

import (
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the manager.
const (
	EventCreated        = "session_created"
	EventRevoked        = "session_revoked"
	EventEvicted        = "session_evicted"
	EventExpired        = "session_expired"
	EventDeviceMismatch = "session_device_mismatch"
	EventIPChanged      = "session_ip_changed"
)

// Event describes a session lifecycle occurrence. Events are advisory: sinks
// observe them, nothing in the manager depends on a sink acting.
type Event struct {
	Type      string
	SessionID string
	UserID    string
	Details   map[string]string
	At        time.Time
}

// EventSink receives session events. Emit must not block; slow consumers
// should buffer internally.
type EventSink interface {
	Emit(e Event)
}

// LogSink writes events to the application logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns an EventSink logging each event at info level.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(e Event) {
	s.log.Info("session event",
		zap.String("type", e.Type),
		zap.String("session_id", e.SessionID),
		zap.String("user_id", e.UserID),
		zap.Any("details", e.Details),
	)
}

// Auditor records session lifecycle events as audit entries.
type Auditor interface {
	LogSuccess(actorID, action, resource, resourceID, sourceAddress string, details map[string]string)
}

// AuditSink mirrors session events into the audit log.
type AuditSink struct {
	aud Auditor
}

// NewAuditSink returns an EventSink writing each event as an audit entry.
func NewAuditSink(aud Auditor) *AuditSink {
	return &AuditSink{aud: aud}
}

func (s *AuditSink) Emit(e Event) {
	s.aud.LogSuccess(e.UserID, e.Type, "session", e.SessionID, "", e.Details)
}

// MultiSink fans out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
