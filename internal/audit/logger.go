// Package audit keeps an append-only, bounded, queryable record of every
// security-relevant event. The store is an in-memory ring; configured sinks
// (console, file, database mirror) receive each entry best-effort.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-trust-gate/internal/audit/domain"
)

// Options configures the audit logger.
type Options struct {
	// MaxEntries caps the ring; the oldest entry is dropped when full.
	MaxEntries int
	// RetentionDays is the CleanupOld horizon.
	RetentionDays int
}

// Logger is the audit log: a bounded in-memory ring plus fan-out sinks.
// Safe for concurrent use.
type Logger struct {
	mu      sync.RWMutex
	entries []*domain.Entry // oldest first
	max     int

	retention time.Duration
	sinks     []Sink
	log       *zap.Logger
	nowF      func() time.Time
}

// NewLogger returns an audit logger with the given options and sinks.
// log is used for sink failure warnings and may not be nil.
func NewLogger(opts Options, log *zap.Logger, sinks ...Sink) *Logger {
	max := opts.MaxEntries
	if max <= 0 {
		max = 10000
	}
	days := opts.RetentionDays
	if days <= 0 {
		days = 90
	}
	return &Logger{
		entries:   make([]*domain.Entry, 0, 64),
		max:       max,
		retention: time.Duration(days) * 24 * time.Hour,
		sinks:     sinks,
		log:       log,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Log appends an entry, assigning ID and timestamp if unset. The entry is
// mirrored to every sink; sink errors are logged and swallowed.
func (l *Logger) Log(entry *domain.Entry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.nowF()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		// Bounded ring: drop oldest. Copy down so the backing array does not
		// pin dropped entries.
		n := copy(l.entries, l.entries[len(l.entries)-l.max:])
		l.entries = l.entries[:n]
	}
	l.mu.Unlock()

	for _, s := range l.sinks {
		if err := s.Write(entry); err != nil {
			l.log.Warn("audit: sink write failed", zap.Error(err))
		}
	}
}

// LogSuccess records a successful action.
func (l *Logger) LogSuccess(actorID, action, resource, resourceID, sourceAddress string, details map[string]string) {
	l.Log(&domain.Entry{
		ActorID:       actorID,
		Action:        action,
		Resource:      resource,
		ResourceID:    resourceID,
		Success:       true,
		Details:       details,
		SourceAddress: sourceAddress,
	})
}

// LogFailure records a failed action with its error message.
func (l *Logger) LogFailure(actorID, action, resource, resourceID, sourceAddress, errMsg string, details map[string]string) {
	l.Log(&domain.Entry{
		ActorID:       actorID,
		Action:        action,
		Resource:      resource,
		ResourceID:    resourceID,
		Success:       false,
		Error:         errMsg,
		Details:       details,
		SourceAddress: sourceAddress,
	})
}

// Rehydrate seeds the ring from previously persisted entries, oldest first,
// keeping at most the ring capacity. Sinks are not invoked: the entries are
// already durable. Entries logged before Rehydrate are kept after the seed.
// Returns the number of entries loaded.
func (l *Logger) Rehydrate(entries []*domain.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	loaded := make([]*domain.Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			loaded = append(loaded, e)
		}
	}
	l.mu.Lock()
	l.entries = append(loaded, l.entries...)
	if len(l.entries) > l.max {
		n := copy(l.entries, l.entries[len(l.entries)-l.max:])
		l.entries = l.entries[:n]
	}
	l.mu.Unlock()
	return len(loaded)
}

// CleanupOld removes entries older than the retention horizon and returns the
// number removed.
func (l *Logger) CleanupOld() int {
	cutoff := l.nowF().Add(-l.retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	// Entries are appended in time order, so find the first kept index.
	idx := 0
	for idx < len(l.entries) && l.entries[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	n := copy(l.entries, l.entries[idx:])
	l.entries = l.entries[:n]
	return idx
}

// Len returns the current number of retained entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// snapshot returns a copy of the entry slice for lock-free iteration.
func (l *Logger) snapshot() []*domain.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
