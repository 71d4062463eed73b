package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"account-trust-gate/internal/audit/domain"
)

// Sink receives every logged entry in addition to the in-memory ring. Sinks
// are best-effort: a sink error is logged and swallowed, never surfaced to
// the caller (a broken mirror must not fail the operation being audited).
type Sink interface {
	Write(entry *domain.Entry) error
}

// ConsoleSink mirrors entries to the application logger.
type ConsoleSink struct {
	log *zap.Logger
}

// NewConsoleSink returns a sink that writes entries as structured log lines.
func NewConsoleSink(log *zap.Logger) *ConsoleSink {
	return &ConsoleSink{log: log}
}

func (s *ConsoleSink) Write(entry *domain.Entry) error {
	s.log.Info("audit",
		zap.String("actor", entry.ActorID),
		zap.String("action", entry.Action),
		zap.String("resource", entry.Resource),
		zap.Bool("success", entry.Success),
		zap.String("error", entry.Error),
	)
	return nil
}

type fileEntry struct {
	ID            string            `json:"id"`
	ActorID       string            `json:"actor_id"`
	Action        string            `json:"action"`
	Resource      string            `json:"resource"`
	ResourceID    string            `json:"resource_id,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	SourceAddress string            `json:"source_address,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// FileSink appends entries as JSON lines to a file. Writes are serialized;
// the file is opened lazily and kept open until Close.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink returns a sink appending to path. The file is created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Write(entry *domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		s.f = f
	}
	line, err := json.Marshal(fileEntry{
		ID:            entry.ID,
		ActorID:       entry.ActorID,
		Action:        entry.Action,
		Resource:      entry.Resource,
		ResourceID:    entry.ResourceID,
		Success:       entry.Success,
		Error:         entry.Error,
		Details:       entry.Details,
		SourceAddress: entry.SourceAddress,
		Timestamp:     entry.Timestamp,
	})
	if err != nil {
		return err
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying file. Safe to call if nothing was written.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
