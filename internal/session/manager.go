// Package session owns session lifecycle: creation, validation, refresh,
// revocation, per-user caps, and the background expiry sweep. All state is
// in-memory and safe for concurrent use.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-trust-gate/internal/guard"
	"account-trust-gate/internal/security"
	"account-trust-gate/internal/session/domain"
)

// Suspicious-activity heuristics. Advisory thresholds; crossing one never
// blocks by itself.
const (
	capPressureRatio   = 0.8
	distinctIPLimit    = 3
	burstWindow        = 5 * time.Minute
	burstCreationLimit = 3
)

// Options configures the session manager.
type Options struct {
	// TTL is the session lifetime.
	TTL time.Duration
	// MaxPerUser is the active-session cap; oldest-by-activity evicted beyond it.
	MaxPerUser int
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration
}

// ValidationResult is the outcome of ValidateSession.
type ValidationResult struct {
	Valid   bool
	Session *domain.Session
	Reason  guard.Reason
}

// SuspicionReport is the outcome of DetectSuspiciousActivity.
type SuspicionReport struct {
	Suspicious bool
	Reasons    []string
}

// Manager owns the in-memory session table.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byUser   map[string]map[string]struct{}

	opts   Options
	hasher *security.IPHasher
	tokens *security.TokenProvider
	sink   EventSink
	log    *zap.Logger
	nowF   func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewManager returns a session manager. tokens may be nil, in which case
// CreateSession returns an empty token string. sink may be nil.
func NewManager(opts Options, hasher *security.IPHasher, tokens *security.TokenProvider, sink EventSink, log *zap.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxPerUser <= 0 {
		opts.MaxPerUser = 5
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 60 * time.Second
	}
	return &Manager{
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string]map[string]struct{}),
		opts:     opts,
		hasher:   hasher,
		tokens:   tokens,
		sink:     sink,
		log:      log,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession registers a session for the user and returns it with a signed
// session token. If the user's active-session count would exceed the cap, the
// oldest-by-activity sessions are evicted until the cap holds.
func (m *Manager) CreateSession(userID, deviceID, ipAddress, userAgent string, permissions []string) (*domain.Session, string, error) {
	now := m.nowF()
	s := &domain.Session{
		ID:            uuid.New().String(),
		UserID:        userID,
		DeviceID:      deviceID,
		IPAddressHash: m.hasher.Hash(ipAddress),
		UserAgent:     userAgent,
		Permissions:   append([]string(nil), permissions...),
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.opts.TTL),
		LastActivity:  now,
		Active:        true,
	}

	var evicted []*domain.Session
	m.mu.Lock()
	m.sessions[s.ID] = s
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]struct{})
	}
	m.byUser[userID][s.ID] = struct{}{}
	evicted = m.enforceCapLocked(userID)
	m.mu.Unlock()

	for _, ev := range evicted {
		m.emit(Event{Type: EventEvicted, SessionID: ev.ID, UserID: ev.UserID, At: now,
			Details: map[string]string{"cause": "session cap"}})
	}
	m.emit(Event{Type: EventCreated, SessionID: s.ID, UserID: userID, At: now})

	token := ""
	if m.tokens != nil {
		t, err := m.tokens.Issue(s.ID, userID, deviceID, s.ExpiresAt)
		if err != nil {
			return nil, "", err
		}
		token = t
	}
	return s.Clone(), token, nil
}

// enforceCapLocked evicts oldest-by-LastActivity sessions until the user is at
// or under the cap. Caller holds the write lock. Returns the evicted sessions.
func (m *Manager) enforceCapLocked(userID string) []*domain.Session {
	ids := m.byUser[userID]
	if len(ids) <= m.opts.MaxPerUser {
		return nil
	}
	list := make([]*domain.Session, 0, len(ids))
	for id := range ids {
		list = append(list, m.sessions[id])
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LastActivity.Before(list[j].LastActivity) })

	over := len(list) - m.opts.MaxPerUser
	evicted := list[:over]
	for _, s := range evicted {
		m.removeLocked(s)
	}
	return evicted
}

func (m *Manager) removeLocked(s *domain.Session) {
	s.Active = false
	delete(m.sessions, s.ID)
	if ids := m.byUser[s.UserID]; ids != nil {
		delete(ids, s.ID)
		if len(ids) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
}

// ValidateSession checks a session against live state. deviceID and ipAddress
// are optional; empty values skip the corresponding check. A device mismatch
// invalidates and emits an event; an IP change is tolerated, recorded, and
// emitted as an event without invalidation (mobile and NAT networks rotate
// addresses legitimately). Every successful validation advances LastActivity.
func (m *Manager) ValidateSession(sessionID, deviceID, ipAddress string) ValidationResult {
	now := m.nowF()

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ValidationResult{Reason: guard.ReasonNotFound}
	}
	if !s.Active {
		m.mu.Unlock()
		return ValidationResult{Reason: guard.ReasonInactive}
	}
	// Expiry is inclusive: the session is invalid from the exact expiry instant.
	if !now.Before(s.ExpiresAt) {
		m.removeLocked(s)
		m.mu.Unlock()
		m.emit(Event{Type: EventExpired, SessionID: sessionID, UserID: s.UserID, At: now})
		return ValidationResult{Reason: guard.ReasonExpired}
	}
	if deviceID != "" && s.DeviceID != deviceID {
		userID := s.UserID
		m.mu.Unlock()
		m.emit(Event{Type: EventDeviceMismatch, SessionID: sessionID, UserID: userID, At: now,
			Details: map[string]string{"presented_device": deviceID}})
		return ValidationResult{Reason: guard.ReasonDeviceMismatch}
	}

	var ipChanged bool
	if ipAddress != "" && !m.hasher.HashEqual(ipAddress, s.IPAddressHash) {
		s.IPAddressHash = m.hasher.Hash(ipAddress)
		ipChanged = true
	}
	s.LastActivity = now
	snapshot := s.Clone()
	m.mu.Unlock()

	if ipChanged {
		m.emit(Event{Type: EventIPChanged, SessionID: sessionID, UserID: snapshot.UserID, At: now})
	}
	return ValidationResult{Valid: true, Session: snapshot}
}

// ResolveToken verifies a signed session token and returns the session ID it
// carries. Token validity alone never admits; callers still run
// ValidateSession against live state.
func (m *Manager) ResolveToken(token string) (string, error) {
	if m.tokens == nil {
		return "", security.ErrInvalidToken
	}
	claims, err := m.tokens.Resolve(token)
	if err != nil {
		return "", err
	}
	return claims.SessionID, nil
}

// ValidateToken resolves a raw token and validates the session it names,
// binding the device id carried in the token's claims.
func (m *Manager) ValidateToken(token string) ValidationResult {
	if m.tokens == nil {
		return ValidationResult{Reason: guard.ReasonInternal}
	}
	claims, err := m.tokens.Resolve(token)
	if err != nil {
		return ValidationResult{Reason: guard.ReasonNotFound}
	}
	return m.ValidateSession(claims.SessionID, claims.DeviceID, "")
}

// TokenValid reports whether a raw token maps to a currently valid session.
func (m *Manager) TokenValid(token string) bool {
	return m.ValidateToken(token).Valid
}

// RefreshSession extends the session's expiry by one TTL and advances
// LastActivity. Returns false if the session is missing or expired.
func (m *Manager) RefreshSession(sessionID string) bool {
	now := m.nowF()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.Active || !now.Before(s.ExpiresAt) {
		return false
	}
	s.ExpiresAt = now.Add(m.opts.TTL)
	s.LastActivity = now
	return true
}

// RevokeSession removes the session. Returns false if it did not exist.
func (m *Manager) RevokeSession(sessionID, reason string) bool {
	now := m.nowF()
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		m.removeLocked(s)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.emit(Event{Type: EventRevoked, SessionID: sessionID, UserID: s.UserID, At: now,
		Details: map[string]string{"reason": reason}})
	return true
}

// RevokeAllForUser removes every session for the user and returns the count.
func (m *Manager) RevokeAllForUser(userID, reason string) int {
	now := m.nowF()
	m.mu.Lock()
	var removed []*domain.Session
	for id := range m.byUser[userID] {
		if s := m.sessions[id]; s != nil {
			removed = append(removed, s)
		}
	}
	for _, s := range removed {
		m.removeLocked(s)
	}
	m.mu.Unlock()

	for _, s := range removed {
		m.emit(Event{Type: EventRevoked, SessionID: s.ID, UserID: userID, At: now,
			Details: map[string]string{"reason": reason}})
	}
	return len(removed)
}

// ActiveSessions returns snapshots of the user's live sessions.
func (m *Manager) ActiveSessions(userID string) []*domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Session, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		if s := m.sessions[id]; s != nil {
			out = append(out, s.Clone())
		}
	}
	return out
}

// DetectSuspiciousActivity runs the advisory heuristics over the user's live
// sessions. The report never blocks anything by itself; the policy engine and
// operators decide what to do with it.
func (m *Manager) DetectSuspiciousActivity(userID string) SuspicionReport {
	sessions := m.ActiveSessions(userID)
	now := m.nowF()
	var reasons []string

	if float64(len(sessions)) > capPressureRatio*float64(m.opts.MaxPerUser) {
		reasons = append(reasons, "concurrent session count near cap")
	}

	ips := map[string]struct{}{}
	agents := map[string]struct{}{}
	recent := 0
	for _, s := range sessions {
		if s.IPAddressHash != "" {
			ips[s.IPAddressHash] = struct{}{}
		}
		if s.UserAgent != "" {
			agents[s.UserAgent] = struct{}{}
		}
		if now.Sub(s.CreatedAt) <= burstWindow {
			recent++
		}
	}
	if len(ips) > distinctIPLimit {
		reasons = append(reasons, "sessions span too many source addresses")
	}
	if recent > burstCreationLimit {
		reasons = append(reasons, "session creation burst")
	}
	if len(sessions) > 0 && len(agents) > len(sessions)/2 {
		reasons = append(reasons, "high user-agent diversity")
	}

	return SuspicionReport{Suspicious: len(reasons) > 0, Reasons: reasons}
}

// Start launches the background expiry sweep. The sweep scans a snapshot of
// expired IDs, then revokes without holding the lock across the scan.
// Stops when ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.sweepExpired()
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit. Safe to call once after Start.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

func (m *Manager) sweepExpired() {
	now := m.nowF()

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if ok && !m.nowF().Before(s.ExpiresAt) {
			m.removeLocked(s)
		} else {
			ok = false
		}
		m.mu.Unlock()
		if ok {
			m.emit(Event{Type: EventExpired, SessionID: id, UserID: s.UserID, At: now})
		}
	}
	if len(expired) > 0 && m.log != nil {
		m.log.Debug("session sweep", zap.Int("expired", len(expired)))
	}
}

func (m *Manager) emit(e Event) {
	if m.sink != nil {
		m.sink.Emit(e)
	}
}
