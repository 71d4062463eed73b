// Package monitor ingests login attempts, runs sliding-window detectors over
// per-identity history, raises and resolves alerts, and maintains the
// block-list of source addresses. All state is in-memory and safe for
// concurrent use; background maintenance keeps it bounded.
package monitor

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-trust-gate/internal/monitor/domain"
	"account-trust-gate/internal/monitor/notifier"
	"account-trust-gate/internal/security"
)

const (
	// rawAttemptWindow bounds per-identity history on every write.
	rawAttemptWindow = 24 * time.Hour
	// correlationRetention is the hourly-purge horizon for attempts and
	// resolved alerts.
	correlationRetention = 7 * 24 * time.Hour
	// stalledWindow is the trailing window the periodic scan inspects.
	stalledWindow = time.Hour
	// notifyTimeout bounds one fire-and-forget notification.
	notifyTimeout = 5 * time.Second
)

// Auditor records security-relevant events. Satisfied by audit.Logger.
type Auditor interface {
	LogSuccess(actorID, action, resource, resourceID, sourceAddress string, details map[string]string)
	LogFailure(actorID, action, resource, resourceID, sourceAddress, errMsg string, details map[string]string)
}

// Metrics counts monitor activity. Satisfied by the telemetry adapter.
type Metrics interface {
	IncAttempt(success bool)
	IncAlert(alertType, severity string)
	IncBlocked()
}

// Options configures the monitor and its built-in detectors.
type Options struct {
	RapidFailureThreshold int
	RapidBlockThreshold   int
	RapidFailureWindow    time.Duration

	MultiSourceThreshold int
	MultiSourceWindow    time.Duration

	OffHoursThreshold int
	OffHoursWindow    time.Duration
	OffHoursStart     int
	OffHoursEnd       int

	RateLimitThreshold int
	RateLimitWindow    time.Duration

	// StalledAttackThreshold is the trailing-hour failure count the periodic
	// scan flags even without a fresh triggering attempt.
	StalledAttackThreshold int

	CleanupInterval time.Duration
	ScanInterval    time.Duration
}

func (o *Options) withDefaults() {
	if o.RapidFailureThreshold <= 0 {
		o.RapidFailureThreshold = 10
	}
	if o.RapidBlockThreshold <= 0 {
		o.RapidBlockThreshold = 20
	}
	if o.RapidFailureWindow <= 0 {
		o.RapidFailureWindow = 5 * time.Minute
	}
	if o.MultiSourceThreshold <= 0 {
		o.MultiSourceThreshold = 3
	}
	if o.MultiSourceWindow <= 0 {
		o.MultiSourceWindow = 30 * time.Minute
	}
	if o.OffHoursThreshold <= 0 {
		o.OffHoursThreshold = 5
	}
	if o.OffHoursWindow <= 0 {
		o.OffHoursWindow = time.Hour
	}
	if o.OffHoursEnd <= 0 {
		o.OffHoursStart, o.OffHoursEnd = 2, 6
	}
	if o.RateLimitThreshold <= 0 {
		o.RateLimitThreshold = 30
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = 5 * time.Minute
	}
	if o.StalledAttackThreshold <= 0 {
		o.StalledAttackThreshold = 15
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Hour
	}
	if o.ScanInterval <= 0 {
		o.ScanInterval = 5 * time.Minute
	}
}

type blockInfo struct {
	Reason string
	At     time.Time
}

// Report is the snapshot returned by GetMetrics.
type Report struct {
	Attempts        int
	Failures        int
	Successes       int
	BlockedCount    int
	ActiveAlerts    int
	Lockouts        int
	SuspiciousCount int
}

// Monitor watches login attempts and maintains alerts and the block-list.
type Monitor struct {
	mu       sync.RWMutex
	attempts map[string][]domain.LoginAttempt
	alerts   map[string]*domain.Alert
	blocked  map[string]blockInfo
	lockouts int

	opts      Options
	detectors []Detector
	hasher    *security.IPHasher
	notify    notifier.Notifier
	metrics   Metrics
	auditor   Auditor
	log       *zap.Logger
	nowF      func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewMonitor returns a monitor with the four built-in detectors plus any
// extras. notify, metrics, and auditor may be nil.
func NewMonitor(opts Options, hasher *security.IPHasher, notify notifier.Notifier, metrics Metrics, auditor Auditor, log *zap.Logger, extra ...Detector) *Monitor {
	opts.withDefaults()
	detectors := []Detector{
		&RapidFailureDetector{
			Threshold:      opts.RapidFailureThreshold,
			BlockThreshold: opts.RapidBlockThreshold,
			Window:         opts.RapidFailureWindow,
		},
		&MultiSourceDetector{
			Threshold: opts.MultiSourceThreshold,
			Window:    opts.MultiSourceWindow,
		},
		&OffHoursDetector{
			Threshold: opts.OffHoursThreshold,
			Window:    opts.OffHoursWindow,
			StartHour: opts.OffHoursStart,
			EndHour:   opts.OffHoursEnd,
		},
		&RateLimitDetector{
			Threshold: opts.RateLimitThreshold,
			Window:    opts.RateLimitWindow,
		},
	}
	detectors = append(detectors, extra...)
	return &Monitor{
		attempts:  make(map[string][]domain.LoginAttempt),
		alerts:    make(map[string]*domain.Alert),
		blocked:   make(map[string]blockInfo),
		opts:      opts,
		detectors: detectors,
		hasher:    hasher,
		notify:    notify,
		metrics:   metrics,
		auditor:   auditor,
		log:       log,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordLoginAttempt appends to the identity's rolling history (pruned to 24h
// on every write) and runs every detector over the attempts inside its window.
func (m *Monitor) RecordLoginAttempt(identity, ipAddress, userAgent string, success bool, details map[string]string) {
	now := m.nowF()
	attempt := domain.LoginAttempt{
		Timestamp: now,
		Success:   success,
		IPHash:    m.hasher.Hash(ipAddress),
		UserAgent: userAgent,
	}

	m.mu.Lock()
	list := append(m.attempts[identity], attempt)
	cutoff := now.Add(-rawAttemptWindow)
	idx := 0
	for idx < len(list) && list[idx].Timestamp.Before(cutoff) {
		idx++
	}
	list = list[idx:]
	m.attempts[identity] = list
	snapshot := make([]domain.LoginAttempt, len(list))
	copy(snapshot, list)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncAttempt(success)
	}

	for _, d := range m.detectors {
		if f := d.Inspect(identity, snapshot, now); f != nil {
			f.Detector = d.Name()
			m.applyFinding(identity, f, now)
		}
	}
}

// applyFinding blocks the source when asked and raises a de-duplicated alert.
// An unresolved alert from the same detector, of the same type, for the same
// identity suppresses a new one; the block still proceeds.
func (m *Monitor) applyFinding(identity string, f *Finding, now time.Time) {
	if f.BlockSource && f.SourceAddress != "" {
		m.blockHash(f.SourceAddress, "auto: "+f.Message, now, true)
	}

	m.mu.Lock()
	for _, a := range m.alerts {
		if !a.Resolved && a.Identity == identity && a.Detector == f.Detector && a.Type == f.Type {
			m.mu.Unlock()
			return
		}
	}
	alert := &domain.Alert{
		ID:            uuid.New().String(),
		Type:          f.Type,
		Severity:      f.Severity,
		Detector:      f.Detector,
		Identity:      identity,
		SourceAddress: f.SourceAddress,
		Timestamp:     now,
		Details:       f.Details,
	}
	if alert.Details == nil {
		alert.Details = map[string]string{}
	}
	alert.Details["message"] = f.Message
	m.alerts[alert.ID] = alert
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncAlert(string(f.Type), string(f.Severity))
	}
	if m.auditor != nil {
		m.auditor.LogFailure(identity, "alert_raised", "security_alert", alert.ID, f.SourceAddress, f.Message, f.Details)
	}
	if m.log != nil {
		m.log.Warn("security alert",
			zap.String("type", string(f.Type)),
			zap.String("severity", string(f.Severity)),
			zap.String("identity", identity),
		)
	}

	if f.Severity == domain.SeverityHigh || f.Severity == domain.SeverityCritical {
		m.dispatch(alert.Clone())
	}
}

// dispatch sends the alert to the notifier without blocking the caller.
// Failures are logged and swallowed: notification is best-effort.
func (m *Monitor) dispatch(alert *domain.Alert) {
	if m.notify == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.notify.Notify(ctx, alert); err != nil && m.log != nil {
			m.log.Warn("alert notification failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}()
}

// IsBlocked reports whether the source address is on the block-list.
func (m *Monitor) IsBlocked(ipAddress string) bool {
	h := m.hasher.Hash(ipAddress)
	m.mu.RLock()
	_, ok := m.blocked[h]
	m.mu.RUnlock()
	return ok
}

// BlockIP adds the source address to the block-list.
func (m *Monitor) BlockIP(ipAddress, reason string) {
	m.blockHash(m.hasher.Hash(ipAddress), reason, m.nowF(), false)
}

func (m *Monitor) blockHash(hash, reason string, now time.Time, lockout bool) {
	if hash == "" {
		return
	}
	m.mu.Lock()
	_, exists := m.blocked[hash]
	if !exists {
		m.blocked[hash] = blockInfo{Reason: reason, At: now}
		if lockout {
			m.lockouts++
		}
	}
	m.mu.Unlock()
	if exists {
		return
	}
	if m.metrics != nil {
		m.metrics.IncBlocked()
	}
	if m.auditor != nil {
		m.auditor.LogSuccess("system", "ip_blocked", "block_list", "", hash, map[string]string{"reason": reason})
	}
	if m.log != nil {
		m.log.Warn("source blocked", zap.String("reason", reason))
	}
}

// UnblockIP removes the source address from the block-list. Returns false if
// it was not blocked.
func (m *Monitor) UnblockIP(ipAddress, actor string) bool {
	h := m.hasher.Hash(ipAddress)
	m.mu.Lock()
	_, ok := m.blocked[h]
	if ok {
		delete(m.blocked, h)
	}
	m.mu.Unlock()
	if ok && m.auditor != nil {
		m.auditor.LogSuccess(actor, "ip_unblocked", "block_list", "", h, nil)
	}
	return ok
}

// GetActiveAlerts returns unresolved alerts, newest first.
func (m *Monitor) GetActiveAlerts() []*domain.Alert {
	m.mu.RLock()
	out := make([]*domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, a.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// ResolveAlert marks the alert resolved. The second call for the same alert
// returns false and changes nothing.
func (m *Monitor) ResolveAlert(id, actor string) bool {
	now := m.nowF()
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok || a.Resolved {
		m.mu.Unlock()
		return false
	}
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	m.mu.Unlock()

	if m.auditor != nil {
		m.auditor.LogSuccess(actor, "alert_resolved", "security_alert", id, "", nil)
	}
	return true
}

// GetMetrics summarizes activity at or after since; a zero since covers all
// retained history. Lockouts counts auto-blocks over the monitor's lifetime.
func (m *Monitor) GetMetrics(since time.Time) Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var r Report
	for _, list := range m.attempts {
		for _, a := range list {
			if !since.IsZero() && a.Timestamp.Before(since) {
				continue
			}
			r.Attempts++
			if a.Success {
				r.Successes++
			} else {
				r.Failures++
			}
		}
	}
	for _, a := range m.alerts {
		if !a.Resolved {
			r.ActiveAlerts++
		}
		if a.Type == domain.AlertSuspiciousLogin && (since.IsZero() || !a.Timestamp.Before(since)) {
			r.SuspiciousCount++
		}
	}
	r.BlockedCount = len(m.blocked)
	r.Lockouts = m.lockouts
	return r
}

// Start launches the maintenance loops: the hourly purge and the periodic
// stalled-attack scan. Both stop when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		cleanup := time.NewTicker(m.opts.CleanupInterval)
		scan := time.NewTicker(m.opts.ScanInterval)
		defer cleanup.Stop()
		defer scan.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-cleanup.C:
				m.runCleanup()
			case <-scan.C:
				m.runPeriodicScan()
			}
		}
	}()
}

// Stop halts maintenance and waits for the loop to exit.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

// runCleanup purges attempt history and resolved alerts older than the
// correlation retention horizon.
func (m *Monitor) runCleanup() {
	now := m.nowF()
	cutoff := now.Add(-correlationRetention)

	m.mu.Lock()
	for identity, list := range m.attempts {
		idx := 0
		for idx < len(list) && list[idx].Timestamp.Before(cutoff) {
			idx++
		}
		if idx == len(list) {
			delete(m.attempts, identity)
		} else if idx > 0 {
			m.attempts[identity] = list[idx:]
		}
	}
	for id, a := range m.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
		}
	}
	m.mu.Unlock()
}

// runPeriodicScan flags identities whose trailing-hour failure count reaches
// the stalled-attack threshold, catching attacks that stay just under the
// rapid-failure rate. Scans a snapshot so the lock is not held across findings.
func (m *Monitor) runPeriodicScan() {
	now := m.nowF()
	cutoff := now.Add(-stalledWindow)

	type hit struct {
		identity string
		failures int
		source   string
	}
	m.mu.RLock()
	var hits []hit
	for identity, list := range m.attempts {
		failures := 0
		source := ""
		for _, a := range list {
			if a.Success || a.Timestamp.Before(cutoff) {
				continue
			}
			failures++
			source = a.IPHash
		}
		if failures >= m.opts.StalledAttackThreshold {
			hits = append(hits, hit{identity: identity, failures: failures, source: source})
		}
	}
	m.mu.RUnlock()

	for _, h := range hits {
		m.applyFinding(h.identity, &Finding{
			Type:          domain.AlertMultipleFailures,
			Severity:      domain.SeverityHigh,
			Detector:      "stalled_scan",
			Message:       "sustained failure rate over the trailing hour",
			Details:       map[string]string{"failures": strconv.Itoa(h.failures)},
			SourceAddress: h.source,
		}, now)
	}
}
