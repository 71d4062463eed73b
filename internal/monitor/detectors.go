package monitor

import (
	"fmt"
	"strconv"
	"time"

	"account-trust-gate/internal/monitor/domain"
)

// Finding is what a detector reports when its threshold is crossed.
type Finding struct {
	Type     domain.AlertType
	Severity domain.Severity
	// Detector is the name of the detector that produced the finding. The
	// monitor fills it in from Detector.Name before applying the finding.
	Detector string
	Message  string
	Details  map[string]string
	// BlockSource, when set, asks the monitor to block SourceAddress.
	BlockSource   bool
	SourceAddress string
}

// Detector inspects one identity's attempt history inside its own time window.
// Detectors are stateless beyond the shared history: adding a detector never
// requires touching an existing one.
type Detector interface {
	Name() string
	Inspect(identity string, attempts []domain.LoginAttempt, now time.Time) *Finding
}

// RapidFailureDetector raises BRUTE_FORCE when failures inside the window
// reach Threshold. At BlockThreshold it escalates to ACCOUNT_LOCKOUT and
// requests a source block.
type RapidFailureDetector struct {
	Threshold      int
	BlockThreshold int
	Window         time.Duration
}

func (d *RapidFailureDetector) Name() string { return "rapid_failures" }

func (d *RapidFailureDetector) Inspect(identity string, attempts []domain.LoginAttempt, now time.Time) *Finding {
	cutoff := now.Add(-d.Window)
	failures := 0
	lastSource := ""
	for _, a := range attempts {
		if a.Success || a.Timestamp.Before(cutoff) {
			continue
		}
		failures++
		lastSource = a.IPHash
	}
	if failures < d.Threshold {
		return nil
	}
	f := &Finding{
		Type:          domain.AlertBruteForce,
		Severity:      domain.SeverityCritical,
		Message:       fmt.Sprintf("%d failed logins within %s", failures, d.Window),
		Details:       map[string]string{"failures": strconv.Itoa(failures)},
		SourceAddress: lastSource,
	}
	if failures >= d.BlockThreshold {
		f.Type = domain.AlertAccountLockout
		f.Message = fmt.Sprintf("%d failed logins within %s, source locked out", failures, d.Window)
		f.BlockSource = true
	}
	return f
}

// RateLimitDetector raises RATE_LIMIT_EXCEEDED when total attempts inside
// the window, successful or not, reach Threshold.
type RateLimitDetector struct {
	Threshold int
	Window    time.Duration
}

func (d *RateLimitDetector) Name() string { return "rate_limit" }

func (d *RateLimitDetector) Inspect(identity string, attempts []domain.LoginAttempt, now time.Time) *Finding {
	cutoff := now.Add(-d.Window)
	count := 0
	last := ""
	for _, a := range attempts {
		if a.Timestamp.Before(cutoff) {
			continue
		}
		count++
		last = a.IPHash
	}
	if count < d.Threshold {
		return nil
	}
	return &Finding{
		Type:          domain.AlertRateLimitExceeded,
		Severity:      domain.SeverityMedium,
		Message:       fmt.Sprintf("%d login attempts within %s", count, d.Window),
		Details:       map[string]string{"attempts": strconv.Itoa(count)},
		SourceAddress: last,
	}
}

// MultiSourceDetector raises SUSPICIOUS_LOGIN when attempts inside the window
// come from at least Threshold distinct source addresses.
type MultiSourceDetector struct {
	Threshold int
	Window    time.Duration
}

func (d *MultiSourceDetector) Name() string { return "multiple_sources" }

func (d *MultiSourceDetector) Inspect(identity string, attempts []domain.LoginAttempt, now time.Time) *Finding {
	cutoff := now.Add(-d.Window)
	sources := map[string]struct{}{}
	last := ""
	for _, a := range attempts {
		if a.Timestamp.Before(cutoff) || a.IPHash == "" {
			continue
		}
		sources[a.IPHash] = struct{}{}
		last = a.IPHash
	}
	if len(sources) < d.Threshold {
		return nil
	}
	return &Finding{
		Type:          domain.AlertSuspiciousLogin,
		Severity:      domain.SeverityMedium,
		Message:       fmt.Sprintf("logins from %d distinct sources within %s", len(sources), d.Window),
		Details:       map[string]string{"sources": strconv.Itoa(len(sources))},
		SourceAddress: last,
	}
}

// OffHoursDetector raises SUSPICIOUS_LOGIN when at least Threshold attempts
// inside the window fall between StartHour and EndHour local time.
type OffHoursDetector struct {
	Threshold int
	Window    time.Duration
	StartHour int // inclusive
	EndHour   int // exclusive
}

func (d *OffHoursDetector) Name() string { return "off_hours" }

func (d *OffHoursDetector) Inspect(identity string, attempts []domain.LoginAttempt, now time.Time) *Finding {
	cutoff := now.Add(-d.Window)
	count := 0
	last := ""
	for _, a := range attempts {
		if a.Timestamp.Before(cutoff) {
			continue
		}
		h := a.Timestamp.Local().Hour()
		if h >= d.StartHour && h < d.EndHour {
			count++
			last = a.IPHash
		}
	}
	if count < d.Threshold {
		return nil
	}
	return &Finding{
		Type:          domain.AlertSuspiciousLogin,
		Severity:      domain.SeverityLow,
		Message:       fmt.Sprintf("%d attempts between %02d:00 and %02d:00 within %s", count, d.StartHour, d.EndHour, d.Window),
		Details:       map[string]string{"attempts": strconv.Itoa(count)},
		SourceAddress: last,
	}
}
