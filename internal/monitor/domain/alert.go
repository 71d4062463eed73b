package domain

import "time"

// AlertType classifies a security alert.
type AlertType string

const (
	AlertBruteForce        AlertType = "BRUTE_FORCE"
	AlertAccountLockout    AlertType = "ACCOUNT_LOCKOUT"
	AlertSuspiciousLogin   AlertType = "SUSPICIOUS_LOGIN"
	AlertMultipleFailures  AlertType = "MULTIPLE_FAILURES"
	AlertRateLimitExceeded AlertType = "RATE_LIMIT_EXCEEDED"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is raised when a detector threshold is crossed. Immutable except for
// the resolution fields, which the monitor sets exactly once.
type Alert struct {
	ID            string
	Type          AlertType
	Severity      Severity
	Detector      string // name of the detector that raised it
	Identity      string
	SourceAddress string // salted hash
	Timestamp     time.Time
	Details       map[string]string
	Resolved      bool
	ResolvedAt    *time.Time
	ResolvedBy    string
}

// Clone returns a copy safe to hand to callers.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	cp := *a
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		cp.ResolvedAt = &at
	}
	if a.Details != nil {
		cp.Details = make(map[string]string, len(a.Details))
		for k, v := range a.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}
