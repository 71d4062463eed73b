package domain

import "time"

// LoginAttempt is one authentication attempt against an account identity.
// Only the salted hash of the source address is kept.
type LoginAttempt struct {
	Timestamp time.Time
	Success   bool
	IPHash    string
	UserAgent string
}
