package domain

import "time"

// Fingerprint is the derived identity of a client environment. The hash is
// deterministic over the normalized component vector: the same signals always
// regenerate the same hash.
type Fingerprint struct {
	Hash       string
	Components map[string]string
	// Confidence (0-100) measures how identifying the signal set is.
	Confidence int
	// RiskScore (0-100) accumulates penalties for automation and
	// inconsistency indicators.
	RiskScore int
}

// KnownDevice is a previously seen device for a user, loaded read-only from
// the persistence layer. Trust is asserted explicitly, never inferred from
// repetition.
type KnownDevice struct {
	FingerprintHash string
	UserID          string
	Trusted         bool
	LastSeen        time.Time
}
