// Package threatintel defines the integration point for external reputation
// and fraud-pattern feeds. The core never hard-codes reputation data; callers
// plug in a real provider or keep the always-pass default.
package threatintel

import "context"

// Lookup answers reputation questions about source addresses and behavioral
// fraud patterns. Implementations must be safe for concurrent use and must
// not block for long; scoring paths call these inline.
type Lookup interface {
	// IsKnownBadAddress reports whether the source address appears in a
	// reputation block feed.
	IsKnownBadAddress(ctx context.Context, ip string) bool
	// MatchesFraudPattern reports whether the named behavioral signal matches
	// a known fraud pattern.
	MatchesFraudPattern(ctx context.Context, signal string) bool
}

// Noop is the default Lookup: every address is clean, no signal matches.
// Used when no external feed is configured.
type Noop struct{}

func (Noop) IsKnownBadAddress(context.Context, string) bool { return false }

func (Noop) MatchesFraudPattern(context.Context, string) bool { return false }

// Static is a fixed-set Lookup for tests and local development.
type Static struct {
	BadAddresses  map[string]bool
	FraudPatterns map[string]bool
}

func (s *Static) IsKnownBadAddress(_ context.Context, ip string) bool {
	return s.BadAddresses[ip]
}

func (s *Static) MatchesFraudPattern(_ context.Context, signal string) bool {
	return s.FraudPatterns[signal]
}
