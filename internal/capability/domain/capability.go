package domain

import "time"

// Status of a capability grant.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// Capability is a scoped, time-bound grant presented by a caller to prove
// entitlement to an action. The policy engine treats capabilities as
// read-only inputs and never stores them.
type Capability struct {
	ID        string
	Type      string
	Level     int
	GrantedAt time.Time
	ExpiresAt time.Time
	Status    Status
}
