package domain

import "time"

// Session represents a user session tied to a device. The manager owns all
// mutation of LastActivity and ExpiresAt; other code treats sessions as
// read-only snapshots.
type Session struct {
	ID            string
	UserID        string
	DeviceID      string
	IPAddressHash string // salted hash, never a raw address
	UserAgent     string
	Permissions   []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	LastActivity  time.Time
	Active        bool
}

// Clone returns a copy safe to hand to callers while the manager keeps
// mutating the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Permissions = append([]string(nil), s.Permissions...)
	return &cp
}
