package domain

import "time"

// Entry represents one security-relevant event. Entries are write-once:
// nothing mutates an entry after it is logged.
type Entry struct {
	ID            string
	ActorID       string
	Action        string
	Resource      string
	ResourceID    string
	Success       bool
	Error         string
	Details       map[string]string
	SourceAddress string // salted hash, never a raw address
	Timestamp     time.Time
}
