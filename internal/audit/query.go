package audit

import (
	"sort"
	"strings"
	"time"

	"account-trust-gate/internal/audit/domain"
)

// Filter narrows GetLogs results. Zero values match everything.
type Filter struct {
	ActorID  string
	Action   string
	Resource string
	Success  *bool
	Since    time.Time
	Until    time.Time
	Limit    int
}

// GetLogs returns entries matching the filter, newest first.
func (l *Logger) GetLogs(f Filter) []*domain.Entry {
	entries := l.snapshot()
	out := make([]*domain.Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.Success != nil && e.Success != *f.Success {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Search returns entries whose action, resource, actor, or error contains the
// query, case-insensitive, newest first.
func (l *Logger) Search(query string) []*domain.Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	entries := l.snapshot()
	out := make([]*domain.Entry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Action), q) ||
			strings.Contains(strings.ToLower(e.Resource), q) ||
			strings.Contains(strings.ToLower(e.ActorID), q) ||
			strings.Contains(strings.ToLower(e.Error), q) {
			out = append(out, e)
		}
	}
	return out
}

// NameCount pairs a name with its occurrence count.
type NameCount struct {
	Name  string
	Count int
}

// Stats summarizes the audit log.
type Stats struct {
	Total        int
	Successes    int
	Failures     int
	UniqueActors int
	TopActions   []NameCount // descending by count
	TopResources []NameCount // descending by count
}

// GetStats computes aggregate statistics over entries at or after since.
// A zero since covers the whole retained log. Top lists carry at most five items.
func (l *Logger) GetStats(since time.Time) Stats {
	entries := l.snapshot()
	actions := map[string]int{}
	resources := map[string]int{}
	actors := map[string]bool{}
	var st Stats
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		st.Total++
		if e.Success {
			st.Successes++
		} else {
			st.Failures++
		}
		actions[e.Action]++
		resources[e.Resource]++
		actors[e.ActorID] = true
	}
	st.UniqueActors = len(actors)
	st.TopActions = topCounts(actions, 5)
	st.TopResources = topCounts(resources, 5)
	return st
}

func topCounts(m map[string]int, n int) []NameCount {
	out := make([]NameCount, 0, len(m))
	for k, v := range m {
		out = append(out, NameCount{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
