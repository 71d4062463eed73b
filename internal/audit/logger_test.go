package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"account-trust-gate/internal/audit/domain"
)

func newTestLogger(max int) *Logger {
	return NewLogger(Options{MaxEntries: max, RetentionDays: 90}, zap.NewNop())
}

func TestLog_AssignsIDAndTimestamp(t *testing.T) {
	l := newTestLogger(10)
	e := &domain.Entry{ActorID: "user-1", Action: "login", Resource: "session"}
	l.Log(e)
	if e.ID == "" {
		t.Error("Log did not assign an ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("Log did not assign a timestamp")
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestLog_RingDropsOldest(t *testing.T) {
	l := newTestLogger(3)
	for i := 0; i < 5; i++ {
		l.Log(&domain.Entry{ActorID: "user-1", Action: "a" + string(rune('0'+i)), Resource: "r"})
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	got := l.GetLogs(Filter{})
	// Newest first: a4, a3, a2. a0 and a1 were dropped.
	if got[0].Action != "a4" || got[2].Action != "a2" {
		t.Errorf("ring kept wrong entries: newest=%s oldest=%s", got[0].Action, got[2].Action)
	}
}

type failingSink struct{ calls int }

func (s *failingSink) Write(*domain.Entry) error {
	s.calls++
	return errors.New("sink down")
}

func TestLog_SinkErrorSwallowed(t *testing.T) {
	sink := &failingSink{}
	l := NewLogger(Options{MaxEntries: 10, RetentionDays: 90}, zap.NewNop(), sink)
	l.Log(&domain.Entry{ActorID: "user-1", Action: "login", Resource: "session"})
	if sink.calls != 1 {
		t.Errorf("sink calls = %d, want 1", sink.calls)
	}
	if l.Len() != 1 {
		t.Error("entry was not retained despite sink failure")
	}
}

func TestRehydrate_SeedsRingWithoutSinks(t *testing.T) {
	sink := &failingSink{}
	l := NewLogger(Options{MaxEntries: 10, RetentionDays: 90}, zap.NewNop(), sink)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	persisted := []*domain.Entry{
		{ID: "old-1", ActorID: "user-1", Action: "login", Resource: "session", Success: true, Timestamp: base},
		{ID: "old-2", ActorID: "user-1", Action: "withdraw", Resource: "account", Success: true, Timestamp: base.Add(time.Minute)},
	}
	l.Log(&domain.Entry{ActorID: "user-2", Action: "transfer", Resource: "account"})

	if n := l.Rehydrate(persisted); n != 2 {
		t.Fatalf("Rehydrate = %d, want 2", n)
	}
	if sink.calls != 1 {
		t.Errorf("sink calls = %d, want 1; rehydrated entries must not re-enter sinks", sink.calls)
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	// Persisted entries sit below the live one, oldest first.
	got := l.GetLogs(Filter{})
	if got[0].Action != "transfer" || got[2].ID != "old-1" {
		t.Errorf("order after rehydrate: newest=%s oldest=%s", got[0].Action, got[2].ID)
	}
}

func TestRehydrate_RespectsRingCap(t *testing.T) {
	l := newTestLogger(3)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var persisted []*domain.Entry
	for i := 0; i < 5; i++ {
		persisted = append(persisted, &domain.Entry{
			ID: "p" + string(rune('0'+i)), ActorID: "user-1", Action: "login",
			Resource: "session", Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	l.Rehydrate(persisted)
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	got := l.GetLogs(Filter{})
	if got[0].ID != "p4" || got[2].ID != "p2" {
		t.Errorf("cap kept wrong entries: newest=%s oldest=%s", got[0].ID, got[2].ID)
	}
}

func TestGetLogs_Filters(t *testing.T) {
	l := newTestLogger(50)
	l.LogSuccess("user-1", "login", "session", "s1", "", nil)
	l.LogFailure("user-2", "withdraw", "account", "a1", "", "denied", nil)
	l.LogSuccess("user-1", "withdraw", "account", "a2", "", nil)

	if got := l.GetLogs(Filter{ActorID: "user-1"}); len(got) != 2 {
		t.Errorf("actor filter: got %d entries, want 2", len(got))
	}
	if got := l.GetLogs(Filter{Action: "withdraw"}); len(got) != 2 {
		t.Errorf("action filter: got %d entries, want 2", len(got))
	}
	failed := false
	if got := l.GetLogs(Filter{Success: &failed}); len(got) != 1 || got[0].ActorID != "user-2" {
		t.Errorf("success filter: got %v", got)
	}
	if got := l.GetLogs(Filter{Limit: 1}); len(got) != 1 {
		t.Errorf("limit filter: got %d entries, want 1", len(got))
	}
	// Newest first.
	got := l.GetLogs(Filter{})
	if got[0].ResourceID != "a2" {
		t.Errorf("expected newest first, got %s", got[0].ResourceID)
	}
}

func TestSearch(t *testing.T) {
	l := newTestLogger(50)
	l.LogSuccess("user-1", "session_create", "session", "", "", nil)
	l.LogFailure("user-2", "policy_validate", "policy", "", "", "capability expired", nil)

	if got := l.Search("SESSION"); len(got) != 1 {
		t.Errorf("Search(SESSION) = %d entries, want 1", len(got))
	}
	if got := l.Search("expired"); len(got) != 1 {
		t.Errorf("Search(expired) = %d entries, want 1", len(got))
	}
	if got := l.Search(""); got != nil {
		t.Errorf("Search empty query = %v, want nil", got)
	}
}

func TestGetStats(t *testing.T) {
	l := newTestLogger(50)
	l.LogSuccess("user-1", "login", "session", "", "", nil)
	l.LogSuccess("user-2", "login", "session", "", "", nil)
	l.LogFailure("user-1", "withdraw", "account", "", "", "denied", nil)

	st := l.GetStats(time.Time{})
	if st.Total != 3 || st.Successes != 2 || st.Failures != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if st.UniqueActors != 2 {
		t.Errorf("UniqueActors = %d, want 2", st.UniqueActors)
	}
	if len(st.TopActions) == 0 || st.TopActions[0].Name != "login" || st.TopActions[0].Count != 2 {
		t.Errorf("TopActions = %v", st.TopActions)
	}
}

func TestCleanupOld(t *testing.T) {
	l := newTestLogger(50)
	now := time.Now().UTC()
	l.nowF = func() time.Time { return now.Add(-100 * 24 * time.Hour) }
	l.Log(&domain.Entry{ActorID: "user-1", Action: "old", Resource: "r"})
	l.nowF = func() time.Time { return now }
	l.Log(&domain.Entry{ActorID: "user-1", Action: "new", Resource: "r"})

	removed := l.CleanupOld()
	if removed != 1 {
		t.Errorf("CleanupOld removed %d, want 1", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
	if got := l.GetLogs(Filter{}); got[0].Action != "new" {
		t.Errorf("kept wrong entry: %s", got[0].Action)
	}
}

func TestExport_CSV(t *testing.T) {
	l := newTestLogger(50)
	l.LogSuccess("user-1", "login", "session", "s1", "hash1", map[string]string{"ua": "cli"})

	var buf bytes.Buffer
	if err := l.Export(&buf, FormatCSV); err != nil {
		t.Fatalf("Export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("csv rows = %d, want 2 (header + entry)", len(records))
	}
	if records[1][3] != "login" {
		t.Errorf("action column = %q, want login", records[1][3])
	}
	if !strings.Contains(records[1][9], "ua=cli") {
		t.Errorf("details column = %q, want ua=cli", records[1][9])
	}
}

func TestExport_JSON(t *testing.T) {
	l := newTestLogger(50)
	l.LogFailure("user-1", "withdraw", "account", "", "", "denied", nil)

	var buf bytes.Buffer
	if err := l.Export(&buf, FormatJSON); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if len(out) != 1 || out[0]["action"] != "withdraw" {
		t.Errorf("json export = %v", out)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	l := newTestLogger(10)
	if err := l.Export(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatal("Export accepted unknown format")
	}
}
