package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that indexes on the runs table are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_runs_item_state", "idx_runs_started"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func beginTestRun(t *testing.T, s *Store, id, item string, started time.Time) {
	t.Helper()
	if err := s.BeginRun(Run{ID: id, ItemID: item, Slot: "morning", StartedAt: started}); err != nil {
		t.Fatalf("BeginRun(%s): %v", id, err)
	}
}

// TestRunLifecycle walks a run through claimed, submitted and recorded.
func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	beginTestRun(t, s, "run-1", "m1", time.Now())

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].State != StateClaimed {
		t.Fatalf("runs = %+v, want one claimed run", runs)
	}

	if err := s.MarkSubmitted("run-1"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	pending, err := s.Unreconciled()
	if err != nil {
		t.Fatalf("Unreconciled: %v", err)
	}
	if len(pending) != 1 || pending[0].ItemID != "m1" {
		t.Fatalf("Unreconciled = %+v", pending)
	}

	if err := s.MarkRecorded("run-1", "https://x.com/a/status/1", true); err != nil {
		t.Fatalf("MarkRecorded: %v", err)
	}
	runs, _ = s.RecentRuns(10)
	if runs[0].State != StateRecorded || runs[0].ResultURL != "https://x.com/a/status/1" || !runs[0].Degraded {
		t.Errorf("run after record = %+v", runs[0])
	}
	pending, _ = s.Unreconciled()
	if len(pending) != 0 {
		t.Errorf("Unreconciled after record = %+v", pending)
	}
}

// TestFailRun_BeforeSubmit marks the run failed.
func TestFailRun_BeforeSubmit(t *testing.T) {
	s := openTestStore(t)
	beginTestRun(t, s, "run-1", "m1", time.Now())

	if err := s.FailRun("run-1", "compose surface not found"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	runs, _ := s.RecentRuns(1)
	if runs[0].State != StateFailed || runs[0].LastError != "compose surface not found" {
		t.Errorf("run = %+v", runs[0])
	}
}

// TestFailRun_AfterSubmitKeepsGuard keeps a submitted run visible as unreconciled.
func TestFailRun_AfterSubmitKeepsGuard(t *testing.T) {
	s := openTestStore(t)
	beginTestRun(t, s, "run-1", "m1", time.Now())
	if err := s.MarkSubmitted("run-1"); err != nil {
		t.Fatal(err)
	}

	if err := s.FailRun("run-1", "writing queue: disk full"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	pending, _ := s.Unreconciled()
	if len(pending) != 1 || pending[0].LastError != "writing queue: disk full" {
		t.Fatalf("Unreconciled = %+v", pending)
	}

	n, err := s.ReconcileItem("m1", "https://x.com/a/status/9")
	if err != nil || n != 1 {
		t.Fatalf("ReconcileItem = %d, %v", n, err)
	}
	pending, _ = s.Unreconciled()
	if len(pending) != 0 {
		t.Errorf("Unreconciled after reconcile = %+v", pending)
	}
}

// TestUnknownRun returns ErrNotFound.
func TestUnknownRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkSubmitted("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkSubmitted err = %v", err)
	}
	if err := s.MarkRecorded("ghost", "", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRecorded err = %v", err)
	}
	if err := s.FailRun("ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailRun err = %v", err)
	}
}

// TestRecentRunsOrder returns newest first and honours the limit.
func TestRecentRunsOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	beginTestRun(t, s, "a", "m1", base)
	beginTestRun(t, s, "b", "m2", base.Add(500*time.Millisecond))
	beginTestRun(t, s, "c", "m3", base.Add(time.Second))

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("RecentRuns = %+v", runs)
	}
}

// TestRunTimestampsRoundTrip reads back start times of any sub-second
// precision, including whole seconds.
func TestRunTimestampsRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		started time.Time
	}{
		{"whole second", time.Date(2026, 2, 12, 9, 0, 1, 0, time.UTC)},
		{"microseconds", time.Date(2026, 2, 12, 9, 0, 1, 123456000, time.UTC)},
		{"milliseconds", time.Date(2026, 2, 12, 9, 0, 1, 500000000, time.UTC)},
		{"nanoseconds", time.Date(2026, 2, 12, 9, 0, 1, 123456789, time.UTC)},
		{"local zone", time.Date(2026, 2, 12, 10, 0, 1, 250000000, time.FixedZone("CET", 3600))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(t.TempDir())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			beginTestRun(t, s, "run-1", "m1", tt.started)
			if err := s.MarkSubmitted("run-1"); err != nil {
				t.Fatalf("MarkSubmitted: %v", err)
			}

			runs, err := s.Unreconciled()
			if err != nil {
				t.Fatalf("Unreconciled: %v", err)
			}
			if len(runs) != 1 {
				t.Fatalf("Unreconciled len = %d, want 1", len(runs))
			}
			if !runs[0].StartedAt.Equal(tt.started) {
				t.Errorf("StartedAt = %v, want %v", runs[0].StartedAt, tt.started)
			}
			if runs[0].UpdatedAt.IsZero() {
				t.Error("UpdatedAt not read back")
			}
		})
	}
}

// TestRecentRunsOrderSubSecond keeps time order when only some start
// times carry a fraction.
func TestRecentRunsOrderSubSecond(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 2, 12, 9, 0, 1, 0, time.UTC)
	beginTestRun(t, s, "a", "m1", base)
	beginTestRun(t, s, "b", "m2", base.Add(123456*time.Microsecond))
	beginTestRun(t, s, "c", "m3", base.Add(time.Second))

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[1].ID != "b" || runs[2].ID != "a" {
		t.Errorf("RecentRuns = %+v", runs)
	}
}

// TestBeginRunRequiresIDs rejects incomplete runs.
func TestBeginRunRequiresIDs(t *testing.T) {
	s := openTestStore(t)
	if err := s.BeginRun(Run{ItemID: "m1"}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}
