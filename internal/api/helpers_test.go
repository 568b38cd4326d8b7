package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/storage"
)

const testQueue = `{"metadata":{"latest_tweet":"https://x.com/acct/status/1"},"posts":[
	{"id":"m1","content":"posted one","slot":"morning","posted":true,"posted_at":"2026-02-10T09:00:00Z","tweet_url":"https://x.com/acct/status/1"},
	{"id":"m2","content":"guarded","slot":"morning","posted":false},
	{"id":"m3","content":"next up","slot":"morning","posted":false},
	{"id":"e1","content":"tonight","slot":"evening","posted":false}
]}`

// middayNow is inside the midday slot.
func middayNow() time.Time { return time.Date(2026, 2, 12, 13, 0, 0, 0, time.Local) }

func newTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	dir := t.TempDir()
	qp := filepath.Join(dir, "content-queue.json")
	if err := os.WriteFile(qp, []byte(testQueue), 0o644); err != nil {
		t.Fatal(err)
	}
	lp := filepath.Join(dir, "posted-log.json")
	if err := os.WriteFile(lp, []byte(`{"posted":[
		{"id":"old","content":"a","platforms":[],"tweet_url":"https://x.com/acct/status/0","reply_to":null,"posted_at":"2026-02-09T09:00:00Z","note":"morning post old"},
		{"id":"m1","content":"posted one","platforms":["x"],"tweet_url":"https://x.com/acct/status/1","reply_to":null,"posted_at":"2026-02-10T09:00:00Z","note":"morning post m1"}
	]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return queue.NewStore(qp, lp)
}

// newTestRuns returns a journal in which m2 clicked submit but never
// recorded.
func newTestRuns(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.BeginRun(storage.Run{ID: "run-1", ItemID: "m2", Slot: "morning", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSubmitted("run-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.FailRun("run-1", "record: disk full"); err != nil {
		t.Fatal(err)
	}
	return s
}
