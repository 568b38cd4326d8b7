package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/storage"
)

// QueueStore is the queue as seen by the API layer.
type QueueStore interface {
	Load(ctx context.Context) (queue.Document, error)
	Audit(ctx context.Context) ([]queue.AuditRecord, error)
	Enqueue(ctx context.Context, item queue.QueueItem) error
}

// RunLister reads the run journal.
type RunLister interface {
	RecentRuns(limit int) ([]storage.Run, error)
	Unreconciled() ([]storage.Run, error)
}

type AppDeps struct {
	Queue   QueueStore
	Runs    RunLister
	Token   string
	Metrics http.Handler // optional; served unauthenticated at /metrics
	Now     func() time.Time
}

// NewAppHandler serves the queue, the posted log and the run journal to
// dashboards. Everything except /health and /metrics requires the bearer
// token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/queue", handleListQueue(deps))
		r.Get("/queue/next", handleNextItem(deps))
		r.Get("/posted", handleListPosted(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/unreconciled", handleUnreconciled(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type queueResponse struct {
	Metadata queue.Metadata    `json:"metadata"`
	Pending  map[string]int    `json:"pending"`
	Posts    []queue.QueueItem `json:"posts"`
}

func handleListQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Queue.Load(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load queue: %v", err)
			return
		}

		slot := r.URL.Query().Get("slot")
		pendingOnly := r.URL.Query().Get("pending") == "true"
		posts := filterItems(doc.Posts, slot, pendingOnly)

		writeJSON(w, queueResponse{
			Metadata: doc.Metadata,
			Pending:  queue.PendingBySlot(doc.Posts),
			Posts:    posts,
		})
	}
}

type nextResponse struct {
	Slot string           `json:"slot"`
	Item *queue.QueueItem `json:"item"`
}

func handleNextItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot := r.URL.Query().Get("slot")
		if slot == "" {
			var ok bool
			if slot, ok = queue.SlotFor(deps.Now()); !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "slot is required outside posting hours")
				return
			}
		}

		item, ok, err := nextItem(r.Context(), deps.Queue, deps.Runs, slot)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to select next item: %v", err)
			return
		}
		resp := nextResponse{Slot: slot}
		if ok {
			resp.Item = &item
		}
		writeJSON(w, resp)
	}
}

func handleListPosted(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		recs, err := deps.Queue.Audit(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read posted log: %v", err)
			return
		}
		writeJSON(w, newestFirst(recs, limit))
	}
}

type runView struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Slot      string `json:"slot"`
	State     string `json:"state"`
	ResultURL string `json:"result_url,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
	LastError string `json:"last_error,omitempty"`
	StartedAt string `json:"started_at"`
	UpdatedAt string `json:"updated_at"`
}

func toRunViews(runs []storage.Run) []runView {
	out := make([]runView, len(runs))
	for i, r := range runs {
		out[i] = runView{
			ID:        r.ID,
			ItemID:    r.ItemID,
			Slot:      r.Slot,
			State:     r.State,
			ResultURL: r.ResultURL,
			Degraded:  r.Degraded,
			LastError: r.LastError,
			StartedAt: r.StartedAt.Format(time.RFC3339),
			UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)

		runs, err := deps.Runs.RecentRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, toRunViews(runs))
	}
}

func handleUnreconciled(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Runs.Unreconciled()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, toRunViews(runs))
	}
}

// nextItem applies the publisher's selection rule, skipping items whose
// submit click was never reconciled.
func nextItem(ctx context.Context, q QueueStore, runs RunLister, slot string) (queue.QueueItem, bool, error) {
	doc, err := q.Load(ctx)
	if err != nil {
		return queue.QueueItem{}, false, err
	}
	var guarded []string
	if runs != nil {
		pending, err := runs.Unreconciled()
		if err != nil {
			return queue.QueueItem{}, false, fmt.Errorf("reading run journal: %w", err)
		}
		for _, r := range pending {
			guarded = append(guarded, r.ItemID)
		}
	}
	item, ok := queue.SelectNext(doc.Posts, slot, queue.Excluding(guarded...))
	return item, ok, nil
}

func filterItems(items []queue.QueueItem, slot string, pendingOnly bool) []queue.QueueItem {
	out := []queue.QueueItem{}
	for _, it := range items {
		if slot != "" && it.Slot != slot {
			continue
		}
		if pendingOnly && it.Done() {
			continue
		}
		out = append(out, it)
	}
	return out
}

func newestFirst(recs []queue.AuditRecord, limit int) []queue.AuditRecord {
	out := make([]queue.AuditRecord, 0, min(len(recs), limit))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
