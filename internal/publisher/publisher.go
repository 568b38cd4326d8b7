// Package publisher posts one queued item per run by steering a browser
// session: select, open session, submit, resolve the permalink, record.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/storage"
	"github.com/roostrcapital/xposter/internal/wait"
)

// QueueStore is the durable queue as seen by the publisher.
type QueueStore interface {
	Load(ctx context.Context) (queue.Document, error)
	Record(ctx context.Context, id, url string) (queue.AuditRecord, error)
}

// Journal tracks runs so an item whose submit click happened is never
// selected again before it is reconciled.
type Journal interface {
	BeginRun(r storage.Run) error
	MarkSubmitted(id string) error
	MarkRecorded(id, resultURL string, degraded bool) error
	FailRun(id, errMsg string) error
	Unreconciled() ([]storage.Run, error)
}

// Outcome classifies a run that did not fail.
type Outcome string

const (
	OutcomePosted    Outcome = "posted"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeExhausted Outcome = "exhausted"
)

// Result describes a finished run.
type Result struct {
	Outcome Outcome
	Slot    string
	Item    queue.QueueItem
	URL     string
	// Via names the resolver heuristic that produced URL.
	Via   string
	RunID string
}

// Timing bounds every wait. Values are tunable, not semantic.
type Timing struct {
	Navigate time.Duration
	Surface  time.Duration
	Settle   time.Duration
	Poll     time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Navigate: 30 * time.Second,
		Surface:  10 * time.Second,
		Settle:   7 * time.Second,
		Poll:     250 * time.Millisecond,
	}
}

// Hooks receive observations for metrics. Either field may be nil.
type Hooks struct {
	OnStep    func(step Step, d time.Duration, err error)
	OnOutcome func(outcome string)
}

// Deps holds the publisher's collaborators.
type Deps struct {
	Queue    QueueStore
	Journal  Journal // optional; nil disables the submitted-run guard
	Launcher Launcher
	Platform Platform
	Timing   Timing
	Logger   *slog.Logger
	// Progress receives one human-readable line before and after each
	// named action.
	Progress func(format string, args ...any)
	Hooks    Hooks
}

type Publisher struct {
	queue      QueueStore
	journal    Journal
	launcher   Launcher
	platform   Platform
	timing     Timing
	logger     *slog.Logger
	progress   func(format string, args ...any)
	hooks      Hooks
	heuristics []heuristic
	newID      func() string
	now        func() time.Time
}

func New(d Deps) *Publisher {
	p := &Publisher{
		queue:    d.Queue,
		journal:  d.Journal,
		launcher: d.Launcher,
		platform: d.Platform,
		timing:   d.Timing,
		logger:   d.Logger,
		progress: d.Progress,
		hooks:    d.Hooks,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	if p.journal == nil {
		p.journal = nopJournal{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.progress == nil {
		p.progress = func(string, ...any) {}
	}
	if p.timing == (Timing{}) {
		p.timing = DefaultTiming()
	}
	p.heuristics = defaultHeuristics()
	return p
}

// Run publishes the first eligible item of slot. Queue exhaustion and an
// unresolvable permalink are successful outcomes; every other failure is a
// *StepError and aborts the run. The browser session is closed on every
// path.
func (p *Publisher) Run(ctx context.Context, slot string) (res Result, err error) {
	res.Slot = slot
	defer func() {
		if p.hooks.OnOutcome == nil {
			return
		}
		if err != nil {
			p.hooks.OnOutcome("failed")
			return
		}
		p.hooks.OnOutcome(string(res.Outcome))
	}()

	// Post Selector.
	var doc queue.Document
	var item queue.QueueItem
	var found bool
	err = p.timed(StepSelect, func() error {
		p.progress("Selecting next %s post...", slot)
		var err error
		if doc, err = p.queue.Load(ctx); err != nil {
			return err
		}
		guarded, err := p.guardedItems()
		if err != nil {
			return err
		}
		item, found = queue.SelectNext(doc.Posts, slot, func(it queue.QueueItem) bool {
			r, ok := guarded[it.ID]
			if ok {
				p.logger.Warn("skipping item with unreconciled submit", "item", it.ID, "run", r.ID, "last_error", r.LastError)
				p.progress("Skipping %s: run %s clicked submit but never recorded (use reconcile)", it.ID, r.ID)
			}
			return ok
		})
		return nil
	})
	if err != nil {
		return res, &StepError{Step: StepSelect, Err: err}
	}
	if !found {
		p.logger.Info("no eligible post", "slot", slot)
		p.progress("No eligible %s post in queue", slot)
		res.Outcome = OutcomeExhausted
		return res, nil
	}
	res.Item = item
	p.logger.Info("selected post", "item", item.ID, "type", item.Kind(), "reply_to", item.ReplyTo)
	p.progress("Selected %s (%s)", item.ID, item.Kind())

	res.RunID = p.newID()
	if err := p.journal.BeginRun(storage.Run{ID: res.RunID, ItemID: item.ID, Slot: slot, StartedAt: p.now()}); err != nil {
		return res, &StepError{Step: StepSelect, Err: fmt.Errorf("journaling run: %w", err)}
	}
	defer func() {
		if err == nil {
			return
		}
		if jerr := p.journal.FailRun(res.RunID, err.Error()); jerr != nil {
			p.logger.Warn("could not journal run failure", "run", res.RunID, "error", jerr)
		}
	}()

	// Session Opener.
	var drv Driver
	var target string
	err = p.timed(StepSession, func() error {
		var err error
		p.progress("Launching browser session...")
		if drv, err = p.launcher.Launch(ctx); err != nil {
			return &StepError{Step: StepSession, Err: fmt.Errorf("launching browser: %w", err)}
		}
		target, err = p.openSession(ctx, drv, item, doc.Metadata)
		return err
	})
	if drv != nil {
		defer func() {
			if cerr := drv.Close(); cerr != nil {
				p.logger.Warn("closing browser session", "error", cerr)
			}
		}()
	}
	if err != nil {
		return res, err
	}

	// Content Submitter.
	if err = p.timed(StepSubmit, func() error { return p.submit(ctx, drv, item, res.RunID) }); err != nil {
		return res, err
	}

	// Result Resolver. Never fatal.
	var degraded bool
	_ = p.timed(StepResolve, func() error {
		p.progress("Resolving post URL...")
		res.URL, res.Via, degraded = p.resolve(ctx, &resolution{driver: drv, item: item, target: target})
		return nil
	})
	if degraded {
		p.logger.Warn("permalink unresolved, recording current page URL", "item", item.ID, "url", res.URL)
		p.progress("Could not resolve permalink, using %s", res.URL)
	} else {
		p.logger.Info("resolved permalink", "item", item.ID, "url", res.URL, "via", res.Via)
		p.progress("Post URL: %s", res.URL)
	}

	// Queue Updater.
	err = p.timed(StepRecord, func() error {
		p.progress("Updating queue and posted log...")
		_, err := p.queue.Record(ctx, item.ID, res.URL)
		return err
	})
	if err != nil {
		return res, &StepError{Step: StepRecord, Err: err}
	}
	if jerr := p.journal.MarkRecorded(res.RunID, res.URL, degraded); jerr != nil {
		p.logger.Warn("could not journal recorded run", "run", res.RunID, "error", jerr)
	}
	p.progress("Queue updated")

	res.Outcome = OutcomePosted
	if degraded {
		res.Outcome = OutcomeDegraded
	}
	return res, nil
}

func (p *Publisher) guardedItems() (map[string]storage.Run, error) {
	runs, err := p.journal.Unreconciled()
	if err != nil {
		return nil, fmt.Errorf("reading run journal: %w", err)
	}
	out := make(map[string]storage.Run, len(runs))
	for _, r := range runs {
		out[r.ItemID] = r
	}
	return out, nil
}

func (p *Publisher) timed(step Step, fn func() error) error {
	start := time.Now()
	err := fn()
	if p.hooks.OnStep != nil {
		p.hooks.OnStep(step, time.Since(start), err)
	}
	return err
}

// waitFor polls cond within the surface bound and tags a failure with
// the surface name.
func (p *Publisher) waitFor(ctx context.Context, step Step, surface Surface, cond wait.Condition) error {
	err := wait.Until(ctx, wait.Options{Timeout: p.timing.Surface, Interval: p.timing.Poll}, cond)
	if err != nil {
		return &StepError{Step: step, Surface: surface, Err: err}
	}
	return nil
}

func (p *Publisher) navigate(ctx context.Context, d Driver, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.timing.Navigate)
	defer cancel()
	if err := d.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func present(d Driver, selector string) wait.Condition {
	return func(ctx context.Context) (bool, error) { return d.Present(ctx, selector) }
}

func enabled(d Driver, selector string) wait.Condition {
	return func(ctx context.Context) (bool, error) { return d.Enabled(ctx, selector) }
}

type nopJournal struct{}

func (nopJournal) BeginRun(storage.Run) error              { return nil }
func (nopJournal) MarkSubmitted(string) error              { return nil }
func (nopJournal) MarkRecorded(string, string, bool) error { return nil }
func (nopJournal) FailRun(string, string) error            { return nil }
func (nopJournal) Unreconciled() ([]storage.Run, error)    { return nil, nil }
