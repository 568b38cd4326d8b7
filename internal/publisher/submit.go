package publisher

import (
	"context"
	"fmt"

	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/wait"
)

// submit types the body into the open surface and clicks the submit
// control exactly once. The run is journaled as submitted before the
// click; a journal failure aborts without clicking.
func (p *Publisher) submit(ctx context.Context, d Driver, item queue.QueueItem, runID string) error {
	sel := p.platform

	p.progress("Waiting for text surface...")
	if err := p.waitFor(ctx, StepSubmit, SurfaceCompose, present(d, sel.TextSelector)); err != nil {
		return err
	}
	if err := d.Click(ctx, sel.TextSelector); err != nil {
		return &StepError{Step: StepSubmit, Surface: SurfaceCompose, Err: fmt.Errorf("focusing text surface: %w", err)}
	}

	p.progress("Typing %d characters...", len([]rune(item.Body())))
	if err := d.Type(ctx, item.Body()); err != nil {
		return &StepError{Step: StepSubmit, Err: fmt.Errorf("typing content: %w", err)}
	}

	p.progress("Waiting for submit control...")
	if err := p.waitFor(ctx, StepSubmit, SurfaceSubmit, enabled(d, sel.SubmitSelector)); err != nil {
		return err
	}

	if err := p.journal.MarkSubmitted(runID); err != nil {
		return &StepError{Step: StepSubmit, Err: fmt.Errorf("journaling submit: %w", err)}
	}
	if err := d.Click(ctx, sel.SubmitSelector); err != nil {
		return &StepError{Step: StepSubmit, Surface: SurfaceSubmit, Err: fmt.Errorf("clicking submit: %w", err)}
	}
	p.logger.Info("submitted post", "item", item.ID, "run", runID)
	p.progress("Submitted")

	err := wait.Until(ctx, wait.Options{Timeout: p.timing.Settle, Interval: p.timing.Poll}, func(ctx context.Context) (bool, error) {
		open, err := d.Present(ctx, sel.TextSelector)
		return !open, err
	})
	if err != nil {
		p.logger.Debug("text surface still open after submit", "error", err)
	}
	return nil
}
