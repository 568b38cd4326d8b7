package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/roostrcapital/xposter/internal/queue"
)

// openSession brings the driver to the surface where the item's body is
// typed. For a reply it returns the canonical URL of the post being
// answered; for a standalone post it returns "".
func (p *Publisher) openSession(ctx context.Context, d Driver, item queue.QueueItem, meta queue.Metadata) (string, error) {
	if item.Kind() != queue.TypeReply {
		p.progress("Opening compose surface...")
		if err := p.navigate(ctx, d, p.platform.ComposeURL()); err != nil {
			return "", &StepError{Step: StepSession, Err: err}
		}
		return "", nil
	}

	target := item.ReplyTo
	if target == queue.ReplyToPrevious {
		p.progress("Resolving previous post...")
		prev, err := p.previousPost(ctx, d, meta)
		if err != nil {
			return "", &StepError{Step: StepSession, Err: err}
		}
		p.logger.Info("resolved reply target", "item", item.ID, "target", prev)
		target = prev
	} else if link, ok := Permalink(target); ok {
		target = link
	}

	p.progress("Opening reply target %s...", target)
	if err := p.navigate(ctx, d, target); err != nil {
		return "", &StepError{Step: StepSession, Err: err}
	}
	if err := p.waitFor(ctx, StepSession, SurfaceReply, present(d, p.platform.ReplySelector)); err != nil {
		return "", err
	}
	if err := d.Click(ctx, p.platform.ReplySelector); err != nil {
		return "", &StepError{Step: StepSession, Surface: SurfaceReply, Err: fmt.Errorf("clicking reply: %w", err)}
	}
	p.progress("Reply surface open")
	return target, nil
}

// previousPost finds the most recent post of the account: first from the
// profile timeline, then from the last URL recorded in the queue.
func (p *Publisher) previousPost(ctx context.Context, d Driver, meta queue.Metadata) (string, error) {
	if p.platform.Account != "" {
		if err := p.navigate(ctx, d, p.platform.ProfileURL()); err != nil {
			p.logger.Warn("profile timeline unavailable", "error", err)
		} else if link, ok := p.pickRendered(ctx, d, "", false); ok {
			return link, nil
		}
	}
	if link, ok := Permalink(meta.LatestTweet); ok {
		return link, nil
	}
	return "", errors.New(`cannot resolve reply_to "previous": no post on profile timeline and no latest_tweet in queue metadata`)
}
