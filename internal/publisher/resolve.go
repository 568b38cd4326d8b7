package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/roostrcapital/xposter/internal/queue"
)

// resolution is the state a heuristic inspects.
type resolution struct {
	driver Driver
	item   queue.QueueItem
	// target is the canonical URL of the replied-to post, "" for a
	// standalone post.
	target string
}

type heuristic struct {
	name string
	try  func(p *Publisher, ctx context.Context, r *resolution) (string, bool, error)
}

func defaultHeuristics() []heuristic {
	return []heuristic{
		{name: "current-url", try: fromCurrentURL},
		{name: "rendered-items", try: fromRenderedItems},
		{name: "profile-timeline", try: fromProfileTimeline},
	}
}

// resolve runs the heuristics in order and returns the first permalink.
// When none matches it falls back to the current page URL and reports
// degraded. It never fails.
func (p *Publisher) resolve(ctx context.Context, r *resolution) (url, via string, degraded bool) {
	for _, h := range p.heuristics {
		link, ok, err := h.try(p, ctx, r)
		if err != nil {
			p.logger.Warn("resolver heuristic failed", "heuristic", h.name, "error", err)
			continue
		}
		if ok {
			return link, h.name, false
		}
		p.logger.Debug("resolver heuristic missed", "heuristic", h.name)
	}

	cur, err := r.driver.URL(ctx)
	if err != nil || cur == "" {
		p.logger.Warn("current URL unavailable, recording profile URL", "error", err)
		cur = p.platform.ProfileURL()
	}
	return cur, "fallback", true
}

func fromCurrentURL(p *Publisher, ctx context.Context, r *resolution) (string, bool, error) {
	cur, err := r.driver.URL(ctx)
	if err != nil {
		return "", false, fmt.Errorf("reading current URL: %w", err)
	}
	link, ok := Permalink(cur)
	if !ok || link == r.target {
		return "", false, nil
	}
	return link, true, nil
}

func fromRenderedItems(p *Publisher, ctx context.Context, r *resolution) (string, bool, error) {
	cur, err := r.driver.URL(ctx)
	if err != nil {
		return "", false, fmt.Errorf("reading current URL: %w", err)
	}
	// A reply thread renders oldest first; every other page newest first.
	onThread := false
	if link, ok := Permalink(cur); ok && link == r.target {
		onThread = true
	}
	link, ok := p.pickRendered(ctx, r.driver, r.target, onThread)
	return link, ok, nil
}

func fromProfileTimeline(p *Publisher, ctx context.Context, r *resolution) (string, bool, error) {
	if p.platform.Account == "" {
		return "", false, nil
	}
	if err := p.navigate(ctx, r.driver, p.platform.ProfileURL()); err != nil {
		return "", false, err
	}
	link, ok := p.pickRendered(ctx, r.driver, r.target, false)
	return link, ok, nil
}

// pickRendered returns the most recent rendered item of the account on
// the current page, excluding exclude. last selects the final item in
// document order instead of the first.
func (p *Publisher) pickRendered(ctx context.Context, d Driver, exclude string, last bool) (string, bool) {
	page, err := d.HTML(ctx)
	if err != nil {
		p.logger.Warn("reading page snapshot", "error", err)
		return "", false
	}
	items, err := RenderedItems(page, p.platform.BaseURL, p.platform.ItemTestID)
	if err != nil {
		p.logger.Warn("parsing page snapshot", "error", err)
		return "", false
	}

	var candidates []string
	for _, it := range items {
		if it.Annotated || it.URL == exclude {
			continue
		}
		if p.platform.Account != "" && !strings.EqualFold(it.Handle, p.platform.Account) {
			continue
		}
		candidates = append(candidates, it.URL)
	}
	if len(candidates) == 0 {
		return "", false
	}
	if last {
		return candidates[len(candidates)-1], true
	}
	return candidates[0], true
}
