package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roostrcapital/xposter/internal/browser"
	"github.com/roostrcapital/xposter/internal/metrics"
	"github.com/roostrcapital/xposter/internal/publisher"
	"github.com/roostrcapital/xposter/internal/queue"
)

func runPublish(ctx context.Context, slot string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	launcher := browser.NewLauncher(browser.Options{
		ProfileDir:     a.cfg.Browser.ProfileDir,
		Headless:       a.cfg.Browser.Headless,
		Bin:            a.cfg.Browser.Bin,
		KeystrokeDelay: a.cfg.Timing.KeystrokeDelay,
	})
	return publish(ctx, a, launcher, slot, time.Now(), os.Stdout)
}

// publish runs one publication and prints the final status line to out.
// Only fatal pipeline errors are returned; an empty slot and a degraded
// URL are successes.
func publish(ctx context.Context, a *app, launcher publisher.Launcher, slot string, now time.Time, out io.Writer) error {
	fmt.Fprintf(msgOut, "xposter version %s\n", version)

	if slot == "" {
		var ok bool
		if slot, ok = queue.SlotFor(now); !ok {
			printWarning("Outside posting hours (%s)", now.Format("15:04"))
			fmt.Fprintln(out, finalLine(publisher.Result{Outcome: publisher.OutcomeExhausted}, nil))
			return nil
		}
	}
	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintln(out, finalLine(publisher.Result{}, err))
		return reportedError{err}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	pub := publisher.New(publisher.Deps{
		Queue:    a.queue,
		Journal:  a.journal,
		Launcher: launcher,
		Platform: publisher.XPlatform(a.cfg.Platform.BaseURL, a.cfg.Platform.Account),
		Timing: publisher.Timing{
			Navigate: a.cfg.Timing.NavigateTimeout,
			Surface:  a.cfg.Timing.SurfaceTimeout,
			Settle:   a.cfg.Timing.SettleTimeout,
			Poll:     a.cfg.Timing.PollInterval,
		},
		Logger:   slog.Default(),
		Progress: printStep,
		Hooks:    m.PublisherHooks(),
	})

	printStep("Publishing %s post", slot)
	res, err := pub.Run(ctx, slot)
	switch {
	case err != nil:
		printError("%v", err)
	case res.Outcome == publisher.OutcomeDegraded:
		printWarning("Posted %s, but only a fallback URL was found", res.Item.ID)
	case res.Outcome == publisher.OutcomePosted:
		printSuccess("Posted %s", res.Item.ID)
	}

	exportMetrics(ctx, a, m, reg)
	fmt.Fprintln(out, finalLine(res, err))
	if err != nil {
		return reportedError{err}
	}
	return nil
}

func exportMetrics(ctx context.Context, a *app, m *metrics.Metrics, reg *prometheus.Registry) {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if doc, err := a.queue.Load(ctx); err == nil {
		m.SetPending(queue.PendingBySlot(doc.Posts))
	}
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, reg); err != nil {
		slog.Warn("metrics export failed", "path", a.cfg.Metrics.Textfile, "error", err)
	}
}

// finalLine is the last line a run prints, read by the cron wrapper.
func finalLine(res publisher.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("FAILED: %v", err)
	}
	if res.Outcome == publisher.OutcomeExhausted {
		return "NO ELIGIBLE POST"
	}
	return "FINAL SUCCESS: " + res.URL
}
