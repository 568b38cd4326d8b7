// Package browser drives a persisted Chromium profile through go-rod.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"github.com/roostrcapital/xposter/internal/publisher"
)

const (
	viewportWidth  = 1280
	viewportHeight = 800

	defaultStableFor      = 500 * time.Millisecond
	defaultSettleWithin   = 3 * time.Second
	defaultKeystrokeDelay = 30 * time.Millisecond
)

// enabledJS reports whether the first element matching the selector exists
// and accepts clicks.
const enabledJS = `(sel) => {
	const el = document.querySelector(sel);
	return !!el && !el.disabled && el.getAttribute('aria-disabled') !== 'true';
}`

// Options configures the browser process.
type Options struct {
	// ProfileDir is the Chromium user data directory holding the logged-in
	// session. It is never removed.
	ProfileDir string
	Headless   bool
	// Bin overrides the browser executable; empty lets rod find or
	// download one.
	Bin string
	// KeystrokeDelay paces typing, one character per delay.
	KeystrokeDelay time.Duration
	// StableFor is how long the DOM must stop changing after a navigation.
	StableFor time.Duration
	// SettleWithin bounds the wait for a stable DOM. Pages with live
	// timelines never settle; navigation succeeds anyway once loaded.
	SettleWithin time.Duration
	Logger       *slog.Logger
}

// Launcher starts one browser session per Launch call.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.KeystrokeDelay <= 0 {
		opts.KeystrokeDelay = defaultKeystrokeDelay
	}
	if opts.StableFor <= 0 {
		opts.StableFor = defaultStableFor
	}
	if opts.SettleWithin <= 0 {
		opts.SettleWithin = defaultSettleWithin
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Launcher{opts: opts}
}

// Launch starts Chromium on the profile directory and opens a stealth
// page with the fixed viewport.
func (l *Launcher) Launch(ctx context.Context) (publisher.Driver, error) {
	if l.opts.ProfileDir == "" {
		return nil, fmt.Errorf("browser profile directory not configured")
	}
	if err := os.MkdirAll(l.opts.ProfileDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}

	lc := launcher.New().
		Context(ctx).
		Headless(l.opts.Headless).
		UserDataDir(l.opts.ProfileDir).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	if l.opts.Bin != "" {
		lc = lc.Bin(l.opts.Bin)
	}
	u, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.opts.Logger.Debug("browser launched", "control_url", u, "profile", l.opts.ProfileDir, "headless", l.opts.Headless)

	b, err := connectOrKill(u, (*rod.Browser).Connect, lc.Kill)
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		lc.Kill()
		return nil, fmt.Errorf("create tab: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = b.Close()
		lc.Kill()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return &Session{
		browser:      b,
		page:         page,
		limiter:      rate.NewLimiter(rate.Every(l.opts.KeystrokeDelay), 1),
		stableFor:    l.opts.StableFor,
		settleWithin: l.opts.SettleWithin,
		logger:       l.opts.Logger,
	}, nil
}

// connectOrKill attaches to the browser at controlURL. When that fails the
// process is killed so it does not keep the profile's singleton lock.
func connectOrKill(controlURL string, connect func(*rod.Browser) error, kill func()) (*rod.Browser, error) {
	b := rod.New().ControlURL(controlURL)
	if err := connect(b); err != nil {
		kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return b, nil
}

// Session is one open browser with a single page. It implements
// publisher.Driver.
type Session struct {
	browser      *rod.Browser
	page         *rod.Page
	limiter      *rate.Limiter
	stableFor    time.Duration
	settleWithin time.Duration
	logger       *slog.Logger
}

var _ publisher.Driver = (*Session)(nil)

func (s *Session) Navigate(ctx context.Context, url string) error {
	return navigate(rodLoader{s.page.Context(ctx)}, url, s.stableFor, s.settleWithin, s.logger)
}

// loader is the part of a page a navigation needs.
type loader interface {
	Navigate(url string) error
	WaitLoad() error
	// Settle waits until the DOM has not changed for stableFor, giving up
	// after within.
	Settle(stableFor, within time.Duration) error
}

type rodLoader struct{ p *rod.Page }

func (l rodLoader) Navigate(url string) error { return l.p.Navigate(url) }
func (l rodLoader) WaitLoad() error           { return l.p.WaitLoad() }

func (l rodLoader) Settle(stableFor, within time.Duration) error {
	p := l.p.Timeout(within)
	defer p.CancelTimeout()
	return p.WaitStable(stableFor)
}

// navigate fails only when the page does not load. The stable-DOM wait is
// best effort and bounded by within.
func navigate(l loader, url string, stableFor, within time.Duration, logger *slog.Logger) error {
	if err := l.Navigate(url); err != nil {
		return err
	}
	if err := l.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load: %w", err)
	}
	if err := l.Settle(stableFor, within); err != nil {
		logger.Debug("DOM still changing after load", "url", url, "error", err)
	}
	return nil
}

func (s *Session) Present(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	return has, err
}

func (s *Session) Enabled(ctx context.Context, selector string) (bool, error) {
	res, err := s.page.Context(ctx).Eval(enabledJS, selector)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("no element matches %s", selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type sends text to the focused element one key at a time, paced by the
// keystroke limiter. Printable ASCII goes out as key events, newlines as
// Enter, and anything without a key on a US layout is inserted as text.
func (s *Session) Type(ctx context.Context, text string) error {
	p := s.page.Context(ctx)
	for _, k := range splitKeys(text) {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		if k.enter {
			err = p.Keyboard.Type(input.Enter)
		} else if stroke, ok := k.keystroke(); ok {
			err = p.Keyboard.Type(stroke)
		} else {
			err = p.InsertText(k.text)
		}
		if err != nil {
			return fmt.Errorf("typing: %w", err)
		}
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close shuts the browser down. The profile directory is left in place so
// the next session stays logged in.
func (s *Session) Close() error {
	return s.browser.Close()
}

type key struct {
	text  string
	enter bool
}

// keystroke returns the keyboard key for printable ASCII.
func (k key) keystroke() (input.Key, bool) {
	r := []rune(k.text)
	if k.enter || len(r) != 1 || r[0] < 0x20 || r[0] > 0x7e {
		return 0, false
	}
	return input.Key(r[0]), true
}

func splitKeys(text string) []key {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	keys := make([]key, 0, len(text))
	for _, r := range text {
		if r == '\n' {
			keys = append(keys, key{enter: true})
			continue
		}
		keys = append(keys, key{text: string(r)})
	}
	return keys
}
