package publisher

import (
	"context"
	"errors"
	"sync"
)

// fakeDriver is a scripted browser. Pages are keyed by URL; selectors
// are present/enabled according to the maps, and onClick lets a test
// change state when a selector is clicked.
type fakeDriver struct {
	mu sync.Mutex

	url     string
	pages   map[string]string
	present map[string]bool
	enabled map[string]bool
	navErr  map[string]error
	onClick map[string]func(f *fakeDriver)

	navigations []string
	clicks      []string
	typed       string
	closed      bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		pages:   map[string]string{},
		present: map[string]bool{},
		enabled: map[string]bool{},
		navErr:  map[string]error{},
		onClick: map[string]func(*fakeDriver){},
	}
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	if err := f.navErr[url]; err != nil {
		return err
	}
	f.url = url
	return nil
}

func (f *fakeDriver) Present(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector], nil
}

func (f *fakeDriver) Enabled(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[selector] && f.enabled[selector], nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	if !f.present[selector] {
		f.mu.Unlock()
		return errors.New("no element for " + selector)
	}
	f.clicks = append(f.clicks, selector)
	hook := f.onClick[selector]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeDriver) Type(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed += text
	return nil
}

func (f *fakeDriver) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[f.url], nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) clickCount(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

type fakeLauncher struct {
	driver   *fakeDriver
	err      error
	launches int
}

func (l *fakeLauncher) Launch(context.Context) (Driver, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

// timeline renders a page of post elements linking to the given
// permalinks, in order.
func timeline(links ...string) string {
	page := "<html><body><main>"
	for _, l := range links {
		page += `<article data-testid="tweet"><div><a href="` + l + `"><time datetime="2026-02-12T09:30:00Z">now</time></a></div><div>body</div></article>`
	}
	return page + "</main></body></html>"
}
