package publisher

import (
	"log/slog"
	"testing"
)

func TestPermalink(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://x.com/acct/status/123", "https://x.com/acct/status/123", true},
		{"https://twitter.com/acct/status/123?s=20", "https://x.com/acct/status/123", true},
		{"https://mobile.twitter.com/a_b/status/9/photo/1", "https://x.com/a_b/status/9", true},
		{"https://x.com/acct/status/123/analytics", "https://x.com/acct/status/123", true},
		{"https://x.com/acct", "", false},
		{"https://x.com/compose/post", "", false},
		{"https://x.com/acct/status/abc", "", false},
		{"https://example.com/acct/status/1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Permalink(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Permalink(%q) = %q,%v; want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRenderedItems(t *testing.T) {
	page := `<html><body>
		<article data-testid="tweet"><a href="/acct/status/1"><span><time>1m</time></span></a></article>
		<article data-testid="tweet"><div data-testid="socialContext">Reposted</div><a href="/other/status/2"><time>2m</time></a></article>
		<article data-testid="tweet"><a href="/acct"><img></a><p>no timestamp</p></article>
		<article data-testid="notTweet"><a href="/acct/status/3"><time>3m</time></a></article>
		<article data-testid="tweet"><a href="https://twitter.com/acct/status/4?ref=x"><time>4m</time></a></article>
	</body></html>`

	items, err := RenderedItems(page, "https://x.com", "tweet")
	if err != nil {
		t.Fatalf("RenderedItems: %v", err)
	}
	want := []RenderedItem{
		{URL: "https://x.com/acct/status/1", Handle: "acct"},
		{URL: "https://x.com/other/status/2", Handle: "other", Annotated: true},
		{URL: "https://x.com/acct/status/4", Handle: "acct"},
	}
	if len(items) != len(want) {
		t.Fatalf("items = %+v, want %+v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("items[%d] = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestPickRendered_Ordering(t *testing.T) {
	d := newFakeDriver()
	d.url = "https://x.com/other/status/77"
	d.pages[d.url] = timeline("/other/status/77", "/acct/status/100", "/stranger/status/150", "/acct/status/200")
	p := New(Deps{Platform: testPlatform, Logger: slog.New(slog.DiscardHandler)})

	if got, ok := p.pickRendered(ctx, d, "https://x.com/other/status/77", true); !ok || got != "https://x.com/acct/status/200" {
		t.Errorf("thread order = %q,%v; want last own item", got, ok)
	}
	if got, ok := p.pickRendered(ctx, d, "", false); !ok || got != "https://x.com/acct/status/100" {
		t.Errorf("timeline order = %q,%v; want first own item", got, ok)
	}

	anyone := New(Deps{Platform: XPlatform("", "")})
	if got, _ := anyone.pickRendered(ctx, d, "https://x.com/other/status/77", false); got != "https://x.com/acct/status/100" {
		t.Errorf("without account = %q, want first non-target item", got)
	}
}

func TestResolve_CurrentURLEqualToTargetIsMiss(t *testing.T) {
	d := newFakeDriver()
	d.url = "https://x.com/other/status/77"
	p := New(Deps{Platform: XPlatform("", "")})

	url, via, degraded := p.resolve(ctx, &resolution{driver: d, target: d.url})
	if !degraded || via != "fallback" || url != d.url {
		t.Errorf("resolve = %s,%s,%v; want degraded fallback to current URL", url, via, degraded)
	}
}
