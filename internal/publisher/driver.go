package publisher

import (
	"context"
	"strings"
)

// Driver is the remote UI capability the publisher steers. Waiting is not
// part of the contract: Present and Enabled answer immediately and the
// publisher polls them through wait.Until.
type Driver interface {
	// Navigate loads url and returns once the page has loaded and its DOM
	// settled, or ctx expires.
	Navigate(ctx context.Context, url string) error
	// Present reports whether selector matches a rendered element.
	Present(ctx context.Context, selector string) (bool, error)
	// Enabled reports whether selector matches an element that is neither
	// disabled nor aria-disabled.
	Enabled(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Type sends text one character at a time to the focused element.
	Type(ctx context.Context, text string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens a Driver backed by the persisted browser profile.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Platform holds the fixed, platform-specific addresses and selectors.
type Platform struct {
	BaseURL     string
	Account     string
	ComposePath string

	ReplySelector  string
	TextSelector   string
	SubmitSelector string
	// ItemTestID is the data-testid of a rendered post element.
	ItemTestID string
}

// XPlatform returns the selectors used by x.com.
func XPlatform(baseURL, account string) Platform {
	if baseURL == "" {
		baseURL = "https://x.com"
	}
	return Platform{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Account:        strings.TrimPrefix(account, "@"),
		ComposePath:    "/compose/post",
		ReplySelector:  `[data-testid="reply"]`,
		TextSelector:   `[data-testid="tweetTextarea_0"]`,
		SubmitSelector: `[data-testid="tweetButton"]`,
		ItemTestID:     "tweet",
	}
}

func (p Platform) ComposeURL() string {
	return p.BaseURL + p.ComposePath
}

func (p Platform) ProfileURL() string {
	return p.BaseURL + "/" + p.Account
}
