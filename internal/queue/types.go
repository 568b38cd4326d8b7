package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no queue item has the requested id.
	ErrNotFound = errors.New("queue item not found")
	// ErrAlreadyPosted is returned when recording an item that already
	// carries a result URL. The stored URL is never overwritten.
	ErrAlreadyPosted = errors.New("queue item already posted")
)

// ItemType selects the navigation branch of a publication.
type ItemType string

const (
	TypeStandalone ItemType = "standalone"
	TypeReply      ItemType = "reply"
)

// ReplyToPrevious is the reply_to sentinel meaning "the most recent post
// published by our own account".
const ReplyToPrevious = "previous"

// Document is the decoded queue file. Fields not listed here are kept
// intact on disk by Store.
type Document struct {
	Metadata Metadata    `json:"metadata"`
	Posts    []QueueItem `json:"posts"`
}

type Metadata struct {
	Updated     string `json:"updated,omitempty"`
	LatestTweet string `json:"latest_tweet,omitempty"`
}

// QueueItem is one post awaiting or having completed publication.
type QueueItem struct {
	ID        string   `json:"id"`
	Content   string   `json:"content,omitempty"`
	Text      string   `json:"text,omitempty"`
	Slot      string   `json:"slot"`
	Type      ItemType `json:"type,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
	Note      string   `json:"note,omitempty"`
	Posted    bool     `json:"posted"`
	// PostedAt stays a string: older writers used timestamps without a zone.
	PostedAt string `json:"posted_at,omitempty"`
	TweetURL string `json:"tweet_url,omitempty"`
}

// Body returns the post text, accepting the older "text" field.
func (it QueueItem) Body() string {
	if it.Content != "" {
		return it.Content
	}
	return it.Text
}

// Kind returns the effective type. Items without a reply target are
// always standalone.
func (it QueueItem) Kind() ItemType {
	if it.Type == TypeReply && it.ReplyTo != "" {
		return TypeReply
	}
	return TypeStandalone
}

// Done reports whether the item has been published.
func (it QueueItem) Done() bool {
	return it.Posted || it.TweetURL != ""
}

// Validate checks an item before it is appended to the queue.
func (it QueueItem) Validate() error {
	if it.ID == "" {
		return errors.New("id is required")
	}
	if it.Body() == "" {
		return errors.New("content is required")
	}
	if it.Slot == "" {
		return errors.New("slot is required")
	}
	switch it.Type {
	case "", TypeStandalone:
	case TypeReply:
		if it.ReplyTo == "" {
			return errors.New("reply items need reply_to")
		}
	default:
		return fmt.Errorf("unknown type %q", it.Type)
	}
	if it.Done() {
		return errors.New("new items cannot be already posted")
	}
	return nil
}

// AuditRecord mirrors one successful publication in the posted log.
type AuditRecord struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Platforms []string `json:"platforms"`
	TweetURL  string   `json:"tweet_url"`
	ReplyTo   *string  `json:"reply_to"`
	PostedAt  string   `json:"posted_at"`
	Note      string   `json:"note"`
}
