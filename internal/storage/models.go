package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run states. A run moves claimed -> submitted -> recorded, or ends in
// failed before the submit click.
const (
	StateClaimed   = "claimed"
	StateSubmitted = "submitted"
	StateRecorded  = "recorded"
	StateFailed    = "failed"
)

// Run is one publisher invocation against one queue item.
type Run struct {
	ID        string
	ItemID    string
	Slot      string
	State     string
	ResultURL string
	Degraded  bool
	LastError string
	StartedAt time.Time
	UpdatedAt time.Time
}
