package queue

import "time"

// SelectNext returns the first item in stored order whose slot matches
// and that has not been posted. skip, when non-nil, excludes further
// items. The boolean is false when the queue holds nothing eligible.
func SelectNext(items []QueueItem, slot string, skip func(QueueItem) bool) (QueueItem, bool) {
	for _, it := range items {
		if it.Slot != slot || it.Done() {
			continue
		}
		if skip != nil && skip(it) {
			continue
		}
		return it, true
	}
	return QueueItem{}, false
}

// SlotFor maps a local wall-clock time onto a posting slot. The second
// result is false outside posting hours (23:00–09:00).
func SlotFor(t time.Time) (string, bool) {
	switch h := t.Hour(); {
	case h >= 9 && h < 12:
		return "morning", true
	case h >= 12 && h < 16:
		return "midday", true
	case h >= 16 && h < 19:
		return "afternoon", true
	case h >= 19 && h < 23:
		return "evening", true
	default:
		return "", false
	}
}

// PendingBySlot counts unposted items per slot.
func PendingBySlot(items []QueueItem) map[string]int {
	out := make(map[string]int)
	for _, it := range items {
		if !it.Done() {
			out[it.Slot]++
		}
	}
	return out
}

// Excluding returns a skip predicate for SelectNext that rejects ids.
func Excluding(ids ...string) func(QueueItem) bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(it QueueItem) bool {
		_, ok := set[it.ID]
		return ok
	}
}
