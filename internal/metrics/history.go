package metrics

import "time"

// HistoryEntry is one tick's grouped process table.
type HistoryEntry struct {
	At     time.Time
	Groups map[int32]*ProcessGroup
}

// HistoryWindow is a time-ordered, bounded sequence of entries. It only grows
// at the tail and only shrinks at the head.
type HistoryWindow struct {
	entries []HistoryEntry
	maxAge  time.Duration
	maxLen  int
}

// NewHistoryWindow bounds history by age and by count; a zero bound is
// ignored, but at least one must be set.
func NewHistoryWindow(maxAge time.Duration, maxLen int) *HistoryWindow {
	if maxAge <= 0 && maxLen <= 0 {
		maxLen = 20
	}
	return &HistoryWindow{maxAge: maxAge, maxLen: maxLen}
}

// Push appends an entry and evicts from the head until both bounds hold.
// Entries not strictly after the current tail are rejected so the window
// stays time-ordered; Push reports whether the entry was kept.
func (h *HistoryWindow) Push(at time.Time, groups map[int32]*ProcessGroup) bool {
	if n := len(h.entries); n > 0 && !at.After(h.entries[n-1].At) {
		return false
	}
	h.entries = append(h.entries, HistoryEntry{At: at, Groups: groups})

	evict := 0
	for evict < len(h.entries)-1 {
		tooMany := h.maxLen > 0 && len(h.entries)-evict > h.maxLen
		tooOld := h.maxAge > 0 && at.Sub(h.entries[evict].At) > h.maxAge
		if !tooMany && !tooOld {
			break
		}
		evict++
	}
	if evict > 0 {
		// Copy down so the backing array doesn't grow without bound
		h.entries = append(h.entries[:0], h.entries[evict:]...)
	}
	return true
}

// Len returns the number of entries held.
func (h *HistoryWindow) Len() int {
	return len(h.entries)
}

// Entries returns the entries oldest first. The slice must not be modified.
func (h *HistoryWindow) Entries() []HistoryEntry {
	return h.entries
}

// Oldest returns the head timestamp, or the zero time when empty.
func (h *HistoryWindow) Oldest() time.Time {
	if len(h.entries) == 0 {
		return time.Time{}
	}
	return h.entries[0].At
}

// Newest returns the tail timestamp, or the zero time when empty.
func (h *HistoryWindow) Newest() time.Time {
	if len(h.entries) == 0 {
		return time.Time{}
	}
	return h.entries[len(h.entries)-1].At
}

// Clear drops all entries.
func (h *HistoryWindow) Clear() {
	h.entries = nil
}
