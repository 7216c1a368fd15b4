package logstream

import "strings"

const (
	// ContainerCapacity bounds container log buffers.
	ContainerCapacity = 5000
	// ServiceCapacity bounds service log buffers.
	ServiceCapacity = 10000
)

// errorMarkers are the substrings that make a line count as an error for the
// errors-only filter. "err" is deliberately broad: it also catches "error",
// "stderr" and similar, so the filter errs toward showing a line.
var errorMarkers = []string{"err", "panic", "fatal", "exception", "fail"}

// Buffer is a bounded FIFO of log lines with view state: a scroll offset
// counted up from the bottom, an auto-follow flag, a case-insensitive search,
// and an errors-only filter. Once full, each push evicts the oldest line.
type Buffer struct {
	lines    []string
	head     int
	size     int
	capacity int

	scroll     int
	follow     bool
	search     string
	errorsOnly bool
}

// NewBuffer returns an empty buffer that follows new lines.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		lines:    make([]string, capacity),
		capacity: capacity,
		follow:   true,
	}
}

// Push appends a line, evicting the oldest when at capacity.
func (b *Buffer) Push(line string) {
	if b.size < b.capacity {
		b.lines[(b.head+b.size)%b.capacity] = line
		b.size++
		return
	}
	b.lines[b.head] = line
	b.head = (b.head + 1) % b.capacity
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	return b.size
}

// Capacity returns the maximum number of lines held.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Lines returns every buffered line, oldest first.
func (b *Buffer) Lines() []string {
	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.head+i)%b.capacity]
	}
	return out
}

// Visible returns the lines passing the search and errors-only filters,
// oldest first.
func (b *Buffer) Visible() []string {
	query := strings.ToLower(b.search)
	out := make([]string, 0, b.size)
	for i := 0; i < b.size; i++ {
		line := b.lines[(b.head+i)%b.capacity]
		if b.matches(line, query) {
			out = append(out, line)
		}
	}
	return out
}

// visibleCount is len(Visible()) without building the slice.
func (b *Buffer) visibleCount() int {
	query := strings.ToLower(b.search)
	n := 0
	for i := 0; i < b.size; i++ {
		if b.matches(b.lines[(b.head+i)%b.capacity], query) {
			n++
		}
	}
	return n
}

func (b *Buffer) matches(line, query string) bool {
	if !b.errorsOnly && query == "" {
		return true
	}
	lower := strings.ToLower(line)
	if b.errorsOnly && !containsAny(lower, errorMarkers) {
		return false
	}
	return query == "" || strings.Contains(lower, query)
}

// Window returns up to height visible lines ending scroll lines above the
// bottom. While following, the window is pinned to the newest lines.
func (b *Buffer) Window(height int) []string {
	visible := b.Visible()
	if height <= 0 || len(visible) == 0 {
		return nil
	}
	bottom := len(visible) - height
	if bottom < 0 {
		bottom = 0
	}
	start := bottom
	if !b.follow {
		start = bottom - b.scroll
		if start < 0 {
			start = 0
		}
	}
	end := start + height
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end]
}

// ScrollUp moves the view n lines toward older output and stops following.
// The offset is capped at the oldest line that passes the active filters.
func (b *Buffer) ScrollUp(n int) {
	b.follow = false
	b.scroll += n
	b.clampScroll()
}

func (b *Buffer) clampScroll() {
	limit := b.visibleCount() - 1
	if limit < 0 {
		limit = 0
	}
	if b.scroll > limit {
		b.scroll = limit
	}
}

// ScrollDown moves the view n lines toward newer output. Reaching the bottom
// resumes following.
func (b *Buffer) ScrollDown(n int) {
	b.scroll -= n
	if b.scroll <= 0 {
		b.scroll = 0
		b.follow = true
	}
}

// Follow jumps to the newest line and resumes following.
func (b *Buffer) Follow() {
	b.scroll = 0
	b.follow = true
}

// Following reports whether the view tracks new lines.
func (b *Buffer) Following() bool {
	return b.follow
}

// ScrollOffset returns how many lines the view sits above the bottom.
func (b *Buffer) ScrollOffset() int {
	return b.scroll
}

// SetSearch sets the case-insensitive substring filter; empty clears it.
func (b *Buffer) SetSearch(query string) {
	b.search = query
	b.clampScroll()
}

// Search returns the active search query.
func (b *Buffer) Search() string {
	return b.search
}

// ToggleErrorsOnly flips the errors-only filter and returns the new state.
func (b *Buffer) ToggleErrorsOnly() bool {
	b.errorsOnly = !b.errorsOnly
	b.clampScroll()
	return b.errorsOnly
}

// ErrorsOnly reports whether the errors-only filter is on.
func (b *Buffer) ErrorsOnly() bool {
	return b.errorsOnly
}

// IsErrorLine reports whether a line should be highlighted as an error.
func IsErrorLine(line string) bool {
	return containsAny(strings.ToLower(line), []string{"error", "panic", "fatal", "exception"})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
