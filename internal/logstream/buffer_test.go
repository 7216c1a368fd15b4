package logstream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(ContainerCapacity)
	for i := 0; i < 5010; i++ {
		b.Push(fmt.Sprintf("line %d", i))
	}

	lines := b.Lines()
	require.Len(t, lines, 5000)
	assert.Equal(t, "line 10", lines[0])
	assert.Equal(t, "line 5009", lines[len(lines)-1])
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("line %d", i+10), line)
	}
}

func TestBuffer_ServiceCapacity(t *testing.T) {
	b := NewBuffer(ServiceCapacity)
	for i := 0; i < 10010; i++ {
		b.Push(fmt.Sprintf("log %d", i))
	}
	assert.Equal(t, 10000, b.Len())
	assert.Equal(t, "log 10", b.Lines()[0])
}

func TestBuffer_MinimumCapacity(t *testing.T) {
	b := NewBuffer(0)
	b.Push("a")
	b.Push("b")
	assert.Equal(t, []string{"b"}, b.Lines())
	assert.Equal(t, 1, b.Capacity())
}

func TestBuffer_ScrollAndFollow(t *testing.T) {
	b := NewBuffer(100)
	for i := 0; i < 10; i++ {
		b.Push(fmt.Sprintf("%d", i))
	}
	assert.True(t, b.Following())
	assert.Equal(t, []string{"7", "8", "9"}, b.Window(3))

	b.ScrollUp(2)
	assert.False(t, b.Following())
	assert.Equal(t, 2, b.ScrollOffset())
	assert.Equal(t, []string{"5", "6", "7"}, b.Window(3))

	// New lines don't move a paused view's offset from the bottom
	b.Push("10")
	assert.Equal(t, []string{"6", "7", "8"}, b.Window(3))

	b.ScrollUp(1000)
	assert.Equal(t, 10, b.ScrollOffset(), "clamped to len-1")
	assert.Equal(t, []string{"0", "1", "2"}, b.Window(3))

	b.ScrollDown(5)
	assert.False(t, b.Following())
	b.ScrollDown(5)
	assert.True(t, b.Following(), "reaching the bottom resumes following")
	assert.Zero(t, b.ScrollOffset())

	b.ScrollUp(3)
	b.Follow()
	assert.True(t, b.Following())
	assert.Equal(t, []string{"8", "9", "10"}, b.Window(3))
}

func TestBuffer_Window_Edges(t *testing.T) {
	b := NewBuffer(10)
	assert.Nil(t, b.Window(5))

	b.Push("only")
	assert.Equal(t, []string{"only"}, b.Window(5))
	assert.Nil(t, b.Window(0))
}

func TestBuffer_Filters(t *testing.T) {
	b := NewBuffer(100)
	for _, l := range []string{
		"GET /health 200",
		"ERROR: database unavailable",
		"request failed: timeout",
		"panic: nil map",
		"GET /users 200",
	} {
		b.Push(l)
	}

	tests := []struct {
		name       string
		search     string
		errorsOnly bool
		want       []string
	}{
		{"no filter", "", false, b.Lines()},
		{"search is case-insensitive", "get", false, []string{"GET /health 200", "GET /users 200"}},
		{"errors only", "", true, []string{"ERROR: database unavailable", "request failed: timeout", "panic: nil map"}},
		{"both filters", "DATABASE", true, []string{"ERROR: database unavailable"}},
		{"no match", "nothing", false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.SetSearch(tt.search)
			if b.ErrorsOnly() != tt.errorsOnly {
				b.ToggleErrorsOnly()
			}
			assert.Equal(t, tt.want, b.Visible())
			assert.Equal(t, tt.search, b.Search())
		})
	}
}

func TestBuffer_ScrollStopsAtFilteredTop(t *testing.T) {
	b := NewBuffer(100)
	for i := 0; i < 10; i++ {
		if i%4 == 0 {
			b.Push(fmt.Sprintf("%d panic", i))
			continue
		}
		b.Push(fmt.Sprintf("%d ok", i))
	}

	b.ToggleErrorsOnly()
	require.Equal(t, []string{"0 panic", "4 panic", "8 panic"}, b.Visible())

	b.ScrollUp(50)
	assert.Equal(t, 2, b.ScrollOffset(), "clamped to the filtered length")
	assert.Equal(t, []string{"0 panic"}, b.Window(1))

	b.ScrollDown(2)
	assert.True(t, b.Following(), "one key press per filtered line gets back down")

	// Narrowing the filter pulls an existing offset back into range
	b.ToggleErrorsOnly()
	b.ScrollUp(9)
	assert.Equal(t, 9, b.ScrollOffset())
	b.SetSearch("4 panic")
	assert.Zero(t, b.ScrollOffset())
	assert.Equal(t, []string{"4 panic"}, b.Window(3))
}

func TestIsErrorLine(t *testing.T) {
	assert.True(t, IsErrorLine("FATAL could not bind"))
	assert.True(t, IsErrorLine("java.lang.NullPointerException"))
	assert.False(t, IsErrorLine("request failed"))
	assert.False(t, IsErrorLine("all good"))
}
