// Package logstream tails continuous line sources into bounded buffers.
//
// A Tailer is Stopped or Streaming. Start launches a Source on its own
// goroutine, which forwards lines into a bounded channel. The consumer drains
// that channel with Poll, a fixed batch per call, without ever blocking.
// Stop flips a cancellation flag checked between lines, cancels the source's
// context, and kills any external process the source owns.
package logstream

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
)

const (
	// EndedMarker is appended when a stream's channel closes.
	EndedMarker = "[log stream ended]"

	// DefaultChannelSize bounds lines in flight between source and consumer.
	DefaultChannelSize = 256

	// ContainerBatch and ServiceBatch are the per-Poll drain limits.
	ContainerBatch = 100
	ServiceBatch   = 200
)

// Emit forwards one line and reports whether the source should keep going.
type Emit func(line string) bool

// Source is a continuous line producer. Run blocks until the source is
// exhausted, emit returns false, or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, emit Emit) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, emit Emit) error

// Run calls f.
func (f SourceFunc) Run(ctx context.Context, emit Emit) error {
	return f(ctx, emit)
}

// Killer is implemented by sources that own an external process. Kill must
// terminate and reap it and be safe to call more than once.
type Killer interface {
	Kill() error
}

// Options configures a Tailer.
type Options struct {
	Capacity    int
	Batch       int
	ChannelSize int
	Log         logger.Logger

	// OnLines, when set, receives the number of lines each Poll appended.
	OnLines func(n int)
}

// stream is one Start..Stop lifetime.
type stream struct {
	target  string
	src     Source
	lines   chan string
	cancel  context.CancelFunc
	stopped atomic.Bool
	ended   bool
}

// Tailer owns one LogBuffer and at most one running stream.
type Tailer struct {
	opts   Options
	log    logger.Logger
	buf    *Buffer
	active *stream
}

// NewTailer creates a stopped tailer.
func NewTailer(opts Options) *Tailer {
	if opts.Capacity <= 0 {
		opts.Capacity = ContainerCapacity
	}
	if opts.Batch <= 0 {
		opts.Batch = ContainerBatch
	}
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = DefaultChannelSize
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	return &Tailer{opts: opts, log: opts.Log}
}

// Start stops any running stream, resets the buffer, and begins tailing src.
// target names the stream for display.
func (t *Tailer) Start(target string, src Source) {
	t.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		target: target,
		src:    src,
		lines:  make(chan string, t.opts.ChannelSize),
		cancel: cancel,
	}
	t.buf = NewBuffer(t.opts.Capacity)
	t.active = s

	go t.run(ctx, s)
}

func (t *Tailer) run(ctx context.Context, s *stream) {
	defer close(s.lines)

	emit := func(line string) bool {
		if s.stopped.Load() {
			return false
		}
		select {
		case s.lines <- line:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := s.src.Run(ctx, emit)
	if err != nil && !s.stopped.Load() {
		t.log.Debug("log stream %s failed: %v", s.target, err)
		emit("[error] " + errors.OneLine(err))
	}
}

// Poll drains up to one batch of lines into the buffer without blocking and
// returns how many lines were appended. When the source has finished, the
// EndedMarker is appended once.
func (t *Tailer) Poll() int {
	s := t.active
	if s == nil || s.ended {
		return 0
	}

	n := 0
	for n < t.opts.Batch {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.ended = true
				t.buf.Push(EndedMarker)
				n++
				t.report(n)
				return n
			}
			t.buf.Push(line)
			n++
		default:
			t.report(n)
			return n
		}
	}
	t.report(n)
	return n
}

func (t *Tailer) report(n int) {
	if n > 0 && t.opts.OnLines != nil {
		t.opts.OnLines(n)
	}
}

// Stop cancels the running stream and kills any process it owns. The buffer
// is kept for display. Stopping a stopped tailer does nothing.
func (t *Tailer) Stop() {
	s := t.active
	if s == nil {
		return
	}
	t.active = nil

	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	if k, ok := s.src.(Killer); ok {
		if err := k.Kill(); err != nil {
			t.log.Debug("log stream %s: kill: %v", s.target, err)
		}
	}
}

// Streaming reports whether a stream is running or has lines left to drain.
func (t *Tailer) Streaming() bool {
	return t.active != nil && !t.active.ended
}

// Target returns the running stream's target, or "" when stopped.
func (t *Tailer) Target() string {
	if t.active == nil {
		return ""
	}
	return t.active.target
}

// Buffer returns the current buffer, or nil before the first Start.
func (t *Tailer) Buffer() *Buffer {
	return t.buf
}

// ScanLines emits each line read from r until r is exhausted or emit refuses.
func ScanLines(r io.Reader, emit Emit) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !emit(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}
