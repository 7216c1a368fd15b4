package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/ui"
)

// outcomePoll is how often one-shot commands check for a finished action.
const outcomePoll = 50 * time.Millisecond

// awaitOutcome blocks until poll reports a finished action or ctx ends.
func awaitOutcome(ctx context.Context, poll func() (action.Outcome, bool)) (action.Outcome, error) {
	ticker := time.NewTicker(outcomePoll)
	defer ticker.Stop()
	for {
		if o, ok := poll(); ok {
			return o, nil
		}
		select {
		case <-ctx.Done():
			return action.Outcome{}, errors.WrapWithCode(ctx.Err(), errors.ErrAction,
				"Gave up waiting for the action to finish",
				"It may still complete; check again in a moment.")
		case <-ticker.C:
		}
	}
}

// runAction submits through the executor, waits, and reports the result
// the way the dashboard's status bar would.
func runAction(ctx context.Context, out io.Writer, what string,
	submit func() error, poll func() (action.Outcome, bool)) error {
	if err := submit(); err != nil {
		return err
	}
	o, err := awaitOutcome(ctx, poll)
	if err != nil {
		return err
	}
	if !o.OK() {
		return errors.WrapWithCode(o.Err, errors.ErrAction, "Couldn't "+what, "")
	}
	_, err = io.WriteString(out, ui.Success(o.Message)+ui.MutedStyle.Render(" ("+o.Elapsed.Round(time.Millisecond).String()+")")+"\n")
	return err
}

// LogFilter selects which streamed lines are printed.
type LogFilter struct {
	ErrorsOnly bool
	Grep       string
}

// Match reports whether line passes the filter. Grep is case-insensitive.
func (f LogFilter) Match(line string) bool {
	if f.ErrorsOnly && !logstream.IsErrorLine(line) {
		return false
	}
	if f.Grep != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(f.Grep)) {
		return false
	}
	return true
}

// streamLogs copies a source to out until it ends or the user interrupts.
func streamLogs(ctx context.Context, out io.Writer, src logstream.Source, filter LogFilter) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var writeErr error
	err := src.Run(ctx, func(line string) bool {
		if !filter.Match(line) {
			return true
		}
		if _, writeErr = io.WriteString(out, line+"\n"); writeErr != nil {
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
