// Package action runs one mutating operation at a time off the caller's
// goroutine and reports its outcome through a non-blocking Poll.
//
// An Executor is Idle or InFlight. Submit moves it to InFlight and returns
// immediately; the operation runs on a worker from an ants pool and delivers
// exactly one result on a one-shot channel. Poll drains that channel without
// blocking and moves the executor back to Idle. A worker that panics closes
// the channel without a result, which Poll reports as a failure instead of
// waiting forever.
//
// Executors are owned by a single consumer goroutine; Submit, Poll, and the
// accessors must not be called concurrently.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
)

const (
	// InProgressMessage is the status shown when a submit is rejected.
	InProgressMessage = "An action is already in progress..."

	// UnexpectedFailureMessage is the status shown when a worker dies
	// without reporting.
	UnexpectedFailureMessage = "Action failed unexpectedly"
)

// Func performs the external call and returns a success message.
type Func func(ctx context.Context) (string, error)

// Request is a single mutating operation.
type Request struct {
	// ID is assigned by Submit.
	ID string

	// Kind is a short verb like "restart" or "scale".
	Kind string

	// Target identifies what is acted on (container id, service name).
	Target string

	// Description is shown as the status while the request is in flight.
	Description string

	Run Func
}

// Outcome is the terminal result of a request.
type Outcome struct {
	Request Request
	Message string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the request succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Status renders the outcome as user-facing status text.
func (o Outcome) Status() string {
	if o.Err != nil {
		return "Error: " + strings.TrimSpace(errors.OneLine(o.Err))
	}
	return o.Message
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithObserver registers a callback invoked from Poll for every outcome.
func WithObserver(fn func(name string, o Outcome)) Option {
	return func(e *Executor) {
		e.observe = fn
	}
}

// WithContext sets the context every request runs under. Cancelling it is
// the only way to interrupt an in-flight request.
func WithContext(ctx context.Context) Option {
	return func(e *Executor) {
		e.ctx = ctx
	}
}

// Executor runs at most one request at a time.
type Executor struct {
	name    string
	pool    *ants.Pool
	log     logger.Logger
	ctx     context.Context
	observe func(string, Outcome)

	pending   *Request
	startedAt time.Time
	result    chan Outcome
	status    string
}

// New creates an executor. name labels its log lines and observed outcomes.
func New(name string, opts ...Option) (*Executor, error) {
	e := &Executor{
		name: name,
		log:  logger.Noop(),
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}

	// Two workers: the previous worker may still be returning to the pool
	// when the next request is submitted.
	pool, err := ants.NewPool(2,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			e.log.Error("%s action panicked: %v", e.name, p)
		}),
	)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrAction,
			"Couldn't create the action worker pool",
			"This is a bug, please report it")
	}
	e.pool = pool
	return e, nil
}

// Submit starts req in the background. It never blocks. While another request
// is in flight the new one is rejected, the status is set to
// InProgressMessage, and the in-flight request is left untouched.
func (e *Executor) Submit(req Request) error {
	if e.pending != nil {
		e.status = InProgressMessage
		return errors.New(errors.ErrAction, InProgressMessage,
			fmt.Sprintf("Wait for %q on %s to finish", e.pending.Kind, e.pending.Target))
	}
	if req.Run == nil {
		return errors.New(errors.ErrAction, "Action has nothing to run", "This is a bug, please report it")
	}

	req.ID = uuid.NewString()
	ch := make(chan Outcome, 1)
	ctx := e.ctx
	started := time.Now()

	err := e.pool.Submit(func() {
		defer close(ch)
		msg, err := req.Run(ctx)
		ch <- Outcome{Request: req, Message: msg, Err: err, Elapsed: time.Since(started)}
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAction,
			"Couldn't start the action",
			"Try again in a moment")
	}

	e.pending = &req
	e.startedAt = started
	e.result = ch
	if req.Description != "" {
		e.status = req.Description
	} else {
		e.status = fmt.Sprintf("%s %s...", req.Kind, req.Target)
	}
	e.log.Debug("%s action %s submitted: %s %s", e.name, req.ID, req.Kind, req.Target)
	return nil
}

// Poll checks for a finished request without blocking. It returns the outcome
// and true when the executor just returned to Idle.
func (e *Executor) Poll() (Outcome, bool) {
	if e.result == nil {
		return Outcome{}, false
	}

	var out Outcome
	select {
	case o, ok := <-e.result:
		if ok {
			out = o
			e.status = out.Status()
			break
		}
		// Worker died before sending
		out = Outcome{
			Request: *e.pending,
			Err:     errors.New(errors.ErrAction, UnexpectedFailureMessage, ""),
			Elapsed: time.Since(e.startedAt),
		}
		e.status = UnexpectedFailureMessage
	default:
		return Outcome{}, false
	}
	e.log.Debug("%s action %s finished in %s: %s", e.name, out.Request.ID, out.Elapsed, e.status)

	e.pending = nil
	e.result = nil
	if e.observe != nil {
		e.observe(e.name, out)
	}
	return out, true
}

// InFlight reports whether a request is running.
func (e *Executor) InFlight() bool {
	return e.pending != nil
}

// Pending returns the in-flight request, or nil when idle.
func (e *Executor) Pending() *Request {
	return e.pending
}

// Status returns the last user-facing status message.
func (e *Executor) Status() string {
	return e.status
}

// SetStatus overrides the status message.
func (e *Executor) SetStatus(msg string) {
	e.status = msg
}

// ClearStatus empties the status message.
func (e *Executor) ClearStatus() {
	e.status = ""
}

// Close releases the worker pool, waiting up to timeout for a running request.
func (e *Executor) Close(timeout time.Duration) error {
	if err := e.pool.ReleaseTimeout(timeout); err != nil {
		return errors.WrapWithCode(err, errors.ErrAction,
			"Timed out waiting for the running action",
			"The action may still complete in the background")
	}
	return nil
}
