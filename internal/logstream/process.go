package logstream

import (
	"context"
	"sync"

	"github.com/rileyhilliard/sitrep/internal/exec"
)

// ProcessSource tails an external command's stdout and stderr. Each stream
// is read on its own goroutine, so lines keep their order within a stream
// but not across the two. A ProcessSource is good for one Run.
type ProcessSource struct {
	Name string
	Args []string

	mu     sync.Mutex
	proc   *exec.Stream
	killed bool
}

// NewProcessSource returns a source for name with args.
func NewProcessSource(name string, args ...string) *ProcessSource {
	return &ProcessSource{Name: name, Args: args}
}

// Run starts the command and forwards its output until both pipes close.
func (p *ProcessSource) Run(ctx context.Context, emit Emit) error {
	proc, err := exec.StartStream(p.Name, p.Args...)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.proc = proc
	killed := p.killed
	p.mu.Unlock()
	if killed {
		// Stopped while starting
		return proc.Kill()
	}

	// Killing on cancel unblocks readers stuck on a quiet pipe
	stop := context.AfterFunc(ctx, func() { _ = proc.Kill() })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = ScanLines(proc.Stdout, emit)
	}()
	go func() {
		defer wg.Done()
		_ = ScanLines(proc.Stderr, emit)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if err := proc.Wait(); err != nil {
		return err
	}
	return nil
}

// Kill terminates and reaps the command. Safe before Run and after exit.
func (p *ProcessSource) Kill() error {
	p.mu.Lock()
	p.killed = true
	proc := p.proc
	p.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
