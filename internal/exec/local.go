package exec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rileyhilliard/sitrep/internal/errors"
)

// Runner runs an external command to completion and returns its stdout.
// The darwin collector and the swarm CLI wrapper depend on this so tests can
// substitute canned output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Local runs commands on this machine.
type Local struct {
	// Env is appended to the inherited environment when non-empty.
	Env []string
}

// NewLocal returns a Runner backed by os/exec.
func NewLocal() *Local {
	return &Local{}
}

// Run executes name with args, capturing stdout and stderr separately.
// A non-zero exit is returned as *errors.ExitError carrying trimmed stderr;
// a command that couldn't start is an ErrExec structured error.
func (l *Local) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, name, args...)
	if len(l.Env) > 0 {
		command.Env = append(command.Environ(), l.Env...)
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	runErr := command.Run()
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return stdout.Bytes(), &errors.ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return nil, errors.WrapWithCode(runErr, errors.ErrExec,
			"Couldn't run "+name,
			"Make sure "+name+" is installed and on your PATH.")
	}

	return stdout.Bytes(), nil
}

// FuncRunner adapts a function to the Runner interface.
type FuncRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Run calls f.
func (f FuncRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}
