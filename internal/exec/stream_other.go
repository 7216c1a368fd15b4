//go:build !linux && !darwin

package exec

import (
	"io"
	"os/exec"
	"sync"

	"github.com/rileyhilliard/sitrep/internal/errors"
)

// Stream is a long-running child process whose output is read incrementally.
type Stream struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd      *exec.Cmd
	reapOnce sync.Once
	waitErr  error
}

// StartStream launches name with args and returns pipes to its output.
func StartStream(name string, args ...string) (*Stream, error) {
	command := exec.Command(name, args...)

	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec, "Couldn't create stdout pipe", "")
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec, "Couldn't create stderr pipe", "")
	}
	if err := command.Start(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't start "+name,
			"Make sure "+name+" is installed and on your PATH.")
	}
	return &Stream{Stdout: stdout, Stderr: stderr, cmd: command}, nil
}

// Pid returns the child's process id.
func (s *Stream) Pid() int {
	return s.cmd.Process.Pid
}

// Kill terminates the child and reaps it. Grandchildren are not reached on
// this platform.
func (s *Stream) Kill() error {
	s.reapOnce.Do(func() {
		_ = s.cmd.Process.Kill()
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Wait reaps a child that exited on its own.
func (s *Stream) Wait() error {
	s.reapOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
