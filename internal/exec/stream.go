//go:build linux || darwin

package exec

import (
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"golang.org/x/sys/unix"
)

// Stream is a long-running child process whose output is read incrementally.
// The child gets its own process group so Kill reaches anything it spawned.
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
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't create stdout pipe",
			"This shouldn't happen - please report this bug!")
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't create stderr pipe",
			"This shouldn't happen - please report this bug!")
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

// Kill terminates the child's process group and reaps it. Safe to call more
// than once; only the first call signals.
func (s *Stream) Kill() error {
	s.reapOnce.Do(func() {
		pid := s.cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			_ = s.cmd.Process.Kill()
		}
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Wait reaps a child that exited on its own. It shares Kill's once-guard so
// the process is never waited on twice.
func (s *Stream) Wait() error {
	s.reapOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
