// Package execx runs external collaborator commands. Every tool this
// bootstrapper drives (pip, apt-get, alembic, uvicorn) is an opaque process
// observed only through its exit code and combined output.
package execx

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Runner executes an external command and returns its combined output.
// The interface exists so installer, migrate, and pipeline tests can inject
// fakes without spawning real processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// LocalRunner runs commands on the local host.
type LocalRunner struct{}

// Run executes name with args and returns combined stdout+stderr. A non-zero
// exit or spawn failure is returned as the error; the output is returned in
// both cases so callers can classify failures from the tool's own text.
func (LocalRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// ExitCode extracts the process exit code from a Run error. Returns -1 when
// the command never ran (spawn failure, context cancellation).
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Replace swaps the current process image for the given executable via
// execve. On success it never returns: the caller's PID, stdio, and signal
// routing all pass to the new program. argv[0] is included in argv.
func Replace(path string, argv []string) error {
	return syscall.Exec(path, argv, os.Environ())
}
