// Package launch hands the process over to the application server. The start
// is process-replacing: after a successful Launch the bootstrapper's PID
// belongs to uvicorn, so the platform's signals reach the service directly
// with no intermediary to relay or swallow them.
package launch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/now10/forwarder-bootstrap/internal/execx"
)

// ErrMissingPort is returned when the platform-injected PORT variable is
// absent or not a valid port. Binding a guessed default would put the service
// on a port the platform's router never checks — failing fast is the only
// honest behaviour.
var ErrMissingPort = errors.New("PORT environment variable missing or invalid")

// Spec is the fully resolved launch command. Built once per start, consumed
// exactly once, never mutated.
type Spec struct {
	Python    string // resolved interpreter path
	Module    string // ASGI app reference, e.g. "app.main:app"
	Host      string
	Port      int
	Workers   int
	KeepAlive time.Duration
	LogLevel  string
}

// Argv renders the uvicorn command line, argv[0] included.
func (s Spec) Argv() []string {
	return []string{
		s.Python, "-m", "uvicorn", s.Module,
		"--host", s.Host,
		"--port", strconv.Itoa(s.Port),
		"--workers", strconv.Itoa(s.Workers),
		"--timeout-keep-alive", strconv.Itoa(int(s.KeepAlive.Seconds())),
		"--log-level", s.LogLevel,
	}
}

// Launcher performs the process-replacing start. execFn and getenv are
// swappable so tests can observe the handoff without losing their process.
type Launcher struct {
	module    string
	host      string
	workers   int
	keepAlive time.Duration
	logLevel  string

	execFn func(path string, argv []string) error
	getenv func(key string) string
}

// New returns a Launcher with the given static launch settings.
func New(module, host string, workers int, keepAlive time.Duration, logLevel string) *Launcher {
	return &Launcher{
		module:    module,
		host:      host,
		workers:   workers,
		keepAlive: keepAlive,
		logLevel:  logLevel,
		execFn:    execx.Replace,
		getenv:    os.Getenv,
	}
}

// Launch builds the Spec from static settings plus the required PORT env var
// and replaces the process image. On success it never returns. Any returned
// error is fatal: a missing port is a misconfiguration caught before any
// exec is attempted, and an exec failure means the interpreter vanished
// between resolution and launch.
func (l *Launcher) Launch(python string) error {
	spec, err := l.buildSpec(python)
	if err != nil {
		return err
	}

	argv := spec.Argv()
	slog.Info("replacing process with application server",
		"python", spec.Python, "module", spec.Module, "port", spec.Port, "workers", spec.Workers)

	if err := l.execFn(spec.Python, argv); err != nil {
		return fmt.Errorf("exec %s: %w", spec.Python, err)
	}
	// Unreachable on a successful exec.
	return nil
}

func (l *Launcher) buildSpec(python string) (Spec, error) {
	raw := l.getenv("PORT")
	if raw == "" {
		return Spec{}, ErrMissingPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return Spec{}, fmt.Errorf("%w: %q", ErrMissingPort, raw)
	}

	return Spec{
		Python:    python,
		Module:    l.module,
		Host:      l.host,
		Port:      port,
		Workers:   l.workers,
		KeepAlive: l.keepAlive,
		LogLevel:  l.logLevel,
	}, nil
}
