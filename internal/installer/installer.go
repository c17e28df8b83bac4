// Package installer provisions the application's dependency set: native OS
// packages for compiled extensions, then the pinned core set, then the
// manifest. Network-dependent sub-steps get bounded retries; version-conflict
// class failures surface immediately with the tool's output verbatim.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/now10/forwarder-bootstrap/internal/execx"
)

// RetryPolicy bounds every network-dependent install operation.
// Retries are only safe here because a package install is idempotent — a
// failed attempt leaves nothing an immediate re-run can't overwrite.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts, >= 1
	AttemptTimeout time.Duration // per-attempt bound, > 0
	Backoff        time.Duration // fixed delay between attempts
}

// Spec declares what to install. CorePackages install before the manifest;
// manifest entries may re-pin versions and the package manager's
// last-install-wins behaviour is not reconciled here.
type Spec struct {
	Manifest       string   // requirements file, must exist when non-empty
	CorePackages   []string // pinned requirement strings, e.g. "uvicorn[standard]==0.30.1"
	SystemPackages []string // OS packages for native build deps; empty list skips the step
}

// InstallError reports a failed install step with the attempt count and the
// underlying cause (including the tool's own output).
type InstallError struct {
	Step     string
	Attempts int
	Cause    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Cause)
}

func (e *InstallError) Unwrap() error { return e.Cause }

// Installer drives pip and the OS package manager through an execx.Runner.
// One circuit breaker spans all network sub-steps: once the index is clearly
// down, later sub-steps fail fast instead of burning their full retry budget.
type Installer struct {
	runner execx.Runner
	cb     *gobreaker.CircuitBreaker
	spec   Spec
	policy RetryPolicy

	// sleep is swappable so retry tests don't wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Installer for the given spec and policy.
func New(runner execx.Runner, cb *gobreaker.CircuitBreaker, spec Spec, policy RetryPolicy) *Installer {
	return &Installer{
		runner: runner,
		cb:     cb,
		spec:   spec,
		policy: policy,
		sleep:  sleepCtx,
	}
}

// InstallSystem installs the configured OS-level packages. Already-installed
// packages are a no-op at the package-manager level, so the step is safe to
// re-run on every build. An empty list skips the step entirely.
func (i *Installer) InstallSystem(ctx context.Context) error {
	if len(i.spec.SystemPackages) == 0 {
		slog.InfoContext(ctx, "no system packages configured, skipping")
		return nil
	}

	args := append([]string{"install", "-y", "--no-install-recommends"}, i.spec.SystemPackages...)
	return i.runWithRetry(ctx, "system-packages", "apt-get", args...)
}

// InstallPython upgrades pip itself (best-effort — a stale pip can usually
// still install), then installs the pinned core set, then the manifest, in
// that fixed order. Either sub-step failing fails the whole operation; there
// is no partial-success continuation.
func (i *Installer) InstallPython(ctx context.Context, python string) error {
	slog.InfoContext(ctx, "upgrading package manager", "python", python)
	if out, err := i.runner.Run(ctx, python, "-m", "pip", "install", "--upgrade", "pip"); err != nil {
		slog.WarnContext(ctx, "pip self-upgrade failed, continuing with existing version",
			"err", err, "output", tail(out))
	}

	if len(i.spec.CorePackages) > 0 {
		args := append([]string{"-m", "pip", "install"}, i.spec.CorePackages...)
		if err := i.runWithRetry(ctx, "core-packages", python, args...); err != nil {
			return err
		}
	}

	if i.spec.Manifest != "" {
		if _, err := os.Stat(i.spec.Manifest); err != nil {
			return &InstallError{Step: "manifest", Attempts: 0, Cause: fmt.Errorf("manifest not readable: %w", err)}
		}
		return i.runWithRetry(ctx, "manifest", python, "-m", "pip", "install", "-r", i.spec.Manifest)
	}

	return nil
}

// runWithRetry executes one install command under the retry policy. Transient
// failures (network/timeout class) retry up to MaxAttempts; permanent
// failures (unresolvable versions, bad requirements) return on the first
// attempt with the cause surfaced verbatim.
func (i *Installer) runWithRetry(ctx context.Context, step, name string, args ...string) error {
	var lastErr error

	for attempt := 1; attempt <= i.policy.MaxAttempts; attempt++ {
		slog.InfoContext(ctx, "install step running",
			"step", step, "attempt", attempt, "max_attempts", i.policy.MaxAttempts)

		attemptCtx, cancel := context.WithTimeout(ctx, i.policy.AttemptTimeout)
		outAny, err := i.cb.Execute(func() (any, error) {
			out, runErr := i.runner.Run(attemptCtx, name, args...)
			return out, runErr
		})
		deadlined := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			slog.InfoContext(ctx, "install step ok", "step", step, "attempt", attempt)
			return nil
		}

		out, _ := outAny.(string)
		if errors.Is(err, gobreaker.ErrOpenState) {
			return &InstallError{Step: step, Attempts: attempt, Cause: errors.New("package index circuit open")}
		}
		if ctx.Err() != nil {
			return &InstallError{Step: step, Attempts: attempt, Cause: ctx.Err()}
		}
		if !transient(err, out, deadlined) {
			return &InstallError{Step: step, Attempts: attempt, Cause: causeWithOutput(err, out)}
		}

		lastErr = causeWithOutput(err, out)
		if attempt < i.policy.MaxAttempts {
			slog.WarnContext(ctx, "install step failed, retrying",
				"step", step, "attempt", attempt, "backoff", i.policy.Backoff, "err", err)
			if sleepErr := i.sleep(ctx, i.policy.Backoff); sleepErr != nil {
				return &InstallError{Step: step, Attempts: attempt, Cause: sleepErr}
			}
		}
	}

	return &InstallError{Step: step, Attempts: i.policy.MaxAttempts, Cause: lastErr}
}

// transientMarkers are output fragments that identify network-class failures
// worth retrying. Anything else (version conflicts, missing distributions,
// syntax errors in the manifest) repeats deterministically and is permanent.
var transientMarkers = []string{
	"timed out",
	"timeout",
	"temporary failure",
	"connection reset",
	"connection refused",
	"network is unreachable",
	"could not resolve",
	"name or service not known",
	"proxyerror",
	"503",
	"bad gateway",
}

func transient(err error, out string, deadlined bool) bool {
	if deadlined {
		return true
	}
	text := strings.ToLower(out + " " + err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func causeWithOutput(err error, out string) error {
	if t := tail(out); t != "" {
		return fmt.Errorf("%w: %s", err, t)
	}
	return err
}

// tail returns the last few lines of tool output — the part pip puts the
// actual error in — trimmed for log and error embedding.
func tail(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	lines := strings.Split(out, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
