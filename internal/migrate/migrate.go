// Package migrate drives the external schema-migration tool and classifies
// its result. Migration failure is deliberately survivable: the service must
// still attempt to start with a stale schema, because a hard failure here
// would make every restart on a transient database hiccup fatal.
package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/now10/forwarder-bootstrap/internal/execx"
)

// Outcome is the three-way result of a migration run. Failed is carried as a
// value through the start phase rather than an error precisely so the
// non-fatal policy is a visible decision, not a swallowed return.
type Outcome string

const (
	Applied     Outcome = "applied"
	NoneToApply Outcome = "none-to-apply"
	Failed      Outcome = "failed"
)

// appliedMarker is the line alembic prints once per applied revision
// ("Running upgrade <from> -> <to>"). Zero-exit output without it means the
// schema was already at head.
const appliedMarker = "Running upgrade"

// Runner invokes the migration tool's upgrade-to-latest operation.
type Runner struct {
	runner  execx.Runner
	tool    string
	args    []string
	timeout time.Duration
}

// New returns a Runner for the given tool invocation (e.g. alembic, ["upgrade", "head"]).
func New(runner execx.Runner, tool string, args []string, timeout time.Duration) *Runner {
	return &Runner{runner: runner, tool: tool, args: args, timeout: timeout}
}

// Apply runs the upgrade and classifies the result. The returned error is
// non-nil only for the Failed outcome and carries the tool's output; callers
// decide the policy (the start phase logs it and proceeds).
func (r *Runner) Apply(ctx context.Context) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.runner.Run(ctx, r.tool, r.args...)
	if err != nil {
		return Failed, fmt.Errorf("%s %s (exit %d): %w: %s",
			r.tool, strings.Join(r.args, " "), execx.ExitCode(err), err, lastLines(out))
	}

	if strings.Contains(out, appliedMarker) {
		return Applied, nil
	}
	return NoneToApply, nil
}

func lastLines(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return "(no output)"
	}
	lines := strings.Split(out, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
