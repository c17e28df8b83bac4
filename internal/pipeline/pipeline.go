// Package pipeline sequences the bootstrap steps. The build phase prepares
// the environment once per deploy artifact; the start phase runs at every
// process start and ends, on success, with this process replaced by the
// application server. The two phases are separate invocations in separate
// process contexts — nothing is cached between them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/now10/forwarder-bootstrap/internal/interp"
	"github.com/now10/forwarder-bootstrap/internal/migrate"
	"github.com/now10/forwarder-bootstrap/internal/preflight"
)

// Resolver is satisfied by *interp.Resolver.
type Resolver interface {
	Resolve(candidates []string) (interp.Selection, error)
}

// Installer is satisfied by *installer.Installer.
type Installer interface {
	InstallSystem(ctx context.Context) error
	InstallPython(ctx context.Context, python string) error
}

// Provisioner is satisfied by *provision.Provisioner.
type Provisioner interface {
	Ensure(ctx context.Context) error
}

// Migrator is satisfied by *migrate.Runner.
type Migrator interface {
	Apply(ctx context.Context) (migrate.Outcome, error)
}

// Launcher is satisfied by *launch.Launcher. Launch never returns on success.
type Launcher interface {
	Launch(python string) error
}

// Deps are the pipeline's collaborators. Preflight may be nil, in which case
// the start phase records the step as skipped.
type Deps struct {
	Candidates  []string
	Resolver    Resolver
	Installer   Installer
	Provisioner Provisioner
	Migrator    Migrator
	Launcher    Launcher
	Preflight   func(ctx context.Context) []preflight.ProbeResult
}

// Pipeline runs the build and start phases strictly sequentially. It holds
// no state between runs.
type Pipeline struct {
	deps Deps
}

// New constructs a Pipeline over the given collaborators.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Build runs ResolveEnv → ProvisionOS → InstallDeps → ProvisionPaths.
// The first failing step aborts the phase; prior steps are not rolled back —
// every step is idempotent, so re-running the phase after a fix is itself
// the recovery mechanism.
func (p *Pipeline) Build(ctx context.Context) (*PhaseReport, error) {
	report := &PhaseReport{Phase: "build"}

	ctx, span := otel.Tracer("forwarder-bootstrap").Start(ctx, "bootstrap.build")
	defer span.End()

	slog.InfoContext(ctx, "build phase started")

	sel, err := p.resolveEnv(ctx, report)
	if err != nil {
		return p.abort(ctx, span, report, StepResolveEnv, err)
	}

	logStepStart(ctx, StepProvisionOS)
	if err := p.deps.Installer.InstallSystem(ctx); err != nil {
		return p.abort(ctx, span, report, StepProvisionOS, err)
	}
	p.stepOK(ctx, report, StepProvisionOS, "")

	logStepStart(ctx, StepInstallDeps)
	if err := p.deps.Installer.InstallPython(ctx, sel.Path); err != nil {
		return p.abort(ctx, span, report, StepInstallDeps, err)
	}
	p.stepOK(ctx, report, StepInstallDeps, "")

	logStepStart(ctx, StepProvisionPaths)
	if err := p.deps.Provisioner.Ensure(ctx); err != nil {
		return p.abort(ctx, span, report, StepProvisionPaths, err)
	}
	p.stepOK(ctx, report, StepProvisionPaths, "")

	report.Status = StatusOK
	span.SetAttributes(attribute.String("bootstrap.status", report.Status))
	span.SetStatus(codes.Ok, "")
	slog.InfoContext(ctx, "build phase completed", "status", report.Status)
	return report, nil
}

// Start runs ResolveEnv → Preflight → Migrate → Launch. Migration failure is
// a logged transition, never an abort: keeping the service reachable is
// valued over guaranteeing schema freshness at boot, and a hard failure here
// would make every restart on a transient database hiccup fatal. A cancelled
// context aborts the phase before launch. On success Launch replaces the
// process and this function never returns.
func (p *Pipeline) Start(ctx context.Context) (*PhaseReport, error) {
	report := &PhaseReport{Phase: "start"}

	ctx, span := otel.Tracer("forwarder-bootstrap").Start(ctx, "bootstrap.start")
	defer span.End()

	slog.InfoContext(ctx, "start phase started")

	sel, err := p.resolveEnv(ctx, report)
	if err != nil {
		return p.abort(ctx, span, report, StepResolveEnv, err)
	}

	logStepStart(ctx, StepPreflight)
	if p.deps.Preflight == nil {
		report.record(StepResult{Step: StepPreflight, Status: StatusSkipped})
		slog.InfoContext(ctx, "step skipped", "step", StepPreflight)
	} else {
		results := p.deps.Preflight(ctx)
		report.record(StepResult{Step: StepPreflight, Status: StatusOK, Detail: summarize(results)})
		slog.InfoContext(ctx, "step ok", "step", StepPreflight)
	}
	if ctx.Err() != nil {
		return p.abort(ctx, span, report, StepPreflight, ctx.Err())
	}

	logStepStart(ctx, StepMigrate)
	outcome, migErr := p.deps.Migrator.Apply(ctx)
	if ctx.Err() != nil {
		// A cancelled parent context is a request to stop, not a migration
		// failure. The process must exit here instead of launching.
		return p.abort(ctx, span, report, StepMigrate, ctx.Err())
	}
	if outcome == migrate.Failed {
		// Tolerated: record and carry on to launch.
		errText := ""
		if migErr != nil {
			errText = migErr.Error()
		}
		report.record(StepResult{Step: StepMigrate, Status: StatusWarn, Detail: string(outcome), Error: errText})
		slog.WarnContext(ctx, "migrations failed, continuing to launch with possibly stale schema",
			"step", StepMigrate, "error", migErr)
	} else {
		p.stepOK(ctx, report, StepMigrate, string(outcome))
	}

	logStepStart(ctx, StepLaunch)
	if err := p.deps.Launcher.Launch(sel.Path); err != nil {
		return p.abort(ctx, span, report, StepLaunch, err)
	}

	// Reached only when the launcher did not actually replace the process
	// (i.e. under test with an injected exec).
	p.stepOK(ctx, report, StepLaunch, "")
	report.Status = StatusOK
	return report, nil
}

func (p *Pipeline) resolveEnv(ctx context.Context, report *PhaseReport) (interp.Selection, error) {
	logStepStart(ctx, StepResolveEnv)
	sel, err := p.deps.Resolver.Resolve(p.deps.Candidates)
	if err != nil {
		return interp.Selection{}, err
	}
	p.stepOK(ctx, report, StepResolveEnv, sel.Path)
	return sel, nil
}

func (p *Pipeline) stepOK(ctx context.Context, report *PhaseReport, step Step, detail string) {
	report.record(StepResult{Step: step, Status: StatusOK, Detail: detail})
	slog.InfoContext(ctx, "step ok", "step", step, "detail", detail)
}

func (p *Pipeline) abort(ctx context.Context, span spanRecorder, report *PhaseReport, step Step, err error) (*PhaseReport, error) {
	report.record(StepResult{Step: step, Status: StatusError, Error: err.Error()})
	report.Status = StatusError
	span.SetAttributes(attribute.String("bootstrap.status", report.Status))
	span.SetStatus(codes.Error, fmt.Sprintf("step %s failed", step))
	slog.ErrorContext(ctx, "step failed, aborting phase", "step", step, "error", err)
	return report, fmt.Errorf("step %s: %w", step, err)
}

// spanRecorder is the subset of trace.Span used by abort.
type spanRecorder interface {
	SetAttributes(...attribute.KeyValue)
	SetStatus(codes.Code, string)
}

func logStepStart(ctx context.Context, step Step) {
	slog.InfoContext(ctx, "step running", "step", step)
}

func summarize(results []preflight.ProbeResult) string {
	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d dependencies reachable", ok, len(results))
}
