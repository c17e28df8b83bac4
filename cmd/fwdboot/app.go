package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/now10/forwarder-bootstrap/internal/breaker"
	"github.com/now10/forwarder-bootstrap/internal/config"
	"github.com/now10/forwarder-bootstrap/internal/execx"
	"github.com/now10/forwarder-bootstrap/internal/installer"
	"github.com/now10/forwarder-bootstrap/internal/interp"
	"github.com/now10/forwarder-bootstrap/internal/launch"
	"github.com/now10/forwarder-bootstrap/internal/migrate"
	"github.com/now10/forwarder-bootstrap/internal/pipeline"
	"github.com/now10/forwarder-bootstrap/internal/preflight"
	"github.com/now10/forwarder-bootstrap/internal/provision"
	"github.com/now10/forwarder-bootstrap/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// build.go and start.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	pipeline     *pipeline.Pipeline
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the bootstrap components over a local command runner
//  3. Creates the pipeline
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// OTEL is best-effort: a missing collector must never block a deploy.
	// When OTLPEndpoint is empty, telemetry is disabled entirely — this avoids
	// the SDK's periodic-reader noise when no collector is running.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	runner := execx.LocalRunner{}

	inst := installer.New(
		runner,
		breaker.New("package-index"),
		installer.Spec{
			Manifest:       cfg.Install.Manifest,
			CorePackages:   cfg.Install.CorePackages,
			SystemPackages: cfg.Install.SystemPackages,
		},
		installer.RetryPolicy{
			MaxAttempts:    cfg.Install.MaxAttempts,
			AttemptTimeout: cfg.Install.AttemptTimeout,
			Backoff:        cfg.Install.RetryBackoff,
		},
	)

	mode := os.FileMode(cfg.Paths.Mode)
	prov := provision.New(
		provision.PathSpec{Path: cfg.Paths.UploadDir, Mode: mode},
		provision.PathSpec{Path: cfg.Paths.TmpUploadDir, Mode: mode},
	)

	mig := migrate.New(runner, cfg.Migrate.Tool, cfg.Migrate.Args, cfg.Migrate.Timeout)

	launcher := launch.New(
		cfg.Launch.Module,
		cfg.Launch.Host,
		cfg.Launch.Workers,
		cfg.Launch.KeepAlive,
		cfg.Launch.LogLevel,
	)

	app.pipeline = pipeline.New(pipeline.Deps{
		Candidates:  cfg.Runtime.Candidates,
		Resolver:    interp.New(),
		Installer:   inst,
		Provisioner: prov,
		Migrator:    mig,
		Launcher:    launcher,
		Preflight:   preflightFunc(cfg.Preflight),
	})

	return app, nil
}

// preflightFunc wires the optional dependency probes. URLs unset in config
// fall back to the platform-injected DATABASE_URL / REDIS_URL env vars; with
// no URL at all a probe is omitted, and with none configured (or preflight
// disabled) the start phase records the step as skipped.
func preflightFunc(cfg config.PreflightConfig) func(ctx context.Context) []preflight.ProbeResult {
	if !cfg.Enabled {
		return nil
	}

	pgURL := cfg.PostgresURL
	if pgURL == "" {
		pgURL = os.Getenv("DATABASE_URL")
	}
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	var probers []preflight.Prober
	if pgURL != "" {
		probers = append(probers, preflight.NewPostgresProbe(pgURL, breaker.New("postgres")))
	}
	if redisURL != "" {
		probers = append(probers, preflight.NewRedisProbe(redisURL, breaker.New("redis")))
	}
	if len(probers) == 0 {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context) []preflight.ProbeResult {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return preflight.Run(ctx, probers...)
	}
}
