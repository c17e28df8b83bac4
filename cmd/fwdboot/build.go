package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/now10/forwarder-bootstrap/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"bootstrap-build"},
	Short:   "Run the one-time build phase and exit",
	Long: `Build resolves the Python interpreter, installs OS-level build
dependencies and the declared package set, and provisions the upload
directories. Every step is idempotent: re-running build after a failure is
the recovery mechanism. Exits 0 on success, non-zero on the first failed
step.`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	// A termination signal aborts the current step and exits non-zero; no
	// cleanup is attempted, since every step is safe to re-run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer shutdownTelemetry()

	report, err := app.pipeline.Build(ctx)
	printReport(report)
	if err != nil {
		return fmt.Errorf("build phase failed: %w", err)
	}
	return nil
}

// printReport writes the phase report as indented JSON to stdout so deploy
// logs carry a machine-readable per-step record.
func printReport(report *pipeline.PhaseReport) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		// Fallback to a bare status line if JSON encoding somehow fails.
		fmt.Fprintf(os.Stdout, `{"phase":%q,"status":%q}`+"\n", report.Phase, report.Status)
	}
}

func shutdownTelemetry() {
	if app.otelProvider == nil {
		return
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.otelProvider.Shutdown(shutCtx); err != nil {
		slog.Warn("OTEL shutdown error", "err", err)
	}
}
