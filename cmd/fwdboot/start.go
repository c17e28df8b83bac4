package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"bootstrap-start"},
	Short:   "Run the start phase: migrate best-effort, then exec the server",
	Long: `Start resolves the Python interpreter, probes the backing stores,
applies pending schema migrations (failure is logged, never fatal — the
service must start even with a stale schema), and then replaces this process
with the application server. On success this command never returns: the
server inherits the process ID and receives the platform's signals directly.

The bind port is taken from the PORT environment variable; an absent value
is a fatal misconfiguration, not a default.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Deferred work only runs on the failure path: a successful start execs
	// the server and this process — buffered telemetry included — is gone.
	defer shutdownTelemetry()

	report, err := app.pipeline.Start(ctx)
	if err != nil {
		printReport(report)
		return fmt.Errorf("start phase failed: %w", err)
	}

	// Reached only when the launcher did not replace the process image.
	printReport(report)
	return nil
}
