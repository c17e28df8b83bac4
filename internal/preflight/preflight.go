// Package preflight probes the launched application's backing stores before
// migrations run. Probes are diagnostics only: the original deployment
// tolerates a sleeping Redis and a cold database, so no probe result ever
// blocks the launch — results are logged and reported, nothing more.
package preflight

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProbeResult is the outcome of one dependency probe.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Prober is satisfied by *PostgresProbe and *RedisProbe.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// Run executes all probes concurrently and returns their results. The
// bootstrap steps themselves are strictly sequential; probing is read-only,
// so running both stores at once just keeps a slow one from delaying launch.
func Run(ctx context.Context, probers ...Prober) []ProbeResult {
	results := make([]ProbeResult, len(probers))
	var mu sync.Mutex
	var g errgroup.Group

	for i, p := range probers {
		g.Go(func() error {
			r := p.Probe(ctx)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	for _, r := range results {
		if r.OK {
			slog.InfoContext(ctx, "preflight probe ok", "dependency", r.Name, "latency_ms", r.LatencyMs)
		} else {
			slog.WarnContext(ctx, "preflight probe failed", "dependency", r.Name, "error", r.Error)
		}
	}
	return results
}
