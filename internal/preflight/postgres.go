package preflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
)

const postgresProbeName = "postgres"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresProbe checks that the application database is reachable and that
// the migration tool has initialised it (alembic_version table present).
// A missing table is reported, not fatal — a fresh database gets its table
// from the first upgrade run moments later.
type PostgresProbe struct {
	url     string
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, url string) (dbPinger, error)
}

// NewPostgresProbe creates a probe for the given connection URL. Render-style
// postgres:// URLs are accepted as-is; pgx handles both scheme spellings.
// No connection is made at construction time.
func NewPostgresProbe(url string, cb *gobreaker.CircuitBreaker) *PostgresProbe {
	return &PostgresProbe{
		url:     url,
		cb:      cb,
		connect: realConnect,
	}
}

// Probe pings the server and looks for the alembic_version table in the
// public schema. The check is wrapped in the circuit breaker so persistent
// failures trip it after three consecutive errors.
func (p *PostgresProbe) Probe(ctx context.Context) ProbeResult {
	start := time.Now()

	_, err := p.cb.Execute(func() (any, error) {
		pool, err := p.connect(ctx, p.url)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var exists int
		row := pool.QueryRow(ctx,
			"SELECT 1 FROM information_schema.tables WHERE table_schema='public' AND table_name='alembic_version'",
		)
		if err := row.Scan(&exists); err != nil {
			return nil, fmt.Errorf("alembic_version table not found: %w", err)
		}

		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return ProbeResult{
			Name:      postgresProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return ProbeResult{
		Name:      postgresProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// realConnect opens a pgxpool.Pool from the URL.
func realConnect(ctx context.Context, url string) (dbPinger, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
