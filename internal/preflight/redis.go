package preflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const redisProbeName = "redis"

// redisPinger is the interface used by RedisProbe for health probing.
// It is implemented by the real go-redis client and by test doubles.
type redisPinger interface {
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realRedisPinger wraps a *redis.Client and adapts it to the redisPinger
// interface. The wrapper exists so tests can inject a fake without needing
// to construct a real *redis.StatusCmd.
type realRedisPinger struct {
	client *redis.Client
}

func (r *realRedisPinger) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisPinger) Close() error {
	return r.client.Close()
}

// RedisProbe checks the cache the application expects. On the hosting tiers
// this targets, Redis instances sleep when idle — an unreachable Redis is
// reported so the deploy log explains the slow first request, not to stop
// anything.
type RedisProbe struct {
	url    string
	cb     *gobreaker.CircuitBreaker
	pinger redisPinger
}

// NewRedisProbe creates a probe for the given redis:// URL. The real client
// is built lazily on the first Probe call.
func NewRedisProbe(url string, cb *gobreaker.CircuitBreaker) *RedisProbe {
	return &RedisProbe{
		url: url,
		cb:  cb,
	}
}

// Probe sends a PING and validates the PONG response, wrapped in the circuit
// breaker.
func (p *RedisProbe) Probe(ctx context.Context) ProbeResult {
	start := time.Now()

	_, err := p.cb.Execute(func() (any, error) {
		pinger := p.pinger
		if pinger == nil {
			opts, err := redis.ParseURL(p.url)
			if err != nil {
				return nil, fmt.Errorf("parsing redis URL: %w", err)
			}
			pinger = &realRedisPinger{client: redis.NewClient(opts)}
			defer pinger.Close() //nolint:errcheck
		}

		val, err := pinger.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
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
			Name:      redisProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return ProbeResult{
		Name:      redisProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}
