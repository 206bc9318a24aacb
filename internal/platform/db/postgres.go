package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Options bound the PostgreSQL connection pool.
type Options struct {
	DSN             string
	MinConns        int32
	MaxConns        int32
	IdleTimeout     time.Duration
	AcquireTimeout  time.Duration
	AcquireAttempts int
}

// New creates a new PostgreSQL connection pool with min/max bounds. Idle
// connections above the minimum are reclaimed after the inactivity window.
func New(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.IdleTimeout > 0 {
		config.MaxConnIdleTime = opts.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Acquire checks a connection out of the pool, retrying transient failures
// with backoff before surfacing ErrPoolExhausted. The caller must Release the
// returned connection; pgx discards connections whose last operation failed,
// so an unhealthy handle never re-enters the pool.
func Acquire(ctx context.Context, pool *pgxpool.Pool, opts Options) (*pgxpool.Conn, error) {
	attempts := opts.AcquireAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	backoff := 50 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		acquireCtx, cancel := context.WithTimeout(ctx, timeout)
		conn, err := pool.Acquire(acquireCtx)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			i = attempts
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return nil, fmt.Errorf("platform/db: acquire: %v: %w", lastErr, shared.ErrPoolExhausted)
}
