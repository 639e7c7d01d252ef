package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const (
	applicationName = "digitlotto"
	connectTimeout  = time.Minute
)

// DB is the settlement service's connection pool
type DB struct {
	*pgxpool.Pool
}

// NewConnection opens a pool and waits until postgres answers a ping.
// The service usually starts next to its database, so ping failures are
// retried with exponential backoff until connectTimeout or ctx ends.
func NewConnection(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// round deadlines are compared against now() in SQL
	config.ConnConfig.RuntimeParams["timezone"] = "UTC"
	config.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("Database not reachable yet")
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
