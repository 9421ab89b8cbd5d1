package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Connector hands out PostgreSQL connections for the benchmark harness.
// Measurement connections are always freshly dialed so session-level
// caches from a prior configuration cannot bleed into the next cell.
// The administrative connection is long-lived, reserved for DDL and
// catalog-metadata queries, and never used for timed statements.
type Connector struct {
	dsn        string
	maxRetries int
	logger     zerolog.Logger

	admin *pgx.Conn
}

// NewConnector creates a connector for the given DSN. maxRetries bounds
// connection attempts; one unreachable database must not hang the suite.
func NewConnector(dsn string, maxRetries int, logger zerolog.Logger) *Connector {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Connector{
		dsn:        dsn,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "db").Logger(),
	}
}

// Acquire dials a fresh dedicated connection, retrying transient
// failures with backoff. The caller owns the connection and must close
// it when the cell finishes.
func (c *Connector) Acquire(ctx context.Context) (*pgx.Conn, error) {
	var lastErr error
	b := newBackoff(c.maxRetries)

	for attempt := 1; ; attempt++ {
		conn, err := pgx.Connect(ctx, c.dsn)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		classified := Classify(err)
		if classified.Kind != KindConnection && classified.Kind != KindTimeout {
			return nil, classified
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.maxRetries).
			Msg("Connection attempt failed")

		if err := b.wait(ctx); err != nil {
			return nil, &Error{Kind: KindConnection, Err: err}
		}
		if b.finished() {
			break
		}
	}

	return nil, &Error{
		Kind: KindConnection,
		Err:  fmt.Errorf("connect failed after %d attempts: %w", c.maxRetries, lastErr),
	}
}

// Admin returns the shared administrative connection, dialing it on
// first use.
func (c *Connector) Admin(ctx context.Context) (*pgx.Conn, error) {
	if c.admin != nil && !c.admin.IsClosed() {
		return c.admin, nil
	}
	conn, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	c.admin = conn
	return c.admin, nil
}

// Ping verifies the database is reachable, used by setup checks.
func (c *Connector) Ping(ctx context.Context) error {
	conn, err := c.Admin(ctx)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return Classify(err)
	}
	return nil
}

// Close releases the administrative connection.
func (c *Connector) Close(ctx context.Context) {
	if c.admin != nil && !c.admin.IsClosed() {
		if err := c.admin.Close(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close admin connection")
		}
	}
	c.admin = nil
}
