package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/plan"
	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// MeasuredSession is the slice of a dedicated cell connection the
// controller drives: timed execution and plan capture.
type MeasuredSession interface {
	ExecuteAll(ctx context.Context, sql string) (int64, error)
	Explain(ctx context.Context, sql string) ([]byte, error)
	Close(ctx context.Context)
}

// SessionFactory dials a fresh dedicated connection for one cell.
// Implementations retry transient failures with bounded backoff and
// return an error once retries are exhausted.
type SessionFactory func(ctx context.Context) (MeasuredSession, error)

// Controller runs one query under one index configuration for N warmup
// plus M measurement iterations.
type Controller struct {
	sessions SessionFactory
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a Controller. timeout bounds each individual statement.
func New(sessions SessionFactory, timeout time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		sessions: sessions,
		timeout:  timeout,
		logger:   logger.With().Str("component", "controller").Logger(),
	}
}

// Run executes the cell and returns its RunRecords in iteration order,
// warmup first. A per-iteration database error is captured into that
// iteration's record and does not abort the remaining iterations; only
// failure to establish the dedicated connection fails the cell as a
// whole.
func (c *Controller) Run(ctx context.Context, query models.QuerySpec, scale string, cfg models.IndexConfig, warmupCount, measurementCount int) ([]models.RunRecord, error) {
	session, err := c.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("cell (%s, %s, %s): %w", query.ID, scale, cfg.Name, err)
	}
	defer session.Close(ctx)

	log := c.logger.With().
		Str("query_id", query.ID).
		Str("scale", scale).
		Str("config", cfg.Name).
		Logger()

	records := make([]models.RunRecord, 0, warmupCount+measurementCount)

	// Warmup populates the buffer and plan caches to steady state;
	// latency is never recorded for these iterations.
	for i := 1; i <= warmupCount; i++ {
		rec := models.RunRecord{
			QueryID:     query.ID,
			Scale:       scale,
			IndexConfig: cfg.Name,
			Phase:       models.PhaseWarmup,
			Sequence:    i,
			Timestamp:   time.Now().UTC(),
		}
		if _, err := c.execute(ctx, session, query.SQL); err != nil {
			rec.Error = err.Error()
			log.Warn().Err(err).Int("iteration", i).Msg("Warmup run failed")
		}
		records = append(records, rec)
	}

	for i := 1; i <= measurementCount; i++ {
		rec := models.RunRecord{
			QueryID:     query.ID,
			Scale:       scale,
			IndexConfig: cfg.Name,
			Phase:       models.PhaseMeasurement,
			Sequence:    i,
			Timestamp:   time.Now().UTC(),
		}

		latency, err := c.execute(ctx, session, query.SQL)
		if err != nil {
			rec.Error = err.Error()
			log.Warn().Err(err).Int("iteration", i).Msg("Measurement run failed")
		} else {
			ms := latency
			rec.LatencyMs = &ms
		}

		// Plan capture happens once per cell, on the first measurement
		// iteration, and outside the timed execution so its overhead
		// never skews a latency sample.
		if i == 1 && rec.Error == "" {
			if node, err := c.capturePlan(ctx, session, query.SQL); err != nil {
				log.Warn().Err(err).Msg("Plan capture failed")
			} else {
				rec.Plan = node
			}
		}

		records = append(records, rec)
	}

	log.Debug().
		Int("warmup", warmupCount).
		Int("measurement", measurementCount).
		Msg("Cell finished")

	return records, nil
}

// execute runs the statement with the configured timeout, timing from
// submission to full result-set consumption. Returns latency in ms.
func (c *Controller) execute(ctx context.Context, session MeasuredSession, sql string) (float64, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	_, err := session.ExecuteAll(execCtx, sql)
	elapsed := time.Since(start)
	if err != nil {
		return 0, err
	}
	return float64(elapsed.Nanoseconds()) / 1e6, nil
}

func (c *Controller) capturePlan(ctx context.Context, session MeasuredSession, sql string) (*models.PlanNode, error) {
	// EXPLAIN ANALYZE re-runs the query, so give it the same bound.
	explainCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	doc, err := session.Explain(explainCtx, sql)
	if err != nil {
		return nil, err
	}
	return plan.Parse(doc)
}
