package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/aggregate"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/compare"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/export"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/store"
	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// CellRunner executes one cell and returns its records.
type CellRunner interface {
	Run(ctx context.Context, query models.QuerySpec, scale string, cfg models.IndexConfig, warmupCount, measurementCount int) ([]models.RunRecord, error)
}

// IndexSwitcher applies and reverts index configurations.
type IndexSwitcher interface {
	Apply(ctx context.Context, cfg models.IndexConfig) error
	Revert(ctx context.Context, cfg models.IndexConfig) error
}

// RunSink is the raw record log.
type RunSink interface {
	Append(records []models.RunRecord) error
	LoadAll() ([]models.RunRecord, error)
}

// CellLedger tracks attempted-cell outcomes for resume and reporting.
type CellLedger interface {
	Record(outcome models.CellOutcome) error
	IsComplete(cell models.CellKey, measurementCount int) (bool, error)
	Outcomes() ([]models.CellOutcome, error)
}

// Params holds the suite plan.
type Params struct {
	Queries         []models.QuerySpec
	Scales          []string
	IndexConfigs    []models.IndexConfig
	BaselineConfig  string
	WarmupRuns      int
	MeasurementRuns int
	ForceRerun      bool

	// RunID labels this invocation in logs. Generated when empty.
	RunID string

	// Optional narrowing for single-scale / single-config runs.
	ScaleFilter  string
	ConfigFilter string

	// ResultsDir receives the derived CSV artifacts; empty skips export.
	ResultsDir string
}

// SuiteResult is the final report: every attempted cell with its
// outcome, plus the derived metrics.
type SuiteResult struct {
	Outcomes       []models.CellOutcome
	Summaries      []models.SummaryRecord
	Comparisons    []models.ComparisonRecord
	Gaps           []models.ComparisonGap
	Skipped        int
	ConfigFailures []string
}

// Complete reports whether every attempted cell completed.
func (r *SuiteResult) Complete() bool {
	_, incomplete, failed := store.Summarize(r.Outcomes)
	return incomplete == 0 && failed == 0 && len(r.ConfigFailures) == 0
}

// Orchestrator sequences the suite strictly sequentially: concurrent
// cells against one database would contaminate each other's buffer
// cache and lock behavior, so measurement validity wins over wall
// clock. Cancellation is honored between cells only, never mid-cell, so
// an index configuration is never left half-applied.
type Orchestrator struct {
	runner   CellRunner
	switcher IndexSwitcher
	sink     RunSink
	ledger   CellLedger
	logger   zerolog.Logger
}

// New creates an Orchestrator.
func New(runner CellRunner, switcher IndexSwitcher, sink RunSink, ledger CellLedger, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		switcher: switcher,
		sink:     sink,
		ledger:   ledger,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// RunSuite executes the full sweep, then aggregates, compares and
// persists derived outputs. A store failure is fatal: losing samples
// silently is worse than stopping. Everything else is logged, recorded
// against the cell or configuration it hit, and skipped.
func (o *Orchestrator) RunSuite(ctx context.Context, p Params) (*SuiteResult, error) {
	if p.RunID == "" {
		p.RunID = uuid.New().String()[:12]
	}
	o.logger.Info().
		Str("run_id", p.RunID).
		Int("queries", len(p.Queries)).
		Int("scales", len(p.Scales)).
		Int("configs", len(p.IndexConfigs)).
		Msg("Starting benchmark suite")

	result := &SuiteResult{}

	for _, scale := range p.Scales {
		if p.ScaleFilter != "" && scale != p.ScaleFilter {
			continue
		}
		for _, cfg := range p.IndexConfigs {
			if p.ConfigFilter != "" && cfg.Name != p.ConfigFilter {
				continue
			}
			if err := ctx.Err(); err != nil {
				o.logger.Warn().Msg("Cancelled between configurations")
				return o.finish(ctx, p, result)
			}

			if err := o.runConfig(ctx, p, scale, cfg, result); err != nil {
				if isFatal(err) {
					return nil, err
				}
			}
		}
	}

	return o.finish(ctx, p, result)
}

// runConfig applies one index configuration, runs every query under
// it, then reverts. A switch failure fails every cell that would have
// run under the configuration; the suite moves on.
func (o *Orchestrator) runConfig(ctx context.Context, p Params, scale string, cfg models.IndexConfig, result *SuiteResult) error {
	// Switch DDL runs shielded from cancellation: an interrupt must not
	// leave the schema half-switched, or the next resumed invocation
	// would measure baseline cells with treatment indexes still present.
	switchCtx := context.WithoutCancel(ctx)

	if err := o.switcher.Apply(switchCtx, cfg); err != nil {
		o.logger.Error().Err(err).
			Str("scale", scale).
			Str("config", cfg.Name).
			Msg("Index configuration apply failed, skipping its cells")
		result.ConfigFailures = append(result.ConfigFailures,
			fmt.Sprintf("%s/%s: %v", scale, cfg.Name, err))
		for _, query := range p.Queries {
			if err := o.recordOutcome(result, models.CellOutcome{
				Cell:   models.CellKey{QueryID: query.ID, Scale: scale, IndexConfig: cfg.Name},
				Status: models.CellFailed,
				Error:  fmt.Sprintf("index config apply failed: %v", err),
			}); err != nil {
				return err
			}
		}
		return nil
	}

	for _, query := range p.Queries {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Str("config", cfg.Name).Msg("Cancelled between cells")
			break
		}
		if err := o.runCell(ctx, p, scale, cfg, query, result); err != nil {
			return err
		}
	}

	if err := o.switcher.Revert(switchCtx, cfg); err != nil {
		o.logger.Error().Err(err).
			Str("scale", scale).
			Str("config", cfg.Name).
			Msg("Index configuration revert failed")
		result.ConfigFailures = append(result.ConfigFailures,
			fmt.Sprintf("%s/%s revert: %v", scale, cfg.Name, err))
	}
	return nil
}

func (o *Orchestrator) runCell(ctx context.Context, p Params, scale string, cfg models.IndexConfig, query models.QuerySpec, result *SuiteResult) error {
	cell := models.CellKey{QueryID: query.ID, Scale: scale, IndexConfig: cfg.Name}

	if !p.ForceRerun {
		complete, err := o.ledger.IsComplete(cell, p.MeasurementRuns)
		if err != nil {
			return err
		}
		if complete {
			o.logger.Info().
				Str("query_id", query.ID).
				Str("scale", scale).
				Str("config", cfg.Name).
				Msg("Cell already complete, skipping")
			result.Skipped++
			return nil
		}
	}

	// Cancellation takes effect between cells, never mid-cell, so a
	// started cell finishes (each statement stays bounded by its own
	// timeout) instead of recording a burst of cancelled samples.
	records, err := o.runner.Run(context.WithoutCancel(ctx), query, scale, cfg, p.WarmupRuns, p.MeasurementRuns)
	if err != nil {
		o.logger.Error().Err(err).
			Str("query_id", query.ID).
			Str("scale", scale).
			Str("config", cfg.Name).
			Msg("Cell failed")
		return o.recordOutcome(result, models.CellOutcome{
			Cell:   cell,
			Status: models.CellFailed,
			Error:  err.Error(),
		})
	}

	for i := range records {
		records[i].RunID = p.RunID
	}
	if err := o.sink.Append(records); err != nil {
		// Durable-write failure: abort rather than lose samples silently.
		return err
	}

	samples := 0
	for _, rec := range records {
		if rec.Phase == models.PhaseMeasurement && rec.Error == "" && rec.LatencyMs != nil {
			samples++
		}
	}
	status := models.CellComplete
	if samples < p.MeasurementRuns {
		status = models.CellIncomplete
	}
	return o.recordOutcome(result, models.CellOutcome{
		Cell:    cell,
		Status:  status,
		Samples: samples,
	})
}

func (o *Orchestrator) recordOutcome(result *SuiteResult, outcome models.CellOutcome) error {
	if err := o.ledger.Record(outcome); err != nil {
		return err
	}
	return nil
}

// finish derives summaries, comparisons and the outcome report from
// whatever is persisted, then exports CSV artifacts.
func (o *Orchestrator) finish(ctx context.Context, p Params, result *SuiteResult) (*SuiteResult, error) {
	records, err := o.sink.LoadAll()
	if err != nil {
		return nil, err
	}
	result.Summaries = aggregate.Aggregate(records, p.MeasurementRuns)

	for _, cfg := range p.IndexConfigs {
		if cfg.Name == p.BaselineConfig {
			continue
		}
		cmp := compare.Compare(result.Summaries, p.BaselineConfig, cfg.Name)
		result.Comparisons = append(result.Comparisons, cmp.Records...)
		result.Gaps = append(result.Gaps, cmp.Gaps...)
	}

	result.Outcomes, err = o.ledger.Outcomes()
	if err != nil {
		return nil, err
	}

	if p.ResultsDir != "" {
		if err := o.export(p, result); err != nil {
			return nil, err
		}
	}

	o.report(result)
	return result, nil
}

func (o *Orchestrator) export(p Params, result *SuiteResult) error {
	if err := export.WriteSummaries(filepath.Join(p.ResultsDir, "summary.csv"), result.Summaries); err != nil {
		return err
	}
	if err := export.WriteComparisons(filepath.Join(p.ResultsDir, "comparison.csv"), result.Comparisons); err != nil {
		return err
	}
	return export.WriteGaps(filepath.Join(p.ResultsDir, "comparison_gaps.csv"), result.Gaps)
}

// report logs every attempted cell with its outcome. A cell that was
// attempted is never silently omitted.
func (o *Orchestrator) report(result *SuiteResult) {
	for _, outcome := range result.Outcomes {
		event := o.logger.Info()
		if outcome.Status != models.CellComplete {
			event = o.logger.Warn()
		}
		event.
			Str("query_id", outcome.Cell.QueryID).
			Str("scale", outcome.Cell.Scale).
			Str("config", outcome.Cell.IndexConfig).
			Str("status", string(outcome.Status)).
			Int("samples", outcome.Samples).
			Msg("Cell outcome")
	}

	complete, incomplete, failed := store.Summarize(result.Outcomes)
	o.logger.Info().
		Int("complete", complete).
		Int("incomplete", incomplete).
		Int("failed", failed).
		Int("skipped", result.Skipped).
		Int("comparisons", len(result.Comparisons)).
		Int("gaps", len(result.Gaps)).
		Msg("Suite finished")
}

// isFatal distinguishes store failures, which must stop the suite,
// from per-cell failures the orchestrator absorbs.
func isFatal(err error) bool {
	var storeErr *store.StoreError
	return errors.As(err, &storeErr)
}
