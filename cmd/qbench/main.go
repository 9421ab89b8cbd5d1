package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/aggregate"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/catalog"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/compare"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/config"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/controller"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/db"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/export"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/logger"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/orchestrator"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/store"
	"github.com/I2S9/sql-query-optimization-benchmarking/internal/switcher"
)

// Version is set at build time
var Version = "dev"

// Exit codes: 0 full success, 1 fatal setup failure, 2 suite finished
// with incomplete or failed cells.
const (
	exitOK         = 0
	exitFatal      = 1
	exitIncomplete = 2
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFatal)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "indexes":
		os.Exit(cmdIndexes(os.Args[2:]))
	case "aggregate":
		os.Exit(cmdAggregate(os.Args[2:]))
	case "compare":
		os.Exit(cmdCompare(os.Args[2:]))
	case "version":
		fmt.Println("qbench", Version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(exitFatal)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: qbench <command> [flags]

Commands:
  run        Run the benchmark suite (optionally narrowed by --scale / --config)
  indexes    Manage index configurations: apply, revert, status
  aggregate  Recompute summary statistics from the raw run log
  compare    Compare two index configurations from existing records
  version    Print version
`)
}

// setup loads configuration and initializes logging, shared by every
// subcommand.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	scale := fs.String("scale", "", "Run only this scale")
	configName := fs.String("config", "", "Run only this index configuration")
	force := fs.Bool("force", false, "Re-run cells that already have complete records")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFatal
	}
	log.Info().Str("version", Version).Msg("Starting qbench")

	queries, err := catalog.LoadFile(cfg.Queries.File)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load query catalog")
		return exitFatal
	}
	log.Info().Int("queries", len(queries)).Str("file", cfg.Queries.File).Msg("Query catalog loaded")

	// Cancellation takes effect between cells, never mid-cell.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector := db.NewConnector(cfg.Database.DSN(), cfg.Database.ConnectRetries, logger.Get("db"))
	defer connector.Close(context.Background())

	if err := connector.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Database unreachable")
		return exitFatal
	}

	adminConn, err := connector.Admin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open admin connection")
		return exitFatal
	}
	admin := db.NewSession(adminConn, logger.Get("db"))
	sw := switcher.New(admin, logger.Get("switcher"))

	runLog, err := store.OpenRunLog(filepath.Join(cfg.Output.ResultsDir, "runs.ndjson"), logger.Get("store"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to open run log")
		return exitFatal
	}
	defer runLog.Close()

	ledger, err := store.OpenLedger(cfg.Output.LedgerPath, logger.Get("store"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to open cell ledger")
		return exitFatal
	}
	defer ledger.Close()

	sessions := func(ctx context.Context) (controller.MeasuredSession, error) {
		conn, err := connector.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return db.NewSession(conn, logger.Get("db")), nil
	}
	runner := controller.New(sessions, time.Duration(cfg.Benchmark.TimeoutMS)*time.Millisecond, logger.Get("controller"))

	orch := orchestrator.New(runner, sw, runLog, ledger, logger.Get("orchestrator"))
	result, err := orch.RunSuite(ctx, orchestrator.Params{
		Queries:         queries,
		Scales:          cfg.Benchmark.Scales,
		IndexConfigs:    cfg.Benchmark.IndexConfigs,
		BaselineConfig:  cfg.Benchmark.BaselineConfig,
		WarmupRuns:      cfg.Benchmark.WarmupRuns,
		MeasurementRuns: cfg.Benchmark.MeasurementRuns,
		ForceRerun:      *force || cfg.Benchmark.ForceRerun,
		ScaleFilter:     *scale,
		ConfigFilter:    *configName,
		ResultsDir:      cfg.Output.ResultsDir,
	})
	if err != nil {
		log.Error().Err(err).Msg("Suite aborted")
		return exitFatal
	}

	if !result.Complete() {
		return exitIncomplete
	}
	return exitOK
}

func cmdIndexes(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qbench indexes <apply|revert|status> [--config name]")
		return exitFatal
	}
	action := args[0]

	fs := flag.NewFlagSet("indexes", flag.ExitOnError)
	configName := fs.String("config", "", "Index configuration name")
	if err := fs.Parse(args[1:]); err != nil {
		return exitFatal
	}

	cfg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector := db.NewConnector(cfg.Database.DSN(), cfg.Database.ConnectRetries, logger.Get("db"))
	defer connector.Close(context.Background())

	adminConn, err := connector.Admin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Database unreachable")
		return exitFatal
	}
	admin := db.NewSession(adminConn, logger.Get("db"))
	sw := switcher.New(admin, logger.Get("switcher"))

	switch action {
	case "apply", "revert":
		if *configName == "" {
			fmt.Fprintln(os.Stderr, "--config is required for apply/revert")
			return exitFatal
		}
		ic, ok := cfg.IndexConfigByName(*configName)
		if !ok {
			log.Error().Str("config", *configName).Msg("Unknown index configuration")
			return exitFatal
		}
		var actionErr error
		if action == "apply" {
			actionErr = sw.Apply(ctx, ic)
		} else {
			actionErr = sw.Revert(ctx, ic)
		}
		if actionErr != nil {
			log.Error().Err(actionErr).Msg("Index switch failed")
			return exitFatal
		}
	case "status":
		names, err := sw.Status(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list indexes")
			return exitFatal
		}
		if len(names) == 0 {
			fmt.Println("No indexes in public schema")
		}
		for _, name := range names {
			fmt.Println(name)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown indexes action: %s\n", action)
		return exitFatal
	}
	return exitOK
}

func cmdAggregate(args []string) int {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFatal
	}

	records, err := store.LoadRecords(filepath.Join(cfg.Output.ResultsDir, "runs.ndjson"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load run records")
		return exitFatal
	}
	if len(records) == 0 {
		log.Error().Msg("No run records found")
		return exitFatal
	}

	summaries := aggregate.Aggregate(records, cfg.Benchmark.MeasurementRuns)
	outPath := filepath.Join(cfg.Output.ResultsDir, "summary.csv")
	if err := export.WriteSummaries(outPath, summaries); err != nil {
		log.Error().Err(err).Msg("Failed to write summaries")
		return exitFatal
	}

	incomplete := 0
	for _, s := range summaries {
		if s.Incomplete {
			incomplete++
		}
	}
	log.Info().
		Int("records", len(records)).
		Int("summaries", len(summaries)).
		Int("incomplete", incomplete).
		Str("output", outPath).
		Msg("Aggregation complete")

	if incomplete > 0 {
		return exitIncomplete
	}
	return exitOK
}

func cmdCompare(args []string) int {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	baseline := fs.String("baseline", "no_index", "Baseline index configuration")
	treatment := fs.String("treatment", "with_index", "Treatment index configuration")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFatal
	}

	records, err := store.LoadRecords(filepath.Join(cfg.Output.ResultsDir, "runs.ndjson"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load run records")
		return exitFatal
	}
	if len(records) == 0 {
		log.Error().Msg("No run records found")
		return exitFatal
	}

	summaries := aggregate.Aggregate(records, cfg.Benchmark.MeasurementRuns)
	result := compare.Compare(summaries, *baseline, *treatment)

	cmpPath := filepath.Join(cfg.Output.ResultsDir, "comparison.csv")
	if err := export.WriteComparisons(cmpPath, result.Records); err != nil {
		log.Error().Err(err).Msg("Failed to write comparisons")
		return exitFatal
	}
	gapsPath := filepath.Join(cfg.Output.ResultsDir, "comparison_gaps.csv")
	if err := export.WriteGaps(gapsPath, result.Gaps); err != nil {
		log.Error().Err(err).Msg("Failed to write comparison gaps")
		return exitFatal
	}

	for _, c := range result.Records {
		log.Info().
			Str("query_id", c.QueryID).
			Str("scale", c.Scale).
			Float64("speedup", c.SpeedupRatio).
			Bool("plan_changed", c.PlanChanged).
			Msg("Comparison")
	}
	for _, g := range result.Gaps {
		log.Warn().
			Str("query_id", g.QueryID).
			Str("scale", g.Scale).
			Str("missing", g.Missing).
			Msg("Comparison gap")
	}
	log.Info().
		Int("comparisons", len(result.Records)).
		Int("gaps", len(result.Gaps)).
		Str("output", cmpPath).
		Msg("Comparison complete")

	if len(result.Gaps) > 0 {
		return exitIncomplete
	}
	return exitOK
}
