package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Config holds all configuration for qbench
type Config struct {
	Database  DatabaseConfig
	Benchmark BenchmarkConfig
	Queries   QueriesConfig
	Output    OutputConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	// ConnectRetries bounds connection attempts before a cell is declared failed
	ConnectRetries int
}

type BenchmarkConfig struct {
	Scales          []string
	IndexConfigs    []models.IndexConfig
	WarmupRuns      int
	MeasurementRuns int
	TimeoutMS       int
	ForceRerun      bool
	// BaselineConfig names the index configuration comparisons are made against.
	// Defaults to the first entry of IndexConfigs.
	BaselineConfig string
}

type QueriesConfig struct {
	File string // SQL file with "-- Query N: description" blocks
}

type OutputConfig struct {
	ResultsDir string // raw run logs + derived CSVs
	LedgerPath string // SQLite cell ledger
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("QBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("qbench")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/qbench/")
	v.AddConfigPath("$HOME/.qbench/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	indexConfigs, err := parseIndexConfigs(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:           v.GetString("database.host"),
			Port:           v.GetInt("database.port"),
			Name:           v.GetString("database.name"),
			User:           v.GetString("database.user"),
			Password:       v.GetString("database.password"),
			SSLMode:        v.GetString("database.sslmode"),
			ConnectRetries: v.GetInt("database.connect_retries"),
		},
		Benchmark: BenchmarkConfig{
			Scales:          v.GetStringSlice("benchmark.scales"),
			IndexConfigs:    indexConfigs,
			WarmupRuns:      v.GetInt("benchmark.warmup_runs"),
			MeasurementRuns: v.GetInt("benchmark.measurement_runs"),
			TimeoutMS:       v.GetInt("benchmark.timeout_ms"),
			ForceRerun:      v.GetBool("benchmark.force_rerun"),
			BaselineConfig:  v.GetString("benchmark.baseline_config"),
		},
		Queries: QueriesConfig{
			File: v.GetString("queries.file"),
		},
		Output: OutputConfig{
			ResultsDir: v.GetString("output.results_dir"),
			LedgerPath: v.GetString("output.ledger_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseIndexConfigs decodes benchmark.index_configs into typed configs.
func parseIndexConfigs(v *viper.Viper) ([]models.IndexConfig, error) {
	var raw []struct {
		Name    string   `mapstructure:"name"`
		Apply   []string `mapstructure:"apply"`
		Revert  []string `mapstructure:"revert"`
		Indexes []string `mapstructure:"indexes"`
	}
	if err := v.UnmarshalKey("benchmark.index_configs", &raw); err != nil {
		return nil, fmt.Errorf("invalid benchmark.index_configs: %w", err)
	}

	if len(raw) == 0 {
		// Default pair mirrors the classic no-index vs with-index experiment
		return []models.IndexConfig{
			{Name: "no_index"},
			{Name: "with_index"},
		}, nil
	}

	configs := make([]models.IndexConfig, 0, len(raw))
	seen := make(map[string]bool)
	for _, rc := range raw {
		if rc.Name == "" {
			return nil, fmt.Errorf("index config with empty name")
		}
		if seen[rc.Name] {
			return nil, fmt.Errorf("duplicate index config name: %s", rc.Name)
		}
		seen[rc.Name] = true
		configs = append(configs, models.IndexConfig{
			Name:    rc.Name,
			Apply:   rc.Apply,
			Revert:  rc.Revert,
			Indexes: rc.Indexes,
		})
	}
	return configs, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (cfg *Config) Validate() error {
	if cfg.Benchmark.MeasurementRuns <= 0 {
		return fmt.Errorf("benchmark.measurement_runs must be positive, got %d", cfg.Benchmark.MeasurementRuns)
	}
	if cfg.Benchmark.WarmupRuns < 0 {
		return fmt.Errorf("benchmark.warmup_runs must not be negative, got %d", cfg.Benchmark.WarmupRuns)
	}
	if cfg.Benchmark.TimeoutMS <= 0 {
		return fmt.Errorf("benchmark.timeout_ms must be positive, got %d", cfg.Benchmark.TimeoutMS)
	}
	if len(cfg.Benchmark.Scales) == 0 {
		return fmt.Errorf("benchmark.scales must not be empty")
	}
	if cfg.Benchmark.BaselineConfig == "" && len(cfg.Benchmark.IndexConfigs) > 0 {
		cfg.Benchmark.BaselineConfig = cfg.Benchmark.IndexConfigs[0].Name
	}
	if cfg.Benchmark.BaselineConfig != "" {
		found := false
		for _, ic := range cfg.Benchmark.IndexConfigs {
			if ic.Name == cfg.Benchmark.BaselineConfig {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("benchmark.baseline_config %q is not a configured index config", cfg.Benchmark.BaselineConfig)
		}
	}
	return nil
}

// IndexConfigByName returns the named index configuration.
func (cfg *Config) IndexConfigByName(name string) (models.IndexConfig, bool) {
	for _, ic := range cfg.Benchmark.IndexConfigs {
		if ic.Name == name {
			return ic, true
		}
	}
	return models.IndexConfig{}, false
}

// DSN builds the PostgreSQL connection string for the configured database.
func (d *DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, sslmode)
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "benchmark_db")
	v.SetDefault("database.user", "benchmark")
	v.SetDefault("database.password", "benchmark")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Benchmark defaults
	v.SetDefault("benchmark.scales", []string{"small"})
	v.SetDefault("benchmark.warmup_runs", 2)
	v.SetDefault("benchmark.measurement_runs", 10)
	v.SetDefault("benchmark.timeout_ms", 60000)
	v.SetDefault("benchmark.force_rerun", false)
	v.SetDefault("benchmark.baseline_config", "")

	// Queries defaults
	v.SetDefault("queries.file", "./sql/queries.sql")

	// Output defaults
	v.SetDefault("output.results_dir", "./results/metrics")
	v.SetDefault("output.ledger_path", "./results/qbench.db")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
