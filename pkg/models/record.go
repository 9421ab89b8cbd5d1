package models

import "time"

// Phase distinguishes cache-warming executions from timed ones.
type Phase string

const (
	PhaseWarmup      Phase = "warmup"
	PhaseMeasurement Phase = "measurement"
)

// QuerySpec is one benchmark query from the catalog. Immutable after load.
type QuerySpec struct {
	ID         string   `json:"id"`
	SQL        string   `json:"sql"`
	Categories []string `json:"categories,omitempty"`
}

// IndexConfig names a set of index DDL to apply and revert as a unit.
// Indexes lists the index names the configuration is expected to leave
// behind, used for post-apply verification against pg_indexes.
type IndexConfig struct {
	Name    string   `json:"name"`
	Apply   []string `json:"apply"`
	Revert  []string `json:"revert"`
	Indexes []string `json:"indexes"`
}

// RunRecord is one executed iteration of one query under one cell.
// Immutable once written. LatencyMs is nil when the iteration failed.
// RunID identifies the suite invocation that produced the record; when
// a cell is re-run, records from the latest run supersede earlier ones.
type RunRecord struct {
	RunID       string    `json:"run_id,omitempty"`
	QueryID     string    `json:"query_id"`
	Scale       string    `json:"scale"`
	IndexConfig string    `json:"index_config"`
	Phase       Phase     `json:"phase"`
	Sequence    int       `json:"sequence"`
	LatencyMs   *float64  `json:"latency_ms,omitempty"`
	Plan        *PlanNode `json:"plan,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// PlanNode is one node of the engine's reported execution plan. The tree
// mirrors EXPLAIN (FORMAT JSON) output, keeping only the fields the
// analyzer needs for shape comparison.
type PlanNode struct {
	NodeType     string      `json:"node_type"`
	Relation     string      `json:"relation,omitempty"`
	IndexName    string      `json:"index_name,omitempty"`
	JoinType     string      `json:"join_type,omitempty"`
	PlanRows     float64     `json:"plan_rows"`
	ActualRows   float64     `json:"actual_rows"`
	TotalCost    float64     `json:"total_cost"`
	ActualTimeMs float64     `json:"actual_time_ms"`
	Children     []*PlanNode `json:"children,omitempty"`
}

// CellKey identifies one (query, scale, index configuration) combination.
type CellKey struct {
	QueryID     string `json:"query_id"`
	Scale       string `json:"scale"`
	IndexConfig string `json:"index_config"`
}

// CellStatus is the recorded outcome of an attempted cell.
type CellStatus string

const (
	CellComplete   CellStatus = "complete"
	CellIncomplete CellStatus = "incomplete"
	CellFailed     CellStatus = "failed"
)

// CellOutcome is one row of the final attempted-cell report.
type CellOutcome struct {
	Cell      CellKey    `json:"cell"`
	Status    CellStatus `json:"status"`
	Samples   int        `json:"samples"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SummaryRecord aggregates the measurement-phase runs of one cell.
// Recomputable from RunRecords at any time; never hand-edited.
type SummaryRecord struct {
	QueryID     string  `json:"query_id"`
	Scale       string  `json:"scale"`
	IndexConfig string  `json:"index_config"`
	Count       int     `json:"count"`
	MeanMs      float64 `json:"mean_ms"`
	MedianMs    float64 `json:"median_ms"`
	StddevMs    float64 `json:"stddev_ms"`
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Incomplete  bool    `json:"incomplete"`
}

// ComparisonRecord pairs two summaries of the same (query, scale) under
// different index configurations.
type ComparisonRecord struct {
	QueryID         string  `json:"query_id"`
	Scale           string  `json:"scale"`
	BaselineConfig  string  `json:"baseline_config"`
	TreatmentConfig string  `json:"treatment_config"`
	BaselineMeanMs  float64 `json:"baseline_mean_ms"`
	TreatmentMeanMs float64 `json:"treatment_mean_ms"`
	SpeedupRatio    float64 `json:"speedup_ratio"`
	PlanChanged     bool    `json:"plan_changed"`
}

// ComparisonGap reports a (query, scale) pair that could not be compared
// so incomplete cells are visible instead of silently dropped.
type ComparisonGap struct {
	QueryID string `json:"query_id"`
	Scale   string `json:"scale"`
	Missing string `json:"missing"` // which side is absent or incomplete
}
