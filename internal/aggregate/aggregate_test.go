package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/plan"
	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

const epsilon = 1e-9

func rec(queryID, scale, cfg string, phase models.Phase, seq int, latency float64) models.RunRecord {
	return models.RunRecord{
		QueryID:     queryID,
		Scale:       scale,
		IndexConfig: cfg,
		Phase:       phase,
		Sequence:    seq,
		LatencyMs:   &latency,
		Timestamp:   time.Now().UTC(),
	}
}

func failedRec(queryID, scale, cfg string, seq int) models.RunRecord {
	return models.RunRecord{
		QueryID:     queryID,
		Scale:       scale,
		IndexConfig: cfg,
		Phase:       models.PhaseMeasurement,
		Sequence:    seq,
		Error:       "canceling statement due to statement timeout",
		Timestamp:   time.Now().UTC(),
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > epsilon {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func TestAggregate_ClosedFormStats(t *testing.T) {
	// latencies 10, 20, 30, 40, 50:
	// mean 30, median 30, population stddev sqrt(200), min 10, max 50
	latencies := []float64{30, 10, 50, 20, 40}
	var records []models.RunRecord
	for i, l := range latencies {
		records = append(records, rec("query_01", "small", "no_index", models.PhaseMeasurement, i+1, l))
	}

	summaries := Aggregate(records, 5)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]

	if s.Count != 5 {
		t.Errorf("expected count 5, got %d", s.Count)
	}
	if s.Incomplete {
		t.Error("expected cell to be complete")
	}
	approx(t, "mean", s.MeanMs, 30)
	approx(t, "median", s.MedianMs, 30)
	approx(t, "stddev", s.StddevMs, math.Sqrt(200))
	approx(t, "min", s.MinMs, 10)
	approx(t, "max", s.MaxMs, 50)
}

func TestAggregate_EvenCountMedian(t *testing.T) {
	var records []models.RunRecord
	for i, l := range []float64{10, 20, 30, 40} {
		records = append(records, rec("query_01", "small", "no_index", models.PhaseMeasurement, i+1, l))
	}
	summaries := Aggregate(records, 4)
	approx(t, "median", summaries[0].MedianMs, 25)
}

func TestAggregate_WarmupExcluded(t *testing.T) {
	records := []models.RunRecord{
		rec("query_01", "small", "no_index", models.PhaseWarmup, 1, 1000),
		rec("query_01", "small", "no_index", models.PhaseWarmup, 2, 1000),
		rec("query_01", "small", "no_index", models.PhaseMeasurement, 1, 10),
		rec("query_01", "small", "no_index", models.PhaseMeasurement, 2, 20),
	}

	summaries := Aggregate(records, 2)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].Count != 2 {
		t.Errorf("expected warmup excluded from count, got %d", summaries[0].Count)
	}
	approx(t, "mean", summaries[0].MeanMs, 15)
}

func TestAggregate_FailedRunsMarkIncomplete(t *testing.T) {
	records := []models.RunRecord{
		rec("query_01", "small", "no_index", models.PhaseMeasurement, 1, 10),
		rec("query_01", "small", "no_index", models.PhaseMeasurement, 2, 20),
		failedRec("query_01", "small", "no_index", 3),
	}

	summaries := Aggregate(records, 3)
	s := summaries[0]
	if !s.Incomplete {
		t.Error("expected cell with a failed sample to be incomplete")
	}
	if s.Count != 2 {
		t.Errorf("expected 2 successful samples, got %d", s.Count)
	}
	// Stats still computed over the successes that exist
	approx(t, "mean", s.MeanMs, 15)
}

func TestAggregate_LatestRunSupersedesEarlierSamples(t *testing.T) {
	// A resumed cell leaves two runs' records in the log. Only the
	// latest run may count: blending samples from separate runs would
	// mix different cache and data state, and the cell would report
	// more samples than were ever configured.
	var records []models.RunRecord
	for i := 1; i <= 5; i++ {
		r := rec("query_01", "small", "no_index", models.PhaseMeasurement, i, 100+float64(i))
		r.RunID = "run-aaa"
		if i == 1 {
			r.Plan = &models.PlanNode{NodeType: "Seq Scan", Relation: "orders"}
		}
		records = append(records, r)
	}
	for i := 1; i <= 5; i++ {
		r := rec("query_01", "small", "no_index", models.PhaseMeasurement, i, 500+float64(i))
		r.RunID = "run-bbb"
		if i == 1 {
			r.Plan = &models.PlanNode{NodeType: "Index Scan", Relation: "orders", IndexName: "idx_orders_customer_id"}
		}
		records = append(records, r)
	}

	summaries := Aggregate(records, 5)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.Count != 5 {
		t.Errorf("expected 5 samples from the latest run, got %d", s.Count)
	}
	if s.Incomplete {
		t.Error("expected a fully re-run cell to be complete")
	}
	// 501..505 only; a blend with the first run would drag this to ~303
	approx(t, "mean", s.MeanMs, 503)

	idxOnly := plan.Fingerprint(&models.PlanNode{NodeType: "Index Scan", Relation: "orders", IndexName: "idx_orders_customer_id"})
	if s.Fingerprint != idxOnly {
		t.Error("expected fingerprint from the latest run's plan capture")
	}
}

func TestAggregate_PartialLatestRunIsIncomplete(t *testing.T) {
	var records []models.RunRecord
	for i := 1; i <= 5; i++ {
		r := rec("query_01", "small", "no_index", models.PhaseMeasurement, i, 100)
		r.RunID = "run-aaa"
		records = append(records, r)
	}
	for i := 1; i <= 2; i++ {
		r := rec("query_01", "small", "no_index", models.PhaseMeasurement, i, 200)
		r.RunID = "run-bbb"
		records = append(records, r)
	}

	summaries := Aggregate(records, 5)
	s := summaries[0]
	if s.Count != 2 {
		t.Errorf("expected only the latest run's 2 samples, got %d", s.Count)
	}
	if !s.Incomplete {
		t.Error("expected a partially re-run cell to be incomplete")
	}
}

func TestAggregate_OversizedSampleCountIsIncomplete(t *testing.T) {
	// Backstop: a cell whose sample count does not match the configured
	// iterations exactly is never reported complete.
	var records []models.RunRecord
	for i := 1; i <= 7; i++ {
		records = append(records, rec("query_01", "small", "no_index", models.PhaseMeasurement, i, 100))
	}
	summaries := Aggregate(records, 5)
	if !summaries[0].Incomplete {
		t.Error("expected a cell with more samples than configured to be flagged incomplete")
	}
}

func TestAggregate_FingerprintFromCapturedPlan(t *testing.T) {
	seqScan := &models.PlanNode{NodeType: "Seq Scan", Relation: "orders"}
	idxScan := &models.PlanNode{NodeType: "Index Scan", Relation: "orders", IndexName: "idx_orders_customer"}

	first := rec("query_01", "small", "no_index", models.PhaseMeasurement, 1, 10)
	first.Plan = seqScan
	second := rec("query_01", "small", "with_index", models.PhaseMeasurement, 1, 5)
	second.Plan = idxScan

	summaries := Aggregate([]models.RunRecord{first, second}, 1)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Fingerprint == "" || summaries[1].Fingerprint == "" {
		t.Fatal("expected fingerprints for cells with captured plans")
	}
	if summaries[0].Fingerprint == summaries[1].Fingerprint {
		t.Error("expected different fingerprints for Seq Scan vs Index Scan cells")
	}
}

func TestAggregate_DeterministicOrder(t *testing.T) {
	records := []models.RunRecord{
		rec("query_02", "small", "with_index", models.PhaseMeasurement, 1, 1),
		rec("query_01", "small", "no_index", models.PhaseMeasurement, 1, 1),
		rec("query_01", "medium", "no_index", models.PhaseMeasurement, 1, 1),
		rec("query_01", "small", "with_index", models.PhaseMeasurement, 1, 1),
	}

	summaries := Aggregate(records, 1)
	want := []models.CellKey{
		{QueryID: "query_01", Scale: "medium", IndexConfig: "no_index"},
		{QueryID: "query_01", Scale: "small", IndexConfig: "no_index"},
		{QueryID: "query_01", Scale: "small", IndexConfig: "with_index"},
		{QueryID: "query_02", Scale: "small", IndexConfig: "with_index"},
	}
	for i, w := range want {
		got := models.CellKey{QueryID: summaries[i].QueryID, Scale: summaries[i].Scale, IndexConfig: summaries[i].IndexConfig}
		if got != w {
			t.Errorf("position %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestAggregate_Percentiles(t *testing.T) {
	var records []models.RunRecord
	for i := 1; i <= 100; i++ {
		records = append(records, rec("query_01", "small", "no_index", models.PhaseMeasurement, i, float64(i)))
	}
	summaries := Aggregate(records, 100)
	// nearest-rank on 100 sorted samples: p95 -> index 95 -> value 96
	approx(t, "p95", summaries[0].P95Ms, 96)
	approx(t, "p99", summaries[0].P99Ms, 100)
}
