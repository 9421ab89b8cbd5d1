package aggregate

import (
	"math"
	"sort"

	"github.com/I2S9/sql-query-optimization-benchmarking/internal/plan"
	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Aggregate reduces raw run records into one summary per cell. Only
// successful measurement-phase samples enter the statistics; warmup
// records are never counted. The log is append-only, so when a cell was
// re-run (resume after a crash, forced rerun) it carries records from
// more than one run id; only the latest run's records count, since
// samples from separate runs reflect different cache and data state. A
// cell whose successful sample count differs from measurementCount is
// marked incomplete so downstream comparison excludes it instead of
// averaging over a wrong-sized sample.
func Aggregate(records []models.RunRecord, measurementCount int) []models.SummaryRecord {
	type cellData struct {
		runID     string
		latencies []float64
		plan      *models.PlanNode
	}

	cells := make(map[models.CellKey]*cellData)
	var order []models.CellKey

	for _, rec := range records {
		if rec.Phase != models.PhaseMeasurement {
			continue
		}
		key := models.CellKey{QueryID: rec.QueryID, Scale: rec.Scale, IndexConfig: rec.IndexConfig}
		data, ok := cells[key]
		if !ok {
			data = &cellData{runID: rec.RunID}
			cells[key] = data
			order = append(order, key)
		}
		// Append order is chronological: a new run id for a known cell
		// supersedes everything gathered from the earlier run.
		if rec.RunID != data.runID {
			data.runID = rec.RunID
			data.latencies = nil
			data.plan = nil
		}
		if rec.Error == "" && rec.LatencyMs != nil {
			data.latencies = append(data.latencies, *rec.LatencyMs)
		}
		if rec.Plan != nil && data.plan == nil {
			data.plan = rec.Plan
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Scale != b.Scale {
			return a.Scale < b.Scale
		}
		if a.IndexConfig != b.IndexConfig {
			return a.IndexConfig < b.IndexConfig
		}
		return a.QueryID < b.QueryID
	})

	summaries := make([]models.SummaryRecord, 0, len(order))
	for _, key := range order {
		data := cells[key]
		s := models.SummaryRecord{
			QueryID:     key.QueryID,
			Scale:       key.Scale,
			IndexConfig: key.IndexConfig,
			Count:       len(data.latencies),
			Fingerprint: plan.Fingerprint(data.plan),
			Incomplete:  len(data.latencies) != measurementCount,
		}
		if len(data.latencies) > 0 {
			fillStats(&s, data.latencies)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func fillStats(s *models.SummaryRecord, latencies []float64) {
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	s.MinMs = sorted[0]
	s.MaxMs = sorted[len(sorted)-1]
	s.MeanMs = mean(sorted)
	s.MedianMs = median(sorted)
	s.StddevMs = stddev(sorted, s.MeanMs)
	s.P95Ms = percentile(sorted, 95)
	s.P99Ms = percentile(sorted, 99)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// stddev is the population standard deviation.
func stddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// percentile uses the nearest-rank method on a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	idx := int(p / 100.0 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
