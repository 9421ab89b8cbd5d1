package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Column headers are a contract with the external plotting collaborator
// and must stay stable across runs.
var (
	summaryHeader = []string{
		"query_id", "scale", "index_config", "count",
		"mean_ms", "median_ms", "stddev_ms", "min_ms", "max_ms",
		"p95_ms", "p99_ms", "plan_fingerprint", "incomplete",
	}
	comparisonHeader = []string{
		"query_id", "scale", "baseline_config", "treatment_config",
		"baseline_mean_ms", "treatment_mean_ms", "speedup_ratio", "plan_changed",
	}
	gapHeader = []string{"query_id", "scale", "missing"}
)

// WriteSummaries writes summary records as CSV at path.
func WriteSummaries(path string, summaries []models.SummaryRecord) error {
	return writeCSV(path, summaryHeader, len(summaries), func(i int) []string {
		s := summaries[i]
		return []string{
			s.QueryID, s.Scale, s.IndexConfig, strconv.Itoa(s.Count),
			ms(s.MeanMs), ms(s.MedianMs), ms(s.StddevMs), ms(s.MinMs), ms(s.MaxMs),
			ms(s.P95Ms), ms(s.P99Ms), s.Fingerprint, strconv.FormatBool(s.Incomplete),
		}
	})
}

// WriteComparisons writes comparison records as CSV at path.
func WriteComparisons(path string, comparisons []models.ComparisonRecord) error {
	return writeCSV(path, comparisonHeader, len(comparisons), func(i int) []string {
		c := comparisons[i]
		return []string{
			c.QueryID, c.Scale, c.BaselineConfig, c.TreatmentConfig,
			ms(c.BaselineMeanMs), ms(c.TreatmentMeanMs),
			strconv.FormatFloat(c.SpeedupRatio, 'f', 4, 64),
			strconv.FormatBool(c.PlanChanged),
		}
	})
}

// WriteGaps writes comparison gaps as CSV at path.
func WriteGaps(path string, gaps []models.ComparisonGap) error {
	return writeCSV(path, gapHeader, len(gaps), func(i int) []string {
		g := gaps[i]
		return []string{g.QueryID, g.Scale, g.Missing}
	})
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return file.Sync()
}

func ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
