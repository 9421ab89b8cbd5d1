package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteSummaries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	summaries := []models.SummaryRecord{
		{
			QueryID: "query_01", Scale: "small", IndexConfig: "no_index",
			Count: 5, MeanMs: 30.123, MedianMs: 30, StddevMs: 14.142,
			MinMs: 10, MaxMs: 50, P95Ms: 50, P99Ms: 50,
			Fingerprint: "deadbeefdeadbeef",
		},
		{
			QueryID: "query_02", Scale: "small", IndexConfig: "no_index",
			Count: 2, Incomplete: true,
		},
	}

	require.NoError(t, WriteSummaries(path, summaries))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, summaryHeader, rows[0])
	require.Equal(t, "query_01", rows[1][0])
	require.Equal(t, "30.12", rows[1][4])
	require.Equal(t, "deadbeefdeadbeef", rows[1][11])
	require.Equal(t, "false", rows[1][12])
	require.Equal(t, "true", rows[2][12])
}

func TestWriteComparisons(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comparison.csv")
	comparisons := []models.ComparisonRecord{
		{
			QueryID: "query_01", Scale: "small",
			BaselineConfig: "no_index", TreatmentConfig: "with_index",
			BaselineMeanMs: 100, TreatmentMeanMs: 25,
			SpeedupRatio: 4.0, PlanChanged: true,
		},
	}

	require.NoError(t, WriteComparisons(path, comparisons))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, comparisonHeader, rows[0])
	require.Equal(t, "4.0000", rows[1][6])
	require.Equal(t, "true", rows[1][7])
}

func TestWriteGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.csv")
	gaps := []models.ComparisonGap{
		{QueryID: "query_01", Scale: "small", Missing: "with_index (incomplete)"},
	}

	require.NoError(t, WriteGaps(path, gaps))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, "with_index (incomplete)", rows[1][2])
}

func TestWriteSummaries_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteSummaries(path, nil))

	rows := readCSV(t, path)
	require.Len(t, rows, 1) // header only
}
