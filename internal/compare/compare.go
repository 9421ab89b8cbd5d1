package compare

import (
	"sort"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Result carries the comparisons plus the pairs that could not be
// compared, so cells that never completed stay visible.
type Result struct {
	Records []models.ComparisonRecord
	Gaps    []models.ComparisonGap
}

// Compare joins summaries across two index configurations. Only pairs
// where both sides are complete produce a ComparisonRecord; a missing
// or incomplete side becomes a ComparisonGap. Output order is by
// descending speedup ratio, ties broken by query_id ascending.
func Compare(summaries []models.SummaryRecord, baselineConfig, treatmentConfig string) Result {
	type pairKey struct {
		queryID string
		scale   string
	}

	baseline := make(map[pairKey]models.SummaryRecord)
	treatment := make(map[pairKey]models.SummaryRecord)
	var order []pairKey
	seen := make(map[pairKey]bool)

	for _, s := range summaries {
		key := pairKey{queryID: s.QueryID, scale: s.Scale}
		switch s.IndexConfig {
		case baselineConfig:
			baseline[key] = s
		case treatmentConfig:
			treatment[key] = s
		default:
			continue
		}
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].scale != order[j].scale {
			return order[i].scale < order[j].scale
		}
		return order[i].queryID < order[j].queryID
	})

	var result Result
	for _, key := range order {
		base, haveBase := baseline[key]
		treat, haveTreat := treatment[key]

		switch {
		case !haveBase:
			result.Gaps = append(result.Gaps, models.ComparisonGap{
				QueryID: key.queryID, Scale: key.scale,
				Missing: baselineConfig,
			})
			continue
		case !haveTreat:
			result.Gaps = append(result.Gaps, models.ComparisonGap{
				QueryID: key.queryID, Scale: key.scale,
				Missing: treatmentConfig,
			})
			continue
		case base.Incomplete:
			result.Gaps = append(result.Gaps, models.ComparisonGap{
				QueryID: key.queryID, Scale: key.scale,
				Missing: baselineConfig + " (incomplete)",
			})
			continue
		case treat.Incomplete:
			result.Gaps = append(result.Gaps, models.ComparisonGap{
				QueryID: key.queryID, Scale: key.scale,
				Missing: treatmentConfig + " (incomplete)",
			})
			continue
		case treat.MeanMs == 0:
			// A zero denominator would put +Inf into the report.
			result.Gaps = append(result.Gaps, models.ComparisonGap{
				QueryID: key.queryID, Scale: key.scale,
				Missing: treatmentConfig + " (zero mean)",
			})
			continue
		}

		result.Records = append(result.Records, models.ComparisonRecord{
			QueryID:         key.queryID,
			Scale:           key.scale,
			BaselineConfig:  baselineConfig,
			TreatmentConfig: treatmentConfig,
			BaselineMeanMs:  base.MeanMs,
			TreatmentMeanMs: treat.MeanMs,
			SpeedupRatio:    base.MeanMs / treat.MeanMs,
			PlanChanged:     planChanged(base, treat),
		})
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		a, b := result.Records[i], result.Records[j]
		if a.SpeedupRatio != b.SpeedupRatio {
			return a.SpeedupRatio > b.SpeedupRatio
		}
		return a.QueryID < b.QueryID
	})

	return result
}

// planChanged treats a one-sided fingerprint as a change; two missing
// fingerprints say nothing, so they compare equal.
func planChanged(base, treat models.SummaryRecord) bool {
	if base.Fingerprint == "" && treat.Fingerprint == "" {
		return false
	}
	return base.Fingerprint != treat.Fingerprint
}
