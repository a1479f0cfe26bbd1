package service

import (
	"sort"
	"strconv"

	"github.com/mirai-cascade-server/internal/domain"
)

// topFactorCount is the number of explanatory factors reported per prediction.
const topFactorCount = 3

// factorSpec describes one clinically meaningful field eligible for the
// top-factor list. Importance is the weighted absolute deviation of the
// observed value from a screening-population reference:
//
//	importance = weight * |value - refMean| / refScale
//
// Reference statistics are fixed alongside the trained models so the ranking
// is deterministic and reproducible for identical inputs.
type factorSpec struct {
	feature  string
	label    string
	refMean  float64
	refScale float64
	weight   float64
}

// factorTable is ordered; the order breaks importance ties.
var factorTable = []factorSpec{
	{feature: FeatFAQ, label: "FAQ Score", refMean: 2.0, refScale: 5.0, weight: 1.5},
	{feature: FeatPTau, label: "pTau-217", refMean: 0.22, refScale: 0.18, weight: 1.4},
	{feature: FeatAPOE4, label: "APOE4 Count", refMean: 0.4, refScale: 0.7, weight: 1.5},
	{feature: FeatEcogMem, label: "ECog Memory", refMean: 1.6, refScale: 0.7, weight: 0.9},
	{feature: FeatEcogTotal, label: "ECog Total", refMean: 1.5, refScale: 0.7, weight: 0.9},
	{feature: FeatNfL, label: "NfL", refMean: 15.0, refScale: 12.0, weight: 1.0},
}

// TopFactors ranks the executed stages' raw feature values by clinical
// importance and returns the top entries as human-readable strings, e.g.
// "FAQ Score: 8". Factors belonging to skipped stages are not considered.
func TopFactors(stages []domain.StageOutcome) []string {
	observed := make(map[string]float64)
	for _, outcome := range stages {
		if outcome.Skipped || outcome.Result == nil {
			continue
		}
		for _, f := range outcome.Result.Features {
			observed[f.Name] = f.Value
		}
	}

	type scored struct {
		spec       factorSpec
		value      float64
		importance float64
	}

	candidates := make([]scored, 0, len(factorTable))
	for _, spec := range factorTable {
		value, ok := observed[spec.feature]
		if !ok {
			continue
		}
		deviation := value - spec.refMean
		if deviation < 0 {
			deviation = -deviation
		}
		candidates = append(candidates, scored{
			spec:       spec,
			value:      value,
			importance: spec.weight * deviation / spec.refScale,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].importance > candidates[j].importance
	})

	n := topFactorCount
	if len(candidates) < n {
		n = len(candidates)
	}

	factors := make([]string, 0, n)
	for _, c := range candidates[:n] {
		factors = append(factors, c.spec.label+": "+formatFactorValue(c.value))
	}
	return factors
}

// formatFactorValue renders a feature value with the shortest decimal
// representation, so integer-valued features print without a fraction.
func formatFactorValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
