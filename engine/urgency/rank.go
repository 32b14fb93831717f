package urgency

import (
	"sort"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// Severity bonuses added to the usage percentage.
const (
	CriticalBonus    = 200.0
	HeavilyWornBonus = 100.0
)

// Score is the ranking key of one diagnostic.
func Score(r domain.DiagnosticResult) float64 {
	s := r.UsageFraction * 100
	switch r.Verdict.Label {
	case domain.WearCriticalFailure:
		s += CriticalBonus
	case domain.WearHeavilyWorn:
		s += HeavilyWornBonus
	}
	return s
}

// Rank orders results by descending score. Ties keep their input order.
func Rank(results []domain.DiagnosticResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return Score(results[i]) > Score(results[j])
	})
}
