package review

import (
	"math"

	"github.com/dshills/reviewflow-go/review/agent"
)

// Phase weights for the aggregate health score. The analysis phase dominates
// because it scores the implementation itself; feature understanding only
// prices in complexity risk.
const (
	featureWeight  = 0.2
	codebaseWeight = 0.3
	analysisWeight = 0.5
)

// Codebase utilization tiers derived from the reuse count reported by the
// codebase learning phase.
const (
	UtilizationHigh    = "high"
	UtilizationMedium  = "medium"
	UtilizationLow     = "low"
	UtilizationLimited = "limited"
)

// HealthScore computes the weighted aggregate score for a set of phase
// outcomes, starting from 100 and subtracting per-phase penalties:
//
//   - Feature phase: failed costs the full weight; otherwise high complexity
//     costs weight*20, medium weight*10, low nothing.
//   - Codebase phase: failed or fallback costs weight*30 (a partial penalty,
//     since the workflow still completes); otherwise the reuse count sets the
//     penalty: >=5 reusable items none, >=2 weight*15, fewer weight*30.
//   - Analysis phase: failed costs the full weight; otherwise the shortfall
//     from the collaborator's own score, weight*(100-analysisScore).
//
// The result is clamped to [0,100] and rounded to the nearest integer. For
// fixed phase outcomes the score is identical across runs.
func HealthScore(phases []PhaseResult) int {
	score := 100.0
	score -= featurePenalty(findPhase(phases, PhaseFeatureUnderstanding))
	score -= codebasePenalty(findPhase(phases, PhaseCodebaseLearning))
	score -= analysisPenalty(findPhase(phases, PhaseCodeAnalysis))

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

func featurePenalty(p PhaseResult, ok bool) float64 {
	if !ok || p.Status == PhaseFailed || p.Feature == nil {
		return featureWeight * 100
	}

	switch p.Feature.Analysis.Complexity {
	case agent.ComplexityHigh:
		return featureWeight * 20
	case agent.ComplexityMedium:
		return featureWeight * 10
	default:
		return 0
	}
}

func codebasePenalty(p PhaseResult, ok bool) float64 {
	if !ok || p.Status == PhaseFailed || p.Codebase == nil || p.Codebase.Fallback {
		return codebaseWeight * 30
	}

	switch reuse := p.Codebase.ReuseCount(); {
	case reuse >= 5:
		return 0
	case reuse >= 2:
		return codebaseWeight * 15
	default:
		return codebaseWeight * 30
	}
}

func analysisPenalty(p PhaseResult, ok bool) float64 {
	if !ok || p.Status == PhaseFailed || p.Analysis == nil {
		return analysisWeight * 100
	}

	return analysisWeight * float64(100-p.Analysis.HealthScore)
}

// utilizationTier classifies how much of the existing codebase the change can
// lean on, mirroring the thresholds in codebasePenalty. A failed or fallback
// codebase phase reports "limited" rather than "low" to distinguish missing
// context from genuinely low reuse.
func utilizationTier(p PhaseResult, ok bool) string {
	if !ok || p.Status == PhaseFailed || p.Codebase == nil || p.Codebase.Fallback {
		return UtilizationLimited
	}

	switch reuse := p.Codebase.ReuseCount(); {
	case reuse >= 5:
		return UtilizationHigh
	case reuse >= 2:
		return UtilizationMedium
	default:
		return UtilizationLow
	}
}

func findPhase(phases []PhaseResult, name string) (PhaseResult, bool) {
	for _, p := range phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}
