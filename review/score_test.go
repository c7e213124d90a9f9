package review

import (
	"testing"

	"github.com/dshills/reviewflow-go/review/agent"
)

// TestHealthScore_WeightedAggregate verifies the weighted aggregate for a
// typical successful review: medium complexity costs 2 points, five or more
// reusable elements cost nothing, and an analysis score of 90 costs half the
// 10-point shortfall.
func TestHealthScore_WeightedAggregate(t *testing.T) {
	phases := []PhaseResult{
		completedFeature(agent.ComplexityMedium),
		completedCodebase(6),
		completedAnalysis(90),
	}

	got := HealthScore(phases)
	if got != 93 {
		t.Errorf("HealthScore = %d, want 93 (100 - 2 complexity - 0 reuse - 5 analysis)", got)
	}

	// Deterministic: the same phase outcomes always produce the same score.
	if again := HealthScore(phases); again != got {
		t.Errorf("HealthScore not deterministic: %d then %d", got, again)
	}
}

// TestHealthScore_ComplexityPenalty checks the feature-phase penalty across
// complexity classifications, holding the other phases at their best outcomes.
func TestHealthScore_ComplexityPenalty(t *testing.T) {
	tests := []struct {
		name       string
		complexity agent.Complexity
		want       int
	}{
		{"low complexity costs nothing", agent.ComplexityLow, 100},
		{"unknown complexity costs nothing", agent.ComplexityUnknown, 100},
		{"medium complexity costs 2", agent.ComplexityMedium, 98},
		{"high complexity costs 4", agent.ComplexityHigh, 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phases := []PhaseResult{
				completedFeature(tt.complexity),
				completedCodebase(5),
				completedAnalysis(100),
			}
			if got := HealthScore(phases); got != tt.want {
				t.Errorf("HealthScore = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestHealthScore_CodebasePenalty checks the codebase-phase penalty tiers:
// five or more reusable elements cost nothing, two to four cost 4.5 points,
// fewer cost the full 9-point partial penalty, and a fallback payload always
// costs the full partial penalty.
func TestHealthScore_CodebasePenalty(t *testing.T) {
	tests := []struct {
		name     string
		codebase PhaseResult
		want     int
	}{
		{"high reuse costs nothing", completedCodebase(5), 100},
		{"medium reuse costs 4.5 rounded up", completedCodebase(2), 96},
		{"single reusable element costs 9", completedCodebase(1), 91},
		{"no reuse costs 9", completedCodebase(0), 91},
		{"fallback payload costs 9", fallbackCodebase(), 91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phases := []PhaseResult{
				completedFeature(agent.ComplexityLow),
				tt.codebase,
				completedAnalysis(100),
			}
			if got := HealthScore(phases); got != tt.want {
				t.Errorf("HealthScore = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestHealthScore_AnalysisPenalty checks that the analysis phase contributes
// half the shortfall from the collaborator's own score, and the full 50-point
// weight when the phase failed or is missing.
func TestHealthScore_AnalysisPenalty(t *testing.T) {
	base := []PhaseResult{
		completedFeature(agent.ComplexityLow),
		completedCodebase(5),
	}

	tests := []struct {
		name     string
		analysis []PhaseResult
		want     int
	}{
		{"perfect analysis", []PhaseResult{completedAnalysis(100)}, 100},
		{"score 90 costs 5", []PhaseResult{completedAnalysis(90)}, 95},
		{"score 0 costs 50", []PhaseResult{completedAnalysis(0)}, 50},
		{"failed analysis costs full weight", []PhaseResult{{Name: PhaseCodeAnalysis, Status: PhaseFailed}}, 50},
		{"missing analysis costs full weight", nil, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phases := append(append([]PhaseResult{}, base...), tt.analysis...)
			if got := HealthScore(phases); got != tt.want {
				t.Errorf("HealthScore = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestHealthScore_MissingPhases verifies that absent phases cost their full
// weight: an empty result set scores 100 - 20 - 9 - 50 = 21.
func TestHealthScore_MissingPhases(t *testing.T) {
	if got := HealthScore(nil); got != 21 {
		t.Errorf("HealthScore(nil) = %d, want 21", got)
	}
	if got := HealthScore([]PhaseResult{}); got != 21 {
		t.Errorf("HealthScore(empty) = %d, want 21", got)
	}

	// A failed feature phase costs the same as a missing one.
	failed := []PhaseResult{
		{Name: PhaseFeatureUnderstanding, Status: PhaseFailed},
		completedCodebase(5),
		completedAnalysis(100),
	}
	if got := HealthScore(failed); got != 80 {
		t.Errorf("HealthScore with failed feature = %d, want 80", got)
	}
}

// TestHealthScore_Clamped verifies the [0,100] clamp against out-of-range
// collaborator scores.
func TestHealthScore_Clamped(t *testing.T) {
	tests := []struct {
		name          string
		analysisScore int
		want          int
	}{
		{"negative collaborator score clamps to 0", -200, 0},
		{"inflated collaborator score clamps to 100", 300, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phases := []PhaseResult{
				completedFeature(agent.ComplexityHigh),
				completedCodebase(0),
				completedAnalysis(tt.analysisScore),
			}
			if got := HealthScore(phases); got != tt.want {
				t.Errorf("HealthScore = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestUtilizationTier checks the reuse classification mirrored by the report:
// failed or fallback codebase context reports "limited", distinguishing
// missing context from genuinely low reuse.
func TestUtilizationTier(t *testing.T) {
	tests := []struct {
		name  string
		phase PhaseResult
		ok    bool
		want  string
	}{
		{"missing phase", PhaseResult{}, false, UtilizationLimited},
		{"failed phase", PhaseResult{Name: PhaseCodebaseLearning, Status: PhaseFailed}, true, UtilizationLimited},
		{"fallback payload", fallbackCodebase(), true, UtilizationLimited},
		{"five reusable elements", completedCodebase(5), true, UtilizationHigh},
		{"seven reusable elements", completedCodebase(7), true, UtilizationHigh},
		{"two reusable elements", completedCodebase(2), true, UtilizationMedium},
		{"four reusable elements", completedCodebase(4), true, UtilizationMedium},
		{"one reusable element", completedCodebase(1), true, UtilizationLow},
		{"no reusable elements", completedCodebase(0), true, UtilizationLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utilizationTier(tt.phase, tt.ok); got != tt.want {
				t.Errorf("utilizationTier = %q, want %q", got, tt.want)
			}
		})
	}
}

// completedFeature builds a completed feature understanding result with the
// given complexity.
func completedFeature(c agent.Complexity) PhaseResult {
	return PhaseResult{
		Name:   PhaseFeatureUnderstanding,
		Status: PhaseCompleted,
		Feature: &agent.FeatureContext{
			Success: true,
			Analysis: agent.FeatureAnalysis{
				BusinessPurpose: "Improve checkout reliability",
				Complexity:      c,
			},
		},
	}
}

// completedCodebase builds a completed codebase learning result reporting the
// given number of reusable functions.
func completedCodebase(reuse int) PhaseResult {
	funcs := make([]agent.ReusableFunction, reuse)
	for i := range funcs {
		funcs[i] = agent.ReusableFunction{Name: "Helper", File: "internal/util.go"}
	}
	return PhaseResult{
		Name:   PhaseCodebaseLearning,
		Status: PhaseCompleted,
		Codebase: &agent.CodebaseKnowledge{
			Success: true,
			Insights: agent.CodebaseInsights{
				ReusableFunctions: funcs,
				ReusablePatterns:  []agent.ReusablePattern{},
			},
		},
	}
}

// fallbackCodebase builds the phase result the orchestrator records when
// codebase learning fails and the fallback payload is substituted.
func fallbackCodebase() PhaseResult {
	fallback := agent.NewFallbackKnowledge()
	return PhaseResult{
		Name:     PhaseCodebaseLearning,
		Status:   PhaseFailed,
		Codebase: &fallback,
		Error:    "provider overloaded",
	}
}

// completedAnalysis builds a completed code analysis result with the given
// collaborator health score.
func completedAnalysis(score int) PhaseResult {
	return PhaseResult{
		Name:   PhaseCodeAnalysis,
		Status: PhaseCompleted,
		Analysis: &agent.CodeAnalysis{
			HealthScore: score,
			Feedback: agent.Feedback{
				Suggestions:      []agent.Suggestion{},
				PositiveFindings: []string{},
			},
		},
	}
}
