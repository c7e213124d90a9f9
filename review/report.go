package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/reviewflow-go/review/agent"
)

// ReportStatus marks whether a report was fully consolidated or degraded to
// the fallback shape.
type ReportStatus string

const (
	// ReportComplete marks a report built from all phase outputs.
	ReportComplete ReportStatus = "complete"

	// ReportPartial marks a fallback report synthesized after a
	// consolidation failure. The workflow itself still completes.
	ReportPartial ReportStatus = "partial"
)

// Finding is a single categorized review finding.
type Finding struct {
	Severity    agent.Severity
	Category    string
	File        string
	Line        int
	Description string
	Remediation string
}

// Recommendation is a single suggested action. Tag marks the origin for
// non-severity-derived items (e.g. "testing", "architecture").
type Recommendation struct {
	Action string
	Tag    string
}

// Summary is the executive summary section of a report.
type Summary struct {
	Purpose             string
	Complexity          agent.Complexity
	RiskLevel           string
	KeyFindings         []string
	CodebaseUtilization string
	Assessment          string
}

// Findings groups findings into four disjoint lists by severity.
type Findings struct {
	Critical    []Finding
	Warnings    []Finding
	Suggestions []Finding
	Positive    []string
}

// Recommendations groups suggested actions into three urgency tiers.
type Recommendations struct {
	Immediate []Recommendation
	ShortTerm []Recommendation
	LongTerm  []Recommendation
}

// WorkflowSummary carries execution telemetry into the report.
type WorkflowSummary struct {
	TotalDuration time.Duration
	Phases        []PhaseResult

	// Efficiency maps each executed phase to a duration rating.
	Efficiency map[string]string
}

// Report is the consolidated output of a review workflow, produced at most
// once per workflow.
type Report struct {
	Status          ReportStatus
	HealthScore     int
	Summary         Summary
	Findings        Findings
	Recommendations Recommendations
	Workflow        WorkflowSummary
	GeneratedAt     time.Time
}

// ConsolidateReport merges the phase outputs recorded in state into a final
// report. It never returns an error: any failure during consolidation is
// absorbed and replaced with a minimal fallback report carrying
// ReportPartial status, a fixed health score of 50, and a single critical
// finding describing the failure. Callers therefore always receive a
// well-formed report.
func ConsolidateReport(state WorkflowState, now time.Time) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			report = fallbackReport(state, now, fmt.Sprintf("%v", r))
		}
	}()

	feature, featureOK := state.Phase(PhaseFeatureUnderstanding)
	codebase, codebaseOK := state.Phase(PhaseCodebaseLearning)
	analysis, analysisOK := state.Phase(PhaseCodeAnalysis)

	score := HealthScore(state.Phases)
	tier := utilizationTier(codebase, codebaseOK)

	report = Report{
		Status:          ReportComplete,
		HealthScore:     score,
		Summary:         buildSummary(feature, featureOK, codebase, codebaseOK, analysis, analysisOK, score, tier),
		Findings:        buildFindings(codebase, analysis),
		Recommendations: buildRecommendations(codebase, analysis),
		Workflow:        workflowSummary(state, now),
		GeneratedAt:     now,
	}
	return report
}

func buildSummary(feature PhaseResult, featureOK bool, codebase PhaseResult, codebaseOK bool, analysis PhaseResult, analysisOK bool, score int, tier string) Summary {
	s := Summary{
		Purpose:             "Purpose not determined",
		Complexity:          agent.ComplexityUnknown,
		RiskLevel:           "unknown",
		KeyFindings:         []string{},
		CodebaseUtilization: tier,
	}

	if featureOK && feature.Status == PhaseCompleted && feature.Feature != nil {
		if p := feature.Feature.Analysis.BusinessPurpose; p != "" {
			s.Purpose = p
		}
		if c := feature.Feature.Analysis.Complexity; c != "" {
			s.Complexity = c
		}
	}

	if analysisOK && analysis.Status == PhaseCompleted && analysis.Analysis != nil {
		sum := analysis.Analysis.Feedback.Summary
		if sum.RiskLevel != "" {
			s.RiskLevel = sum.RiskLevel
		}
		if len(sum.KeyFindings) > 0 {
			s.KeyFindings = append(s.KeyFindings, sum.KeyFindings...)
		}
	}

	s.Assessment = buildAssessment(s.Purpose, codebase, codebaseOK, score)
	return s
}

// buildAssessment composes the free-text assessment from the feature purpose,
// a reuse framing sentence, and a quality statement gated on the health score
// (>=80 high, >=60 acceptable, below that needs improvement).
func buildAssessment(purpose string, codebase PhaseResult, codebaseOK bool, score int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "This change addresses: %s.", strings.TrimSuffix(purpose, "."))

	if !codebaseOK || codebase.Status == PhaseFailed || codebase.Codebase == nil || codebase.Codebase.Fallback {
		sb.WriteString(" Codebase context was unavailable for this review.")
	} else if reuse := codebase.Codebase.ReuseCount(); reuse > 0 {
		fmt.Fprintf(&sb, " It can leverage %d existing codebase elements.", reuse)
	} else {
		sb.WriteString(" No existing codebase elements were identified for reuse.")
	}

	switch {
	case score >= 80:
		sb.WriteString(" Overall implementation quality is high.")
	case score >= 60:
		sb.WriteString(" Overall implementation quality is acceptable.")
	default:
		sb.WriteString(" Overall implementation quality needs improvement.")
	}

	return sb.String()
}

// buildFindings buckets every analysis suggestion by its declared severity
// and injects a synthetic reuse suggestion for each reusable function the
// codebase phase surfaced. Positive findings are copied verbatim.
func buildFindings(codebase PhaseResult, analysis PhaseResult) Findings {
	f := Findings{
		Critical:    []Finding{},
		Warnings:    []Finding{},
		Suggestions: []Finding{},
		Positive:    []string{},
	}

	if analysis.Analysis != nil {
		for _, s := range analysis.Analysis.Feedback.Suggestions {
			finding := Finding{
				Severity:    s.Severity,
				Category:    s.Category,
				File:        s.File,
				Line:        s.Line,
				Description: s.Description,
				Remediation: s.Remediation,
			}
			switch s.Severity {
			case agent.SeverityCritical:
				f.Critical = append(f.Critical, finding)
			case agent.SeverityWarning:
				f.Warnings = append(f.Warnings, finding)
			default:
				// suggestion and info both land in the suggestions list
				f.Suggestions = append(f.Suggestions, finding)
			}
		}
		f.Positive = append(f.Positive, analysis.Analysis.Feedback.PositiveFindings...)
	}

	if codebase.Codebase != nil {
		for _, fn := range codebase.Codebase.Insights.ReusableFunctions {
			f.Suggestions = append(f.Suggestions, Finding{
				Severity:    agent.SeveritySuggestion,
				Category:    "reuse",
				File:        fn.File,
				Description: fmt.Sprintf("Consider reusing %s: %s", fn.Name, fn.Purpose),
			})
		}
	}

	return f
}

// buildRecommendations tiers actions by urgency: critical suggestions become
// immediate actions, warnings and testing recommendations become short-term
// actions, and architectural follow-pattern guidance becomes long-term
// actions.
func buildRecommendations(codebase PhaseResult, analysis PhaseResult) Recommendations {
	r := Recommendations{
		Immediate: []Recommendation{},
		ShortTerm: []Recommendation{},
		LongTerm:  []Recommendation{},
	}

	if analysis.Analysis != nil {
		for _, s := range analysis.Analysis.Feedback.Suggestions {
			switch s.Severity {
			case agent.SeverityCritical:
				r.Immediate = append(r.Immediate, Recommendation{Action: actionText("Address critical issue", s)})
			case agent.SeverityWarning:
				r.ShortTerm = append(r.ShortTerm, Recommendation{Action: actionText("Resolve warning", s)})
			}
		}
		for _, rec := range analysis.Analysis.Feedback.TestingRecommendations {
			r.ShortTerm = append(r.ShortTerm, Recommendation{Action: rec, Tag: "testing"})
		}
	}

	if codebase.Codebase != nil {
		for _, pattern := range codebase.Codebase.Insights.ArchitecturalGuidance.FollowPatterns {
			r.LongTerm = append(r.LongTerm, Recommendation{
				Action: "Follow established pattern: " + pattern,
				Tag:    "architecture",
			})
		}
	}

	return r
}

func actionText(prefix string, s agent.Suggestion) string {
	if s.File != "" {
		return fmt.Sprintf("%s in %s: %s", prefix, s.File, s.Description)
	}
	return fmt.Sprintf("%s: %s", prefix, s.Description)
}

func workflowSummary(state WorkflowState, now time.Time) WorkflowSummary {
	phases := make([]PhaseResult, len(state.Phases))
	copy(phases, state.Phases)

	efficiency := make(map[string]string, len(phases))
	for _, p := range phases {
		efficiency[p.Name] = efficiencyRating(p.Duration)
	}

	return WorkflowSummary{
		TotalDuration: state.Elapsed(now),
		Phases:        phases,
		Efficiency:    efficiency,
	}
}

// efficiencyRating grades a phase duration. Thresholds reflect typical LLM
// round-trip times: a phase under 10s is excellent, under 30s good, under a
// minute acceptable, anything longer slow.
func efficiencyRating(d time.Duration) string {
	switch {
	case d < 10*time.Second:
		return "excellent"
	case d < 30*time.Second:
		return "good"
	case d < time.Minute:
		return "acceptable"
	default:
		return "slow"
	}
}

func fallbackReport(state WorkflowState, now time.Time, cause string) Report {
	return Report{
		Status:      ReportPartial,
		HealthScore: 50,
		Summary: Summary{
			Purpose:             "Purpose not determined",
			Complexity:          agent.ComplexityUnknown,
			RiskLevel:           "unknown",
			KeyFindings:         []string{},
			CodebaseUtilization: UtilizationLimited,
			Assessment:          "Report generation failed; results are partial.",
		},
		Findings: Findings{
			Critical: []Finding{{
				Severity:    agent.SeverityCritical,
				Category:    "report",
				Description: "Report generation failed: " + cause,
			}},
			Warnings:    []Finding{},
			Suggestions: []Finding{},
			Positive:    []string{},
		},
		Recommendations: Recommendations{
			Immediate: []Recommendation{{
				Action: "Re-run the review; automated report generation did not complete",
			}},
			ShortTerm: []Recommendation{},
			LongTerm:  []Recommendation{},
		},
		Workflow:    workflowSummary(state, now),
		GeneratedAt: now,
	}
}
