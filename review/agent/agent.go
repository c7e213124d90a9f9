// Package agent defines the collaborator contracts consumed by the review
// orchestrator: the three analysis agents (feature understanding, codebase
// learning, code analysis), the context optimizer that runs before code
// analysis, and the request/result types they exchange.
//
// Implementations live in the subpackages anthropic, openai, and google.
// All of them are safe for concurrent use and respect context cancellation.
// The orchestrator never inspects provider internals; it consumes only the
// typed results declared here.
package agent

import (
	"context"
	"fmt"
)

// PullRequest describes the unit of work for one review workflow. It carries
// the identifying context plus the change content the agents analyze.
type PullRequest struct {
	// Repository is the owner/name slug of the repository under review.
	Repository string `json:"repository"`

	// Number is the pull request number within the repository.
	Number int `json:"number"`

	// Title is the pull request title.
	Title string `json:"title"`

	// Author is the login of the PR author, when known.
	Author string `json:"author,omitempty"`

	// Description is the PR body text.
	Description string `json:"description,omitempty"`

	// BaseBranch and HeadBranch identify the merge direction.
	BaseBranch string `json:"base_branch,omitempty"`
	HeadBranch string `json:"head_branch,omitempty"`

	// Diff is the unified diff of the change.
	Diff string `json:"diff"`

	// Files lists the changed files with per-file patches, when available.
	Files []ChangedFile `json:"files,omitempty"`
}

// ChangedFile is one file touched by the pull request.
type ChangedFile struct {
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Complexity is the feature-level complexity classification reported by the
// feature understanding agent.
type Complexity string

const (
	ComplexityLow     Complexity = "low"
	ComplexityMedium  Complexity = "medium"
	ComplexityHigh    Complexity = "high"
	ComplexityUnknown Complexity = "unknown"
)

// FeatureContext is the result of the feature understanding phase.
type FeatureContext struct {
	// Success reports whether the agent produced a usable analysis.
	Success bool `json:"success"`

	// Analysis holds the structured feature understanding.
	Analysis FeatureAnalysis `json:"analysis"`

	// Usage records token consumption for the underlying LLM call, when the
	// implementation is API-backed.
	Usage *Usage `json:"usage,omitempty"`
}

// FeatureAnalysis is the structured payload inside a FeatureContext.
type FeatureAnalysis struct {
	// BusinessPurpose is a one-or-two sentence statement of what the change
	// accomplishes for users or the business.
	BusinessPurpose string `json:"business_purpose"`

	// Complexity classifies the change as low, medium, or high.
	Complexity Complexity `json:"complexity"`

	// UserImpact describes who is affected and how.
	UserImpact string `json:"user_impact,omitempty"`

	// TechnicalScope lists the subsystems the change touches.
	TechnicalScope []string `json:"technical_scope,omitempty"`
}

// CodebaseKnowledge is the result of the codebase learning phase.
//
// When the phase fails, the orchestrator substitutes the fallback payload
// from NewFallbackKnowledge and continues; downstream consumers can rely on
// the insight lists being non-nil either way.
type CodebaseKnowledge struct {
	// Success reports whether the agent produced real insights.
	Success bool `json:"success"`

	// Fallback is true only for the substitute payload used after a
	// codebase learning failure.
	Fallback bool `json:"fallback"`

	// Insights holds the reuse and architecture guidance extracted from the
	// codebase.
	Insights CodebaseInsights `json:"insights"`

	Usage *Usage `json:"usage,omitempty"`
}

// CodebaseInsights groups the reusable elements and architectural guidance
// discovered by the codebase learning agent.
type CodebaseInsights struct {
	ReusableFunctions     []ReusableFunction    `json:"reusable_functions"`
	ReusablePatterns      []ReusablePattern     `json:"reusable_patterns"`
	ArchitecturalGuidance ArchitecturalGuidance `json:"architectural_guidance"`
}

// ReusableFunction points at an existing function the change could reuse.
type ReusableFunction struct {
	Name    string `json:"name"`
	File    string `json:"file,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// ReusablePattern names an established implementation pattern in the codebase.
type ReusablePattern struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// ArchitecturalGuidance carries the follow/avoid pattern lists and the
// integration points relevant to the change.
type ArchitecturalGuidance struct {
	FollowPatterns    []string `json:"follow_patterns"`
	AvoidPatterns     []string `json:"avoid_patterns"`
	IntegrationPoints []string `json:"integration_points"`
}

// ReuseCount returns the combined number of reusable functions and patterns.
// The health score and the report both classify codebase utilization from
// this count.
func (k CodebaseKnowledge) ReuseCount() int {
	return len(k.Insights.ReusableFunctions) + len(k.Insights.ReusablePatterns)
}

// NewFallbackKnowledge returns the well-typed substitute payload used when
// codebase learning fails: Success false, Fallback true, and empty (but
// non-nil) insight lists.
func NewFallbackKnowledge() CodebaseKnowledge {
	return CodebaseKnowledge{
		Success:  false,
		Fallback: true,
		Insights: CodebaseInsights{
			ReusableFunctions: []ReusableFunction{},
			ReusablePatterns:  []ReusablePattern{},
			ArchitecturalGuidance: ArchitecturalGuidance{
				FollowPatterns:    []string{},
				AvoidPatterns:     []string{},
				IntegrationPoints: []string{},
			},
		},
	}
}

// Severity classifies a code analysis suggestion.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
	SeverityInfo       Severity = "info"
)

// CodeAnalysis is the result of the code analysis phase.
type CodeAnalysis struct {
	// HealthScore is the agent's own quality assessment in [0,100]. It feeds
	// the workflow-level weighted health score.
	HealthScore int `json:"health_score"`

	// Feedback holds the detailed findings.
	Feedback Feedback `json:"feedback"`

	Usage *Usage `json:"usage,omitempty"`
}

// Feedback is the structured payload inside a CodeAnalysis.
type Feedback struct {
	Suggestions            []Suggestion    `json:"suggestions"`
	PositiveFindings       []string        `json:"positive_findings"`
	Summary                AnalysisSummary `json:"summary"`
	TestingRecommendations []string        `json:"testing_recommendations"`
}

// AnalysisSummary is the agent's own rollup of the analysis.
type AnalysisSummary struct {
	RiskLevel   string   `json:"risk_level"`
	KeyFindings []string `json:"key_findings"`
}

// Suggestion is one issue or improvement surfaced by code analysis.
type Suggestion struct {
	// Severity must be one of critical, warning, suggestion, or info.
	Severity Severity `json:"severity"`

	// Category groups related suggestions (security, performance, style,
	// best-practice, reuse).
	Category string `json:"category,omitempty"`

	// File and Line locate the issue; Line 0 means file- or change-level.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`

	// Description states the issue.
	Description string `json:"description"`

	// Remediation states how to fix it.
	Remediation string `json:"remediation,omitempty"`
}

// Validate checks that a suggestion carries the fields the report
// consolidator depends on.
func (s Suggestion) Validate() error {
	switch s.Severity {
	case SeverityCritical, SeverityWarning, SeveritySuggestion, SeverityInfo:
	default:
		return &AgentError{
			Code:    "invalid_severity",
			Message: fmt.Sprintf("unknown severity %q", s.Severity),
		}
	}
	if s.Description == "" {
		return &AgentError{
			Code:    "missing_description",
			Message: "suggestion has no description",
		}
	}
	return nil
}

// Usage records token consumption for one collaborator LLM call.
type Usage struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// FeatureAnalyzer produces the feature understanding result for a pull
// request. A failure here is fatal to the workflow.
//
// Implementations should respect context cancellation and return promptly
// when ctx.Done() is signaled. Transient provider failures should surface as
// retryable AgentErrors so the shared retry helper can handle them.
type FeatureAnalyzer interface {
	// AnalyzeFeature extracts the business purpose, complexity, and scope of
	// the change.
	AnalyzeFeature(ctx context.Context, pr PullRequest) (FeatureContext, error)

	// Name returns the provider name for logging and cost attribution
	// (for example "anthropic", "openai", "google", "mock").
	Name() string
}

// CodebaseLearner extracts reuse opportunities and architectural guidance
// relevant to the change. A failure here is recoverable: the orchestrator
// substitutes NewFallbackKnowledge and continues.
type CodebaseLearner interface {
	// LearnCodebase studies the change in the light of the already-computed
	// feature context.
	LearnCodebase(ctx context.Context, pr PullRequest, feature FeatureContext) (CodebaseKnowledge, error)

	Name() string
}

// CodeAnalyzer performs the implementation review over the optimized
// combined context. A failure here is fatal to the workflow.
type CodeAnalyzer interface {
	// AnalyzeCode reviews the change and returns scored feedback.
	AnalyzeCode(ctx context.Context, rc ReviewContext) (CodeAnalysis, error)

	Name() string
}
