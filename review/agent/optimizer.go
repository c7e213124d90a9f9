package agent

import (
	"context"
	"encoding/json"
)

// ReviewContext is the combined context handed to the code analysis agent:
// the pull request plus the payloads produced by the earlier phases. It is
// passed through a ContextOptimizer first so oversized diffs and insight
// lists do not blow the provider's context window.
type ReviewContext struct {
	PR       PullRequest       `json:"pr"`
	Feature  FeatureContext    `json:"feature"`
	Codebase CodebaseKnowledge `json:"codebase"`

	// FocusAreas narrows the analysis (security, performance, style,
	// best-practices). An empty slice means a general review.
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// ContextOptimizer shrinks a ReviewContext for a target stage. The
// orchestrator measures encoded sizes around the call for telemetry only;
// optimization never affects control flow, and an optimizer error makes the
// orchestrator fall back to the unoptimized context.
type ContextOptimizer interface {
	Optimize(ctx context.Context, rc ReviewContext, stage string) (ReviewContext, error)
}

// TruncatingOptimizer is the default ContextOptimizer. It caps the bulky
// free-text fields and trims insight lists, keeping the head of each since
// providers weight early content most heavily.
type TruncatingOptimizer struct {
	// MaxDiffBytes caps PR.Diff and the per-file patches combined.
	MaxDiffBytes int

	// MaxListItems caps each insight and scope list.
	MaxListItems int
}

const (
	defaultMaxDiffBytes = 64 * 1024
	defaultMaxListItems = 20
)

// NewTruncatingOptimizer returns a TruncatingOptimizer with the default
// caps (64KiB of diff, 20 items per list).
func NewTruncatingOptimizer() *TruncatingOptimizer {
	return &TruncatingOptimizer{
		MaxDiffBytes: defaultMaxDiffBytes,
		MaxListItems: defaultMaxListItems,
	}
}

// Optimize applies the caps. It never fails; the error return exists to
// satisfy ContextOptimizer for implementations that can.
func (t *TruncatingOptimizer) Optimize(_ context.Context, rc ReviewContext, _ string) (ReviewContext, error) {
	maxDiff := t.MaxDiffBytes
	if maxDiff <= 0 {
		maxDiff = defaultMaxDiffBytes
	}
	maxItems := t.MaxListItems
	if maxItems <= 0 {
		maxItems = defaultMaxListItems
	}

	out := rc
	out.PR.Diff = truncate(rc.PR.Diff, maxDiff)

	if len(rc.PR.Files) > 0 {
		perFile := maxDiff / len(rc.PR.Files)
		if perFile < 1024 {
			perFile = 1024
		}
		files := make([]ChangedFile, len(rc.PR.Files))
		copy(files, rc.PR.Files)
		for i := range files {
			files[i].Patch = truncate(files[i].Patch, perFile)
		}
		out.PR.Files = files
	}

	out.Feature.Analysis.TechnicalScope = capStrings(rc.Feature.Analysis.TechnicalScope, maxItems)

	ins := rc.Codebase.Insights
	if len(ins.ReusableFunctions) > maxItems {
		ins.ReusableFunctions = append([]ReusableFunction(nil), ins.ReusableFunctions[:maxItems]...)
	}
	if len(ins.ReusablePatterns) > maxItems {
		ins.ReusablePatterns = append([]ReusablePattern(nil), ins.ReusablePatterns[:maxItems]...)
	}
	ins.ArchitecturalGuidance.FollowPatterns = capStrings(ins.ArchitecturalGuidance.FollowPatterns, maxItems)
	ins.ArchitecturalGuidance.AvoidPatterns = capStrings(ins.ArchitecturalGuidance.AvoidPatterns, maxItems)
	ins.ArchitecturalGuidance.IntegrationPoints = capStrings(ins.ArchitecturalGuidance.IntegrationPoints, maxItems)
	out.Codebase.Insights = ins

	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func capStrings(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return append([]string(nil), items[:max]...)
}

// EncodedSize returns the JSON-encoded size of v in bytes. The orchestrator
// measures ReviewContext sizes around optimization with it to derive the
// compression ratio it emits as telemetry.
func EncodedSize(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
