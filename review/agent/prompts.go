package agent

import (
	"fmt"
	"strings"
)

// The provider subpackages share one canonical prompt per phase so results
// stay comparable across providers. Each builder asks for a single JSON
// object and nothing else; ExtractJSONObject strips any wrapping prose the
// model adds anyway.

// FeaturePrompt builds the feature understanding prompt for a pull request.
func FeaturePrompt(pr PullRequest) string {
	var sb strings.Builder

	sb.WriteString("You are an expert software analyst. Study the following pull request ")
	sb.WriteString("and explain what it is for.\n\n")
	writePRSection(&sb, pr)

	sb.WriteString("\nRespond with ONLY a JSON object with these fields:\n")
	sb.WriteString("- business_purpose: 1-2 sentences on what the change accomplishes\n")
	sb.WriteString("- complexity: one of [low, medium, high]\n")
	sb.WriteString("- user_impact: who is affected and how\n")
	sb.WriteString("- technical_scope: array of subsystem names the change touches\n\n")
	sb.WriteString("Example format:\n")
	sb.WriteString(`{"business_purpose":"Adds rate limiting to the public API.",`)
	sb.WriteString(`"complexity":"medium","user_impact":"API consumers see 429 responses beyond quota.",`)
	sb.WriteString(`"technical_scope":["http middleware","configuration"]}`)

	return sb.String()
}

// CodebasePrompt builds the codebase learning prompt. It includes the
// feature context so the agent looks for reuse relevant to the change's
// purpose.
func CodebasePrompt(pr PullRequest, feature FeatureContext) string {
	var sb strings.Builder

	sb.WriteString("You are an expert on this codebase. Given the pull request below, ")
	sb.WriteString("identify existing functions and patterns the change could reuse, ")
	sb.WriteString("and the architectural guidance it should follow.\n\n")

	sb.WriteString("Feature context: ")
	sb.WriteString(feature.Analysis.BusinessPurpose)
	if feature.Analysis.Complexity != "" {
		fmt.Fprintf(&sb, " (complexity: %s)", feature.Analysis.Complexity)
	}
	sb.WriteString("\n\n")
	writePRSection(&sb, pr)

	sb.WriteString("\nRespond with ONLY a JSON object with these fields:\n")
	sb.WriteString("- reusable_functions: array of {name, file, purpose}\n")
	sb.WriteString("- reusable_patterns: array of {name, description, example}\n")
	sb.WriteString("- architectural_guidance: {follow_patterns: [], avoid_patterns: [], integration_points: []}\n\n")
	sb.WriteString("Use empty arrays when nothing applies. Example format:\n")
	sb.WriteString(`{"reusable_functions":[{"name":"ValidateToken","file":"auth/token.go",`)
	sb.WriteString(`"purpose":"JWT validation"}],"reusable_patterns":[],`)
	sb.WriteString(`"architectural_guidance":{"follow_patterns":["table-driven tests"],`)
	sb.WriteString(`"avoid_patterns":[],"integration_points":["auth middleware"]}}`)

	return sb.String()
}

// AnalysisPrompt builds the code analysis prompt from the optimized review
// context.
func AnalysisPrompt(rc ReviewContext) string {
	var sb strings.Builder

	sb.WriteString("You are an expert code reviewer. Review the implementation in the ")
	sb.WriteString("pull request below and score its health.\n\n")

	if len(rc.FocusAreas) > 0 {
		sb.WriteString("Focus on these areas: ")
		sb.WriteString(strings.Join(rc.FocusAreas, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Feature context: ")
	sb.WriteString(rc.Feature.Analysis.BusinessPurpose)
	sb.WriteString("\n")

	if rc.Codebase.Fallback {
		sb.WriteString("Codebase context: unavailable for this review.\n\n")
	} else if n := rc.Codebase.ReuseCount(); n > 0 {
		fmt.Fprintf(&sb, "Codebase context: %d reusable elements identified:\n", n)
		for _, fn := range rc.Codebase.Insights.ReusableFunctions {
			fmt.Fprintf(&sb, "- function %s (%s): %s\n", fn.Name, fn.File, fn.Purpose)
		}
		for _, p := range rc.Codebase.Insights.ReusablePatterns {
			fmt.Fprintf(&sb, "- pattern %s: %s\n", p.Name, p.Description)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Codebase context: no reusable elements identified.\n\n")
	}

	writePRSection(&sb, rc.PR)

	sb.WriteString("\nRespond with ONLY a JSON object with these fields:\n")
	sb.WriteString("- health_score: integer 0-100 for overall implementation quality\n")
	sb.WriteString("- feedback: object with:\n")
	sb.WriteString("  - suggestions: array of {severity, category, file, line, description, remediation}\n")
	sb.WriteString("    where severity is one of [critical, warning, suggestion, info]\n")
	sb.WriteString("    and category is one of [security, performance, style, best-practice]\n")
	sb.WriteString("  - positive_findings: array of strings naming things done well\n")
	sb.WriteString("  - summary: {risk_level: one of [low, medium, high], key_findings: []}\n")
	sb.WriteString("  - testing_recommendations: array of strings\n\n")
	sb.WriteString("Use empty arrays when nothing applies. If the code is flawless, ")
	sb.WriteString("return an empty suggestions array and a high health_score.")

	return sb.String()
}

func writePRSection(sb *strings.Builder, pr PullRequest) {
	fmt.Fprintf(sb, "Pull request #%d in %s: %s\n", pr.Number, pr.Repository, pr.Title)
	if pr.Author != "" {
		fmt.Fprintf(sb, "Author: %s\n", pr.Author)
	}
	if pr.Description != "" {
		sb.WriteString("Description:\n")
		sb.WriteString(pr.Description)
		sb.WriteString("\n")
	}

	if len(pr.Files) > 0 {
		sb.WriteString("\nChanged files:\n")
		for _, f := range pr.Files {
			fmt.Fprintf(sb, "File: %s (+%d/-%d)\n", f.Path, f.Additions, f.Deletions)
			if f.Patch != "" {
				sb.WriteString("```")
				sb.WriteString(f.Language)
				sb.WriteString("\n")
				sb.WriteString(f.Patch)
				sb.WriteString("\n```\n")
			}
		}
	}

	if pr.Diff != "" {
		sb.WriteString("\nDiff:\n```diff\n")
		sb.WriteString(pr.Diff)
		sb.WriteString("\n```\n")
	}
}
