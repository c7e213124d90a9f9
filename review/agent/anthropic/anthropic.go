// Package anthropic implements the review agents on Anthropic's Claude API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/reviewflow-go/review/agent"
)

// DefaultModel is the Claude model used when none is specified.
const DefaultModel = "claude-3-5-sonnet-20241022"

// Agents implements agent.FeatureAnalyzer, agent.CodebaseLearner, and
// agent.CodeAnalyzer using Anthropic's Claude API.
//
// It wraps the official anthropic-sdk-go client, formats each phase request
// into a prompt, and parses the structured JSON responses into the agent
// result types.
//
// Agents is safe for concurrent use after creation. The underlying SDK
// client handles concurrent requests safely.
//
// Example usage:
//
//	agents := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), "")
//	orc, err := review.New(agents, agents, agents)
type Agents struct {
	client *anthropic.Client
	model  string
	retry  agent.RetryPolicy
}

// New creates Claude-backed review agents with the given API key and model.
// The model parameter should be one of Claude's available models:
//   - claude-3-5-sonnet-20241022 (recommended, most capable)
//   - claude-3-opus-20240229 (highest capability, slower)
//   - claude-3-haiku-20240307 (fastest, lower cost)
//
// An empty model uses DefaultModel. The API key can be obtained from
// https://console.anthropic.com/
func New(apiKey, model string) *Agents {
	if model == "" {
		model = DefaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Agents{
		client: &client,
		model:  model,
		retry:  agent.DefaultRetryPolicy,
	}
}

// SetRetryPolicy replaces the retry policy applied to API calls. Configure
// before the Agents value is shared across goroutines.
func (a *Agents) SetRetryPolicy(p agent.RetryPolicy) {
	a.retry = p
}

// Name returns "anthropic" as the provider identifier.
func (a *Agents) Name() string {
	return "anthropic"
}

// AnalyzeFeature implements agent.FeatureAnalyzer by asking Claude for the
// business purpose, complexity, and scope of the change.
func (a *Agents) AnalyzeFeature(ctx context.Context, pr agent.PullRequest) (agent.FeatureContext, error) {
	text, usage, err := a.complete(ctx, agent.FeaturePrompt(pr))
	if err != nil {
		return agent.FeatureContext{}, err
	}

	var analysis agent.FeatureAnalysis
	if err := agent.ExtractJSONObject(text, &analysis); err != nil {
		return agent.FeatureContext{}, &agent.AgentError{
			Code:    "parse_error",
			Message: fmt.Sprintf("failed to parse feature analysis: %v", err),
			Cause:   err,
		}
	}
	if analysis.Complexity == "" {
		analysis.Complexity = agent.ComplexityUnknown
	}

	return agent.FeatureContext{
		Success:  true,
		Analysis: analysis,
		Usage:    usage,
	}, nil
}

// LearnCodebase implements agent.CodebaseLearner by asking Claude for reuse
// opportunities and architectural guidance relevant to the change.
func (a *Agents) LearnCodebase(ctx context.Context, pr agent.PullRequest, feature agent.FeatureContext) (agent.CodebaseKnowledge, error) {
	text, usage, err := a.complete(ctx, agent.CodebasePrompt(pr, feature))
	if err != nil {
		return agent.CodebaseKnowledge{}, err
	}

	var insights agent.CodebaseInsights
	if err := agent.ExtractJSONObject(text, &insights); err != nil {
		return agent.CodebaseKnowledge{}, &agent.AgentError{
			Code:    "parse_error",
			Message: fmt.Sprintf("failed to parse codebase insights: %v", err),
			Cause:   err,
		}
	}

	return agent.CodebaseKnowledge{
		Success:  true,
		Insights: insights,
		Usage:    usage,
	}, nil
}

// AnalyzeCode implements agent.CodeAnalyzer by asking Claude to review the
// implementation and score its health.
func (a *Agents) AnalyzeCode(ctx context.Context, rc agent.ReviewContext) (agent.CodeAnalysis, error) {
	text, usage, err := a.complete(ctx, agent.AnalysisPrompt(rc))
	if err != nil {
		return agent.CodeAnalysis{}, err
	}

	var analysis agent.CodeAnalysis
	if err := agent.ExtractJSONObject(text, &analysis); err != nil {
		return agent.CodeAnalysis{}, &agent.AgentError{
			Code:    "parse_error",
			Message: fmt.Sprintf("failed to parse code analysis: %v", err),
			Cause:   err,
		}
	}

	sanitizeAnalysis(&analysis)
	analysis.Usage = usage
	return analysis, nil
}

// sanitizeAnalysis clamps the health score into [0,100] and drops malformed
// suggestions while keeping the rest.
func sanitizeAnalysis(analysis *agent.CodeAnalysis) {
	if analysis.HealthScore < 0 {
		analysis.HealthScore = 0
	}
	if analysis.HealthScore > 100 {
		analysis.HealthScore = 100
	}

	valid := make([]agent.Suggestion, 0, len(analysis.Feedback.Suggestions))
	for _, s := range analysis.Feedback.Suggestions {
		if err := s.Validate(); err != nil {
			continue
		}
		valid = append(valid, s)
	}
	analysis.Feedback.Suggestions = valid
}

// complete sends one prompt to Claude and returns the response text plus
// token usage. Retryable failures are retried per the configured policy.
func (a *Agents) complete(ctx context.Context, prompt string) (string, *agent.Usage, error) {
	var (
		text  string
		usage *agent.Usage
	)

	err := a.retry.Do(ctx, func() error {
		message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return a.mapAPIError(err)
		}

		text = ""
		for _, block := range message.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		usage = &agent.Usage{
			Model:        a.model,
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	if text == "" {
		return "", usage, agent.ErrEmptyResponse
	}
	return text, usage, nil
}

// mapAPIError converts Anthropic SDK errors to AgentError values.
// It distinguishes between:
//   - Authentication errors (401, 403) -> invalid_api_key (permanent)
//   - Rate limit errors (429) -> rate_limited (retryable)
//   - Overload errors (529) -> overloaded (retryable)
//   - Timeout errors -> timeout (retryable)
//   - Other API errors -> api_error (permanent)
//
// Context cancellation passes through unchanged so callers see ctx.Err().
func (a *Agents) mapAPIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agent.AgentError{
			Code:      "timeout",
			Message:   "Anthropic API request timed out",
			Retryable: true,
			Cause:     err,
		}
	}

	lowerErr := strings.ToLower(err.Error())

	// Authentication errors (401, 403)
	if strings.Contains(lowerErr, "401") ||
		strings.Contains(lowerErr, "403") ||
		strings.Contains(lowerErr, "authentication") ||
		strings.Contains(lowerErr, "api_key") {
		return &agent.AgentError{
			Code:    "invalid_api_key",
			Message: "Anthropic API key is invalid or expired",
			Cause:   err,
		}
	}

	// Rate limiting errors (429)
	if strings.Contains(lowerErr, "429") ||
		strings.Contains(lowerErr, "rate_limit") ||
		strings.Contains(lowerErr, "too many requests") {
		return &agent.AgentError{
			Code:      "rate_limited",
			Message:   "Anthropic API rate limit exceeded",
			Retryable: true,
			Cause:     err,
		}
	}

	// Overload errors (529)
	if strings.Contains(lowerErr, "529") ||
		strings.Contains(lowerErr, "overloaded") {
		return &agent.AgentError{
			Code:      "overloaded",
			Message:   "Anthropic API temporarily overloaded",
			Retryable: true,
			Cause:     err,
		}
	}

	// Quota/billing errors
	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "billing") {
		return &agent.AgentError{
			Code:    "quota_exceeded",
			Message: "Anthropic API quota exceeded",
			Cause:   err,
		}
	}

	// Timeout errors
	if strings.Contains(lowerErr, "timeout") ||
		strings.Contains(lowerErr, "deadline") {
		return &agent.AgentError{
			Code:      "timeout",
			Message:   "Anthropic API request timed out",
			Retryable: true,
			Cause:     err,
		}
	}

	// Generic API error
	return &agent.AgentError{
		Code:    "api_error",
		Message: fmt.Sprintf("Anthropic API error: %v", err),
		Cause:   err,
	}
}
