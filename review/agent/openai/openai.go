// Package openai implements the review agents on OpenAI's GPT models.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/reviewflow-go/review/agent"
)

// DefaultModel is the GPT model used when none is specified.
const DefaultModel = "gpt-4o"

// Agents implements agent.FeatureAnalyzer, agent.CodebaseLearner, and
// agent.CodeAnalyzer using OpenAI's chat completions API.
//
// Requests run in JSON mode so responses parse reliably into the agent
// result types. Agents is safe for concurrent use as the underlying OpenAI
// client handles thread-safety internally.
//
// Example usage:
//
//	agents, err := openai.New(os.Getenv("OPENAI_API_KEY"), "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	orc, err := review.New(agents, agents, agents)
type Agents struct {
	client *openai.Client
	model  string
	retry  agent.RetryPolicy
}

// New creates GPT-backed review agents.
//
// Parameters:
//   - apiKey: OpenAI API key (must start with "sk-")
//   - model: Model to use (e.g., "gpt-4o", "gpt-4o-mini", "gpt-4-turbo").
//     Empty uses DefaultModel.
//
// Returns an error if apiKey is empty.
func New(apiKey, model string) (*Agents, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Agents{
		client: &client,
		model:  model,
		retry:  agent.DefaultRetryPolicy,
	}, nil
}

// SetRetryPolicy replaces the retry policy applied to API calls. Configure
// before the Agents value is shared across goroutines.
func (p *Agents) SetRetryPolicy(policy agent.RetryPolicy) {
	p.retry = policy
}

// Name returns "openai" as the provider identifier.
func (p *Agents) Name() string {
	return "openai"
}

// AnalyzeFeature implements agent.FeatureAnalyzer by asking GPT for the
// business purpose, complexity, and scope of the change.
func (p *Agents) AnalyzeFeature(ctx context.Context, pr agent.PullRequest) (agent.FeatureContext, error) {
	text, usage, err := p.complete(ctx, agent.FeaturePrompt(pr))
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

// LearnCodebase implements agent.CodebaseLearner by asking GPT for reuse
// opportunities and architectural guidance relevant to the change.
func (p *Agents) LearnCodebase(ctx context.Context, pr agent.PullRequest, feature agent.FeatureContext) (agent.CodebaseKnowledge, error) {
	text, usage, err := p.complete(ctx, agent.CodebasePrompt(pr, feature))
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

// AnalyzeCode implements agent.CodeAnalyzer by asking GPT to review the
// implementation and score its health.
func (p *Agents) AnalyzeCode(ctx context.Context, rc agent.ReviewContext) (agent.CodeAnalysis, error) {
	text, usage, err := p.complete(ctx, agent.AnalysisPrompt(rc))
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

	analysis.Usage = usage
	return analysis, nil
}

// complete sends one prompt to the chat completions API in JSON mode and
// returns the response text plus token usage. Retryable failures are retried
// per the configured policy.
func (p *Agents) complete(ctx context.Context, prompt string) (string, *agent.Usage, error) {
	var (
		text  string
		usage *agent.Usage
	)

	err := p.retry.Do(ctx, func() error {
		completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(p.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(prompt),
						},
					},
				},
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
			},
			Temperature: openai.Float(1.0), // Default temperature (some models only support 1.0)
		})
		if err != nil {
			return p.mapAPIError(err)
		}

		if len(completion.Choices) == 0 {
			return agent.ErrEmptyResponse
		}

		text = completion.Choices[0].Message.Content
		usage = &agent.Usage{
			Model:        p.model,
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
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

// mapAPIError converts OpenAI API errors to AgentError values.
// It distinguishes between retryable transient failures and permanent
// failures. Context cancellation passes through unchanged.
func (p *Agents) mapAPIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agent.AgentError{
			Code:      "timeout",
			Message:   "OpenAI API request timed out",
			Retryable: true,
			Cause:     err,
		}
	}

	lowerErr := strings.ToLower(err.Error())

	// Rate limit errors (retryable)
	if strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "429") ||
		strings.Contains(lowerErr, "too many requests") {
		return &agent.AgentError{
			Code:      "rate_limited",
			Message:   "OpenAI API rate limit exceeded",
			Retryable: true,
			Cause:     err,
		}
	}

	// Authentication errors (permanent)
	if strings.Contains(lowerErr, "invalid api key") ||
		strings.Contains(lowerErr, "incorrect api key") ||
		strings.Contains(lowerErr, "401") ||
		strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "authentication") {
		return &agent.AgentError{
			Code:    "invalid_api_key",
			Message: "OpenAI API key is invalid or expired",
			Cause:   err,
		}
	}

	// Quota exceeded errors (permanent)
	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "insufficient_quota") ||
		strings.Contains(lowerErr, "billing") {
		return &agent.AgentError{
			Code:    "quota_exceeded",
			Message: "OpenAI API quota exceeded",
			Cause:   err,
		}
	}

	// Server errors (retryable)
	if strings.Contains(lowerErr, "500") ||
		strings.Contains(lowerErr, "502") ||
		strings.Contains(lowerErr, "503") ||
		strings.Contains(lowerErr, "504") ||
		strings.Contains(lowerErr, "internal server error") ||
		strings.Contains(lowerErr, "bad gateway") ||
		strings.Contains(lowerErr, "service unavailable") ||
		strings.Contains(lowerErr, "gateway timeout") {
		return &agent.AgentError{
			Code:      "overloaded",
			Message:   fmt.Sprintf("OpenAI API server error: %v", err),
			Retryable: true,
			Cause:     err,
		}
	}

	// Network errors (retryable)
	if strings.Contains(lowerErr, "connection") ||
		strings.Contains(lowerErr, "timeout") ||
		strings.Contains(lowerErr, "network") {
		return &agent.AgentError{
			Code:      "timeout",
			Message:   fmt.Sprintf("network error calling OpenAI API: %v", err),
			Retryable: true,
			Cause:     err,
		}
	}

	// Default: wrap as generic error (not retryable by default)
	return &agent.AgentError{
		Code:    "api_error",
		Message: fmt.Sprintf("OpenAI API error: %v", err),
		Cause:   err,
	}
}
