// Package google implements the review agents on Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/reviewflow-go/review/agent"
)

// DefaultModel is the Gemini model used when none is specified.
const DefaultModel = "gemini-1.5-pro"

// Agents implements agent.FeatureAnalyzer, agent.CodebaseLearner, and
// agent.CodeAnalyzer using Google's Gemini API.
//
// Each phase request runs with a response schema so Gemini returns structured
// JSON matching the agent result types.
//
// Example usage:
//
//	agents, err := google.New(ctx, "", "gemini-1.5-flash")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer agents.Close()
//
//	orc, err := review.New(agents, agents, agents)
type Agents struct {
	client *genai.Client
	model  string
	retry  agent.RetryPolicy
}

// New creates Gemini-backed review agents.
//
// Parameters:
//   - apiKey: Google API key. If empty, reads from the GOOGLE_API_KEY
//     environment variable.
//   - model: Gemini model to use (e.g., "gemini-1.5-pro", "gemini-1.5-flash").
//     Empty uses DefaultModel.
//
// Returns an error if the API key is not provided and cannot be found in the
// environment, or if the client cannot be created.
func New(ctx context.Context, apiKey, model string) (*Agents, error) {
	// Use environment variable if API key not provided
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, &agent.AgentError{
				Code:    "missing_api_key",
				Message: "Google API key not provided and GOOGLE_API_KEY environment variable not set",
			}
		}
	}

	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &Agents{
		client: client,
		model:  model,
		retry:  agent.DefaultRetryPolicy,
	}, nil
}

// Close closes the underlying Gemini client and releases resources.
// Should be called when the agents are no longer needed.
func (g *Agents) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// SetRetryPolicy replaces the retry policy applied to API calls. Configure
// before the Agents value is shared across goroutines.
func (g *Agents) SetRetryPolicy(p agent.RetryPolicy) {
	g.retry = p
}

// Name returns "google" as the provider identifier.
func (g *Agents) Name() string {
	return "google"
}

// featureSchema constrains the feature understanding response.
var featureSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"business_purpose": {Type: genai.TypeString},
		"complexity":       {Type: genai.TypeString},
		"user_impact":      {Type: genai.TypeString},
		"technical_scope":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"business_purpose", "complexity"},
}

// codebaseSchema constrains the codebase learning response.
var codebaseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"reusable_functions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":    {Type: genai.TypeString},
					"file":    {Type: genai.TypeString},
					"purpose": {Type: genai.TypeString},
				},
				Required: []string{"name"},
			},
		},
		"reusable_patterns": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"example":     {Type: genai.TypeString},
				},
				Required: []string{"name"},
			},
		},
		"architectural_guidance": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"follow_patterns":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"avoid_patterns":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"integration_points": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
		},
	},
	Required: []string{"reusable_functions", "reusable_patterns", "architectural_guidance"},
}

// analysisSchema constrains the code analysis response.
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"health_score": {Type: genai.TypeInteger},
		"feedback": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"suggestions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"severity":    {Type: genai.TypeString},
							"category":    {Type: genai.TypeString},
							"file":        {Type: genai.TypeString},
							"line":        {Type: genai.TypeInteger},
							"description": {Type: genai.TypeString},
							"remediation": {Type: genai.TypeString},
						},
						Required: []string{"severity", "description"},
					},
				},
				"positive_findings": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"summary": {
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"risk_level":   {Type: genai.TypeString},
						"key_findings": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					},
				},
				"testing_recommendations": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"suggestions"},
		},
	},
	Required: []string{"health_score", "feedback"},
}

// AnalyzeFeature implements agent.FeatureAnalyzer by asking Gemini for the
// business purpose, complexity, and scope of the change.
func (g *Agents) AnalyzeFeature(ctx context.Context, pr agent.PullRequest) (agent.FeatureContext, error) {
	text, usage, err := g.complete(ctx, agent.FeaturePrompt(pr), featureSchema)
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

// LearnCodebase implements agent.CodebaseLearner by asking Gemini for reuse
// opportunities and architectural guidance relevant to the change.
func (g *Agents) LearnCodebase(ctx context.Context, pr agent.PullRequest, feature agent.FeatureContext) (agent.CodebaseKnowledge, error) {
	text, usage, err := g.complete(ctx, agent.CodebasePrompt(pr, feature), codebaseSchema)
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

// AnalyzeCode implements agent.CodeAnalyzer by asking Gemini to review the
// implementation and score its health.
func (g *Agents) AnalyzeCode(ctx context.Context, rc agent.ReviewContext) (agent.CodeAnalysis, error) {
	text, usage, err := g.complete(ctx, agent.AnalysisPrompt(rc), analysisSchema)
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

// complete sends one prompt to Gemini with the given response schema and
// returns the response text plus token usage. Retryable failures are retried
// per the configured policy.
func (g *Agents) complete(ctx context.Context, prompt string, schema *genai.Schema) (string, *agent.Usage, error) {
	model := g.client.GenerativeModel(g.model)

	// Configure model for structured JSON output
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema

	var (
		text  string
		usage *agent.Usage
	)

	err := g.retry.Do(ctx, func() error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return g.mapAPIError(err)
		}

		text = extractText(resp)
		usage = extractUsage(g.model, resp)
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

// extractText pulls the first text part out of a Gemini response.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text)
		}
	}
	return ""
}

// extractUsage reads token counts from the response metadata.
func extractUsage(model string, resp *genai.GenerateContentResponse) *agent.Usage {
	usage := &agent.Usage{Model: model}
	if resp != nil && resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return usage
}

// mapAPIError converts Google API errors to AgentError values with
// appropriate codes and retryability. Context cancellation passes through
// unchanged.
func (g *Agents) mapAPIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &agent.AgentError{
			Code:      "timeout",
			Message:   "Google API request timed out",
			Retryable: true,
			Cause:     err,
		}
	}

	lowerErr := strings.ToLower(err.Error())

	// Check for API key errors
	if strings.Contains(lowerErr, "api key") ||
		strings.Contains(lowerErr, "authentication") ||
		strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "invalid_api_key") {
		return &agent.AgentError{
			Code:    "invalid_api_key",
			Message: "Google API key is invalid or missing",
			Cause:   err,
		}
	}

	// Check for quota exceeded (permanent)
	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "billing") {
		return &agent.AgentError{
			Code:    "quota_exceeded",
			Message: "Google API quota exceeded",
			Cause:   err,
		}
	}

	// Check for rate limiting
	if strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "too many requests") ||
		strings.Contains(lowerErr, "resource_exhausted") {
		return &agent.AgentError{
			Code:      "rate_limited",
			Message:   "Google API rate limit exceeded",
			Retryable: true,
			Cause:     err,
		}
	}

	// Default to a generic retryable error
	return &agent.AgentError{
		Code:      "api_error",
		Message:   fmt.Sprintf("Google API error: %v", err),
		Retryable: true,
		Cause:     err,
	}
}
