package review

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/reviewflow-go/review/agent"
)

// ModelPricing defines input and output token costs for LLM models.
// Prices are in USD per 1M tokens (per million tokens).
type ModelPricing struct {
	InputPer1M  float64 // Cost per 1M input tokens in USD
	OutputPer1M float64 // Cost per 1M output tokens in USD
}

// Static pricing map for major LLM providers (as of 2025-01-01).
// Prices are in USD per 1M tokens.
//
// Sources:
//   - OpenAI: https://openai.com/pricing
//   - Anthropic: https://anthropic.com/pricing
//   - Google: https://cloud.google.com/vertex-ai/pricing
//
// Note: Prices subject to change. Update this map as providers adjust pricing.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o": {
		InputPer1M:  2.50,
		OutputPer1M: 10.00,
	},
	"gpt-4o-2024-08-06": {
		InputPer1M:  2.50,
		OutputPer1M: 10.00,
	},
	"gpt-4o-mini": {
		InputPer1M:  0.15,
		OutputPer1M: 0.60,
	},
	"gpt-4-turbo": {
		InputPer1M:  10.00,
		OutputPer1M: 30.00,
	},
	"gpt-3.5-turbo": {
		InputPer1M:  0.50,
		OutputPer1M: 1.50,
	},

	"claude-3-5-sonnet-20241022": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},
	"claude-3.5-sonnet": {
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
	},
	"claude-3-opus-20240229": {
		InputPer1M:  15.00,
		OutputPer1M: 75.00,
	},
	"claude-3-opus": {
		InputPer1M:  15.00,
		OutputPer1M: 75.00,
	},
	"claude-3-haiku-20240307": {
		InputPer1M:  0.25,
		OutputPer1M: 1.25,
	},
	"claude-3-haiku": {
		InputPer1M:  0.25,
		OutputPer1M: 1.25,
	},

	"gemini-1.5-pro": {
		InputPer1M:  1.25,
		OutputPer1M: 5.00,
	},
	"gemini-1.5-flash": {
		InputPer1M:  0.075,
		OutputPer1M: 0.30,
	},
	"gemini-1.0-pro": {
		InputPer1M:  0.50,
		OutputPer1M: 1.50,
	},
}

// LLMCall represents a single LLM API invocation with token usage and cost.
type LLMCall struct {
	Model        string    // Model identifier (e.g., "gpt-4o", "claude-3-5-sonnet-20241022")
	InputTokens  int       // Number of input tokens consumed
	OutputTokens int       // Number of output tokens generated
	CostUSD      float64   // Calculated cost in USD
	Timestamp    time.Time // When the call was made
	WorkflowID   string    // Workflow that made the call
	Phase        string    // Phase that made the call
}

// CostTracker tracks financial costs of the LLM calls made by review phases,
// providing token usage and cost attribution across workflows.
//
// Features:
//   - Per-model token counting (input/output separate)
//   - Cost calculation using static pricing tables
//   - Cumulative cost tracking across workflows
//   - Per-model cost breakdown for attribution
//   - Thread-safe concurrent recording
//
// Usage:
//
//	tracker := review.NewCostTracker("USD")
//	orc, err := review.New(feature, codebase, analyzer, review.WithCostTracker(tracker))
//
//	// After reviews, get total cost
//	total := tracker.GetTotalCost()
//
//	// Get per-model breakdown
//	costs := tracker.GetCostByModel()
type CostTracker struct {
	// Currency is the cost unit (e.g., "USD")
	Currency string

	// Pricing maps model names to their input/output token costs
	Pricing map[string]ModelPricing

	// Calls records all LLM invocations with full details
	Calls []LLMCall

	// TotalCost accumulates all costs in the specified currency
	TotalCost float64

	// ModelCosts tracks costs per model for attribution
	ModelCosts map[string]float64

	// InputTokens counts total input tokens across all calls
	InputTokens int64

	// OutputTokens counts total output tokens across all calls
	OutputTokens int64

	// CreatedAt marks when cost tracking began
	CreatedAt time.Time

	// Mutex protects concurrent access to tracker state
	mu sync.RWMutex

	// enabled controls whether cost tracking is active
	enabled bool
}

// NewCostTracker creates a new cost tracker with default pricing tables.
//
// Example:
//
//	tracker := review.NewCostTracker("USD")
func NewCostTracker(currency string) *CostTracker {
	// Copy the default table so SetCustomPricing never mutates the
	// package-level map shared across trackers.
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for model, p := range defaultModelPricing {
		pricing[model] = p
	}

	return &CostTracker{
		Currency:   currency,
		Pricing:    pricing,
		Calls:      make([]LLMCall, 0, 100),
		ModelCosts: make(map[string]float64),
		CreatedAt:  time.Now(),
		enabled:    true,
	}
}

// RecordUsage records the token usage a phase reported and calculates cost.
//
// Models missing from the pricing table are still recorded, with zero cost.
// A nil usage (phases backed by non-LLM collaborators) records nothing.
//
// Thread-safe: Uses mutex protection for concurrent recording.
func (ct *CostTracker) RecordUsage(workflowID, phase string, usage *agent.Usage) {
	if usage == nil || !ct.isEnabled() {
		return
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing, ok := ct.Pricing[usage.Model]
	if !ok {
		pricing = ModelPricing{}
	}

	// Cost: (tokens / 1M) * price_per_1M
	inputCost := (float64(usage.InputTokens) / 1_000_000.0) * pricing.InputPer1M
	outputCost := (float64(usage.OutputTokens) / 1_000_000.0) * pricing.OutputPer1M
	totalCost := inputCost + outputCost

	ct.Calls = append(ct.Calls, LLMCall{
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      totalCost,
		Timestamp:    time.Now(),
		WorkflowID:   workflowID,
		Phase:        phase,
	})

	ct.TotalCost += totalCost
	ct.ModelCosts[usage.Model] += totalCost
	ct.InputTokens += int64(usage.InputTokens)
	ct.OutputTokens += int64(usage.OutputTokens)
}

// GetTotalCost returns the cumulative cost across all recorded LLM calls.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.TotalCost
}

// GetCostByModel returns a breakdown of costs attributed to each model.
//
// Thread-safe: Uses read lock and returns a copy to prevent mutation.
func (ct *CostTracker) GetCostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.ModelCosts))
	for model, cost := range ct.ModelCosts {
		costs[model] = cost
	}
	return costs
}

// GetCallHistory returns all recorded LLM calls in chronological order.
//
// Thread-safe: Uses read lock and returns a copy.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.Calls))
	copy(calls, ct.Calls)
	return calls
}

// GetTokenUsage returns total input and output token counts.
func (ct *CostTracker) GetTokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.InputTokens, ct.OutputTokens
}

// SetCustomPricing overrides default pricing for a specific model.
// Useful for custom deployments, enterprise pricing, or price updates.
//
// Example:
//
//	// Override GPT-4o pricing for enterprise rate
//	tracker.SetCustomPricing("gpt-4o", 2.00, 8.00)
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.Pricing == nil {
		ct.Pricing = make(map[string]ModelPricing)
	}
	ct.Pricing[model] = ModelPricing{
		InputPer1M:  inputPer1M,
		OutputPer1M: outputPer1M,
	}
}

// Disable temporarily disables cost tracking (useful for testing).
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable re-enables cost tracking after Disable().
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears all recorded data and resets cumulative totals.
// Preserves pricing configuration.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.Calls = make([]LLMCall, 0, 100)
	ct.TotalCost = 0
	ct.ModelCosts = make(map[string]float64)
	ct.InputTokens = 0
	ct.OutputTokens = 0
}

// String returns a human-readable summary of cost tracking.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf(
		"CostTracker{Calls: %d, TotalCost: $%.4f %s, InputTokens: %d, OutputTokens: %d}",
		len(ct.Calls),
		ct.TotalCost,
		ct.Currency,
		ct.InputTokens,
		ct.OutputTokens,
	)
}

func (ct *CostTracker) isEnabled() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.enabled
}
