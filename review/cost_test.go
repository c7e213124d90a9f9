package review

import (
	"math"
	"sync"
	"testing"

	"github.com/dshills/reviewflow-go/review/agent"
)

// TestNewCostTracker verifies the tracker starts empty with the default
// pricing table.
func TestNewCostTracker(t *testing.T) {
	tracker := NewCostTracker("USD")

	if tracker.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", tracker.Currency)
	}
	if tracker.GetTotalCost() != 0 {
		t.Errorf("GetTotalCost = %v, want 0", tracker.GetTotalCost())
	}
	if len(tracker.GetCallHistory()) != 0 {
		t.Errorf("GetCallHistory = %d calls, want 0", len(tracker.GetCallHistory()))
	}

	p, ok := tracker.Pricing["gpt-4o"]
	if !ok {
		t.Fatal("default pricing missing gpt-4o")
	}
	if p.InputPer1M != 2.50 || p.OutputPer1M != 10.00 {
		t.Errorf("gpt-4o pricing = %+v", p)
	}
}

// TestRecordUsage verifies cost calculation and call attribution for a model
// in the pricing table.
func TestRecordUsage(t *testing.T) {
	tracker := NewCostTracker("USD")

	tracker.RecordUsage("pr-42-01HCOST", PhaseFeatureUnderstanding, &agent.Usage{
		Model:        "gpt-4o-mini",
		InputTokens:  1_000_000,
		OutputTokens: 500_000,
	})

	// 1M input at $0.15/1M plus 500k output at $0.60/1M.
	if got := tracker.GetTotalCost(); !almostEqual(got, 0.45) {
		t.Errorf("GetTotalCost = %v, want 0.45", got)
	}

	in, out := tracker.GetTokenUsage()
	if in != 1_000_000 || out != 500_000 {
		t.Errorf("GetTokenUsage = %d/%d", in, out)
	}

	calls := tracker.GetCallHistory()
	if len(calls) != 1 {
		t.Fatalf("GetCallHistory = %d calls, want 1", len(calls))
	}
	call := calls[0]
	if call.Model != "gpt-4o-mini" {
		t.Errorf("call.Model = %q", call.Model)
	}
	if call.WorkflowID != "pr-42-01HCOST" || call.Phase != PhaseFeatureUnderstanding {
		t.Errorf("call attribution = %q/%q", call.WorkflowID, call.Phase)
	}
	if !almostEqual(call.CostUSD, 0.45) {
		t.Errorf("call.CostUSD = %v, want 0.45", call.CostUSD)
	}
	if call.Timestamp.IsZero() {
		t.Error("call.Timestamp is zero")
	}
}

// TestRecordUsage_UnknownModel verifies unpriced models record at zero cost
// but still count tokens.
func TestRecordUsage_UnknownModel(t *testing.T) {
	tracker := NewCostTracker("USD")

	tracker.RecordUsage("pr-1-01HUNK", PhaseCodeAnalysis, &agent.Usage{
		Model:        "llama-3-70b-local",
		InputTokens:  9000,
		OutputTokens: 1000,
	})

	if got := tracker.GetTotalCost(); got != 0 {
		t.Errorf("GetTotalCost = %v, want 0 for unpriced model", got)
	}
	in, out := tracker.GetTokenUsage()
	if in != 9000 || out != 1000 {
		t.Errorf("GetTokenUsage = %d/%d, want 9000/1000", in, out)
	}
	if calls := tracker.GetCallHistory(); len(calls) != 1 || calls[0].CostUSD != 0 {
		t.Errorf("calls = %+v", calls)
	}
}

// TestRecordUsage_NilUsage verifies that phases without LLM usage record
// nothing.
func TestRecordUsage_NilUsage(t *testing.T) {
	tracker := NewCostTracker("USD")
	tracker.RecordUsage("pr-1-01HNIL", PhaseCodebaseLearning, nil)

	if len(tracker.GetCallHistory()) != 0 {
		t.Error("nil usage should not record a call")
	}
	if in, out := tracker.GetTokenUsage(); in != 0 || out != 0 {
		t.Errorf("GetTokenUsage = %d/%d, want 0/0", in, out)
	}
}

// TestRecordUsage_Accumulates verifies totals and the per-model breakdown
// across calls to different models.
func TestRecordUsage_Accumulates(t *testing.T) {
	tracker := NewCostTracker("USD")

	// $3.00 input + $1.50 output.
	tracker.RecordUsage("pr-1-01HACC", PhaseFeatureUnderstanding, &agent.Usage{
		Model: "claude-3-5-sonnet-20241022", InputTokens: 1_000_000, OutputTokens: 100_000,
	})
	// $0.25 input.
	tracker.RecordUsage("pr-1-01HACC", PhaseCodebaseLearning, &agent.Usage{
		Model: "gpt-4o", InputTokens: 100_000, OutputTokens: 0,
	})
	// Second sonnet call: another $0.30 input.
	tracker.RecordUsage("pr-2-01HACC", PhaseFeatureUnderstanding, &agent.Usage{
		Model: "claude-3-5-sonnet-20241022", InputTokens: 100_000, OutputTokens: 0,
	})

	if got := tracker.GetTotalCost(); !almostEqual(got, 5.05) {
		t.Errorf("GetTotalCost = %v, want 5.05", got)
	}

	byModel := tracker.GetCostByModel()
	if len(byModel) != 2 {
		t.Fatalf("GetCostByModel = %v, want 2 models", byModel)
	}
	if !almostEqual(byModel["claude-3-5-sonnet-20241022"], 4.80) {
		t.Errorf("sonnet cost = %v, want 4.80", byModel["claude-3-5-sonnet-20241022"])
	}
	if !almostEqual(byModel["gpt-4o"], 0.25) {
		t.Errorf("gpt-4o cost = %v, want 0.25", byModel["gpt-4o"])
	}

	if calls := tracker.GetCallHistory(); len(calls) != 3 {
		t.Errorf("GetCallHistory = %d calls, want 3", len(calls))
	}
}

// TestSetCustomPricing verifies per-tracker overrides and that the shared
// default table is never mutated.
func TestSetCustomPricing(t *testing.T) {
	tracker := NewCostTracker("USD")
	tracker.SetCustomPricing("gpt-4o", 2.00, 8.00)
	tracker.SetCustomPricing("my-finetune", 1.00, 1.00)

	tracker.RecordUsage("pr-1-01HCUS", PhaseCodeAnalysis, &agent.Usage{
		Model: "gpt-4o", InputTokens: 1_000_000, OutputTokens: 1_000_000,
	})
	if got := tracker.GetTotalCost(); !almostEqual(got, 10.00) {
		t.Errorf("GetTotalCost = %v, want 10.00 at enterprise rate", got)
	}

	tracker.RecordUsage("pr-1-01HCUS", PhaseCodeAnalysis, &agent.Usage{
		Model: "my-finetune", InputTokens: 500_000, OutputTokens: 500_000,
	})
	if got := tracker.GetTotalCost(); !almostEqual(got, 11.00) {
		t.Errorf("GetTotalCost = %v, want 11.00 after finetune call", got)
	}

	// A fresh tracker still sees list pricing.
	other := NewCostTracker("USD")
	if p := other.Pricing["gpt-4o"]; p.InputPer1M != 2.50 {
		t.Errorf("override leaked into the default table: %+v", p)
	}
	if _, ok := other.Pricing["my-finetune"]; ok {
		t.Error("custom model leaked into the default table")
	}
}

// TestCostTrackerCopySemantics verifies that returned maps and slices are
// detached from tracker state.
func TestCostTrackerCopySemantics(t *testing.T) {
	tracker := NewCostTracker("USD")
	tracker.RecordUsage("pr-1-01HCOPY", PhaseFeatureUnderstanding, &agent.Usage{
		Model: "gpt-4o-mini", InputTokens: 1000, OutputTokens: 100,
	})

	byModel := tracker.GetCostByModel()
	byModel["gpt-4o-mini"] = 999
	if got := tracker.GetCostByModel()["gpt-4o-mini"]; got == 999 {
		t.Error("GetCostByModel returned a live reference")
	}

	calls := tracker.GetCallHistory()
	calls[0].Model = "mutated"
	if tracker.GetCallHistory()[0].Model != "gpt-4o-mini" {
		t.Error("GetCallHistory returned a live reference")
	}
}

// TestCostTrackerDisableEnable verifies recording can be paused and resumed.
func TestCostTrackerDisableEnable(t *testing.T) {
	tracker := NewCostTracker("USD")
	usage := &agent.Usage{Model: "gpt-4o", InputTokens: 1000, OutputTokens: 100}

	tracker.Disable()
	tracker.RecordUsage("pr-1-01HDIS", PhaseCodeAnalysis, usage)
	if len(tracker.GetCallHistory()) != 0 {
		t.Error("disabled tracker recorded a call")
	}

	tracker.Enable()
	tracker.RecordUsage("pr-1-01HDIS", PhaseCodeAnalysis, usage)
	if len(tracker.GetCallHistory()) != 1 {
		t.Error("re-enabled tracker did not record")
	}
}

// TestCostTrackerReset verifies Reset clears recorded data but keeps pricing
// configuration.
func TestCostTrackerReset(t *testing.T) {
	tracker := NewCostTracker("USD")
	tracker.SetCustomPricing("my-finetune", 1.00, 1.00)
	tracker.RecordUsage("pr-1-01HRST", PhaseCodeAnalysis, &agent.Usage{
		Model: "gpt-4o", InputTokens: 1_000_000, OutputTokens: 0,
	})

	tracker.Reset()

	if tracker.GetTotalCost() != 0 {
		t.Errorf("GetTotalCost after Reset = %v", tracker.GetTotalCost())
	}
	if len(tracker.GetCallHistory()) != 0 {
		t.Error("calls survived Reset")
	}
	if in, out := tracker.GetTokenUsage(); in != 0 || out != 0 {
		t.Errorf("GetTokenUsage after Reset = %d/%d", in, out)
	}
	if len(tracker.GetCostByModel()) != 0 {
		t.Error("model costs survived Reset")
	}
	if _, ok := tracker.Pricing["my-finetune"]; !ok {
		t.Error("custom pricing should survive Reset")
	}
}

// TestCostTrackerString verifies the summary format.
func TestCostTrackerString(t *testing.T) {
	tracker := NewCostTracker("USD")
	tracker.RecordUsage("pr-1-01HSTR", PhaseCodeAnalysis, &agent.Usage{
		Model: "gpt-4o", InputTokens: 1_000_000, OutputTokens: 0,
	})

	got := tracker.String()
	want := "CostTracker{Calls: 1, TotalCost: $2.5000 USD, InputTokens: 1000000, OutputTokens: 0}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// TestCostTrackerConcurrentRecording verifies recording is safe under
// concurrent use.
func TestCostTrackerConcurrentRecording(t *testing.T) {
	tracker := NewCostTracker("USD")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				tracker.RecordUsage("pr-1-01HCONC", PhaseCodeAnalysis, &agent.Usage{
					Model: "gpt-4o-mini", InputTokens: 1000, OutputTokens: 1000,
				})
			}
		}()
	}
	wg.Wait()

	if calls := tracker.GetCallHistory(); len(calls) != 100 {
		t.Errorf("calls = %d, want 100", len(calls))
	}
	in, out := tracker.GetTokenUsage()
	if in != 100_000 || out != 100_000 {
		t.Errorf("GetTokenUsage = %d/%d, want 100000/100000", in, out)
	}
}

// almostEqual compares floats within a tolerance suited to currency math.
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
