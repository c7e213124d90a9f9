package review

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/prometheus/common/expfmt"
)

// Analytics summarizes the workflows stored since a point in time.
type Analytics struct {
	Since          time.Time
	TotalWorkflows int
	ByStatus       map[Status]int

	// AverageDuration covers terminal workflows only.
	AverageDuration time.Duration

	// AverageHealthScore covers workflows that produced a report.
	AverageHealthScore float64

	// RecurringFindings clusters near-duplicate finding descriptions
	// across reports, most frequent first.
	RecurringFindings []FindingCluster
}

// FindingCluster is a group of near-identical findings seen across reviews.
type FindingCluster struct {
	Representative string
	Count          int
}

// SystemMetrics is a point-in-time snapshot of orchestrator health.
type SystemMetrics struct {
	ActiveWorkflows int
	StoredWorkflows int
	Uptime          time.Duration
	TotalCostUSD    float64
	InputTokens     int64
	OutputTokens    int64
}

// Finding descriptions within this normalized Levenshtein distance of a
// cluster representative join that cluster.
const clusterDistanceThreshold = 0.3

// maxFindingClusters caps how many clusters GetAnalytics reports.
const maxFindingClusters = 10

// GetAnalytics aggregates stored workflows whose StartTime is at or after
// since. A zero since covers every stored workflow.
func (o *Orchestrator) GetAnalytics(ctx context.Context, since time.Time) (Analytics, error) {
	states, err := o.store.List(ctx, since)
	if err != nil {
		return Analytics{}, err
	}

	a := Analytics{
		Since:    since,
		ByStatus: make(map[Status]int),
	}

	var (
		totalDuration time.Duration
		terminal      int
		totalScore    int
		scored        int
		descriptions  []string
	)

	now := o.clock.Now()
	for _, state := range states {
		a.TotalWorkflows++
		a.ByStatus[state.Status]++

		if state.Status.Terminal() {
			terminal++
			totalDuration += state.Elapsed(now)
		}
		if state.FinalReport != nil {
			scored++
			totalScore += state.FinalReport.HealthScore
			descriptions = append(descriptions, findingDescriptions(state.FinalReport)...)
		}
	}

	if terminal > 0 {
		a.AverageDuration = totalDuration / time.Duration(terminal)
	}
	if scored > 0 {
		a.AverageHealthScore = float64(totalScore) / float64(scored)
	}
	a.RecurringFindings = clusterFindings(descriptions)

	return a, nil
}

// GetSystemMetrics reports orchestrator-wide counters: workflows in flight,
// stored records, uptime, and cumulative LLM spend when cost tracking is
// enabled.
func (o *Orchestrator) GetSystemMetrics(ctx context.Context) (SystemMetrics, error) {
	states, err := o.store.List(ctx, time.Time{})
	if err != nil {
		return SystemMetrics{}, err
	}

	sm := SystemMetrics{
		StoredWorkflows: len(states),
		Uptime:          o.clock.Now().Sub(o.startedAt),
	}
	for _, state := range states {
		if state.Status == StatusRunning {
			sm.ActiveWorkflows++
		}
	}

	if o.costs != nil {
		sm.TotalCostUSD = o.costs.GetTotalCost()
		sm.InputTokens, sm.OutputTokens = o.costs.GetTokenUsage()
	}
	return sm, nil
}

// ExportMetrics renders telemetry in the requested format.
//
// Supported formats:
//   - "json": system metrics plus per-model cost attribution
//   - "prometheus": text exposition of the configured metrics registry
//
// An unknown format yields a WorkflowError with code UNSUPPORTED_FORMAT.
func (o *Orchestrator) ExportMetrics(ctx context.Context, format string) ([]byte, error) {
	switch format {
	case "json":
		return o.exportJSON(ctx)
	case "prometheus":
		return o.exportPrometheus()
	default:
		return nil, &WorkflowError{
			Message: "unsupported metrics format " + format,
			Code:    "UNSUPPORTED_FORMAT",
		}
	}
}

func (o *Orchestrator) exportJSON(ctx context.Context) ([]byte, error) {
	sm, err := o.GetSystemMetrics(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"active_workflows": sm.ActiveWorkflows,
		"stored_workflows": sm.StoredWorkflows,
		"uptime_ms":        sm.Uptime.Milliseconds(),
		"total_cost_usd":   sm.TotalCostUSD,
		"input_tokens":     sm.InputTokens,
		"output_tokens":    sm.OutputTokens,
	}
	if o.costs != nil {
		payload["cost_by_model"] = o.costs.GetCostByModel()
	}

	return json.MarshalIndent(payload, "", "  ")
}

func (o *Orchestrator) exportPrometheus() ([]byte, error) {
	if o.metrics == nil {
		return nil, &WorkflowError{
			Message: "metrics collection is not enabled",
			Code:    "METRICS_DISABLED",
		}
	}

	families, err := o.metrics.Gatherer().Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func findingDescriptions(report *Report) []string {
	var out []string
	for _, f := range report.Findings.Critical {
		out = append(out, f.Description)
	}
	for _, f := range report.Findings.Warnings {
		out = append(out, f.Description)
	}
	for _, f := range report.Findings.Suggestions {
		out = append(out, f.Description)
	}
	return out
}

// clusterFindings groups near-duplicate descriptions with a greedy pass:
// each description joins the first cluster whose representative is within
// the normalized edit-distance threshold, otherwise it opens a new cluster.
// Only clusters seen more than once are reported.
func clusterFindings(descriptions []string) []FindingCluster {
	var clusters []FindingCluster

	for _, desc := range descriptions {
		if desc == "" {
			continue
		}
		matched := false
		for i := range clusters {
			if similarFindings(clusters[i].Representative, desc) {
				clusters[i].Count++
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, FindingCluster{Representative: desc, Count: 1})
		}
	}

	recurring := clusters[:0]
	for _, c := range clusters {
		if c.Count >= 2 {
			recurring = append(recurring, c)
		}
	}

	sort.SliceStable(recurring, func(i, j int) bool {
		if recurring[i].Count != recurring[j].Count {
			return recurring[i].Count > recurring[j].Count
		}
		return recurring[i].Representative < recurring[j].Representative
	})

	if len(recurring) > maxFindingClusters {
		recurring = recurring[:maxFindingClusters]
	}
	return recurring
}

func similarFindings(a, b string) bool {
	if a == b {
		return true
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return true
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(longest) <= clusterDistanceThreshold
}
