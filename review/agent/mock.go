package agent

import (
	"context"
	"sync"
)

// MockFeatureAnalyzer is a mock implementation of FeatureAnalyzer for testing
type MockFeatureAnalyzer struct {
	Results   []FeatureContext
	Err       error
	Calls     []PullRequest
	mu        sync.Mutex
	callIndex int
}

func (m *MockFeatureAnalyzer) AnalyzeFeature(ctx context.Context, pr PullRequest) (FeatureContext, error) {
	if err := ctx.Err(); err != nil {
		return FeatureContext{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, pr)

	if m.Err != nil {
		return FeatureContext{}, m.Err
	}
	if len(m.Results) == 0 {
		return FeatureContext{Success: true}, nil
	}

	// Repeat the last result once the list is exhausted.
	idx := m.callIndex
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	m.callIndex++
	return m.Results[idx], nil
}

func (m *MockFeatureAnalyzer) Name() string { return "mock" }

// CallCount returns the number of calls made so far.
func (m *MockFeatureAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockCodebaseLearner is a mock implementation of CodebaseLearner for testing
type MockCodebaseLearner struct {
	Results   []CodebaseKnowledge
	Err       error
	Calls     []PullRequest
	mu        sync.Mutex
	callIndex int
}

func (m *MockCodebaseLearner) LearnCodebase(ctx context.Context, pr PullRequest, feature FeatureContext) (CodebaseKnowledge, error) {
	if err := ctx.Err(); err != nil {
		return CodebaseKnowledge{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, pr)

	if m.Err != nil {
		return CodebaseKnowledge{}, m.Err
	}
	if len(m.Results) == 0 {
		return CodebaseKnowledge{Success: true}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	m.callIndex++
	return m.Results[idx], nil
}

func (m *MockCodebaseLearner) Name() string { return "mock" }

// CallCount returns the number of calls made so far.
func (m *MockCodebaseLearner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockCodeAnalyzer is a mock implementation of CodeAnalyzer for testing
type MockCodeAnalyzer struct {
	Results   []CodeAnalysis
	Err       error
	Calls     []ReviewContext
	mu        sync.Mutex
	callIndex int
}

func (m *MockCodeAnalyzer) AnalyzeCode(ctx context.Context, rc ReviewContext) (CodeAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return CodeAnalysis{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, rc)

	if m.Err != nil {
		return CodeAnalysis{}, m.Err
	}
	if len(m.Results) == 0 {
		return CodeAnalysis{HealthScore: 100}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	m.callIndex++
	return m.Results[idx], nil
}

func (m *MockCodeAnalyzer) Name() string { return "mock" }

// CallCount returns the number of calls made so far.
func (m *MockCodeAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
