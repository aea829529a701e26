package handler_test

import (
	"context"

	"sentinel.app/relay/internal/service"
)

type mockAgentService struct {
	inputs    []service.AnalyzeLogsInput
	analyzeFn func(ctx context.Context, in service.AnalyzeLogsInput) (*service.AnalysisResult, error)
}

func (m *mockAgentService) AnalyzeLogs(ctx context.Context, in service.AnalyzeLogsInput) (*service.AnalysisResult, error) {
	m.inputs = append(m.inputs, in)
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, in)
	}
	return &service.AnalysisResult{ThreadID: "thread-1", IssueURLs: []string{}, RouteHistory: []string{}}, nil
}
