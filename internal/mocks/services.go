package mocks

import (
	"context"
	"net/http"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/service"
)

// IngestCall records one call to MockIngestService
type IngestCall struct {
	Operation     models.Operation
	Slug          string
	Batch         *models.BatchRequest
	Delete        *models.DeleteRequest
	Mode          models.UploadMode
	CreateMissing bool
}

// MockIngestService is a mock implementation of IngestService
type MockIngestService struct {
	UploadFunc func(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*service.BatchOutcome, error)
	UpdateFunc func(ctx context.Context, slug string, req *models.BatchRequest, createMissing bool) (*service.BatchOutcome, error)
	DeleteFunc func(ctx context.Context, slug string, req *models.DeleteRequest) (*service.BatchOutcome, error)
	Calls      []IngestCall
}

// Verify interface compliance
var _ service.IngestService = (*MockIngestService)(nil)

func NewMockIngestService() *MockIngestService {
	return &MockIngestService{Calls: make([]IngestCall, 0)}
}

func (m *MockIngestService) Upload(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*service.BatchOutcome, error) {
	m.Calls = append(m.Calls, IngestCall{Operation: models.OperationUpload, Slug: slug, Batch: req, Mode: mode})
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, slug, req, mode)
	}
	return okOutcome(http.StatusCreated, "Upload processed. Success: 0, Failed: 0"), nil
}

func (m *MockIngestService) Update(ctx context.Context, slug string, req *models.BatchRequest, createMissing bool) (*service.BatchOutcome, error) {
	m.Calls = append(m.Calls, IngestCall{Operation: models.OperationUpdate, Slug: slug, Batch: req, CreateMissing: createMissing})
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, slug, req, createMissing)
	}
	return okOutcome(http.StatusOK, "Upsert processed. Success: 0, Failed: 0"), nil
}

func (m *MockIngestService) Delete(ctx context.Context, slug string, req *models.DeleteRequest) (*service.BatchOutcome, error) {
	m.Calls = append(m.Calls, IngestCall{Operation: models.OperationDelete, Slug: slug, Delete: req})
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, slug, req)
	}
	return okOutcome(http.StatusOK, "Delete processed. Success: 0, Failed: 0"), nil
}

func okOutcome(status int, msg string) *service.BatchOutcome {
	return &service.BatchOutcome{
		RunID:  "test-run-id",
		Status: status,
		Result: &models.BatchResult{
			Message:        msg,
			ProcessedItems: []string{},
			FailedItems:    []models.FailedItem{},
		},
	}
}

// MockRunService is a mock implementation of RunService
type MockRunService struct {
	Runs     map[string]*models.IngestionRun
	Failures map[string][]models.RunFailure
	Recorded []*models.IngestionRun
	GetError error
}

// Verify interface compliance
var _ service.RunService = (*MockRunService)(nil)

func NewMockRunService() *MockRunService {
	return &MockRunService{
		Runs:     make(map[string]*models.IngestionRun),
		Failures: make(map[string][]models.RunFailure),
	}
}

func (m *MockRunService) Record(ctx context.Context, run *models.IngestionRun, failures []models.RunFailure) error {
	m.Recorded = append(m.Recorded, run)
	m.Runs[run.ID] = run
	m.Failures[run.ID] = failures
	return nil
}

func (m *MockRunService) GetRun(ctx context.Context, id string) (*models.RunResponse, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	run, ok := m.Runs[id]
	if !ok {
		return nil, nil
	}
	resp := &models.RunResponse{IngestionRun: *run, Failures: m.Failures[id]}
	if run.Failed > 0 {
		resp.FailureReport = "/v1/runs/" + id + "/failures"
	}
	return resp, nil
}

func (m *MockRunService) GetRunFailures(ctx context.Context, id string) ([]models.RunFailure, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.Failures[id], nil
}

func (m *MockRunService) ListRuns(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error) {
	var runs []*models.IngestionRun
	for _, r := range m.Runs {
		if entity == "" || r.Entity == entity {
			runs = append(runs, r)
		}
	}
	return runs, nil
}

// MockStatsService is a mock implementation of StatsService
type MockStatsService struct {
	Rows map[string]int
	Err  error
}

// Verify interface compliance
var _ service.StatsService = (*MockStatsService)(nil)

func (m *MockStatsService) Counts(ctx context.Context) (map[string]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Rows, nil
}
