package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dump-ingestion-api/internal/api"
	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/mocks"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type fakeHealth struct {
	err error
}

func (f fakeHealth) HealthCheck(ctx context.Context) error {
	return f.err
}

type testRouter struct {
	router *gin.Engine
	ingest *mocks.MockIngestService
	runs   *mocks.MockRunService
	stats  *mocks.MockStatsService
}

func setupTestRouter(t *testing.T, opts ...func(*config.Config)) *testRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr := &testRouter{
		ingest: mocks.NewMockIngestService(),
		runs:   mocks.NewMockRunService(),
		stats:  &mocks.MockStatsService{Rows: map[string]int{}},
	}
	services := &service.Services{
		Ingest:   tr.ingest,
		Runs:     tr.runs,
		Stats:    tr.stats,
		Entities: models.DefaultRegistry(),
	}

	cfg := config.Default()
	cfg.Server.Port = "8080"
	for _, opt := range opts {
		opt(cfg)
	}

	tr.router = api.NewRouter(services, fakeHealth{}, cfg, zerolog.Nop())
	return tr
}

func (tr *testRouter) do(method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	tr.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "dump-ingestion-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	services := &service.Services{
		Ingest:   mocks.NewMockIngestService(),
		Runs:     mocks.NewMockRunService(),
		Stats:    &mocks.MockStatsService{},
		Entities: models.DefaultRegistry(),
	}
	router := api.NewRouter(services, fakeHealth{err: errors.New("connection refused")}, config.Default(), zerolog.Nop())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("connection refused")) {
		t.Errorf("Expected database error in body, got %s", w.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	tr := setupTestRouter(t)
	tr.stats.Rows["cgst"] = 1000
	tr.stats.Rows["articles"] = 500

	w := tr.do("GET", "/stats", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	db := response["database"].(map[string]interface{})
	if db["cgst"].(float64) != 1000 {
		t.Errorf("Expected 1000 cgst rows, got %v", db["cgst"])
	}
}

func TestStatsEndpoint_Error(t *testing.T) {
	tr := setupTestRouter(t)
	tr.stats.Err = errors.New("database is locked")

	w := tr.do("GET", "/stats", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tr := setupTestRouter(t)
	tr.do("GET", "/health", "")

	w := tr.do("GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ingest_http_requests_total") {
		t.Error("Expected HTTP request metrics in exposition")
	}
}

func TestListEntities(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("GET", "/v1/entities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Count    int              `json:"count"`
		Entities []*models.Entity `json:"entities"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response.Count != 10 || len(response.Entities) != 10 {
		t.Errorf("Expected 10 entities, got %d", response.Count)
	}
	if response.Entities[0].Slug != "articles" {
		t.Errorf("Expected entities sorted by slug, first is %s", response.Entities[0].Slug)
	}
}

func TestUpload(t *testing.T) {
	tr := setupTestRouter(t)
	tr.ingest.UploadFunc = func(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*service.BatchOutcome, error) {
		return &service.BatchOutcome{
			RunID:  "run-123",
			Status: http.StatusMultiStatus,
			Result: &models.BatchResult{
				Message:        "Upload processed. Success: 1, Failed: 1",
				ProcessedItems: []string{"CREATED: universal_id=a"},
				FailedItems:    []models.FailedItem{{Identifier: "index_1", Reason: "Schema Validation Error: x"}},
			},
		}, nil
	}

	w := tr.do("POST", "/v1/cgst/upload", `{"name":"cgst","data":[{"a":1},{"b":2}]}`)
	if w.Code != http.StatusMultiStatus {
		t.Errorf("Expected status 207, got %d", w.Code)
	}
	if got := w.Header().Get("X-Ingestion-Run-ID"); got != "run-123" {
		t.Errorf("Expected run id header, got %q", got)
	}

	var result models.BatchResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result.ProcessedItems) != 1 || len(result.FailedItems) != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	if len(tr.ingest.Calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(tr.ingest.Calls))
	}
	call := tr.ingest.Calls[0]
	if call.Slug != "cgst" || call.Mode != models.UploadModeCreate || len(call.Batch.Data) != 2 {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestUpload_Mode(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedMode   models.UploadMode
	}{
		{"default", "", http.StatusCreated, models.UploadModeCreate},
		{"upsert", "?mode=upsert", http.StatusCreated, models.UploadModeUpsert},
		{"invalid", "?mode=replace", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRouter(t)

			w := tr.do("POST", "/v1/cgst/upload"+tt.query, `{"name":"cgst","data":[]}`)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedMode != "" && tr.ingest.Calls[0].Mode != tt.expectedMode {
				t.Errorf("Expected mode %s, got %s", tt.expectedMode, tr.ingest.Calls[0].Mode)
			}
		})
	}
}

func TestUpdate_CreateMissingParam(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCreate bool
	}{
		{"default creates", "", http.StatusOK, true},
		{"explicit false", "?create_missing=false", http.StatusOK, false},
		{"invalid", "?create_missing=maybe", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRouter(t)

			w := tr.do("POST", "/v1/vat/update"+tt.query, `{"name":"vat","data":[]}`)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if w.Code == http.StatusOK && tr.ingest.Calls[0].CreateMissing != tt.expectedCreate {
				t.Errorf("Expected create_missing %v", tt.expectedCreate)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("POST", "/v1/st/delete", `{"name":"cs","universal_id":["8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01"]}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	call := tr.ingest.Calls[0]
	if call.Operation != models.OperationDelete || len(call.Delete.UniversalIDs) != 1 {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestIngest_RequestErrors(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		body           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "unknown entity",
			url:            "/v1/gstr1/upload",
			body:           `{"name":"gstr1","data":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "unknown entity 'gstr1'",
		},
		{
			name:           "malformed body",
			url:            "/v1/cgst/upload",
			body:           `{"name":"cgst","data":[`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid JSON body",
		},
		{
			name:           "table mismatch",
			url:            "/v1/cgst/upload",
			body:           `{"name":"vat","data":[]}`,
			err:            fmt.Errorf("%w: endpoint expects 'cgst', but payload contains data for 'vat'", service.ErrTableMismatch),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "endpoint expects 'cgst'",
		},
		{
			name:           "missing data",
			url:            "/v1/cgst/upload",
			body:           `{"name":"cgst"}`,
			err:            fmt.Errorf("%w: 'data'", service.ErrMissingBlock),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "missing item list",
		},
		{
			name:           "unexpected failure",
			url:            "/v1/cgst/upload",
			body:           `{"name":"cgst","data":[]}`,
			err:            errors.New("open logs/upload_cgst.txt: permission denied"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRouter(t)
			tr.ingest.UploadFunc = func(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*service.BatchOutcome, error) {
				return nil, tt.err
			}

			w := tr.do("POST", tt.url, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if !bytes.Contains(w.Body.Bytes(), []byte(tt.expectedError)) {
				t.Errorf("Expected error '%s' in response, got: %s", tt.expectedError, w.Body.String())
			}
			if w.Header().Get("X-Ingestion-Run-ID") != "" {
				t.Error("structural errors should not carry a run id")
			}
		})
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	tr := setupTestRouter(t, func(cfg *config.Config) {
		cfg.Ingest.MaxBodySize = 64
	})

	body := `{"name":"cgst","data":[{"cir_subject":"` + strings.Repeat("x", 128) + `"}]}`
	w := tr.do("POST", "/v1/cgst/upload", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
	if len(tr.ingest.Calls) != 0 {
		t.Error("service should not be called for an oversized body")
	}
}

func TestGetRun(t *testing.T) {
	tr := setupTestRouter(t)

	now := time.Now()
	tr.runs.Runs["run-123"] = &models.IngestionRun{
		ID:          "run-123",
		Operation:   models.OperationUpload,
		Entity:      "cgst",
		Outcome:     models.OutcomePartial,
		TotalItems:  1000,
		Succeeded:   950,
		Failed:      50,
		DurationMs:  5000,
		ItemsPerSec: 200.0,
		StartedAt:   now,
	}

	w := tr.do("GET", "/v1/runs/run-123", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response models.RunResponse
	json.Unmarshal(w.Body.Bytes(), &response)

	if response.ID != "run-123" {
		t.Errorf("Expected run ID 'run-123', got '%s'", response.ID)
	}
	if response.Outcome != models.OutcomePartial {
		t.Errorf("Expected outcome partial, got %s", response.Outcome)
	}
	if response.FailureReport != "/v1/runs/run-123/failures" {
		t.Errorf("Expected failure report link, got %q", response.FailureReport)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("GET", "/v1/runs/nonexistent-run", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetRun_Error(t *testing.T) {
	tr := setupTestRouter(t)
	tr.runs.GetError = errors.New("connection reset")

	w := tr.do("GET", "/v1/runs/run-123", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestGetRunFailures(t *testing.T) {
	tr := setupTestRouter(t)
	tr.runs.Failures["run-with-failures"] = []models.RunFailure{
		{Position: 0, Identifier: "index_0", Kind: "schema_validation", Reason: "Schema Validation Error: circular_no: field required"},
		{Position: 4, Identifier: "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", Kind: "duplicate", Reason: "Duplicate Error: x"},
	}

	w := tr.do("GET", "/v1/runs/run-with-failures/failures", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["failure_count"].(float64) != 2 {
		t.Errorf("Expected 2 failures, got %v", response["failure_count"])
	}
}

func TestGetRunFailures_CSV(t *testing.T) {
	tr := setupTestRouter(t)
	tr.runs.Failures["run-with-failures"] = []models.RunFailure{
		{Position: 1, Identifier: "index_1", Kind: "schema_validation", Reason: "Schema Validation Error: file_path: field required"},
	}

	w := tr.do("GET", "/v1/runs/run-with-failures/failures?format=csv", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if contentType := w.Header().Get("Content-Type"); contentType != "text/csv" {
		t.Errorf("Expected text/csv, got %s", contentType)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("position,identifier,kind,reason")) {
		t.Error("CSV should contain header row")
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("index_1")) {
		t.Errorf("CSV should contain failure data, got: %s", w.Body.String())
	}
}

func TestGetRunFailures_Empty(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("GET", "/v1/runs/run-no-failures/failures", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["failure_count"].(float64) != 0 {
		t.Errorf("Expected 0 failures, got %v", response["failure_count"])
	}
}

func TestListRuns(t *testing.T) {
	tr := setupTestRouter(t)
	tr.runs.Runs["a"] = &models.IngestionRun{ID: "a", Entity: "cgst"}
	tr.runs.Runs["b"] = &models.IngestionRun{ID: "b", Entity: "vat"}

	w := tr.do("GET", "/v1/runs?entity=cgst", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["count"].(float64) != 1 {
		t.Errorf("Expected 1 run, got %v", response["count"])
	}

	if w := tr.do("GET", "/v1/runs?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid limit, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	tr := setupTestRouter(t)

	w := tr.do("OPTIONS", "/v1/cgst/upload", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
	}

	allowOrigin := w.Header().Get("Access-Control-Allow-Origin")
	if allowOrigin != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin '*', got '%s'", allowOrigin)
	}

	if w.Header().Get("Access-Control-Expose-Headers") != "X-Ingestion-Run-ID" {
		t.Error("Expected run id header to be exposed")
	}
}
