package service

import (
	"context"
	"errors"

	"github.com/dump-ingestion-api/internal/archive"
	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownEntity is returned for a route slug with no entity config
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrTableMismatch is returned when the payload's name tag does not
	// match the endpoint's entity
	ErrTableMismatch = errors.New("table mismatch")
	// ErrMissingBlock is returned when the payload lacks its item list
	ErrMissingBlock = errors.New("missing item list")
)

// BatchOutcome is the result of one ingestion request
type BatchOutcome struct {
	RunID   string
	Status  int
	LogPath string
	Result  *models.BatchResult
}

// IngestService defines the batch ingestion operations
type IngestService interface {
	Upload(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*BatchOutcome, error)
	Update(ctx context.Context, slug string, req *models.BatchRequest, createMissing bool) (*BatchOutcome, error)
	Delete(ctx context.Context, slug string, req *models.DeleteRequest) (*BatchOutcome, error)
}

// RunService defines the ingestion run ledger operations
type RunService interface {
	Record(ctx context.Context, run *models.IngestionRun, failures []models.RunFailure) error
	GetRun(ctx context.Context, id string) (*models.RunResponse, error)
	GetRunFailures(ctx context.Context, id string) ([]models.RunFailure, error)
	ListRuns(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error)
}

// StatsService reports row counts per entity table
type StatsService interface {
	Counts(ctx context.Context) (map[string]int, error)
}

// Services holds all service interfaces
type Services struct {
	Ingest   IngestService
	Runs     RunService
	Stats    StatsService
	Entities *models.Registry
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, store archive.Store, registry *models.Registry, cfg *config.Config, log zerolog.Logger) *Services {
	runSvc := newRunService(repos.Runs, log)
	pipeline := NewPipeline(repos.Records, repos.Tx, archive.NewWriter(store), log)
	ingestSvc := newIngestService(pipeline, registry, runSvc, cfg, log)

	return &Services{
		Ingest:   ingestSvc,
		Runs:     runSvc,
		Stats:    newStatsService(repos.Records, registry),
		Entities: registry,
	}
}
