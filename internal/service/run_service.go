package service

import (
	"context"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/rs/zerolog"
)

// failurePreview is how many failures GetRun inlines
const failurePreview = 100

// runService is the concrete implementation of RunService
type runService struct {
	runRepo repository.RunRepository
	log     zerolog.Logger
}

func newRunService(runRepo repository.RunRepository, log zerolog.Logger) *runService {
	return &runService{
		runRepo: runRepo,
		log:     log.With().Str("service", "run").Logger(),
	}
}

// Record persists a finished run and its failures
func (s *runService) Record(ctx context.Context, run *models.IngestionRun, failures []models.RunFailure) error {
	if err := s.runRepo.Create(ctx, run); err != nil {
		return err
	}
	if err := s.runRepo.AddFailures(ctx, run.ID, failures); err != nil {
		return err
	}

	s.log.Debug().
		Str("run_id", run.ID).
		Int("failures", len(failures)).
		Msg("Run recorded")
	return nil
}

// GetRun retrieves a run with its first failures. It returns nil when the
// run does not exist.
func (s *runService) GetRun(ctx context.Context, id string) (*models.RunResponse, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	failures, err := s.runRepo.GetFailures(ctx, id, failurePreview)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run failures")
	}

	response := &models.RunResponse{
		IngestionRun: *run,
		Failures:     failures,
	}
	if run.Failed > 0 {
		response.FailureReport = "/v1/runs/" + run.ID + "/failures"
	}
	return response, nil
}

// GetRunFailures retrieves every failure of a run
func (s *runService) GetRunFailures(ctx context.Context, id string) ([]models.RunFailure, error) {
	return s.runRepo.GetFailures(ctx, id, 0)
}

// ListRuns returns the most recent runs, optionally for one table
func (s *runService) ListRuns(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error) {
	return s.runRepo.ListRecent(ctx, entity, limit)
}
