package service

import (
	"context"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
)

type statsService struct {
	records  repository.RecordRepository
	registry *models.Registry
}

func newStatsService(records repository.RecordRepository, registry *models.Registry) *statsService {
	return &statsService{records: records, registry: registry}
}

// Counts returns the number of rows per entity table
func (s *statsService) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, e := range s.registry.All() {
		n, err := s.records.Count(ctx, e)
		if err != nil {
			return nil, err
		}
		counts[e.Table] = n
	}
	return counts, nil
}
