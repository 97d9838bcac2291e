package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
)

// MockRecordRepository is an in-memory RecordRepository. It enforces the
// unique keys of the real tables but has no transactions: WithTx returns
// the repository itself.
type MockRecordRepository struct {
	mu     sync.Mutex
	Tables map[string]map[int64]*models.Record
	nextID int64

	InsertError error
	UpdateError error
	DeleteError error
	GetError    error
}

// Verify interface compliance
var _ repository.RecordRepository = (*MockRecordRepository)(nil)

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{
		Tables: make(map[string]map[int64]*models.Record),
	}
}

func (m *MockRecordRepository) table(entity *models.Entity) map[int64]*models.Record {
	t, ok := m.Tables[entity.Table]
	if !ok {
		t = make(map[int64]*models.Record)
		m.Tables[entity.Table] = t
	}
	return t
}

func (m *MockRecordRepository) WithTx(tx repository.DBTX) repository.RecordRepository {
	return m
}

func (m *MockRecordRepository) Insert(ctx context.Context, entity *models.Entity, rec *models.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertError != nil {
		return 0, m.InsertError
	}
	t := m.table(entity)
	for _, existing := range t {
		if conflicts(existing, rec) {
			return 0, fmt.Errorf("%w: %s", repository.ErrDuplicate, entity.Table)
		}
	}

	m.nextID++
	stored := copyRecord(rec)
	stored.InternalID = m.nextID
	t[stored.InternalID] = stored
	return stored.InternalID, nil
}

func conflicts(a, b *models.Record) bool {
	switch {
	case a.UniversalID != "" && a.UniversalID == b.UniversalID:
		return true
	case a.ExternalID != "" && a.ExternalID == b.ExternalID:
		return true
	case a.SourcePath() != "" && a.SourcePath() == b.SourcePath():
		return true
	}
	return false
}

func (m *MockRecordRepository) SetCanonicalPath(ctx context.Context, entity *models.Entity, internalID int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.table(entity)[internalID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.CanonicalPath = path
	return nil
}

func (m *MockRecordRepository) GetByUniversalID(ctx context.Context, entity *models.Entity, universalID string) (*models.Record, error) {
	return m.find(entity, func(r *models.Record) bool { return r.UniversalID == universalID })
}

func (m *MockRecordRepository) GetByExternalID(ctx context.Context, entity *models.Entity, externalID string) (*models.Record, error) {
	return m.find(entity, func(r *models.Record) bool { return r.ExternalID == externalID })
}

func (m *MockRecordRepository) find(entity *models.Entity, match func(*models.Record) bool) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	for _, r := range m.table(entity) {
		if match(r) {
			return copyRecord(r), nil
		}
	}
	return nil, nil
}

func (m *MockRecordRepository) Update(ctx context.Context, entity *models.Entity, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return m.UpdateError
	}
	existing, ok := m.table(entity)[rec.InternalID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Fields = copyFields(rec.Fields)
	existing.IngestedAt = rec.IngestedAt
	return nil
}

func (m *MockRecordRepository) BackfillUniversalID(ctx context.Context, entity *models.Entity, internalID int64, universalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.table(entity)[internalID]
	if !ok || existing.UniversalID != "" {
		return repository.ErrIdentityConflict
	}
	existing.UniversalID = universalID
	return nil
}

func (m *MockRecordRepository) Delete(ctx context.Context, entity *models.Entity, internalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteError != nil {
		return m.DeleteError
	}
	t := m.table(entity)
	if _, ok := t[internalID]; !ok {
		return repository.ErrNotFound
	}
	delete(t, internalID)
	return nil
}

func (m *MockRecordRepository) Count(ctx context.Context, entity *models.Entity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table(entity)), nil
}

// Seed stores rec as-is, bypassing uniqueness checks. It is used to set up
// legacy rows.
func (m *MockRecordRepository) Seed(entity *models.Entity, rec *models.Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	stored := copyRecord(rec)
	stored.InternalID = m.nextID
	m.table(entity)[stored.InternalID] = stored
	return stored.InternalID
}

func copyRecord(r *models.Record) *models.Record {
	c := *r
	c.Fields = copyFields(r.Fields)
	return &c
}

func copyFields(f map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// MockTxRunner runs fn without a real transaction. CommitError, when set,
// is returned after fn succeeds, as a failed commit would be.
type MockTxRunner struct {
	CommitError error
	Commits     int
	Rollbacks   int
}

// Verify interface compliance
var _ repository.TxRunner = (*MockTxRunner)(nil)

func (m *MockTxRunner) RunInTx(ctx context.Context, fn func(tx repository.DBTX) error) error {
	if err := fn(nil); err != nil {
		m.Rollbacks++
		return err
	}
	if m.CommitError != nil {
		m.Rollbacks++
		return m.CommitError
	}
	m.Commits++
	return nil
}

// FailingCommitRunner wraps a real TxRunner and rolls back every
// transaction after fn succeeds, returning Err in place of the commit.
type FailingCommitRunner struct {
	Inner repository.TxRunner
	Err   error
}

// Verify interface compliance
var _ repository.TxRunner = (*FailingCommitRunner)(nil)

func (r *FailingCommitRunner) RunInTx(ctx context.Context, fn func(tx repository.DBTX) error) error {
	return r.Inner.RunInTx(ctx, func(tx repository.DBTX) error {
		if err := fn(tx); err != nil {
			return err
		}
		return r.Err
	})
}

// MockRunRepository is a mock implementation of RunRepository
type MockRunRepository struct {
	mu          sync.Mutex
	Runs        map[string]*models.IngestionRun
	Failures    map[string][]models.RunFailure
	CreateError error
}

// Verify interface compliance
var _ repository.RunRepository = (*MockRunRepository)(nil)

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{
		Runs:     make(map[string]*models.IngestionRun),
		Failures: make(map[string][]models.RunFailure),
	}
}

func (m *MockRunRepository) Create(ctx context.Context, run *models.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateError != nil {
		return m.CreateError
	}
	m.Runs[run.ID] = run
	return nil
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Runs[id], nil
}

func (m *MockRunRepository) ListRecent(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []*models.IngestionRun
	for _, r := range m.Runs {
		if entity == "" || r.Entity == entity {
			runs = append(runs, r)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MockRunRepository) AddFailures(ctx context.Context, runID string, failures []models.RunFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[runID] = append(m.Failures[runID], failures...)
	return nil
}

func (m *MockRunRepository) GetFailures(ctx context.Context, runID string, limit int) ([]models.RunFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := m.Failures[runID]
	if limit > 0 && len(failures) > limit {
		return failures[:limit], nil
	}
	return failures, nil
}
