package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dump-ingestion-api/internal/database"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a targeted row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique constraint
	ErrDuplicate = errors.New("unique constraint violation")
	// ErrIdentityConflict is returned when a universal_id backfill would
	// overwrite an identity that is already set
	ErrIdentityConflict = errors.New("record already has a different universal_id")
)

// Error wraps a driver failure that is not a constraint violation
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Cause returns the driver message without codes or statement detail
func (e *Error) Cause() string {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return pqErr.Message
	}
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Message
	}
	var liteErr sqlite3.Error
	if errors.As(e.Err, &liteErr) {
		return liteErr.Error()
	}
	return e.Err.Error()
}

// DBTX is satisfied by *sql.DB, *sql.Tx and *database.DB, so repositories
// work both inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner runs work inside one database transaction
type TxRunner interface {
	// RunInTx commits when fn returns nil and rolls back otherwise.
	// A commit failure is returned as the error.
	RunInTx(ctx context.Context, fn func(tx DBTX) error) error
}

// RecordRepository defines entity row operations. Every method is driven by
// the entity's field table.
type RecordRepository interface {
	// WithTx returns a repository bound to tx
	WithTx(tx DBTX) RecordRepository
	Insert(ctx context.Context, entity *models.Entity, rec *models.Record) (int64, error)
	SetCanonicalPath(ctx context.Context, entity *models.Entity, internalID int64, path string) error
	GetByUniversalID(ctx context.Context, entity *models.Entity, universalID string) (*models.Record, error)
	GetByExternalID(ctx context.Context, entity *models.Entity, externalID string) (*models.Record, error)
	Update(ctx context.Context, entity *models.Entity, rec *models.Record) error
	BackfillUniversalID(ctx context.Context, entity *models.Entity, internalID int64, universalID string) error
	Delete(ctx context.Context, entity *models.Entity, internalID int64) error
	Count(ctx context.Context, entity *models.Entity) (int, error)
}

// RunRepository defines the ingestion run ledger
type RunRepository interface {
	Create(ctx context.Context, run *models.IngestionRun) error
	GetByID(ctx context.Context, id string) (*models.IngestionRun, error)
	ListRecent(ctx context.Context, entity string, limit int) ([]*models.IngestionRun, error)
	AddFailures(ctx context.Context, runID string, failures []models.RunFailure) error
	GetFailures(ctx context.Context, runID string, limit int) ([]models.RunFailure, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Records RecordRepository
	Runs    RunRepository
	Tx      TxRunner
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Records: NewRecordRepo(db),
		Runs:    NewRunRepo(db),
		Tx:      NewTxRunner(db),
	}
}

// txRunner is the database/sql implementation of TxRunner
type txRunner struct {
	db *database.DB
}

// NewTxRunner creates a TxRunner over db
func NewTxRunner(db *database.DB) TxRunner {
	return &txRunner{db: db}
}

func (r *txRunner) RunInTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// classify maps driver unique-constraint errors of lib/pq, pgx and SQLite
// onto ErrDuplicate and wraps everything else in *Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if name, ok := uniqueViolation(err); ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return err
	}
	return &Error{Err: err}
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return liteErr.Error(), true
	}
	return "", false
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
