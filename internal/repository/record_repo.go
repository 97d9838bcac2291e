package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dump-ingestion-api/internal/models"
)

// recordRepo is the concrete implementation of RecordRepository
type recordRepo struct {
	db DBTX
}

// NewRecordRepo creates a new record repository
func NewRecordRepo(db DBTX) RecordRepository {
	return &recordRepo{db: db}
}

func (r *recordRepo) WithTx(tx DBTX) RecordRepository {
	return &recordRepo{db: tx}
}

// Insert stages a new row and returns its internal id
func (r *recordRepo) Insert(ctx context.Context, entity *models.Entity, rec *models.Record) (int64, error) {
	cols := entity.Columns()
	names := append([]string{"universal_id", "vil_id"}, cols...)
	names = append(names, "ingestion_dt")

	args := make([]interface{}, 0, len(names))
	args = append(args, nullString(rec.UniversalID), nullString(rec.ExternalID))
	for _, c := range cols {
		args = append(args, rec.Fields[c])
	}
	args = append(args, rec.IngestedAt)

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		entity.Table, strings.Join(names, ", "), placeholders(1, len(names)), entity.PrimaryKey,
	)

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", entity.Table, classify(err))
	}
	return id, nil
}

// SetCanonicalPath links the archived copy to the row
func (r *recordRepo) SetCanonicalPath(ctx context.Context, entity *models.Entity, internalID int64, path string) error {
	query := fmt.Sprintf("UPDATE %s SET file_storage_path = $1 WHERE %s = $2", entity.Table, entity.PrimaryKey)
	return r.execOne(ctx, entity, query, path, internalID)
}

// GetByUniversalID returns nil when no row carries universalID
func (r *recordRepo) GetByUniversalID(ctx context.Context, entity *models.Entity, universalID string) (*models.Record, error) {
	return r.getBy(ctx, entity, "universal_id", universalID)
}

// GetByExternalID returns nil when no row carries the legacy vil_id
func (r *recordRepo) GetByExternalID(ctx context.Context, entity *models.Entity, externalID string) (*models.Record, error) {
	return r.getBy(ctx, entity, "vil_id", externalID)
}

// Update replaces every business field of the row and its ingestion time.
// internal_id, universal_id, vil_id and file_storage_path are untouched.
func (r *recordRepo) Update(ctx context.Context, entity *models.Entity, rec *models.Record) error {
	cols := entity.Columns()
	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, rec.Fields[c])
	}
	sets = append(sets, fmt.Sprintf("ingestion_dt = $%d", len(cols)+1))
	args = append(args, rec.IngestedAt, rec.InternalID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		entity.Table, strings.Join(sets, ", "), entity.PrimaryKey, len(cols)+2)
	return r.execOne(ctx, entity, query, args...)
}

// BackfillUniversalID assigns universalID to a legacy row that has none
func (r *recordRepo) BackfillUniversalID(ctx context.Context, entity *models.Entity, internalID int64, universalID string) error {
	query := fmt.Sprintf("UPDATE %s SET universal_id = $1 WHERE %s = $2 AND universal_id IS NULL",
		entity.Table, entity.PrimaryKey)
	err := r.execOne(ctx, entity, query, universalID, internalID)
	if err == ErrNotFound {
		return ErrIdentityConflict
	}
	return err
}

// Delete removes the row
func (r *recordRepo) Delete(ctx context.Context, entity *models.Entity, internalID int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", entity.Table, entity.PrimaryKey)
	return r.execOne(ctx, entity, query, internalID)
}

// Count returns the number of rows of the entity table
func (r *recordRepo) Count(ctx context.Context, entity *models.Entity) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+entity.Table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity.Table, classify(err))
	}
	return count, nil
}

func (r *recordRepo) execOne(ctx context.Context, entity *models.Entity, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write %s: %w", entity.Table, classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepo) getBy(ctx context.Context, entity *models.Entity, column string, value string) (*models.Record, error) {
	cols := entity.Columns()
	query := fmt.Sprintf(
		"SELECT %s, universal_id, vil_id, %s, file_storage_path, ingestion_dt FROM %s WHERE %s = $1",
		entity.PrimaryKey, strings.Join(cols, ", "), entity.Table, column,
	)

	var rec models.Record
	var universalID, externalID, canonicalPath sql.NullString
	var ingestedAt sql.NullTime

	holders := make([]interface{}, len(cols))
	for i, c := range cols {
		if columnType(entity, c) == models.FieldTimestamp {
			holders[i] = new(sql.NullTime)
		} else {
			holders[i] = new(sql.NullString)
		}
	}

	dest := append([]interface{}{&rec.InternalID, &universalID, &externalID}, holders...)
	dest = append(dest, &canonicalPath, &ingestedAt)

	err := r.db.QueryRowContext(ctx, query, value).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", entity.Table, classify(err))
	}

	rec.UniversalID = universalID.String
	rec.ExternalID = externalID.String
	rec.CanonicalPath = canonicalPath.String
	if ingestedAt.Valid {
		rec.IngestedAt = ingestedAt.Time.UTC()
	}
	rec.Fields = make(map[string]interface{}, len(cols))
	for i, c := range cols {
		switch h := holders[i].(type) {
		case *sql.NullTime:
			if h.Valid {
				rec.Fields[c] = h.Time.UTC()
			} else {
				rec.Fields[c] = nil
			}
		case *sql.NullString:
			if h.Valid {
				rec.Fields[c] = h.String
			} else {
				rec.Fields[c] = nil
			}
		}
	}
	return &rec, nil
}

func columnType(entity *models.Entity, column string) models.FieldType {
	for _, f := range entity.Fields {
		if f.Column == column {
			return f.Type
		}
	}
	return models.FieldText
}

// placeholders renders "$from, ..., $from+n-1"
func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}
