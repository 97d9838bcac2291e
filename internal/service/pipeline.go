package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dump-ingestion-api/internal/archive"
	"github.com/dump-ingestion-api/internal/metrics"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
)

// ErrIdentityConflict is returned when a record found by vil_id already
// carries a different universal_id
var ErrIdentityConflict = repository.ErrIdentityConflict

// Pipeline runs the create, update and delete flows for single items.
// Every call runs in its own transaction; the archive write happens while
// the row is staged but uncommitted.
type Pipeline struct {
	records repository.RecordRepository
	tx      repository.TxRunner
	archive *archive.Writer
	log     zerolog.Logger
	now     func() time.Time
}

// NewPipeline creates a Pipeline
func NewPipeline(records repository.RecordRepository, tx repository.TxRunner, writer *archive.Writer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		records: records,
		tx:      tx,
		archive: writer,
		log:     log.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// Create inserts item, archives its canonical copy and links the two.
// A universal_id is generated when the item has none. On any failure the
// transaction is rolled back and a file written by this call is removed.
func (p *Pipeline) Create(ctx context.Context, entity *models.Entity, item *models.ValidatedItem) (*models.Record, error) {
	canon := *item
	if canon.UniversalID == "" {
		canon.UniversalID = uuid.NewString()
	}
	rec := newRecord(entity, &canon, p.now())

	var written string
	err := p.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		repo := p.records.WithTx(tx)

		id, err := repo.Insert(ctx, entity, rec)
		if err != nil {
			return err
		}
		rec.InternalID = id

		location := p.archive.Location(entity, canon.UniversalID)
		existed, err := p.archive.Store().Exists(ctx, location)
		if err != nil {
			return err
		}
		if err := p.archive.Write(ctx, location, entity, &canon); err != nil {
			return err
		}
		if !existed {
			written = location
		}

		if err := repo.SetCanonicalPath(ctx, entity, id, location); err != nil {
			return err
		}
		rec.CanonicalPath = location
		return nil
	})
	if err != nil {
		if written != "" {
			p.removeOrphan(entity, written, err)
		}
		return nil, err
	}

	return p.reread(ctx, entity, rec), nil
}

// Update replaces the business fields of the record matching item by
// universal_id, or by vil_id for legacy rows. It returns (nil, nil) when no
// record matches; nothing is written in that case.
func (p *Pipeline) Update(ctx context.Context, entity *models.Entity, item *models.ValidatedItem) (*models.Record, error) {
	var (
		found       *models.Record
		written     string
		overwritten string
	)

	err := p.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		repo := p.records.WithTx(tx)

		existing, err := lookup(ctx, repo, entity, item)
		if err != nil || existing == nil {
			return err
		}

		canon := *item
		switch {
		case existing.UniversalID == "":
			if canon.UniversalID == "" {
				canon.UniversalID = uuid.NewString()
			}
			if err := repo.BackfillUniversalID(ctx, entity, existing.InternalID, canon.UniversalID); err != nil {
				return err
			}
			p.log.Info().
				Str("table", entity.Table).
				Int64("internal_id", existing.InternalID).
				Str("universal_id", canon.UniversalID).
				Msg("Backfilled universal_id onto legacy record")
		case canon.UniversalID != "" && canon.UniversalID != existing.UniversalID:
			return ErrIdentityConflict
		default:
			canon.UniversalID = existing.UniversalID
		}
		// vil_id is never rewritten, so the archive carries the stored value
		canon.ExternalID = existing.ExternalID

		rec := newRecord(entity, &canon, p.now())
		rec.InternalID = existing.InternalID
		if err := repo.Update(ctx, entity, rec); err != nil {
			return err
		}

		location := existing.CanonicalPath
		if location == "" {
			location = p.archive.Location(entity, canon.UniversalID)
			existed, err := p.archive.Store().Exists(ctx, location)
			if err != nil {
				return err
			}
			if err := p.archive.Write(ctx, location, entity, &canon); err != nil {
				return err
			}
			if !existed {
				written = location
			}
			if err := repo.SetCanonicalPath(ctx, entity, existing.InternalID, location); err != nil {
				return err
			}
		} else {
			if err := p.archive.Write(ctx, location, entity, &canon); err != nil {
				return err
			}
			overwritten = location
		}

		rec.UniversalID = canon.UniversalID
		rec.CanonicalPath = location
		found = rec
		return nil
	})
	if err != nil {
		switch {
		case written != "":
			p.removeOrphan(entity, written, err)
		case overwritten != "":
			// The archive already holds the new content; the row does not.
			p.log.Error().
				Err(err).
				Str("table", entity.Table).
				Str("location", overwritten).
				Str("severity", "critical").
				Msg("Commit failed after archive overwrite; archive is ahead of the database")
			metrics.ArchiveInconsistency(entity.Table, metrics.ReasonCommitAfterOverwrite)
		}
		return nil, err
	}
	if found == nil {
		return nil, nil
	}

	return p.reread(ctx, entity, found), nil
}

// Delete removes the record with universalID. It returns (nil, nil) when no
// record matches. Archived copies are never removed.
func (p *Pipeline) Delete(ctx context.Context, entity *models.Entity, universalID string) (*models.Record, error) {
	var deleted *models.Record
	err := p.tx.RunInTx(ctx, func(tx repository.DBTX) error {
		repo := p.records.WithTx(tx)

		existing, err := repo.GetByUniversalID(ctx, entity, universalID)
		if err != nil || existing == nil {
			return err
		}
		if err := repo.Delete(ctx, entity, existing.InternalID); err != nil {
			return err
		}
		deleted = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func lookup(ctx context.Context, repo repository.RecordRepository, entity *models.Entity, item *models.ValidatedItem) (*models.Record, error) {
	if item.UniversalID != "" {
		rec, err := repo.GetByUniversalID(ctx, entity, item.UniversalID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	if item.ExternalID != "" {
		return repo.GetByExternalID(ctx, entity, item.ExternalID)
	}
	return nil, nil
}

// removeOrphan deletes a file written by a transaction that did not commit.
// It never replaces cause.
func (p *Pipeline) removeOrphan(entity *models.Entity, location string, cause error) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.archive.Remove(ctx, location); err != nil {
		p.log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("table", entity.Table).
			Str("location", location).
			Str("severity", "critical").
			Msg("Failed to remove orphaned archive file")
		metrics.ArchiveInconsistency(entity.Table, metrics.ReasonCleanupFailed)
		return
	}
	p.log.Debug().
		Str("table", entity.Table).
		Str("location", location).
		Msg("Removed orphaned archive file after rollback")
}

// reread returns the committed row. It falls back to the staged copy when
// the row has been removed concurrently or cannot be read; the item is
// committed either way.
func (p *Pipeline) reread(ctx context.Context, entity *models.Entity, staged *models.Record) *models.Record {
	stored, err := p.records.GetByUniversalID(ctx, entity, staged.UniversalID)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("table", entity.Table).
			Str("universal_id", staged.UniversalID).
			Msg("Re-read after commit failed; returning staged record")
		return staged
	}
	if stored == nil {
		return staged
	}
	return stored
}

func newRecord(m models.Mapper, item *models.ValidatedItem, now time.Time) *models.Record {
	return &models.Record{
		UniversalID: item.UniversalID,
		ExternalID:  item.ExternalID,
		Fields:      m.MapFields(item),
		IngestedAt:  now.UTC(),
	}
}
