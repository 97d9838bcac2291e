package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/metrics"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/observability"
	"github.com/dump-ingestion-api/internal/report"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/dump-ingestion-api/internal/txlog"
	"github.com/dump-ingestion-api/internal/validation"
)

// ingestService is the concrete implementation of IngestService
type ingestService struct {
	pipeline *Pipeline
	registry *models.Registry
	runs     RunService
	logsDir  string
	log      zerolog.Logger
	now      func() time.Time
}

// newIngestService creates a new IngestService
func newIngestService(pipeline *Pipeline, registry *models.Registry, runs RunService, cfg *config.Config, log zerolog.Logger) *ingestService {
	return &ingestService{
		pipeline: pipeline,
		registry: registry,
		runs:     runs,
		logsDir:  cfg.Ingest.LogsDir,
		log:      log.With().Str("service", "ingest").Logger(),
		now:      time.Now,
	}
}

// itemFunc processes one item and returns its success message
type itemFunc func(ctx context.Context, rep *report.Reporter, tl *txlog.Log, position int, identifier string) (string, error)

// batch holds the per-request state shared by the three operations
type batch struct {
	id     string
	op     models.Operation
	entity *models.Entity
	tl     *txlog.Log
	start  time.Time
}

func (s *ingestService) begin(slug string, op models.Operation) (*batch, error) {
	entity, ok := s.registry.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, slug)
	}

	start := s.now()
	tl, err := txlog.Open(s.logsDir, string(op), entity.Table, start)
	if err != nil {
		return nil, err
	}
	return &batch{
		id:     uuid.NewString(),
		op:     op,
		entity: entity,
		tl:     tl,
		start:  start,
	}, nil
}

// checkName rejects payloads tagged for another table
func (b *batch) checkName(name string) error {
	if name == b.entity.ExportTag {
		return nil
	}
	err := fmt.Errorf("%w: endpoint expects '%s', but payload contains data for '%s'",
		ErrTableMismatch, b.entity.ExportTag, name)
	b.tl.Error("FAILURE: " + err.Error())
	return err
}

// Upload creates every item of the batch. In upsert mode existing records
// are updated instead of reported as duplicates.
func (s *ingestService) Upload(ctx context.Context, slug string, req *models.BatchRequest, mode models.UploadMode) (*BatchOutcome, error) {
	b, err := s.begin(slug, models.OperationUpload)
	if err != nil {
		return nil, err
	}
	defer s.closeLog(b)

	if err := b.checkName(req.Name); err != nil {
		return nil, err
	}
	if req.Data == nil {
		b.tl.Error("FAILURE: payload has no 'data' array")
		return nil, fmt.Errorf("%w: 'data'", ErrMissingBlock)
	}

	return s.run(ctx, b, itemIdentifiers(req.Data), func(ctx context.Context, rep *report.Reporter, tl *txlog.Log, i int, id string) (string, error) {
		item, err := validation.Validate(b.entity, req.Data[i])
		if err != nil {
			return "", err
		}

		if mode == models.UploadModeUpsert {
			rec, err := s.pipeline.Update(ctx, b.entity, item)
			if err != nil {
				return "", err
			}
			if rec != nil {
				tl.Info(fmt.Sprintf("SUCCESS: %s '%s' updated. DB ID: %d", b.entity.Singular, id, rec.InternalID))
				return rep.Updated(rec.UniversalID), nil
			}
		}

		rec, err := s.pipeline.Create(ctx, b.entity, item)
		if err != nil {
			return "", err
		}
		tl.Info(fmt.Sprintf("SUCCESS: %s '%s' ingested. DB ID: %d", b.entity.Singular, id, rec.InternalID))
		return rep.Created(rec.UniversalID), nil
	})
}

// Update replaces existing records. Items with no matching record are
// created when createMissing is set and reported as not found otherwise.
func (s *ingestService) Update(ctx context.Context, slug string, req *models.BatchRequest, createMissing bool) (*BatchOutcome, error) {
	b, err := s.begin(slug, models.OperationUpdate)
	if err != nil {
		return nil, err
	}
	defer s.closeLog(b)

	if err := b.checkName(req.Name); err != nil {
		return nil, err
	}
	if req.Data == nil {
		b.tl.Error("FAILURE: payload has no 'data' array")
		return nil, fmt.Errorf("%w: 'data'", ErrMissingBlock)
	}

	return s.run(ctx, b, itemIdentifiers(req.Data), func(ctx context.Context, rep *report.Reporter, tl *txlog.Log, i int, id string) (string, error) {
		item, err := validation.Validate(b.entity, req.Data[i])
		if err != nil {
			return "", err
		}

		rec, err := s.pipeline.Update(ctx, b.entity, item)
		if err != nil {
			return "", err
		}
		if rec != nil {
			msg := rep.Updated(rec.UniversalID)
			tl.Info("SUCCESS: " + msg)
			return msg, nil
		}
		if !createMissing {
			return "", repository.ErrNotFound
		}

		rec, err = s.pipeline.Create(ctx, b.entity, item)
		if err != nil {
			return "", err
		}
		msg := rep.Created(rec.UniversalID)
		tl.Info("SUCCESS: " + msg)
		return msg, nil
	})
}

// Delete removes records by universal_id. Archived files are kept.
func (s *ingestService) Delete(ctx context.Context, slug string, req *models.DeleteRequest) (*BatchOutcome, error) {
	b, err := s.begin(slug, models.OperationDelete)
	if err != nil {
		return nil, err
	}
	defer s.closeLog(b)

	if err := b.checkName(req.Name); err != nil {
		return nil, err
	}
	if req.UniversalIDs == nil {
		b.tl.Error("FAILURE: payload has no 'universal_id' list")
		return nil, fmt.Errorf("%w: 'universal_id'", ErrMissingBlock)
	}

	return s.run(ctx, b, req.UniversalIDs, func(ctx context.Context, rep *report.Reporter, tl *txlog.Log, i int, uid string) (string, error) {
		if _, err := uuid.Parse(uid); err != nil {
			return "", &validation.SchemaError{Errors: []validation.ValidationError{
				{Field: "universal_id", Message: "input should be a valid UUID", Value: uid},
			}}
		}

		rec, err := s.pipeline.Delete(ctx, b.entity, uid)
		if err != nil {
			return "", err
		}
		if rec == nil {
			return "", repository.ErrNotFound
		}
		msg := rep.Deleted(uid)
		tl.Info("SUCCESS: " + msg)
		return msg, nil
	})
}

// run drives the item loop over the items named by ids. Each item runs on
// a context detached from request cancellation; once ctx is done the
// remaining items fail without being started.
func (s *ingestService) run(ctx context.Context, b *batch, ids []string, fn itemFunc) (*BatchOutcome, error) {
	rep := report.New(b.op, b.entity, len(ids), b.start)
	tracer := observability.Tracer()

	if len(ids) == 0 {
		b.tl.Warn(report.EmptyMessage(b.op, b.entity))
		return s.finish(ctx, b, rep), nil
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			s.fail(b, rep, i, id, err)
			continue
		}

		itemCtx, span := tracer.Start(context.WithoutCancel(ctx), "ingest.item")
		span.SetAttributes(
			attribute.String("ingest.table", b.entity.Table),
			attribute.String("ingest.operation", string(b.op)),
			attribute.Int("ingest.position", i),
			attribute.String("ingest.identifier", id),
		)

		itemStart := time.Now()
		msg, err := fn(itemCtx, rep, b.tl, i, id)
		if err != nil {
			f := s.fail(b, rep, i, id, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(f.Kind))
			metrics.ObserveItem(b.entity.Table, string(b.op), string(f.Kind), time.Since(itemStart))
		} else {
			span.SetStatus(codes.Ok, msg)
			metrics.ObserveItem(b.entity.Table, string(b.op), resultOf(msg), time.Since(itemStart))
		}
		span.End()
	}

	return s.finish(ctx, b, rep), nil
}

// fail records a failed item in the reporter and the transaction log
func (s *ingestService) fail(b *batch, rep *report.Reporter, position int, id string, err error) report.Failure {
	f := rep.Fail(position, id, err)

	line := fmt.Sprintf("Item %s: %s", id, f.Reason)
	if b.op == models.OperationDelete && f.Kind == report.KindNotFound {
		line = fmt.Sprintf("SKIPPED: %s - %s", id, f.Reason)
	}
	switch f.Kind.Severity() {
	case report.SeverityCritical:
		b.tl.Critical(line)
	case report.SeverityError:
		b.tl.Error(line)
	default:
		b.tl.Warn(line)
	}

	s.log.Debug().
		Err(err).
		Str("table", b.entity.Table).
		Str("identifier", id).
		Str("kind", string(f.Kind)).
		Msg("Item failed")
	return f
}

// finish writes the summary, persists the run and builds the outcome
func (s *ingestService) finish(ctx context.Context, b *batch, rep *report.Reporter) *BatchOutcome {
	completed := s.now()
	duration := completed.Sub(b.start)
	b.tl.Summary(rep.Total(), rep.Succeeded(), rep.Failed(), duration)

	run, failures := rep.Run(b.id, b.tl.Path(), completed)
	if err := s.runs.Record(context.WithoutCancel(ctx), run, failures); err != nil {
		s.log.Error().Err(err).Str("run_id", b.id).Msg("Failed to record ingestion run")
	}
	metrics.ObserveBatch(b.entity.Table, string(b.op), string(run.Outcome), rep.Total())

	s.log.Info().
		Str("run_id", b.id).
		Str("table", b.entity.Table).
		Str("operation", string(b.op)).
		Str("outcome", string(run.Outcome)).
		Int("total", rep.Total()).
		Int("succeeded", rep.Succeeded()).
		Int("failed", rep.Failed()).
		Int64("duration_ms", run.DurationMs).
		Float64("items_per_sec", run.ItemsPerSec).
		Msg("Batch processed")

	return &BatchOutcome{
		RunID:   b.id,
		Status:  rep.Status(),
		LogPath: b.tl.Path(),
		Result:  rep.Result(),
	}
}

// itemIdentifiers names each item by its universal_id, or index_{i} when
// it has none
func itemIdentifiers(items []json.RawMessage) []string {
	ids := make([]string, len(items))
	for i, raw := range items {
		var probe struct {
			UniversalID interface{} `json:"universal_id"`
		}
		ids[i] = "index_" + strconv.Itoa(i)
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		switch v := probe.UniversalID.(type) {
		case nil:
		case string:
			if v != "" {
				ids[i] = v
			}
		default:
			ids[i] = fmt.Sprint(v)
		}
	}
	return ids
}

// resultOf turns a success message into a metric label
func resultOf(msg string) string {
	verb, _, _ := strings.Cut(msg, ":")
	return strings.ToLower(verb)
}

func (s *ingestService) closeLog(b *batch) {
	if err := b.tl.Close(); err != nil {
		s.log.Error().Err(err).Str("log", b.tl.Path()).Msg("Failed to close transaction log")
	}
}
