// Package report accumulates per-item outcomes of an ingestion batch and
// turns them into the response body, HTTP status and run summary.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dump-ingestion-api/internal/archive"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/dump-ingestion-api/internal/validation"
)

// Kind is the fixed taxonomy of per-item failures
type Kind string

const (
	KindSchemaValidation Kind = "schema_validation"
	KindDuplicate        Kind = "duplicate"
	KindFileSystem       Kind = "file_system"
	KindDatabase         Kind = "database"
	KindNotFound         Kind = "not_found"
	KindUnexpected       Kind = "unexpected"
)

// Severity is the transaction log level a failure is written at
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
	SeverityCritical
)

// Severity returns the log level for failures of kind k
func (k Kind) Severity() Severity {
	switch k {
	case KindFileSystem:
		return SeverityCritical
	case KindDatabase, KindUnexpected:
		return SeverityError
	default:
		return SeverityWarn
	}
}

// Classify maps an item error onto its kind and client-facing reason
func Classify(op models.Operation, err error) (Kind, string) {
	var schemaErr *validation.SchemaError
	var storeErr *archive.StoreError
	var dbErr *repository.Error

	switch {
	case errors.As(err, &schemaErr):
		return KindSchemaValidation, "Schema Validation Error: " + schemaErr.Error()
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound, "Record not found in database."
	case errors.Is(err, repository.ErrIdentityConflict):
		return KindDuplicate, "Identity Conflict: record found by vil_id already has a different universal_id."
	case errors.Is(err, repository.ErrDuplicate):
		if op == models.OperationUpdate {
			return KindDuplicate, "Database Constraint Error: This record likely already exists or violates a unique constraint."
		}
		return KindDuplicate, "Duplicate Error: This record already exists (universal_id or unique constraint violation)."
	case errors.As(err, &storeErr):
		return KindFileSystem, "File System Error: Unable to write JSON file. " + storeErr.Cause()
	case errors.As(err, &dbErr):
		return KindDatabase, "Database Error: " + dbErr.Cause()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindUnexpected, "Unexpected Server Error: request cancelled before the item was processed."
	default:
		return KindUnexpected, fmt.Sprintf("Unexpected Server Error: %T: %v", err, err)
	}
}

// Failure is one recorded item failure
type Failure struct {
	Position   int
	Identifier string
	Kind       Kind
	Reason     string
}

// Reporter collects the outcome of every item of one batch. It is used by
// a single request goroutine.
type Reporter struct {
	op        models.Operation
	entity    *models.Entity
	total     int
	started   time.Time
	processed []string
	failures  []Failure
}

// New creates a reporter for a batch of total items
func New(op models.Operation, entity *models.Entity, total int, started time.Time) *Reporter {
	return &Reporter{
		op:        op,
		entity:    entity,
		total:     total,
		started:   started,
		processed: []string{},
		failures:  []Failure{},
	}
}

// Created records a successful create
func (r *Reporter) Created(universalID string) string {
	return r.success(fmt.Sprintf("CREATED: universal_id=%s", universalID))
}

// Updated records a successful update
func (r *Reporter) Updated(universalID string) string {
	return r.success(fmt.Sprintf("UPDATED: universal_id=%s", universalID))
}

// Deleted records a successful delete
func (r *Reporter) Deleted(universalID string) string {
	return r.success(fmt.Sprintf("DELETED: %s", universalID))
}

func (r *Reporter) success(msg string) string {
	r.processed = append(r.processed, msg)
	return msg
}

// Fail classifies err and records it against the item at position
func (r *Reporter) Fail(position int, identifier string, err error) Failure {
	kind, reason := Classify(r.op, err)
	f := Failure{Position: position, Identifier: identifier, Kind: kind, Reason: reason}
	r.failures = append(r.failures, f)
	return f
}

func (r *Reporter) Succeeded() int { return len(r.processed) }

func (r *Reporter) Failed() int { return len(r.failures) }

func (r *Reporter) Total() int { return r.total }

func (r *Reporter) Failures() []Failure { return r.failures }

// Outcome classifies the batch
func (r *Reporter) Outcome() models.Outcome {
	switch {
	case r.total == 0:
		return models.OutcomeEmpty
	case r.Failed() == 0:
		return models.OutcomeAllSucceeded
	case r.Succeeded() > 0:
		return models.OutcomePartial
	default:
		return models.OutcomeTotalFailure
	}
}

// Status maps the outcome onto an HTTP status
func (r *Reporter) Status() int {
	return StatusFor(r.op, r.Outcome())
}

// StatusFor maps an operation outcome onto an HTTP status
func StatusFor(op models.Operation, outcome models.Outcome) int {
	switch outcome {
	case models.OutcomeAllSucceeded:
		if op == models.OperationUpload {
			return http.StatusCreated
		}
		return http.StatusOK
	case models.OutcomePartial:
		return http.StatusMultiStatus
	case models.OutcomeTotalFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// Message is the summary line of the response
func (r *Reporter) Message() string {
	if r.total == 0 {
		return EmptyMessage(r.op, r.entity)
	}
	verb := "Upload"
	switch r.op {
	case models.OperationUpdate:
		verb = "Upsert"
	case models.OperationDelete:
		verb = "Delete"
	}
	return fmt.Sprintf("%s processed. Success: %d, Failed: %d", verb, r.Succeeded(), r.Failed())
}

// EmptyMessage is the distinct message for a batch with no items
func EmptyMessage(op models.Operation, entity *models.Entity) string {
	if op == models.OperationDelete {
		return "Payload received, but 'universal_id' list is empty."
	}
	return fmt.Sprintf("Payload received, but 'data' array is empty for %s.", entity.Plural)
}

// Result builds the response body
func (r *Reporter) Result() *models.BatchResult {
	failed := make([]models.FailedItem, len(r.failures))
	for i, f := range r.failures {
		failed[i] = models.FailedItem{Identifier: f.Identifier, Reason: f.Reason}
	}
	return &models.BatchResult{
		Message:        r.Message(),
		ProcessedItems: r.processed,
		FailedItems:    failed,
	}
}

// Run builds the ledger entry for the finished batch
func (r *Reporter) Run(id, logPath string, completed time.Time) (*models.IngestionRun, []models.RunFailure) {
	duration := completed.Sub(r.started)
	run := &models.IngestionRun{
		ID:          id,
		Operation:   r.op,
		Entity:      r.entity.Table,
		Outcome:     r.Outcome(),
		TotalItems:  r.total,
		Succeeded:   r.Succeeded(),
		Failed:      r.Failed(),
		DurationMs:  duration.Milliseconds(),
		LogPath:     logPath,
		StartedAt:   r.started,
		CompletedAt: &completed,
	}
	if secs := duration.Seconds(); secs > 0 {
		run.ItemsPerSec = float64(r.total) / secs
	}

	failures := make([]models.RunFailure, len(r.failures))
	for i, f := range r.failures {
		failures[i] = models.RunFailure{
			Position:   f.Position,
			Identifier: f.Identifier,
			Kind:       string(f.Kind),
			Reason:     f.Reason,
		}
	}
	return run, failures
}
