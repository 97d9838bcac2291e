package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/dump-ingestion-api/internal/testutil"
)

func newCGSTRecord(uid, vil, circular, source string) *models.Record {
	return &models.Record{
		UniversalID: uid,
		ExternalID:  vil,
		Fields: map[string]interface{}{
			"prod_id":        "GST",
			"prod_name":      "Goods and Services Tax",
			"sub_prod_id":    "CGST",
			"sub_prod_name":  "Central GST",
			"sub_subprod_id": "CIRC",
			"circular_date":  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			"circular_no":    circular,
			"cir_subject":    "Place of supply",
			"html_file_path": source,
			"created_dt":     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			"updated_dt":     nil,
		},
		IngestedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordRepo_InsertAndGet(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()
	uid := "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01"

	id, err := repos.Records.Insert(ctx, models.CGST, newCGSTRecord(uid, "501", "201/2024", "/exports/201.html"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("Expected a database-assigned id, got %d", id)
	}

	if err := repos.Records.SetCanonicalPath(ctx, models.CGST, id, "storage/cgst/x_cgst.json"); err != nil {
		t.Fatalf("SetCanonicalPath failed: %v", err)
	}

	rec, err := repos.Records.GetByUniversalID(ctx, models.CGST, uid)
	if err != nil {
		t.Fatalf("GetByUniversalID failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Record should be found")
	}
	if rec.InternalID != id {
		t.Errorf("Expected internal id %d, got %d", id, rec.InternalID)
	}
	if rec.CanonicalPath != "storage/cgst/x_cgst.json" {
		t.Errorf("Unexpected canonical path %q", rec.CanonicalPath)
	}
	if rec.Fields["circular_no"] != "201/2024" {
		t.Errorf("Unexpected circular_no %v", rec.Fields["circular_no"])
	}
	if d, ok := rec.Fields["circular_date"].(time.Time); !ok || !d.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected circular_date %v", rec.Fields["circular_date"])
	}
	if rec.Fields["updated_dt"] != nil {
		t.Errorf("Expected NULL updated_dt, got %v", rec.Fields["updated_dt"])
	}

	byVil, err := repos.Records.GetByExternalID(ctx, models.CGST, "501")
	if err != nil || byVil == nil || byVil.InternalID != id {
		t.Errorf("GetByExternalID returned %+v, %v", byVil, err)
	}
}

func TestRecordRepo_GetMissing(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))

	rec, err := repos.Records.GetByUniversalID(context.Background(), models.VAT, "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("GetByUniversalID failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil record, got %+v", rec)
	}
}

func TestRecordRepo_DuplicateDetection(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()

	first := newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", "", "201/2024", "/exports/201.html")
	if _, err := repos.Records.Insert(ctx, models.CGST, first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	tests := []struct {
		name string
		rec  *models.Record
	}{
		{"same universal_id", newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", "", "202/2024", "/exports/202.html")},
		{"same source path", newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a02", "", "203/2024", "/exports/201.html")},
		{"same circular_no", newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a03", "", "201/2024", "/exports/204.html")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repos.Records.Insert(ctx, models.CGST, tt.rec)
			if !errors.Is(err, repository.ErrDuplicate) {
				t.Errorf("Expected ErrDuplicate, got %v", err)
			}
		})
	}
}

func TestRecordRepo_UpdateKeepsIdentity(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()
	uid := "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01"

	id, err := repos.Records.Insert(ctx, models.CGST, newCGSTRecord(uid, "501", "201/2024", "/exports/201.html"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	changed := newCGSTRecord("", "", "201/2024", "/exports/201.html")
	changed.InternalID = id
	changed.Fields["cir_subject"] = "Revised subject"
	changed.Fields["prod_name"] = nil
	if err := repos.Records.Update(ctx, models.CGST, changed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rec, _ := repos.Records.GetByUniversalID(ctx, models.CGST, uid)
	if rec == nil {
		t.Fatal("Record should still be found by its universal_id")
	}
	if rec.Fields["cir_subject"] != "Revised subject" {
		t.Errorf("Expected updated subject, got %v", rec.Fields["cir_subject"])
	}
	if rec.Fields["prod_name"] != nil {
		t.Errorf("Expected full replacement to clear prod_name, got %v", rec.Fields["prod_name"])
	}
	if rec.ExternalID != "501" {
		t.Errorf("Expected vil_id preserved, got %q", rec.ExternalID)
	}

	missing := newCGSTRecord("", "", "999/2024", "/exports/999.html")
	missing.InternalID = id + 100
	if err := repos.Records.Update(ctx, models.CGST, missing); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing row, got %v", err)
	}
}

func TestRecordRepo_BackfillUniversalID(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()

	id, err := repos.Records.Insert(ctx, models.CGST, newCGSTRecord("", "777", "201/2024", "/exports/201.html"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	uid := "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a09"
	if err := repos.Records.BackfillUniversalID(ctx, models.CGST, id, uid); err != nil {
		t.Fatalf("BackfillUniversalID failed: %v", err)
	}
	rec, _ := repos.Records.GetByUniversalID(ctx, models.CGST, uid)
	if rec == nil || rec.InternalID != id {
		t.Fatalf("Expected backfilled record, got %+v", rec)
	}

	err = repos.Records.BackfillUniversalID(ctx, models.CGST, id, "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a10")
	if !errors.Is(err, repository.ErrIdentityConflict) {
		t.Errorf("Expected ErrIdentityConflict on second backfill, got %v", err)
	}
}

func TestRecordRepo_DeleteAndCount(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()

	id, err := repos.Records.Insert(ctx, models.CGST, newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", "", "201/2024", "/exports/201.html"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if n, _ := repos.Records.Count(ctx, models.CGST); n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}

	if err := repos.Records.Delete(ctx, models.CGST, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := repos.Records.Count(ctx, models.CGST); n != 0 {
		t.Errorf("Expected 0 rows, got %d", n)
	}
	if err := repos.Records.Delete(ctx, models.CGST, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTxRunner_RollbackOnError(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()
	boom := errors.New("archive unavailable")

	err := repos.Tx.RunInTx(ctx, func(tx repository.DBTX) error {
		records := repos.Records.WithTx(tx)
		if _, err := records.Insert(ctx, models.CGST, newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", "", "201/2024", "/exports/201.html")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	if n, _ := repos.Records.Count(ctx, models.CGST); n != 0 {
		t.Errorf("Expected rollback to leave no rows, got %d", n)
	}
}

func TestTxRunner_Commit(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()

	err := repos.Tx.RunInTx(ctx, func(tx repository.DBTX) error {
		_, err := repos.Records.WithTx(tx).Insert(ctx, models.CGST, newCGSTRecord("8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", "", "201/2024", "/exports/201.html"))
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx failed: %v", err)
	}
	if n, _ := repos.Records.Count(ctx, models.CGST); n != 1 {
		t.Errorf("Expected committed row, got %d", n)
	}
}

func TestRunRepo_CreateAndFailures(t *testing.T) {
	repos := repository.New(testutil.NewTestDatabase(t))
	ctx := context.Background()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	run := &models.IngestionRun{
		ID:          "6a1f8c2e-0b3d-4e5f-9a7b-1c2d3e4f5a6b",
		Operation:   models.OperationUpload,
		Entity:      "cgst",
		Outcome:     models.OutcomePartial,
		TotalItems:  3,
		Succeeded:   1,
		Failed:      2,
		DurationMs:  1500,
		ItemsPerSec: 2,
		LogPath:     "logs/upload_cgst_20240501_120000.000000.txt",
		StartedAt:   started,
		CompletedAt: &completed,
	}
	if err := repos.Runs.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	failures := []models.RunFailure{
		{Position: 2, Identifier: "index_2", Kind: "schema_validation", Reason: "Schema Validation Error: Field 'circular_no': field required"},
		{Position: 0, Identifier: "8b0e4f6a-1c2d-4e3f-8a9b-0c1d2e3f4a01", Kind: "duplicate", Reason: "Duplicate Error"},
	}
	if err := repos.Runs.AddFailures(ctx, run.ID, failures); err != nil {
		t.Fatalf("AddFailures failed: %v", err)
	}

	got, err := repos.Runs.GetByID(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID returned %+v, %v", got, err)
	}
	if got.Outcome != models.OutcomePartial || got.Failed != 2 || got.Entity != "cgst" {
		t.Errorf("Unexpected run %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	stored, err := repos.Runs.GetFailures(ctx, run.ID, 0)
	if err != nil {
		t.Fatalf("GetFailures failed: %v", err)
	}
	if len(stored) != 2 || stored[0].Position != 0 || stored[1].Position != 2 {
		t.Errorf("Expected failures ordered by position, got %+v", stored)
	}

	limited, _ := repos.Runs.GetFailures(ctx, run.ID, 1)
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}

	recent, err := repos.Runs.ListRecent(ctx, "cgst", 10)
	if err != nil || len(recent) != 1 {
		t.Errorf("ListRecent returned %d runs, %v", len(recent), err)
	}
	other, _ := repos.Runs.ListRecent(ctx, "vat", 10)
	if len(other) != 0 {
		t.Errorf("Expected no vat runs, got %d", len(other))
	}

	missing, err := repos.Runs.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing run, got %+v, %v", missing, err)
	}
}
