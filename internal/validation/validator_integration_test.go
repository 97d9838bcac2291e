package validation

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dump-ingestion-api/internal/models"
)

// testdataPath returns the absolute path to a file in the testdata directory.
func testdataPath(t *testing.T, filename string) string {
	t.Helper()
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(currentFile)))
	path := filepath.Join(projectRoot, "testdata", filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("testdata file not found: %s", path)
	}
	return path
}

func loadDump(t *testing.T, filename string) models.BatchRequest {
	t.Helper()
	data, err := os.ReadFile(testdataPath(t, filename))
	if err != nil {
		t.Fatalf("Failed to read dump: %v", err)
	}
	var req models.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("Failed to decode dump: %v", err)
	}
	return req
}

func TestValidateArticles_RealDump(t *testing.T) {
	dump := loadDump(t, "articles_dump.json")
	if dump.Name != models.Articles.ExportTag {
		t.Fatalf("Expected export tag %s, got %s", models.Articles.ExportTag, dump.Name)
	}

	valid, invalid := 0, 0
	for i, raw := range dump.Data {
		_, err := Validate(models.Articles, raw)
		if err == nil {
			valid++
			continue
		}
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("item %d: expected SchemaError, got %v", i, err)
		}
		invalid++
		t.Logf("item %d: %v", i, schemaErr)
	}

	if valid != 2 || invalid != 1 {
		t.Errorf("Expected 2 valid and 1 invalid, got %d valid and %d invalid", valid, invalid)
	}
}

func TestValidateCGST_RealDump(t *testing.T) {
	dump := loadDump(t, "cgst_dump.json")

	for i, raw := range dump.Data {
		item, err := Validate(models.CGST, raw)
		if err != nil {
			t.Errorf("item %d: unexpected error: %v", i, err)
			continue
		}
		if item.SourcePath() == "" {
			t.Errorf("item %d: expected file_path", i)
		}
	}
}
