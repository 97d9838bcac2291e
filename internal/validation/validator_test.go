package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dump-ingestion-api/internal/models"
)

const validArticle = `{
	"universal_id": "550e8400-e29b-41d4-a716-446655440000",
	"vil_id": 4412,
	"article_date": "2024-03-01T10:00:00",
	"summary": "GST council notes",
	"author": "Tax Desk",
	"file_data": "<html>notes</html>",
	"file_path": "/exports/articles/4412.html",
	"created_dt": "2024-03-01 10:00:00",
	"updated_dt": "2024-03-02T08:30:00Z"
}`

func TestValidateArticle(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantFields []string
	}{
		{
			name: "valid article with all fields",
			raw:  validArticle,
		},
		{
			name: "extra keys are ignored",
			raw: strings.Replace(validArticle, `"summary"`, `"unknown_key": 1, "summary"`, 1),
		},
		{
			name:       "missing required fields are all reported",
			raw:        `{"summary": "only a summary"}`,
			wantFields: []string{"article_date", "author", "file_path", "file_data", "created_dt", "updated_dt"},
		},
		{
			name:       "bad timestamp",
			raw:        strings.Replace(validArticle, `"2024-03-01T10:00:00"`, `"yesterday"`, 1),
			wantFields: []string{"article_date"},
		},
		{
			name:       "invalid universal_id",
			raw:        strings.Replace(validArticle, "550e8400-e29b-41d4-a716-446655440000", "not-a-uuid", 1),
			wantFields: []string{"universal_id"},
		},
		{
			name:       "number where text expected",
			raw:        strings.Replace(validArticle, `"Tax Desk"`, `42`, 1),
			wantFields: []string{"author"},
		},
		{
			name:       "non-integer vil_id",
			raw:        strings.Replace(validArticle, `4412,`, `4412.5,`, 1),
			wantFields: []string{"vil_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := Validate(models.Articles, json.RawMessage(tt.raw))

			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				if item == nil {
					t.Fatal("Expected validated item")
				}
				return
			}

			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Expected SchemaError, got %v", err)
			}
			if len(schemaErr.Errors) != len(tt.wantFields) {
				t.Errorf("Expected %d errors, got %d: %v", len(tt.wantFields), len(schemaErr.Errors), schemaErr)
			}
			got := make(map[string]bool)
			for _, e := range schemaErr.Errors {
				got[e.Field] = true
			}
			for _, f := range tt.wantFields {
				if !got[f] {
					t.Errorf("Expected error for field %s, got %v", f, schemaErr)
				}
			}
		})
	}
}

func TestValidate_NormalizesIdentifiers(t *testing.T) {
	item, err := Validate(models.Articles, json.RawMessage(validArticle))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if item.ExternalID != "4412" {
		t.Errorf("Expected integer vil_id normalized to \"4412\", got %q", item.ExternalID)
	}
	if item.UniversalID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("Unexpected universal_id %q", item.UniversalID)
	}

	created, ok := item.Values["created_dt"].(time.Time)
	if !ok {
		t.Fatalf("Expected created_dt parsed as time.Time, got %T", item.Values["created_dt"])
	}
	if !created.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created_dt %v", created)
	}
}

func TestValidate_StringExternalID(t *testing.T) {
	raw := `{"vil_id": " CU-77 ", "circular_no": "77/2024", "file_path": "/exports/cu/77.html"}`

	item, err := Validate(models.CU, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if item.ExternalID != "CU-77" {
		t.Errorf("Expected trimmed vil_id, got %q", item.ExternalID)
	}
	if item.UniversalID != "" {
		t.Errorf("Expected empty universal_id, got %q", item.UniversalID)
	}
	if item.Values["prod_id"] != nil {
		t.Errorf("Expected absent optional to be nil, got %v", item.Values["prod_id"])
	}
}

func TestValidate_NonObjectItem(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `[1,2]`, `42`, `null`} {
		_, err := Validate(models.CGST, json.RawMessage(raw))
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Errorf("%s: expected SchemaError, got %v", raw, err)
		}
	}
}

func TestSchemaErrorMessage(t *testing.T) {
	err := &SchemaError{Errors: []ValidationError{
		{Field: "circular_no", Message: "field required"},
		{Field: "file_path", Message: "field required"},
	}}

	want := "Field 'circular_no': field required; Field 'file_path': field required"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	inputs := []string{
		"2024-01-15T09:30:00Z",
		"2024-01-15T09:30:00",
		"2024-01-15 09:30:00",
		"2024-01-15T11:30:00+02:00",
	}
	for _, in := range inputs {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%s: expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParseTimestamp("15/01/2024"); err == nil {
		t.Error("Expected error for unsupported layout")
	}
}

func BenchmarkValidateCase(b *testing.B) {
	raw := json.RawMessage(`{
		"vil_id": "9001", "prod_id": "GST", "prod_name": "Goods and Services Tax",
		"sub_prod_id": "C", "sub_prod_name": "Central", "sub_subprod_id": "N",
		"state_id": "KA", "circular_date": "2024-02-01", "eq_citation": "2024-VIL-01",
		"circular_no": "01/2024", "case_no": "C-1", "order_no": "O-1",
		"judge_name": "Bench", "cir_subject": "Refunds", "party_name": "Acme",
		"file_path": "/exports/sgst/9001.html"
	}`)
	validator := NewValidator(models.SGST)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := validator.Validate(raw); err != nil {
			b.Fatal(err)
		}
	}
}
