package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dump-ingestion-api/internal/models"
	"github.com/google/uuid"
)

// Accepted timestamp layouts, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// SchemaError lists every field that failed validation for one item
type SchemaError struct {
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("Field '%s': %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator checks raw exporter items against an entity's field table
type Validator struct {
	entity *models.Entity
}

// NewValidator creates a validator for one entity
func NewValidator(entity *models.Entity) *Validator {
	return &Validator{entity: entity}
}

// Validate decodes raw and checks it. On failure the returned error is a
// *SchemaError naming every failing field.
func (v *Validator) Validate(raw json.RawMessage) (*models.ValidatedItem, error) {
	return Validate(v.entity, raw)
}

// Validate checks one raw item against entity. Unknown keys are ignored.
func Validate(entity *models.Entity, raw json.RawMessage) (*models.ValidatedItem, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, &SchemaError{Errors: []ValidationError{{Field: "item", Message: err.Error()}}}
	}

	var errs []ValidationError
	item := &models.ValidatedItem{Values: make(map[string]interface{}, len(entity.Fields))}

	if uid, ferr := validateUniversalID(obj["universal_id"]); ferr != nil {
		errs = append(errs, *ferr)
	} else {
		item.UniversalID = uid
	}

	if ext, ferr := validateExternalID(obj["vil_id"]); ferr != nil {
		errs = append(errs, *ferr)
	} else {
		item.ExternalID = ext
	}

	for _, f := range entity.Fields {
		val, ferr := validateField(f, obj[f.Name])
		if ferr != nil {
			errs = append(errs, *ferr)
			continue
		}
		item.Values[f.Name] = val
	}

	if len(errs) > 0 {
		return nil, &SchemaError{Errors: errs}
	}
	return item, nil
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("item must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return obj, nil
}

func validateField(f models.FieldSpec, value interface{}) (interface{}, *ValidationError) {
	if value == nil {
		if f.Required {
			return nil, &ValidationError{Field: f.Name, Message: "field required"}
		}
		return nil, nil
	}

	s, ok := value.(string)
	if !ok {
		return nil, &ValidationError{Field: f.Name, Message: "input should be a valid string", Value: value}
	}

	switch f.Type {
	case models.FieldTimestamp:
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, &ValidationError{Field: f.Name, Message: "input should be a valid datetime", Value: s}
		}
		return t, nil
	default:
		return s, nil
	}
}

func validateUniversalID(value interface{}) (string, *ValidationError) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", &ValidationError{Field: "universal_id", Message: "input should be a valid UUID string", Value: value}
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", &ValidationError{Field: "universal_id", Message: "invalid UUID format", Value: s}
	}
	return id.String(), nil
}

// validateExternalID accepts the exporter's vil_id as either an integer or a
// string and normalizes it to a string.
func validateExternalID(value interface{}) (string, *ValidationError) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		if _, err := v.Int64(); err != nil {
			return "", &ValidationError{Field: "vil_id", Message: "input should be an integer or string", Value: v.String()}
		}
		return v.String(), nil
	default:
		return "", &ValidationError{Field: "vil_id", Message: "input should be an integer or string", Value: v}
	}
}

// ParseTimestamp parses s using the accepted layouts. Values without a zone
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
