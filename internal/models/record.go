package models

import (
	"time"
)

// ValidatedItem is one exporter item that passed schema validation.
// Values holds every declared field keyed by JSON name; absent optional
// fields are nil, timestamps are time.Time and text is string.
type ValidatedItem struct {
	UniversalID string
	ExternalID  string
	Values      map[string]interface{}
}

// SourcePath returns the exporter-supplied file_path.
func (v *ValidatedItem) SourcePath() string {
	s, _ := v.Values["file_path"].(string)
	return s
}

// Record is one stored row of an entity table
type Record struct {
	InternalID    int64                  `json:"internal_id"`
	UniversalID   string                 `json:"universal_id"`
	ExternalID    string                 `json:"vil_id,omitempty"`
	Fields        map[string]interface{} `json:"fields"`
	CanonicalPath string                 `json:"file_storage_path,omitempty"`
	IngestedAt    time.Time              `json:"ingestion_dt"`
}

// SourcePath returns the stored html_file_path.
func (r *Record) SourcePath() string {
	s, _ := r.Fields["html_file_path"].(string)
	return s
}
