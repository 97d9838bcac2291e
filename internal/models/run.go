package models

import (
	"time"
)

// IngestionRun is the persisted summary of one ingestion request
type IngestionRun struct {
	ID          string     `json:"run_id" db:"id"`
	Operation   Operation  `json:"operation" db:"operation"`
	Entity      string     `json:"entity" db:"table_name"`
	Outcome     Outcome    `json:"outcome" db:"outcome"`
	TotalItems  int        `json:"total_items" db:"total_items"`
	Succeeded   int        `json:"succeeded" db:"succeeded"`
	Failed      int        `json:"failed" db:"failed"`
	DurationMs  int64      `json:"duration_ms" db:"duration_ms"`
	ItemsPerSec float64    `json:"items_per_sec,omitempty" db:"items_per_sec"`
	LogPath     string     `json:"log_path,omitempty" db:"log_path"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunFailure is one failed item of a run
type RunFailure struct {
	Position   int    `json:"position"`
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// RunResponse is the API response for run status
type RunResponse struct {
	IngestionRun
	Failures      []RunFailure `json:"failures,omitempty"`
	FailureReport string       `json:"failure_report_url,omitempty"`
}
