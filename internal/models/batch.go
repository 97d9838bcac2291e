package models

import (
	"encoding/json"
)

// Operation identifies the ingestion flow a request runs
type Operation string

const (
	OperationUpload Operation = "upload"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// UploadMode selects how upload treats records that already exist
type UploadMode string

const (
	// UploadModeCreate fails existing records with a duplicate error
	UploadModeCreate UploadMode = "create"
	// UploadModeUpsert updates existing records instead
	UploadModeUpsert UploadMode = "upsert"
)

// Outcome classifies a finished batch
type Outcome string

const (
	OutcomeEmpty        Outcome = "empty"
	OutcomeAllSucceeded Outcome = "all_succeeded"
	OutcomePartial      Outcome = "partial"
	OutcomeTotalFailure Outcome = "total_failure"
)

// BatchRequest is the exporter's payload for upload and update
type BatchRequest struct {
	Name string            `json:"name"`
	Data []json.RawMessage `json:"data"`
}

// DeleteRequest is the exporter's payload for delete
type DeleteRequest struct {
	Name         string   `json:"name"`
	UniversalIDs []string `json:"universal_id"`
}

// FailedItem is one failure entry of a batch result
type FailedItem struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// BatchResult is the response body of every ingestion request
type BatchResult struct {
	Message        string       `json:"message"`
	ProcessedItems []string     `json:"processed_items"`
	FailedItems    []FailedItem `json:"failed_items"`
}
