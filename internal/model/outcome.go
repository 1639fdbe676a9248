package model

// OutcomeStatus is the worker-level result of processing one WorkItem.
type OutcomeStatus string

const (
	OutcomeSuccess      OutcomeStatus = "success"
	OutcomeError        OutcomeStatus = "error"
	OutcomeWouldProcess OutcomeStatus = "would_process"
)

// SyncStatus is the CRM write result, tracked independently of the outcome
// status so that "extracted" and "synced" are never conflated.
type SyncStatus string

const (
	SyncSuccess           SyncStatus = "success"
	SyncFailed            SyncStatus = "failed"
	SyncAuthError         SyncStatus = "auth_error"
	SyncFieldMappingError SyncStatus = "field_mapping_error"
	SyncError             SyncStatus = "error"
	SyncSkipped           SyncStatus = "skipped"
)

// ProcessingOutcome is the terminal record for one scheduled WorkItem.
type ProcessingOutcome struct {
	ItemID            string        `json:"item_id"`
	RecordID          string        `json:"record_id,omitempty"`
	Status            OutcomeStatus `json:"status"`
	SyncStatus        SyncStatus    `json:"sync_status"`
	ProcessingTimeMs  int64         `json:"processing_time_ms"`
	TokensUsed        *int          `json:"tokens_used,omitempty"`
	CostUSD           float64       `json:"cost_usd,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	UpdatedFieldCount int           `json:"updated_field_count,omitempty"`
	FailedShards      []string      `json:"failed_shards,omitempty"`
}
