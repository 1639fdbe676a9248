package model

import "time"

// JobStatus represents the lifecycle state of a tracked job.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Progress is a running tally reported while a job executes.
type Progress struct {
	Collected int `json:"collected"`
	Stored    int `json:"stored"`
}

// Job is the persisted view of a tracked auto-process job.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
