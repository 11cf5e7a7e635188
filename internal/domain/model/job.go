package model

import "time"

// RecomputeJob asks the worker pool to rerun a stored project.
type RecomputeJob struct {
	JobID      string    `json:"jobId"`
	ProjectID  string    `json:"projectId"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
