// internal/models/models.go
package models

import "time"

// JobStatus is the lifecycle state of a thumbnail job.
// Transitions only move forward: Queued -> Processing -> Completed | Failed.
type JobStatus string

const (
	StatusQueued     JobStatus = "Queued"
	StatusProcessing JobStatus = "Processing"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one uploaded image awaiting thumbnail derivation. It is immutable
// once created.
type Job struct {
	ID           string
	OriginalPath string
	FolderPath   string
}

// JobState is what the status tracker keeps per identifier.
type JobState struct {
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload describes an incoming file before it is accepted.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
}

// UploadRecord is the catalog row kept for every accepted upload.
type UploadRecord struct {
	ID           string    `db:"id" json:"id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	ContentType  string    `db:"content_type" json:"content_type"`
	Extension    string    `db:"extension" json:"extension"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	Widths       []int     `db:"widths" json:"widths"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
