package model

import "time"

// UploadResponse is returned when an archive is accepted for processing
type UploadResponse struct {
	JobID     string    `json:"jobId"`
	Stage     JobStage  `json:"stage"`
	StatusURL string    `json:"statusUrl"`
	EventsURL string    `json:"eventsUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is the snapshot served for one job
type JobStatusResponse struct {
	JobID        string     `json:"jobId"`
	ArchiveName  string     `json:"archiveName"`
	Stage        JobStage   `json:"stage"`
	PageCount    int        `json:"pageCount"`
	SkippedCount int        `json:"skippedCount"`
	FailedPages  int        `json:"failedPages"`
	DocumentURL  string     `json:"documentUrl,omitempty"`
	Error        *string    `json:"error"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
}

// OCRJobPayload is the task body queued for the worker
type OCRJobPayload struct {
	JobID       string `json:"jobId"`
	ArchivePath string `json:"archivePath"`
	ArchiveName string `json:"archiveName"`
}
