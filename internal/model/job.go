package model

import "time"

// JobStage identifies where a job is in its lifecycle
type JobStage string

const (
	StageQueued         JobStage = "QUEUED"
	StageValidating     JobStage = "VALIDATING"
	StageExtracting     JobStage = "EXTRACTING"
	StageScanning       JobStage = "SCANNING"
	StageRecognizing    JobStage = "RECOGNIZING"
	StageAggregating    JobStage = "AGGREGATING"
	StageCompleted      JobStage = "COMPLETED"
	StageWarningNoPages JobStage = "WARNING_NO_PAGES"
	StageFailed         JobStage = "FAILED"
)

// Terminal reports whether no further transition can occur from s.
func (s JobStage) Terminal() bool {
	switch s {
	case StageCompleted, StageWarningNoPages, StageFailed:
		return true
	}
	return false
}

// RecognitionOutcome is the tagged per-page result of the recognition
// stage: either extracted text or a failure reason, never both.
type RecognitionOutcome struct {
	Text   string
	Reason string
	OK     bool
}

// RecognizedPage wraps successfully extracted text.
func RecognizedPage(text string) RecognitionOutcome {
	return RecognitionOutcome{Text: text, OK: true}
}

// FailedPage records why one page could not be recognized.
func FailedPage(reason string) RecognitionOutcome {
	return RecognitionOutcome{Reason: reason}
}

// Job is one end-to-end request to convert one archive's pages into one
// document. The snapshot is persisted on every stage transition; the
// staging directory and outcome map live only in the worker processing
// the job.
type Job struct {
	ID           string     `json:"jobId"`
	ArchiveName  string     `json:"archiveName"`
	Stage        JobStage   `json:"stage"`
	Pages        []string   `json:"pages,omitempty"`
	PageCount    int        `json:"pageCount"`
	SkippedCount int        `json:"skippedCount"`
	FailedPages  int        `json:"failedPages"`
	Document     string     `json:"document,omitempty"`
	DocumentURL  string     `json:"documentUrl,omitempty"`
	Error        *string    `json:"error"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`

	// StagingDir is owned exclusively by the job's worker task. It is
	// cleared when the directory is removed and never referenced again.
	StagingDir string `json:"-"`

	// Outcomes maps each entry of Pages to its recognition result.
	Outcomes map[string]RecognitionOutcome `json:"-"`
}
