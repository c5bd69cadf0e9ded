package model

import "time"

// EventStatus is the coarse state a progress event reports
type EventStatus string

const (
	StatusRunning   EventStatus = "RUNNING"
	StatusSuccess   EventStatus = "SUCCESS"
	StatusFailed    EventStatus = "FAILED"
	StatusCompleted EventStatus = "COMPLETED"
)

// EventSeverity is the display weight of a progress event
type EventSeverity string

const (
	SeverityDebug   EventSeverity = "DEBUG"
	SeverityInfo    EventSeverity = "INFO"
	SeveritySuccess EventSeverity = "SUCCESS"
	SeverityWarning EventSeverity = "WARNING"
	SeverityError   EventSeverity = "ERROR"
)

// Machine-readable event names published over a job's topic.
const (
	EventJobStarted    = "JOB_STARTED"
	EventValidation    = "VALIDATION"
	EventExtraction    = "EXTRACTION"
	EventFileExtracted = "FILE_EXTRACTED"
	EventImageScan     = "IMAGE_SCAN"
	EventImageFound    = "IMAGE_FOUND"
	EventFileSkipped   = "FILE_SKIPPED"
	EventOCRPipeline   = "OCR_PIPELINE"
	EventOCRStarted    = "OCR_STARTED"
	EventOCRSuccess    = "OCR_SUCCESS"
	EventOCRFailed     = "OCR_FAILED"
	EventAggregation   = "AGGREGATION"
	EventResultMissing = "RESULT_MISSING"
	EventJobCompleted  = "JOB_COMPLETED"
	EventJobWarning    = "JOB_WARNING"
	EventJobFailed     = "JOB_FAILED"
)

// ProgressEvent is one immutable record on a job's event feed. The JSON
// field names are a wire contract consumed by feed clients.
type ProgressEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Status    EventStatus            `json:"status"`
	Severity  EventSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
}

// NewProgressEvent stamps an event with the current UTC time. Data may
// be nil; the wire shape always carries an object, never null.
func NewProgressEvent(event string, status EventStatus, severity EventSeverity, message string, data map[string]interface{}) ProgressEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return ProgressEvent{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Status:    status,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}
