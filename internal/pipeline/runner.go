// Package pipeline drives one OCR job from uploaded archive to
// aggregated document: validate, extract, scan, recognize, aggregate.
// Every stage reports progress through the job's event topic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/ocr"
	"github.com/ziptext/api/internal/telemetry"
)

// Bus is the publish half of the event hub. Implementations must
// deliver one job's events to each subscriber in publication order.
type Bus interface {
	Publish(jobID string, event model.ProgressEvent)
}

// Store persists job snapshots between stage transitions so status
// survives the API/worker process boundary.
type Store interface {
	Save(ctx context.Context, job *model.Job) error
}

// Archiver uploads a finished document to object storage and returns
// its public URL.
type Archiver interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// EngineFactory acquires the recognition capability for one job run.
// An error here is fatal for the whole job, unlike per-page failures.
type EngineFactory func() (ocr.Engine, error)

// Config carries the pipeline knobs resolved at startup.
type Config struct {
	// WorkDir is the root for per-job staging directories. Empty means
	// the OS temp directory.
	WorkDir string

	// AllowBMP admits .bmp entries as pages during the scan stage.
	AllowBMP bool

	// MaxEntryBytes caps the decompressed size of a single archive
	// entry. Zero disables the cap.
	MaxEntryBytes int64

	// RecognizeTimeout bounds the whole recognition stage, the only
	// unbounded external call in the pipeline. Zero disables it.
	RecognizeTimeout time.Duration

	// MaxImageBytes and MaxImageEdge bound pages submitted to the
	// recognition backend; oversized pages are downscaled first.
	MaxImageBytes int64
	MaxImageEdge  int
}

// Runner executes the pipeline for one job at a time. A single Runner
// is shared by all worker tasks; per-job state lives on the Job.
type Runner struct {
	cfg      Config
	engines  EngineFactory
	bus      Bus
	store    Store
	archiver Archiver // nil disables document archival
	log      zerolog.Logger
}

// NewRunner wires a pipeline runner. archiver may be nil.
func NewRunner(cfg Config, engines EngineFactory, bus Bus, store Store, archiver Archiver, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		engines:  engines,
		bus:      bus,
		store:    store,
		archiver: archiver,
		log:      log,
	}
}

// emitter binds a job ID to the bus so stages publish with one call.
type emitter struct {
	bus   Bus
	jobID string
}

func (e *emitter) emit(event string, status model.EventStatus, severity model.EventSeverity, message string) {
	e.emitData(event, status, severity, message, nil)
}

func (e *emitter) emitData(event string, status model.EventStatus, severity model.EventSeverity, message string, data map[string]interface{}) {
	e.bus.Publish(e.jobID, model.NewProgressEvent(event, status, severity, message, data))
}

// Run drives the job through every stage and settles it in exactly one
// terminal state. On every exit path the staging directory is removed,
// one terminal event is published and the final snapshot is saved. The
// returned error is non-nil only for FAILED outcomes; the no-pages
// warning concludes the job normally.
func (r *Runner) Run(ctx context.Context, job *model.Job, archivePath string) error {
	em := &emitter{bus: r.bus, jobID: job.ID}
	start := time.Now()
	telemetry.JobsStarted.Inc()

	startedAt := start.UTC()
	job.StartedAt = &startedAt

	em.emit(model.EventJobStarted, model.StatusRunning, model.SeverityInfo,
		"Processing new job for file: "+job.ArchiveName)

	runErr := r.runStages(ctx, em, job, archivePath)
	if runErr != nil && !errors.Is(runErr, ErrNoPages) {
		r.log.Error().Err(runErr).Str("job_id", job.ID).Msg("pipeline run failed")
	}

	r.cleanup(job)
	err := r.finish(em, job, runErr)

	now := time.Now().UTC()
	job.CompletedAt = &now
	r.saveSnapshot(job)

	telemetry.JobDuration.Observe(time.Since(start).Seconds())
	return err
}

// runStages is the stage sequencer. It returns a classified error for
// failure paths and ErrNoPages for the zero-page warning path; panics
// anywhere in a stage are converted into a generic failure.
func (r *Runner) runStages(ctx context.Context, em *emitter, job *model.Job, archivePath string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("job_id", job.ID).Interface("panic", p).
				Bytes("stack", debug.Stack()).Msg("pipeline panic recovered")
			err = fmt.Errorf("pipeline panic: %v", p)
		}
	}()

	r.setStage(ctx, job, model.StageValidating)
	em.emit(model.EventValidation, model.StatusRunning, model.SeverityInfo,
		"Validating uploaded file...")
	if err := validateZip(archivePath); err != nil {
		em.emit(model.EventValidation, model.StatusFailed, model.SeverityError,
			"File is not a valid ZIP archive.")
		return err
	}
	em.emit(model.EventValidation, model.StatusSuccess, model.SeveritySuccess,
		"File validation successful.")

	r.setStage(ctx, job, model.StageExtracting)
	if err := r.extract(em, job, archivePath); err != nil {
		return err
	}

	r.setStage(ctx, job, model.StageScanning)
	r.scan(em, job)
	if job.PageCount == 0 {
		return ErrNoPages
	}

	r.setStage(ctx, job, model.StageRecognizing)
	if err := r.recognize(ctx, em, job); err != nil {
		return err
	}

	r.setStage(ctx, job, model.StageAggregating)
	r.aggregate(em, job)

	if r.archiver != nil && job.Document != "" {
		r.archiveDocument(ctx, job)
	}
	return nil
}

// finish settles the terminal stage and publishes the single terminal
// event. Classified archive errors surface their own text; everything
// else is sanitized to a generic message, with full detail confined to
// the server log.
func (r *Runner) finish(em *emitter, job *model.Job, runErr error) error {
	switch {
	case runErr == nil:
		job.Stage = model.StageCompleted
		data := map[string]interface{}{"final_text": job.Document}
		if job.DocumentURL != "" {
			data["document_url"] = job.DocumentURL
		}
		em.emitData(model.EventJobCompleted, model.StatusSuccess, model.SeveritySuccess,
			"Successfully processed all images.", data)
		telemetry.JobsCompleted.WithLabelValues("completed").Inc()
		return nil

	case errors.Is(runErr, ErrNoPages):
		job.Stage = model.StageWarningNoPages
		em.emit(model.EventJobWarning, model.StatusCompleted, model.SeverityWarning,
			"Process complete. No supported image files (.jpg, .png, .webp) were found.")
		telemetry.JobsCompleted.WithLabelValues("no_pages").Inc()
		return nil

	default:
		job.Stage = model.StageFailed
		msg := failureMessage(runErr)
		job.Error = &msg
		em.emit(model.EventJobFailed, model.StatusFailed, model.SeverityError, msg)
		telemetry.JobsCompleted.WithLabelValues("failed").Inc()
		return runErr
	}
}

func failureMessage(err error) string {
	if errors.Is(err, ErrNotZip) || errors.Is(err, ErrCorruptZip) {
		return "A validation error occurred: " + err.Error()
	}
	return "An unexpected server error occurred."
}

// cleanup removes the job's staging directory. The path is cleared
// after removal, so a second call on a later exit path does nothing.
func (r *Runner) cleanup(job *model.Job) {
	if job.StagingDir == "" {
		return
	}
	if err := os.RemoveAll(job.StagingDir); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Str("dir", job.StagingDir).
			Msg("failed to remove staging directory")
	} else {
		r.log.Debug().Str("job_id", job.ID).Str("dir", job.StagingDir).
			Msg("staging directory removed")
	}
	job.StagingDir = ""
}

// setStage advances the job and persists the snapshot. Snapshot writes
// are best effort; a store outage must not fail the pipeline.
func (r *Runner) setStage(ctx context.Context, job *model.Job, stage model.JobStage) {
	job.Stage = stage
	if err := r.store.Save(ctx, job); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Str("stage", string(stage)).
			Msg("failed to persist job snapshot")
	}
}

// saveSnapshot writes the terminal snapshot. It deliberately ignores
// the run context, which may already be cancelled.
func (r *Runner) saveSnapshot(job *model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, job); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist job snapshot")
	}
}

// archiveDocument uploads the finished document. Archival is optional:
// failure is logged and the job still completes.
func (r *Runner) archiveDocument(ctx context.Context, job *model.Job) {
	key := "documents/" + job.ID + ".txt"
	url, err := r.archiver.Upload(ctx, key, strings.NewReader(job.Document), "text/plain; charset=utf-8")
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to archive document")
		return
	}
	job.DocumentURL = url
}
