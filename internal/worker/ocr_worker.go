package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/pipeline"
	"github.com/ziptext/api/internal/service"
)

// OCRWorker consumes archive processing tasks and hands each one to the
// pipeline runner.
type OCRWorker struct {
	jobs   *service.JobService
	runner *pipeline.Runner
	log    zerolog.Logger
}

func NewOCRWorker(jobs *service.JobService, runner *pipeline.Runner, log zerolog.Logger) *OCRWorker {
	return &OCRWorker{
		jobs:   jobs,
		runner: runner,
		log:    log,
	}
}

// ProcessTask runs one job end to end. Errors before the pipeline
// starts are returned plain so asynq retries them; once the pipeline
// has settled the job in a terminal state a retry would double-report,
// so those errors carry SkipRetry.
func (w *OCRWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.OCRJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	w.log.Info().Str("job_id", payload.JobID).Str("archive", payload.ArchiveName).
		Msg("starting OCR job")

	job, err := w.jobs.Get(ctx, payload.JobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		// Snapshot expired between enqueue and pickup; rebuild it from
		// the payload so the job can still run.
		job = &model.Job{
			ID:          payload.JobID,
			ArchiveName: payload.ArchiveName,
			Stage:       model.StageQueued,
		}
	case err != nil:
		return fmt.Errorf("load job %s: %w", payload.JobID, err)
	}

	if job.Stage.Terminal() {
		// A redelivered task for a settled job; nothing left to do but
		// make sure the upload is gone.
		w.removeArchive(payload.ArchivePath, job.ID)
		return nil
	}

	runErr := w.runner.Run(ctx, job, payload.ArchivePath)

	// The job is terminal either way, so the uploaded archive is no
	// longer needed.
	w.removeArchive(payload.ArchivePath, job.ID)

	if runErr != nil {
		return fmt.Errorf("job %s failed: %v: %w", job.ID, runErr, asynq.SkipRetry)
	}
	w.log.Info().Str("job_id", job.ID).Str("stage", string(job.Stage)).Msg("OCR job finished")
	return nil
}

func (w *OCRWorker) removeArchive(path, jobID string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.Warn().Err(err).Str("job_id", jobID).Str("path", path).
			Msg("failed to remove uploaded archive")
	}
}
