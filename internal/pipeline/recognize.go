package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/ocr"
	"github.com/ziptext/api/internal/telemetry"
)

// recognize acquires the recognition engine and drives one call per
// page in discovery order. Engine acquisition failure is fatal for the
// job; a failure on a single page is recorded in the outcome map and
// the loop continues. The whole stage runs under the configured
// deadline, and expiry aborts it fatally.
func (r *Runner) recognize(ctx context.Context, em *emitter, job *model.Job) error {
	em.emit(model.EventOCRPipeline, model.StatusRunning, model.SeverityInfo,
		fmt.Sprintf("Starting OCR process for %d images...", len(job.Pages)))

	engine, err := r.engines()
	if err != nil {
		em.emit(model.EventOCRPipeline, model.StatusFailed, model.SeverityError,
			"Configuration error: "+err.Error())
		return err
	}

	if r.cfg.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RecognizeTimeout)
		defer cancel()
	}

	job.Outcomes = make(map[string]model.RecognitionOutcome, len(job.Pages))
	total := len(job.Pages)

	for i, page := range job.Pages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("recognition stage aborted: %w", err)
		}

		name := filepath.Base(page)
		em.emitData(model.EventOCRStarted, model.StatusRunning, model.SeverityInfo,
			fmt.Sprintf("(%d/%d) Processing: %s", i+1, total, name),
			map[string]interface{}{"filename": name, "current": i + 1, "total": total})

		text, err := r.recognizePage(ctx, engine, filepath.Join(job.StagingDir, page))
		if err != nil {
			if ctx.Err() != nil {
				// The stage deadline expired mid-call; this is fatal,
				// not a per-page failure.
				return fmt.Errorf("recognition stage aborted: %w", ctx.Err())
			}
			job.Outcomes[page] = model.FailedPage(err.Error())
			job.FailedPages++
			telemetry.PagesProcessed.WithLabelValues("failed").Inc()
			r.log.Warn().Err(err).Str("job_id", job.ID).Str("page", page).Msg("page recognition failed")
			em.emitData(model.EventOCRFailed, model.StatusFailed, model.SeverityWarning,
				fmt.Sprintf("(%d/%d) Failed to process: %s. Error: %v", i+1, total, name, err),
				map[string]interface{}{"filename": name, "error": err.Error()})
			continue
		}

		job.Outcomes[page] = model.RecognizedPage(text)
		telemetry.PagesProcessed.WithLabelValues("recognized").Inc()
		em.emitData(model.EventOCRSuccess, model.StatusSuccess, model.SeveritySuccess,
			fmt.Sprintf("(%d/%d) Successfully processed: %s", i+1, total, name),
			map[string]interface{}{"filename": name})
	}

	em.emit(model.EventOCRPipeline, model.StatusSuccess, model.SeveritySuccess,
		"Finished processing all images.")
	return nil
}

// recognizePage reads one page from staging and submits it to the
// engine, downscaling first when it exceeds the configured bounds.
func (r *Runner) recognizePage(ctx context.Context, engine ocr.Engine, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	data = ocr.ShrinkToFit(data, r.cfg.MaxImageBytes, r.cfg.MaxImageEdge)
	return engine.Recognize(ctx, data)
}
