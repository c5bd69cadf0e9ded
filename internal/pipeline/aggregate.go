package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/ziptext/api/internal/model"
)

// aggregate joins the recognized text of every page into one document,
// iterating the job's stored page list so the output preserves
// discovery order no matter how the outcome map iterates. Failed pages
// were already reported during recognition and contribute nothing; a
// page missing from the map entirely indicates an internal
// inconsistency and gets its own diagnostic event. This stage cannot
// fail.
func (r *Runner) aggregate(em *emitter, job *model.Job) {
	em.emit(model.EventAggregation, model.StatusRunning, model.SeverityInfo,
		"Aggregating text from all processed images...")

	parts := make([]string, 0, len(job.Pages))
	for _, page := range job.Pages {
		outcome, ok := job.Outcomes[page]
		if !ok {
			name := filepath.Base(page)
			r.log.Warn().Str("job_id", job.ID).Str("page", page).Msg("no recognition outcome recorded")
			em.emitData(model.EventResultMissing, model.StatusRunning, model.SeverityWarning,
				"No recognition result recorded for: "+name,
				map[string]interface{}{"filename": name})
			continue
		}
		if outcome.OK && outcome.Text != "" {
			parts = append(parts, outcome.Text)
		}
	}
	job.Document = strings.Join(parts, "\n\n")

	em.emit(model.EventAggregation, model.StatusSuccess, model.SeveritySuccess,
		"Text aggregation complete.")
}
