package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ziptext/api/internal/model"
)

// supportedExt reports whether a lowercase file extension is treated
// as a page. .bmp is admitted only when the pipeline is configured for
// it.
func (r *Runner) supportedExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	case ".bmp":
		return r.cfg.AllowBMP
	}
	return false
}

// scan walks the staging directory and records the job's page list in
// natural order. Unsupported entries are counted and reported, never
// errors; a directory with no pages is a valid result the runner turns
// into the no-pages warning. The order established here is the one
// recognition and aggregation reuse.
func (r *Runner) scan(em *emitter, job *model.Job) {
	em.emit(model.EventImageScan, model.StatusRunning, model.SeverityInfo,
		"Scanning extracted files for supported images...")

	var pages []string
	skipped := 0

	filepath.WalkDir(job.StagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(job.StagingDir, path)
		if err != nil {
			return nil
		}
		name := d.Name()
		if r.supportedExt(strings.ToLower(filepath.Ext(name))) {
			pages = append(pages, rel)
			em.emitData(model.EventImageFound, model.StatusSuccess, model.SeverityInfo,
				"Found image: "+name, map[string]interface{}{"filename": name})
		} else {
			skipped++
			em.emitData(model.EventFileSkipped, model.StatusRunning, model.SeverityDebug,
				"Skipped non-image file: "+name, map[string]interface{}{"filename": name})
		}
		return nil
	})

	SortNatural(pages)
	job.Pages = pages
	job.PageCount = len(pages)
	job.SkippedCount = skipped

	msg := fmt.Sprintf("Scan complete. Found %d supported images.", len(pages))
	if skipped > 0 {
		msg += fmt.Sprintf(" Skipped %d other files.", skipped)
	}
	em.emitData(model.EventImageScan, model.StatusSuccess, model.SeveritySuccess, msg,
		map[string]interface{}{"image_count": len(pages), "skipped_count": skipped})
}
