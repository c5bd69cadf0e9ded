package pipeline

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ziptext/api/internal/model"
)

// validateZip accepts an archive by structure, not suffix: the central
// directory must open and parse.
func validateZip(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return ErrNotZip
	}
	zr.Close()
	return nil
}

// extract unpacks the archive into a fresh staging directory owned by
// the job, one event per entry. On any mid-extraction failure the
// partial directory is removed before the error propagates.
func (r *Runner) extract(em *emitter, job *model.Job, archivePath string) error {
	em.emit(model.EventExtraction, model.StatusRunning, model.SeverityInfo,
		"Starting extraction to temporary directory...")

	staging, err := os.MkdirTemp(r.cfg.WorkDir, "job-"+job.ID+"-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	job.StagingDir = staging

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		r.cleanup(job)
		em.emit(model.EventExtraction, model.StatusFailed, model.SeverityError,
			"File is a corrupt ZIP archive.")
		return fmt.Errorf("%w: %v", ErrCorruptZip, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := extractEntry(staging, f, r.cfg.MaxEntryBytes); err != nil {
			r.cleanup(job)
			if errors.Is(err, ErrCorruptZip) {
				em.emit(model.EventExtraction, model.StatusFailed, model.SeverityError,
					"File is a corrupt ZIP archive.")
			} else {
				em.emit(model.EventExtraction, model.StatusFailed, model.SeverityError,
					"An unexpected error occurred during extraction.")
			}
			return err
		}
		em.emitData(model.EventFileExtracted, model.StatusSuccess, model.SeverityInfo,
			"Extracted: "+f.Name, map[string]interface{}{"filename": f.Name})
	}

	em.emit(model.EventExtraction, model.StatusSuccess, model.SeveritySuccess,
		fmt.Sprintf("Extraction complete. Extracted %d items.", len(zr.File)))
	return nil
}

func extractEntry(root string, f *zip.File, maxBytes int64) error {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: unsafe entry path %q", ErrCorruptZip, f.Name)
	}
	dest := filepath.Join(root, name)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("write entry %q: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: entry %q: %v", ErrCorruptZip, f.Name, err)
	}
	defer rc.Close()

	w, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("write entry %q: %w", f.Name, err)
	}
	defer w.Close()

	var src io.Reader = rc
	if maxBytes > 0 {
		src = io.LimitReader(rc, maxBytes+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return fmt.Errorf("%w: entry %q: %v", ErrCorruptZip, f.Name, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return fmt.Errorf("%w: entry %q exceeds the size limit", ErrCorruptZip, f.Name)
	}
	return nil
}
