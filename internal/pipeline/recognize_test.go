package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/ocr"
)

func stagedJob(t *testing.T, id string, pages map[string]string) *model.Job {
	t.Helper()
	job := newTestJob(id)
	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	job.StagingDir = populateStagingContent(t, pages)
	SortNatural(names)
	job.Pages = names
	job.PageCount = len(names)
	return job
}

func populateStagingContent(t *testing.T, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range pages {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestRecognizeIsolatesPageFailures(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := stagedJob(t, "job-rec", map[string]string{
		"page1.png": "alpha",
		"page2.png": "fail:engine choked",
		"page3.png": "gamma",
	})
	if err := r.recognize(context.Background(), &emitter{bus: bus, jobID: job.ID}, job); err != nil {
		t.Fatalf("recognize: %v", err)
	}

	if len(job.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(job.Outcomes))
	}
	if out := job.Outcomes["page1.png"]; !out.OK || out.Text != "alpha" {
		t.Errorf("page1 outcome = %+v", out)
	}
	if out := job.Outcomes["page2.png"]; out.OK || out.Reason != "engine choked" {
		t.Errorf("page2 outcome = %+v", out)
	}
	if out := job.Outcomes["page3.png"]; !out.OK || out.Text != "gamma" {
		t.Errorf("page3 outcome = %+v", out)
	}
	if job.FailedPages != 1 {
		t.Errorf("failed pages = %d, want 1", job.FailedPages)
	}

	// The stage summary closes the loop no matter how many pages failed.
	pipelineEvents := bus.named(model.EventOCRPipeline)
	if len(pipelineEvents) != 2 || pipelineEvents[1].Status != model.StatusSuccess {
		t.Errorf("OCR_PIPELINE events = %v", pipelineEvents)
	}
	if failed := bus.named(model.EventOCRFailed); len(failed) != 1 {
		t.Errorf("OCR_FAILED events = %d, want 1", len(failed))
	} else if failed[0].Severity != model.SeverityWarning {
		t.Errorf("per-page failure severity = %s, want %s", failed[0].Severity, model.SeverityWarning)
	}
}

func TestRecognizeVisitsPagesInDiscoveryOrder(t *testing.T) {
	var visited []string
	factory := func() (ocr.Engine, error) {
		return engineFunc(func(_ context.Context, image []byte) (string, error) {
			visited = append(visited, string(image))
			return string(image), nil
		}), nil
	}
	r, bus := newTestRunner(t, Config{}, factory)

	job := stagedJob(t, "job-rec-order", map[string]string{
		"page1.png":  "p1",
		"page2.png":  "p2",
		"page10.png": "p10",
	})
	if err := r.recognize(context.Background(), &emitter{bus: bus, jobID: job.ID}, job); err != nil {
		t.Fatalf("recognize: %v", err)
	}

	want := []string{"p1", "p2", "p10"}
	if len(visited) != 3 || visited[0] != want[0] || visited[1] != want[1] || visited[2] != want[2] {
		t.Errorf("visit order = %v, want %v", visited, want)
	}

	// Progress events carry a running index over the stored total.
	started := bus.named(model.EventOCRStarted)
	if len(started) != 3 {
		t.Fatalf("OCR_STARTED events = %d, want 3", len(started))
	}
	for i, ev := range started {
		if ev.Data["current"] != i+1 || ev.Data["total"] != 3 {
			t.Errorf("event %d data = %v", i, ev.Data)
		}
	}
}

func TestRecognizeEngineAcquisitionFailure(t *testing.T) {
	factory := func() (ocr.Engine, error) {
		return nil, fmt.Errorf("%w: unknown provider %q", ocr.ErrNotConfigured, "carrier-pigeon")
	}
	r, bus := newTestRunner(t, Config{}, factory)

	job := stagedJob(t, "job-rec-nocfg", map[string]string{"page1.png": "text"})
	err := r.recognize(context.Background(), &emitter{bus: bus, jobID: job.ID}, job)
	if !errors.Is(err, ocr.ErrNotConfigured) {
		t.Fatalf("recognize error = %v, want ErrNotConfigured", err)
	}

	if len(job.Outcomes) != 0 {
		t.Errorf("outcomes recorded before the engine was available: %v", job.Outcomes)
	}
	if got := bus.named(model.EventOCRStarted); len(got) != 0 {
		t.Errorf("OCR_STARTED events = %d, want 0", len(got))
	}
}

func TestRecognizeUnreadablePageIsIsolated(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := stagedJob(t, "job-rec-missing", map[string]string{"page1.png": "alpha"})
	// A page that vanished between scan and recognize fails alone.
	job.Pages = append(job.Pages, "gone.png")
	job.PageCount = 2

	if err := r.recognize(context.Background(), &emitter{bus: bus, jobID: job.ID}, job); err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if out := job.Outcomes["gone.png"]; out.OK || out.Reason == "" {
		t.Errorf("missing page outcome = %+v, want failure with reason", out)
	}
	if out := job.Outcomes["page1.png"]; !out.OK {
		t.Errorf("page1 outcome = %+v", out)
	}
}
