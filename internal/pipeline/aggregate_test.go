package pipeline

import (
	"testing"

	"github.com/ziptext/api/internal/model"
)

func TestAggregateJoinsInPageOrder(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := newTestJob("job-agg")
	job.Pages = []string{"page1.png", "page2.png", "page10.png"}
	job.Outcomes = map[string]model.RecognitionOutcome{
		"page10.png": model.RecognizedPage("C"),
		"page1.png":  model.RecognizedPage("A"),
		"page2.png":  model.RecognizedPage("B"),
	}

	r.aggregate(&emitter{bus: bus, jobID: job.ID}, job)

	if want := "A\n\nB\n\nC"; job.Document != want {
		t.Errorf("document = %q, want %q", job.Document, want)
	}
	events := bus.named(model.EventAggregation)
	if len(events) != 2 || events[0].Status != model.StatusRunning || events[1].Status != model.StatusSuccess {
		t.Errorf("AGGREGATION events = %v", events)
	}
}

func TestAggregateSkipsFailedAndEmptyPages(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := newTestJob("job-agg-skip")
	job.Pages = []string{"page1.png", "page2.png", "page3.png", "page4.png"}
	job.Outcomes = map[string]model.RecognitionOutcome{
		"page1.png": model.RecognizedPage("alpha"),
		"page2.png": model.FailedPage("backend rejected image"),
		"page3.png": model.RecognizedPage(""),
		"page4.png": model.RecognizedPage("delta"),
	}

	r.aggregate(&emitter{bus: bus, jobID: job.ID}, job)

	// Neither the failure nor the blank page leaves a gap in the text.
	if want := "alpha\n\ndelta"; job.Document != want {
		t.Errorf("document = %q, want %q", job.Document, want)
	}
	if got := bus.named(model.EventResultMissing); len(got) != 0 {
		t.Errorf("RESULT_MISSING events = %d, want 0 for recorded outcomes", len(got))
	}
}

func TestAggregateReportsMissingOutcome(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := newTestJob("job-agg-missing")
	job.Pages = []string{"page1.png", "page2.png"}
	job.Outcomes = map[string]model.RecognitionOutcome{
		"page1.png": model.RecognizedPage("alpha"),
	}

	r.aggregate(&emitter{bus: bus, jobID: job.ID}, job)

	if job.Document != "alpha" {
		t.Errorf("document = %q, want %q", job.Document, "alpha")
	}
	missing := bus.named(model.EventResultMissing)
	if len(missing) != 1 {
		t.Fatalf("RESULT_MISSING events = %d, want 1", len(missing))
	}
	if missing[0].Severity != model.SeverityWarning || missing[0].Data["filename"] != "page2.png" {
		t.Errorf("diagnostic event = %+v", missing[0])
	}
}

func TestAggregateEmptyJobProducesEmptyDocument(t *testing.T) {
	r, bus := newTestRunner(t, Config{}, echoFactory)

	job := newTestJob("job-agg-none")
	job.Outcomes = map[string]model.RecognitionOutcome{}

	r.aggregate(&emitter{bus: bus, jobID: job.ID}, job)

	if job.Document != "" {
		t.Errorf("document = %q, want empty", job.Document)
	}
	events := bus.named(model.EventAggregation)
	if len(events) != 2 || events[1].Status != model.StatusSuccess {
		t.Errorf("AGGREGATION events = %v", events)
	}
}
