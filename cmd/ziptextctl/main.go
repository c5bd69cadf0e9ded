// Command ziptextctl runs the OCR pipeline on a local zip archive
// without the API server: same stages, progress rendered to the
// terminal, document written to stdout or a file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/ziptext/api/internal/logging"
	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/ocr"
	"github.com/ziptext/api/internal/pipeline"
)

type options struct {
	zipPath   string
	outPath   string
	provider  string
	languages []string
	timeout   time.Duration
	allowBMP  bool
	verbose   bool
}

func main() {
	// Load .env if present so OCR_GOOGLE_API_KEY can come from it
	_ = godotenv.Load()

	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ziptextctl: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ziptextctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: ziptextctl [flags] <archive.zip>\n")
		flag.PrintDefaults()
	}
	out := flag.String("o", "", "Write the document to this file instead of stdout")
	provider := flag.String("provider", "tesseract", "Recognition backend: tesseract or google")
	langs := flag.String("lang", "", "Comma-separated recognition languages (e.g. eng,tur)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Recognition stage deadline, 0 disables")
	allowBMP := flag.Bool("bmp", false, "Admit .bmp entries as pages")
	verbose := flag.Bool("v", false, "Print every progress event")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing archive path")
	}
	opts.zipPath = flag.Arg(0)
	opts.outPath = *out
	opts.provider = *provider
	opts.languages = splitCSV(*langs)
	opts.timeout = *timeout
	opts.allowBMP = *allowBMP
	opts.verbose = *verbose
	return opts, nil
}

func run(opts options) error {
	level := "error"
	if opts.verbose {
		level = "debug"
	}
	log := logging.New(level, "development", "ziptextctl")

	engines := func() (ocr.Engine, error) {
		return ocr.NewEngine(ocr.Config{
			Provider:  opts.provider,
			Languages: opts.languages,
			Google: ocr.GoogleConfig{
				APIKey:   os.Getenv("OCR_GOOGLE_API_KEY"),
				Endpoint: os.Getenv("OCR_GOOGLE_ENDPOINT"),
			},
		})
	}

	render := &renderer{out: os.Stderr, verbose: opts.verbose}
	runner := pipeline.NewRunner(pipeline.Config{
		AllowBMP:         opts.allowBMP,
		MaxEntryBytes:    100 * 1024 * 1024,
		RecognizeTimeout: opts.timeout,
		MaxImageBytes:    10 * 1024 * 1024,
		MaxImageEdge:     4000,
	}, engines, &consoleBus{render}, discardStore{}, nil, log)

	job := &model.Job{
		ID:          uuid.New().String(),
		ArchiveName: filepath.Base(opts.zipPath),
		Stage:       model.StageQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if err := runner.Run(context.Background(), job, opts.zipPath); err != nil {
		render.finishBar()
		return err
	}
	render.finishBar()

	if job.Stage == model.StageWarningNoPages {
		fmt.Fprintln(os.Stderr, "no page images found in archive, nothing to write")
		return nil
	}

	if opts.outPath != "" {
		if err := os.WriteFile(opts.outPath, []byte(job.Document), 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		fmt.Fprintf(os.Stderr, "document written to %s\n", opts.outPath)
	} else {
		fmt.Print(job.Document)
		if !strings.HasSuffix(job.Document, "\n") {
			fmt.Println()
		}
	}

	recognized := job.PageCount - job.FailedPages
	if job.FailedPages > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d pages recognized, %d failed\n", recognized, job.PageCount, job.FailedPages)
	} else {
		fmt.Fprintf(os.Stderr, "%d pages recognized\n", job.PageCount)
	}
	return nil
}

// consoleBus feeds pipeline events straight to the renderer. The
// runner publishes from the goroutine calling Run, so rendering is
// serialized without locking.
type consoleBus struct {
	r *renderer
}

func (b *consoleBus) Publish(_ string, ev model.ProgressEvent) {
	b.r.handle(ev)
}

// discardStore satisfies the runner's snapshot store; the CLI has no
// status endpoint to serve.
type discardStore struct{}

func (discardStore) Save(context.Context, *model.Job) error { return nil }

// renderer turns the event feed into terminal output: stage lines
// always, a progress bar across page recognition unless verbose.
type renderer struct {
	out     *os.File
	verbose bool
	bar     *progressbar.ProgressBar
}

func (r *renderer) handle(ev model.ProgressEvent) {
	if r.verbose {
		fmt.Fprintf(r.out, "%s %-14s %s\n", severityMark(ev.Severity), ev.Event, ev.Message)
		return
	}

	switch ev.Event {
	case model.EventOCRStarted:
		if r.bar == nil {
			if total, ok := ev.Data["total"].(int); ok && total > 0 {
				r.bar = newBar(int64(total))
			}
		}
	case model.EventOCRSuccess:
		r.step()
	case model.EventOCRFailed:
		if r.bar != nil {
			_ = r.bar.Clear()
		}
		r.line(ev)
		r.step()
	case model.EventOCRPipeline:
		if ev.Status != model.StatusRunning {
			r.finishBar()
		}
		r.line(ev)
	case model.EventJobStarted, model.EventValidation, model.EventExtraction,
		model.EventImageScan, model.EventAggregation,
		model.EventJobCompleted, model.EventJobWarning, model.EventJobFailed:
		r.line(ev)
	}
}

func (r *renderer) line(ev model.ProgressEvent) {
	fmt.Fprintf(r.out, "%s %s\n", severityMark(ev.Severity), ev.Message)
}

func (r *renderer) step() {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

func (r *renderer) finishBar() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
}

func newBar(total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription("recognizing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func severityMark(s model.EventSeverity) string {
	switch s {
	case model.SeveritySuccess:
		return "✓"
	case model.SeverityWarning:
		return "⚠"
	case model.SeverityError:
		return "✗"
	default:
		return "•"
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
