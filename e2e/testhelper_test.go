package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ziptext/api/internal/handler"
	"github.com/ziptext/api/internal/middleware"
	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/ocr"
	"github.com/ziptext/api/internal/pipeline"
	"github.com/ziptext/api/internal/service"
	"github.com/ziptext/api/internal/stream"
	"github.com/ziptext/api/internal/worker"
)

// echoEngine stands in for a recognition backend: the page bytes come
// back as the page text.
type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Recognize(_ context.Context, image []byte) (string, error) {
	return string(image), nil
}

// testApp wires the full service the way main.go does: HTTP handlers,
// task queue, worker and event hub against one miniredis.
type testApp struct {
	app       *fiber.App
	worker    *worker.OCRWorker
	hub       *stream.Hub
	inspector *asynq.Inspector
	uploadDir string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { asynqClient.Close() })

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { inspector.Close() })

	validate := validator.New()

	hub := stream.NewHub(zerolog.Nop())
	go hub.Run()

	jobs := service.NewJobService(redisClient, asynqClient)

	engines := func() (ocr.Engine, error) { return echoEngine{}, nil }
	runner := pipeline.NewRunner(pipeline.Config{WorkDir: t.TempDir()}, engines, hub, jobs, nil, zerolog.Nop())
	ocrWorker := worker.NewOCRWorker(jobs, runner, zerolog.Nop())

	uploadDir := t.TempDir()
	jobHandler := handler.NewJobHandler(jobs, validate, uploadDir, 10*1024*1024)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})

	// Same routes as main.go, rate limit high enough to never block
	api := app.Group("/api")
	api.Post("/jobs", rateLimiter.UploadLimit(10000, time.Hour), jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Get("/jobs/:jobId/document", jobHandler.Document)

	return &testApp{
		app:       app,
		worker:    ocrWorker,
		hub:       hub,
		inspector: inspector,
		uploadDir: uploadDir,
	}
}

// zipArchive builds an in-memory zip with the given entries.
func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

// createUploadRequest builds a multipart/form-data upload for one archive.
func createUploadRequest(t *testing.T, filename string, payload []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	partHeader.Set("Content-Type", "application/zip")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write file part: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, "/api/jobs", &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// startJob uploads an archive and returns the accepted job ID.
func startJob(t *testing.T, ta *testApp, filename string, payload []byte) string {
	t.Helper()

	resp, err := ta.app.Test(createUploadRequest(t, filename, payload), -1)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	jobID, _ := result["jobId"].(string)
	if jobID == "" {
		t.Fatalf("expected jobId in response, got %v", result)
	}
	return jobID
}

// processNext pulls the queued task and runs it through the worker the
// way the asynq server would.
func processNext(t *testing.T, ta *testApp) error {
	t.Helper()

	pending, err := ta.inspector.ListPendingTasks("ocr")
	if err != nil {
		t.Fatalf("failed to list pending tasks: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(pending))
	}
	task := asynq.NewTask(pending[0].Type, pending[0].Payload)
	return ta.worker.ProcessTask(context.Background(), task)
}

// collectUntilTerminal drains a subscriber until the job's terminal
// event arrives.
func collectUntilTerminal(t *testing.T, sub *stream.Subscriber) []model.ProgressEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	var events []model.ProgressEvent
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscriber channel closed after %d events", len(events))
			}
			events = append(events, ev)
			switch ev.Event {
			case model.EventJobCompleted, model.EventJobWarning, model.EventJobFailed:
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for terminal event, got %d events", len(events))
		}
	}
}

// doRequest performs a bodyless HTTP request against the test app.
func doRequest(app *fiber.App, method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		return nil, err
	}
	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
