package handler

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/service"
	"github.com/ziptext/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
	uploadDir string
	maxBytes  int64
}

func NewJobHandler(svc *service.JobService, v *validator.Validate, uploadDir string, maxBytes int64) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
	}
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	// Get file
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	// Validate file size
	if file.Size > h.maxBytes {
		return response.ValidationError(c, "File size exceeds the upload limit", map[string]interface{}{
			"maxSize":  h.maxBytes,
			"fileSize": file.Size,
		})
	}

	// Validate file type
	if !strings.EqualFold(filepath.Ext(file.Filename), ".zip") {
		return response.ValidationError(c, "Invalid file type. Only ZIP archives are accepted", map[string]interface{}{
			"filename": file.Filename,
		})
	}

	// Persist the upload under a fresh name; the worker removes it once
	// the job settles.
	dest := filepath.Join(h.uploadDir, uuid.New().String()+".zip")
	if err := c.SaveFile(file, dest); err != nil {
		return response.ServiceError(c, "Failed to store uploaded file")
	}

	job, err := h.service.Create(c.Context(), dest, file.Filename)
	if err != nil {
		os.Remove(dest)
		return response.ServiceError(c, "Failed to queue job")
	}

	return response.Accepted(c, model.UploadResponse{
		JobID:     job.ID,
		Stage:     job.Stage,
		StatusURL: "/api/jobs/" + job.ID,
		EventsURL: "/ws/jobs/" + job.ID,
		CreatedAt: job.CreatedAt,
	})
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if err := h.validator.Var(jobID, "required,uuid4"); err != nil {
		return response.ValidationError(c, "Invalid job ID", nil)
	}

	job, err := h.service.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	return response.OK(c, model.JobStatusResponse{
		JobID:        job.ID,
		ArchiveName:  job.ArchiveName,
		Stage:        job.Stage,
		PageCount:    job.PageCount,
		SkippedCount: job.SkippedCount,
		FailedPages:  job.FailedPages,
		DocumentURL:  job.DocumentURL,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	})
}

// Document handles GET /api/jobs/:jobId/document
func (h *JobHandler) Document(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if err := h.validator.Var(jobID, "required,uuid4"); err != nil {
		return response.ValidationError(c, "Invalid job ID", nil)
	}

	job, err := h.service.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	if job.Stage != model.StageCompleted {
		return response.Conflict(c, "Job has not produced a document", map[string]interface{}{
			"stage": job.Stage,
		})
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(job.Document)
}
