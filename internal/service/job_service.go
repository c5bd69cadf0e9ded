package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ziptext/api/internal/model"
)

// TaskTypeOCR is the asynq task type for archive processing jobs.
const TaskTypeOCR = "ocr:process"

// snapshotTTL bounds how long a finished job's snapshot stays readable.
const snapshotTTL = 24 * time.Hour

// ErrJobNotFound reports an unknown or expired job ID.
var ErrJobNotFound = errors.New("job not found")

// JobService owns the job registry: snapshots in Redis keyed by job ID,
// processing handed to the worker through the task queue.
type JobService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewJobService(redisClient *redis.Client, asynqClient *asynq.Client) *JobService {
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// Create registers a job for an uploaded archive and queues its
// processing task. The returned job is in the QUEUED stage.
func (s *JobService) Create(ctx context.Context, archivePath, archiveName string) (*model.Job, error) {
	job := &model.Job{
		ID:          uuid.New().String(),
		ArchiveName: archiveName,
		Stage:       model.StageQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newOCRTask(&model.OCRJobPayload{
		JobID:       job.ID,
		ArchivePath: archivePath,
		ArchiveName: archiveName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("ocr"),
		asynq.MaxRetry(2),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return job, nil
}

// Get loads one job's snapshot.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Save persists a job snapshot. The worker calls this on every stage
// transition, so readers always see the latest stage.
func (s *JobService) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, snapshotTTL).Err()
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func newOCRTask(payload *model.OCRJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOCR, data), nil
}
