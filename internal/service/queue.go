package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hometour/api/internal/model"
)

const (
	TaskTypeTourAssemble = "tour:assemble"
	QueueTours           = "tours"

	MockJobPrefix = "mock-"

	jobTTL = 24 * time.Hour
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrQueueUnavailable = errors.New("video processing service unavailable")
	ErrInvalidJob       = errors.New("invalid job")
)

// JobQueue is a backend that accepts tour jobs and reports their status.
type JobQueue interface {
	Enqueue(ctx context.Context, payload *model.TourJobPayload) (string, model.JobState, error)
	GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	Healthy(ctx context.Context) bool
}

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskPayload is the asynq payload for TaskTypeTourAssemble.
type TaskPayload struct {
	JobID   string               `json:"jobId"`
	Payload model.TourJobPayload `json:"payload"`
}

// RedisJobQueue is the durable backend: job records live in Redis and the
// work itself is handed to asynq.
type RedisJobQueue struct {
	redis    *redis.Client
	enqueuer Enqueuer
}

func NewRedisJobQueue(redisClient *redis.Client, enqueuer Enqueuer) *RedisJobQueue {
	return &RedisJobQueue{
		redis:    redisClient,
		enqueuer: enqueuer,
	}
}

// Enqueue saves the job record and queues the assembly task. Tasks are
// enqueued with no retries; a failed tour stays failed.
func (q *RedisJobQueue) Enqueue(ctx context.Context, payload *model.TourJobPayload) (string, model.JobState, error) {
	jobID := uuid.New().String()

	job := &model.TourJob{
		ID:        jobID,
		State:     model.JobStateWaiting,
		Payload:   *payload,
		CreatedAt: time.Now(),
	}
	if err := q.saveJob(ctx, job); err != nil {
		return "", "", fmt.Errorf("%w: failed to save job: %w", ErrQueueUnavailable, err)
	}

	task, err := NewTourTask(jobID, payload)
	if err != nil {
		q.deleteJob(ctx, jobID)
		return "", "", fmt.Errorf("failed to create task: %w", err)
	}

	info, err := q.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueTours),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		q.deleteJob(ctx, jobID)
		return "", "", fmt.Errorf("%w: failed to enqueue task: %w", ErrQueueUnavailable, err)
	}

	state := model.JobStateWaiting
	if info != nil && info.State == asynq.TaskStateScheduled {
		state = model.JobStateDelayed
		if err := q.update(ctx, jobID, func(j *model.TourJob) { j.State = state }); err != nil {
			log.Printf("[Queue] failed to mark job %s delayed: %v", jobID, err)
		}
	}

	log.Printf("[Queue] job %s enqueued (%d clips, state=%s)", jobID, len(payload.Clips), state)
	return jobID, state, nil
}

// GetStatus returns the observable state of a job. A result is only ever
// reported for a completed job.
func (q *RedisJobQueue) GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	if strings.HasPrefix(jobID, MockJobPrefix) {
		return nil, ErrInvalidJob
	}

	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := &model.JobStatus{
		JobID:       job.ID,
		State:       job.State,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
	}
	if job.State == model.JobStateCompleted {
		status.Result = job.Result
	}
	return status, nil
}

// Healthy pings Redis.
func (q *RedisJobQueue) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.redis.Ping(ctx).Err() == nil
}

// MarkActive moves a job to active when the worker picks it up.
func (q *RedisJobQueue) MarkActive(ctx context.Context, jobID string) error {
	return q.update(ctx, jobID, func(j *model.TourJob) {
		now := time.Now()
		j.State = model.JobStateActive
		j.StartedAt = &now
	})
}

// UpdateProgress records pipeline progress. Terminal jobs are left untouched.
func (q *RedisJobQueue) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	return q.update(ctx, jobID, func(j *model.TourJob) {
		if j.State.IsTerminal() {
			return
		}
		j.Progress = progress
		j.CurrentStep = step
	})
}

// CompleteJob stores the published URLs and marks the job completed.
func (q *RedisJobQueue) CompleteJob(ctx context.Context, jobID string, result *model.TourResult) error {
	if result == nil {
		return fmt.Errorf("complete job %s: nil result", jobID)
	}
	return q.update(ctx, jobID, func(j *model.TourJob) {
		now := time.Now()
		j.State = model.JobStateCompleted
		j.Progress = 100
		j.CurrentStep = "Complete"
		j.Result = result
		j.Error = nil
		j.CompletedAt = &now
	})
}

// FailJob marks the job failed with reason and drops any partial result.
func (q *RedisJobQueue) FailJob(ctx context.Context, jobID, reason string) error {
	return q.update(ctx, jobID, func(j *model.TourJob) {
		now := time.Now()
		j.State = model.JobStateFailed
		j.Error = &reason
		j.Result = nil
		j.CompletedAt = &now
	})
}

// Helper methods

func (q *RedisJobQueue) update(ctx context.Context, jobID string, fn func(*model.TourJob)) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	fn(job)
	return q.saveJob(ctx, job)
}

func (q *RedisJobQueue) saveJob(ctx context.Context, job *model.TourJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (q *RedisJobQueue) deleteJob(ctx context.Context, jobID string) {
	if err := q.redis.Del(ctx, jobKey(jobID)).Err(); err != nil {
		log.Printf("[Queue] failed to remove job %s: %v", jobID, err)
	}
}

func (q *RedisJobQueue) getJob(ctx context.Context, jobID string) (*model.TourJob, error) {
	data, err := q.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	var job model.TourJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// NewTourTask builds the asynq task for a job.
func NewTourTask(jobID string, payload *model.TourJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID, Payload: *payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTourAssemble, data), nil
}

// UnavailableJobQueue stands in when the durable backend cannot be reached.
// It accepts submissions with a mock id so callers are not blocked, but no
// work is done and no status can ever be reported for them.
type UnavailableJobQueue struct{}

func (UnavailableJobQueue) Enqueue(ctx context.Context, payload *model.TourJobPayload) (string, model.JobState, error) {
	jobID := fmt.Sprintf("%s%d", MockJobPrefix, time.Now().UnixMilli())
	log.Printf("[Queue] backend unavailable, returning mock job %s (%d clips dropped)", jobID, len(payload.Clips))
	return jobID, model.JobStateWaiting, nil
}

func (UnavailableJobQueue) GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	log.Printf("[Queue] cannot retrieve job %s: backend unavailable", jobID)
	return nil, ErrQueueUnavailable
}

func (UnavailableJobQueue) Healthy(ctx context.Context) bool {
	return false
}
