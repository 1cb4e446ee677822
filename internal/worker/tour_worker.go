package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hometour/api/internal/media"
	"github.com/hometour/api/internal/model"
	"github.com/hometour/api/internal/service"
	"github.com/hometour/api/pkg/response"
)

// JobRecorder persists job lifecycle transitions.
type JobRecorder interface {
	MarkActive(ctx context.Context, jobID string) error
	UpdateProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result *model.TourResult) error
	FailJob(ctx context.Context, jobID, reason string) error
}

// TourPipeline assembles clips into the published tour videos.
type TourPipeline interface {
	Run(ctx context.Context, runID string, clips []model.VideoClip, info model.PropertyInfo, progress media.ProgressFunc) (*model.TourResult, error)
}

// Notifier pushes job events to live subscribers.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, state model.JobState, step string)
	BroadcastComplete(jobID string, result *model.TourResult)
	BroadcastError(jobID, code, message string)
}

// TourWorker consumes tour:assemble tasks.
type TourWorker struct {
	jobs     JobRecorder
	pipeline TourPipeline
	notifier Notifier
}

func NewTourWorker(jobs JobRecorder, pipeline TourPipeline, notifier Notifier) *TourWorker {
	return &TourWorker{
		jobs:     jobs,
		pipeline: pipeline,
		notifier: notifier,
	}
}

// ProcessTask runs one job to a terminal state. Failures are final: the
// returned error wraps asynq.SkipRetry so the task is archived, not retried.
func (w *TourWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var tp service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &tp); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if tp.JobID == "" {
		return fmt.Errorf("task payload has no job id: %w", asynq.SkipRetry)
	}

	jobID := tp.JobID
	start := time.Now()
	log.Printf("[Worker] → job %s: %d clip(s)", jobID, len(tp.Payload.Clips))

	if err := w.jobs.MarkActive(ctx, jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			// record expired or was never written; nothing to report to
			log.Printf("[Worker] ✗ job %s has no record, dropping task", jobID)
			return fmt.Errorf("job %s: %w: %w", jobID, err, asynq.SkipRetry)
		}
		log.Printf("[Worker] failed to mark job %s active: %v", jobID, err)
	}
	w.notify(jobID, 0, model.JobStateActive, "Starting")

	result, err := w.pipeline.Run(ctx, jobID, tp.Payload.Clips, tp.Payload.PropertyInfo, func(percent int, step string) {
		w.updateProgress(ctx, jobID, percent, step)
	})
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		log.Printf("[Worker] ✗ job %s failed after %s: %v", jobID, time.Since(start).Round(time.Millisecond), err)
		return fmt.Errorf("job %s: %w: %w", jobID, err, asynq.SkipRetry)
	}

	if err := w.jobs.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return fmt.Errorf("job %s: failed to save result: %v: %w", jobID, err, asynq.SkipRetry)
	}

	if w.notifier != nil {
		w.notifier.BroadcastComplete(jobID, result)
	}
	log.Printf("[Worker] ← job %s completed in %s", jobID, time.Since(start).Round(time.Millisecond))
	return nil
}

func (w *TourWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.jobs.UpdateProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("[Worker] failed to update progress for %s: %v", jobID, err)
	}
	w.notify(jobID, progress, model.JobStateActive, step)
}

func (w *TourWorker) notify(jobID string, progress int, state model.JobState, step string) {
	if w.notifier != nil {
		w.notifier.BroadcastProgress(jobID, progress, state, step)
	}
}

func (w *TourWorker) failJob(ctx context.Context, jobID, reason string) {
	// the task context may already be canceled; the failure must still land
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.jobs.FailJob(fctx, jobID, reason); err != nil {
		log.Printf("[Worker] failed to mark job %s as failed: %v", jobID, err)
	}
	if w.notifier != nil {
		w.notifier.BroadcastError(jobID, response.CodeJobFailed, reason)
	}
}
