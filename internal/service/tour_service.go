package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hometour/api/internal/model"
)

// ValidationError carries per-field problems found before any work starts.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// FieldErrors flattens validator errors into a field -> tag map.
func FieldErrors(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			fields[e.Namespace()] = e.Tag()
		}
		return fields
	}
	fields["body"] = err.Error()
	return fields
}

// TourService accepts tour jobs and reports on them, choosing a backend on
// every call so a Redis outage degrades to the unavailable backend and a
// recovery is picked up without a restart.
type TourService struct {
	durable   JobQueue
	fallback  JobQueue
	validator *validator.Validate
	maxClips  int
}

// NewTourService creates the orchestrator. durable may be nil when no queue
// backend was configured at startup.
func NewTourService(durable JobQueue, v *validator.Validate, maxClips int) *TourService {
	return &TourService{
		durable:   durable,
		fallback:  UnavailableJobQueue{},
		validator: v,
		maxClips:  maxClips,
	}
}

// Validate checks the request shape and the rules tags cannot express.
func (s *TourService) Validate(req *model.GenerateFullTourRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return &ValidationError{Fields: FieldErrors(err)}
	}

	fields := make(map[string]string)
	if s.maxClips > 0 && len(req.Clips) > s.maxClips {
		fields["clips"] = fmt.Sprintf("at most %d clips allowed", s.maxClips)
	}
	seen := make(map[int]bool, len(req.Clips))
	for i, clip := range req.Clips {
		if seen[clip.Order] {
			fields[fmt.Sprintf("clips[%d].order", i)] = fmt.Sprintf("duplicate order %d", clip.Order)
		}
		seen[clip.Order] = true
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Enqueue validates the request and hands it to the current backend.
func (s *TourService) Enqueue(ctx context.Context, req *model.GenerateFullTourRequest) (*model.EnqueueResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	payload := &model.TourJobPayload{
		Clips:        req.Clips,
		PropertyInfo: req.PropertyInfo,
	}

	backend := s.backend(ctx)
	jobID, state, err := backend.Enqueue(ctx, payload)
	if err != nil && errors.Is(err, ErrQueueUnavailable) && backend != s.fallback {
		log.Printf("[Tour] durable enqueue failed, falling back: %v", err)
		jobID, state, err = s.fallback.Enqueue(ctx, payload)
	}
	if err != nil {
		return nil, err
	}

	return &model.EnqueueResponse{
		Success: true,
		JobID:   jobID,
		State:   state,
	}, nil
}

// GetStatus reports a job's state from the current backend.
func (s *TourService) GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrJobNotFound
	}
	return s.backend(ctx).GetStatus(ctx, jobID)
}

// QueueHealthy reports whether the durable backend is reachable.
func (s *TourService) QueueHealthy(ctx context.Context) bool {
	return s.durable != nil && s.durable.Healthy(ctx)
}

func (s *TourService) backend(ctx context.Context) JobQueue {
	if s.QueueHealthy(ctx) {
		return s.durable
	}
	return s.fallback
}
