package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometour/api/internal/model"
)

func validRequest() *model.GenerateFullTourRequest {
	return &model.GenerateFullTourRequest{
		Clips: []model.VideoClip{
			{URL: "https://clips.test/b.mp4", Order: 1},
			{URL: "https://clips.test/a.mp4", Order: 0},
		},
		PropertyInfo: model.PropertyInfo{Address: "123 Main St, Springfield, IL"},
	}
}

func TestTourService_ValidationRunsFirst(t *testing.T) {
	_, rdb := newTestRedis(t)
	enq := &fakeEnqueuer{}
	svc := NewTourService(NewRedisJobQueue(rdb, enq), validator.New(), 3)

	tests := []struct {
		name  string
		mut   func(r *model.GenerateFullTourRequest)
		field string
	}{
		{"no clips", func(r *model.GenerateFullTourRequest) { r.Clips = nil }, "Clips"},
		{"bad url", func(r *model.GenerateFullTourRequest) { r.Clips[0].URL = "not a url" }, "URL"},
		{"negative order", func(r *model.GenerateFullTourRequest) { r.Clips[0].Order = -1 }, "Order"},
		{"missing address", func(r *model.GenerateFullTourRequest) { r.PropertyInfo.Address = "" }, "Address"},
		{"duplicate order", func(r *model.GenerateFullTourRequest) { r.Clips[1].Order = 1 }, "order"},
		{"too many clips", func(r *model.GenerateFullTourRequest) {
			for i := 2; i < 5; i++ {
				r.Clips = append(r.Clips, model.VideoClip{URL: "https://clips.test/x.mp4", Order: i})
			}
		}, "clips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mut(req)

			_, err := svc.Enqueue(context.Background(), req)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			found := false
			for k := range verr.Fields {
				if strings.Contains(k, tt.field) {
					found = true
				}
			}
			assert.True(t, found, "fields %v should mention %s", verr.Fields, tt.field)
		})
	}

	assert.Zero(t, enq.count(), "nothing may be enqueued for an invalid request")
}

func TestTourService_DurableBackend(t *testing.T) {
	_, rdb := newTestRedis(t)
	enq := &fakeEnqueuer{}
	svc := NewTourService(NewRedisJobQueue(rdb, enq), validator.New(), 15)
	ctx := context.Background()

	resp, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, strings.HasPrefix(resp.JobID, MockJobPrefix))
	assert.Equal(t, model.JobStateWaiting, resp.State)
	assert.Equal(t, 1, enq.count())

	status, err := svc.GetStatus(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, status.JobID)

	_, err = svc.GetStatus(ctx, "unknown-id")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	_, err = svc.GetStatus(ctx, "mock-123")
	assert.True(t, errors.Is(err, ErrInvalidJob))
}

func TestTourService_FallsBackWhenRedisIsDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	enq := &fakeEnqueuer{}
	svc := NewTourService(NewRedisJobQueue(rdb, enq), validator.New(), 15)
	ctx := context.Background()

	mr.Close()

	resp, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.JobID, MockJobPrefix))
	assert.Zero(t, enq.count())
	assert.False(t, svc.QueueHealthy(ctx))

	_, err = svc.GetStatus(ctx, resp.JobID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueUnavailable) || errors.Is(err, ErrInvalidJob))

	// once Redis is back the mock id is recognised as invalid
	require.NoError(t, mr.Restart())
	_, err = svc.GetStatus(ctx, resp.JobID)
	assert.True(t, errors.Is(err, ErrInvalidJob))
}

func TestTourService_FallsBackOnEnqueueOutage(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewTourService(NewRedisJobQueue(rdb, &fakeEnqueuer{err: errors.New("connection refused")}), validator.New(), 15)

	resp, err := svc.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.JobID, MockJobPrefix))
}

func TestTourService_NoDurableBackend(t *testing.T) {
	svc := NewTourService(nil, validator.New(), 15)
	ctx := context.Background()

	resp, err := svc.Enqueue(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.JobID, MockJobPrefix))

	_, err = svc.GetStatus(ctx, resp.JobID)
	assert.True(t, errors.Is(err, ErrQueueUnavailable))

	_, err = svc.GetStatus(ctx, "")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "required", "a": "url"}}
	assert.Equal(t, "validation failed: a: url, b: required", err.Error())
}
