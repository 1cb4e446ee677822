package model

import "time"

// JobState is the queue-defined lifecycle of a tour job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
)

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// TourJob is the durable record of a tour assembly request.
type TourJob struct {
	ID          string         `json:"id"`
	State       JobState       `json:"state"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"currentStep,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Payload     TourJobPayload `json:"payload"`
	Result      *TourResult    `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// TourJobPayload is the input the worker runs the pipeline against.
type TourJobPayload struct {
	Clips        []VideoClip  `json:"clips"`
	PropertyInfo PropertyInfo `json:"propertyInfo"`
}

// TourResult holds the public URLs of the three published artifacts.
type TourResult struct {
	Horizontal string `json:"horizontal"`
	Compressed string `json:"compressed"`
	Vertical   string `json:"vertical"`
}

// JobStatus is the externally observable view of a job.
type JobStatus struct {
	JobID       string      `json:"jobId"`
	State       JobState    `json:"state"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	Error       *string     `json:"error,omitempty"`
	Result      *TourResult `json:"result,omitempty"`
}

// JobStatusResponse is the body of GET /api/status/:jobId
type JobStatusResponse struct {
	Success bool `json:"success"`
	JobStatus
}

// EnqueueResponse is returned when a tour job is accepted.
type EnqueueResponse struct {
	Success bool     `json:"success"`
	JobID   string   `json:"jobId"`
	State   JobState `json:"state"`
}
