package types

import (
	"encoding/json"
	"time"
)

// PlanStatus represents the possible states of a plan request in the
// planning pipeline.
type PlanStatus string

const (
	// PlanStatusPending indicates the request is registered but not yet
	// being planned.
	PlanStatusPending PlanStatus = "pending"

	// PlanStatusProcessing indicates a worker is currently planning the
	// request.
	PlanStatusProcessing PlanStatus = "processing"

	// PlanStatusCompleted indicates the request has been planned and its
	// schedule published.
	PlanStatusCompleted PlanStatus = "completed"

	// PlanStatusFailed indicates planning failed and the request will not
	// be retried further.
	PlanStatusFailed PlanStatus = "failed"
)

// PlanRequest contains the metadata for one request to plan the current
// order list into a schedule.
type PlanRequest struct {
	// RequestID is the unique identifier for the request.
	RequestID string `json:"request_id"`

	// Status indicates the current status of the request.
	Status PlanStatus `json:"status"`

	// RetryCount is the number of times this request has been retried.
	RetryCount int `json:"retry_count"`

	// CreatedAt is when this request was first registered.
	CreatedAt time.Time `json:"created_at"`

	// LastAttempt is when this request was last planned or attempted.
	LastAttempt time.Time `json:"last_attempt"`

	// Start is the reference start time the schedule should accumulate
	// from. A zero value means the worker uses the time it claims the
	// request.
	Start time.Time `json:"start"`
}

// MarshalBinary converts the PlanRequest to a binary format (JSON).
// This implements the encoding.BinaryMarshaler interface.
func (r PlanRequest) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary parses the JSON-encoded data and stores the result
// in the PlanRequest. This implements the encoding.BinaryUnmarshaler
// interface.
func (r *PlanRequest) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// PlanSummary records the outcome of a completed plan request: where the
// published schedule lives and the metrics it produced.
type PlanSummary struct {
	// PlanID is the unique identifier of the computed plan.
	PlanID string `json:"plan_id"`

	// RequestID is the request that produced this plan.
	RequestID string `json:"request_id"`

	// ScheduleID is the Flight ticket under which the schedule record is
	// retrievable.
	ScheduleID string `json:"schedule_id"`

	// BatchCount is the number of batches in the plan.
	BatchCount int `json:"batch_count"`

	// Metrics are the schedule metrics, including the FIFO comparison.
	Metrics Metrics `json:"metrics"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary converts the PlanSummary to a binary format (JSON).
func (s PlanSummary) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary parses the JSON-encoded data and stores the result in the
// PlanSummary.
func (s *PlanSummary) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}
