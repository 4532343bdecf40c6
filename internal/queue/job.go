package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is the unit of work tracked by the queue store. The ID doubles as the
// dedupe key: callers that pass a stable id coalesce repeated enqueues of
// logically-the-same work, while callers that pass none get a random one.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	State       State           `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`

	// Epoch increments on every enqueue under the same id and on every lease
	// reclaim. A lease captures the epoch it saw; finalizing a stale epoch is
	// a no-op, which totally orders stable-key replacement and reclaim
	// against an in-flight run.
	Epoch int64 `json:"epoch"`

	// VisibleAt is the instant before which the job must not be leased.
	VisibleAt time.Time `json:"visible_at"`

	// LeaseExpiresAt bounds an active lease. A worker that dies without
	// finalizing leaves the record active; once the deadline passes the
	// store reclaims it back onto the queue.
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", j.Queue, err)
	}
	return nil
}

// Retention windows for finished jobs, kept for operator inspection.
const (
	CompletedRetention = time.Hour
	FailedRetention    = 24 * time.Hour
)

// DefaultLeaseTimeout must exceed the longest handler timeout a worker runs,
// or healthy slow jobs get reclaimed out from under their lessee.
const DefaultLeaseTimeout = 15 * time.Minute
