package queue

import (
	"context"
	"time"
)

// EnqueueOptions tune a single enqueue. The zero value gives a random job id,
// immediate visibility and the store's default attempt budget.
type EnqueueOptions struct {
	// JobID, when set, is the caller's stable key. Enqueuing while a job with
	// the same id is still waiting or delayed replaces that instance.
	JobID string

	// Delay postpones visibility; used for debounced rebuilds and retries.
	Delay time.Duration

	MaxAttempts int
}

// Store owns job state. Pipelines only read payloads and report outcomes
// through the dispatcher; nothing else mutates a job record.
//
// Store infrastructure errors are returned as-is: the caller decides whether
// and how to retry, the store never swallows its own failures.
type Store interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts *EnqueueOptions) (*Job, error)

	// LeaseNext returns at most one ready job, marking it active and charging
	// one attempt. Safe under concurrent lessees. Returns ErrNoJobs when the
	// queue has nothing visible.
	LeaseNext(ctx context.Context, queueName string) (*Job, error)

	Complete(ctx context.Context, job *Job) error

	// Fail reschedules with backoff while attempts remain, otherwise (or for
	// a Permanent cause) moves the job to the failed state.
	Fail(ctx context.Context, job *Job, cause error) error

	// Requeue puts a leased job back with a fixed delay without consuming
	// the attempt; see Requeue the handler outcome.
	Requeue(ctx context.Context, job *Job, delay time.Duration) error

	// Remove best-effort cancels a pending job.
	Remove(ctx context.Context, queueName, id string) error
}

// RetryPolicy is the shared retry primitive: the job stores apply it per job,
// the notification scheduler applies it per batch.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Base:        2 * time.Second,
		Cap:         5 * time.Minute,
	}
}

// Backoff returns the delay before the next run after the given number of
// completed attempts: Base doubling per attempt, capped.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.Base << (attempts - 1)
	if p.Cap > 0 && (d > p.Cap || d <= 0) {
		d = p.Cap
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
