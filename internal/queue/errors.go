package queue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoJobs is returned by LeaseNext when nothing is ready.
	ErrNoJobs = errors.New("queue: no jobs ready")

	// ErrNotFound is returned when a job record does not exist.
	ErrNotFound = errors.New("queue: job not found")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable: Fail moves the job straight to
// the failed state regardless of remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type requeueError struct {
	delay time.Duration
}

func (e *requeueError) Error() string {
	return fmt.Sprintf("queue: requeue after %s", e.delay)
}

// Requeue is returned by a handler whose preconditions are not met yet.
// It is backpressure, not failure: the job is rescheduled after delay and
// the attempt it consumed is restored.
func Requeue(delay time.Duration) error {
	return &requeueError{delay: delay}
}

// AsRequeue reports whether err is a requeue outcome and its delay.
func AsRequeue(err error) (time.Duration, bool) {
	var re *requeueError
	if errors.As(err, &re) {
		return re.delay, true
	}
	return 0, false
}
