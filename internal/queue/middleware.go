package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes a leased job. A nil return completes the job, an error
// wrapped by Requeue reschedules it, any other error fails the attempt.
type Handler func(ctx context.Context, job *Job) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain applies middlewares so the first listed runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recovery converts handler panics into permanent errors so a crashing
// payload cannot take down the dispatcher or spin forever.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = Permanent(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
				}
			}()
			return next(ctx, job)
		}
	}
}

// Logging emits one line per attempt with the outcome and duration.
func Logging(log zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) error {
			start := time.Now()
			err := next(ctx, job)
			var evt *zerolog.Event
			if err == nil {
				evt = log.Info().Str("outcome", "completed")
			} else if _, ok := AsRequeue(err); ok {
				evt = log.Warn().Str("outcome", "requeued")
			} else {
				evt = log.Error().Err(err).Str("outcome", "failed")
			}
			evt.
				Str("queue", job.Queue).
				Str("job_id", job.ID).
				Int("attempt", job.Attempts).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("job processed")
			return err
		}
	}
}

// Timeout bounds each attempt. Zero disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) error {
			if d <= 0 {
				return next(ctx, job)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, job)
		}
	}
}

// Collector receives per-attempt observations. Implemented by the metrics
// package; defined here so the queue does not depend on prometheus.
type Collector interface {
	JobStarted(queue string)
	JobFinished(queue, outcome string, elapsed time.Duration)
}

// Metrics reports attempt counts and durations to a Collector.
func Metrics(c Collector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, job *Job) error {
			c.JobStarted(job.Queue)
			start := time.Now()
			err := next(ctx, job)
			outcome := "completed"
			if err != nil {
				if _, ok := AsRequeue(err); ok {
					outcome = "requeued"
				} else {
					outcome = "failed"
				}
			}
			c.JobFinished(job.Queue, outcome, time.Since(start))
			return err
		}
	}
}
