package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const leaseBurstPerWorker = 10

// Dispatcher pulls jobs off one queue and runs them on a bounded pool of
// goroutines. Outcome routing: nil completes, Requeue reschedules without
// charging an attempt, any other error fails the attempt.
type Dispatcher struct {
	store        Store
	queue        string
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	limiter      *LeaseLimiter
	log          zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

func WithMiddleware(mws ...Middleware) DispatcherOption {
	return func(d *Dispatcher) {
		d.handler = Chain(d.handler, mws...)
	}
}

func WithLogger(log zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = log
	}
}

func NewDispatcher(store Store, queue string, handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		queue:        queue,
		handler:      handler,
		concurrency:  1,
		pollInterval: time.Second,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.limiter = NewLeaseLimiter(d.concurrency*leaseBurstPerWorker, time.Minute)
	return d
}

// Run blocks until ctx is cancelled, then drains in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.concurrency)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.log.Info().Str("queue", d.queue).Int("concurrency", d.concurrency).Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Str("queue", d.queue).Msg("dispatcher draining")
			wg.Wait()
			d.log.Info().Str("queue", d.queue).Msg("dispatcher stopped")
			return
		case <-ticker.C:
		}

		// Drain the queue up to the pool size each tick.
	drain:
		for ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
			default:
				break drain // pool full
			}
			if !d.limiter.Allow() {
				<-sem
				break
			}

			job, err := d.store.LeaseNext(ctx, d.queue)
			if err != nil {
				<-sem
				if !errors.Is(err, ErrNoJobs) && !errors.Is(err, context.Canceled) {
					d.log.Error().Err(err).Str("queue", d.queue).Msg("lease failed")
				}
				break
			}

			wg.Add(1)
			go func(job *Job) {
				defer wg.Done()
				defer func() { <-sem }()
				d.process(ctx, job)
			}(job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job *Job) {
	err := d.handler(ctx, job)

	// Finalization must land even when the run context is already gone.
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var finErr error
	switch {
	case err == nil:
		finErr = d.store.Complete(finCtx, job)
	default:
		if delay, ok := AsRequeue(err); ok {
			finErr = d.store.Requeue(finCtx, job, delay)
		} else {
			finErr = d.store.Fail(finCtx, job, err)
		}
	}
	if finErr != nil {
		d.log.Error().Err(finErr).
			Str("queue", d.queue).
			Str("job_id", job.ID).
			Msg("failed to finalize job")
	}
}
