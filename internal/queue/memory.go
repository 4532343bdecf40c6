package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same semantics as RedisStore.
// Used in tests and for single-process development runs.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]map[string]*memoryJob // queue -> id -> record
	ready    map[string][]string              // queue -> FIFO of ids
	policy   RetryPolicy
	leaseTTL time.Duration
	now      func() time.Time
}

type memoryJob struct {
	job      Job
	expireAt time.Time // zero while the job is live
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]map[string]*memoryJob),
		ready:    make(map[string][]string),
		policy:   DefaultRetryPolicy(),
		leaseTTL: DefaultLeaseTimeout,
		now:      time.Now,
	}
}

// SetRetryPolicy overrides the default policy; test helper.
func (s *MemoryStore) SetRetryPolicy(p RetryPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// SetLeaseTimeout overrides the lease deadline; test helper.
func (s *MemoryStore) SetLeaseTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaseTTL = d
}

// SetClock overrides the time source; test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Enqueue(ctx context.Context, queueName string, payload any, opts *EnqueueOptions) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &EnqueueOptions{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.policy.MaxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired(queueName)

	now := s.now().UTC()
	job := Job{
		ID:          id,
		Queue:       queueName,
		Payload:     data,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		Epoch:       1,
		VisibleAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Delay > 0 {
		job.State = StateDelayed
		job.VisibleAt = now.Add(opts.Delay)
	}

	if byID, ok := s.jobs[queueName]; ok {
		if prev, ok := byID[id]; ok {
			job.Epoch = prev.job.Epoch + 1
			job.CreatedAt = prev.job.CreatedAt
			if prev.job.State == StateWaiting || prev.job.State == StateDelayed {
				s.dropReady(queueName, id)
			}
		}
	}

	if s.jobs[queueName] == nil {
		s.jobs[queueName] = make(map[string]*memoryJob)
	}
	s.jobs[queueName][id] = &memoryJob{job: job}
	if job.State == StateWaiting {
		s.ready[queueName] = append(s.ready[queueName], id)
	}

	out := job
	return &out, nil
}

func (s *MemoryStore) LeaseNext(ctx context.Context, queueName string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired(queueName)
	s.reclaimExpired(queueName)
	s.promoteDue(queueName)

	for len(s.ready[queueName]) > 0 {
		id := s.ready[queueName][0]
		s.ready[queueName] = s.ready[queueName][1:]

		rec, ok := s.jobs[queueName][id]
		if !ok {
			continue
		}
		if rec.job.State != StateWaiting && rec.job.State != StateDelayed {
			continue
		}

		now := s.now().UTC()
		rec.job.State = StateActive
		rec.job.Attempts++
		rec.job.LeaseExpiresAt = now.Add(s.leaseTTL)
		rec.job.UpdatedAt = now
		out := rec.job
		return &out, nil
	}
	return nil, ErrNoJobs
}

// reclaimExpired requeues active jobs whose lease deadline has passed,
// bumping the epoch so the dead lessee's late finalization no-ops. The
// crashed attempt stays charged; an exhausted job goes to failed.
func (s *MemoryStore) reclaimExpired(queueName string) {
	now := s.now().UTC()
	for id, rec := range s.jobs[queueName] {
		if rec.job.State != StateActive || rec.job.LeaseExpiresAt.IsZero() || rec.job.LeaseExpiresAt.After(now) {
			continue
		}

		rec.job.Epoch++
		rec.job.LeaseExpiresAt = time.Time{}
		rec.job.UpdatedAt = now

		if rec.job.Attempts >= rec.job.MaxAttempts {
			rec.job.State = StateFailed
			rec.job.LastError = "lease expired"
			rec.expireAt = s.now().Add(FailedRetention)
			continue
		}
		rec.job.State = StateWaiting
		rec.job.VisibleAt = now
		s.ready[queueName] = append(s.ready[queueName], id)
	}
}

func (s *MemoryStore) Complete(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(job)
	if !ok {
		return nil
	}
	rec.job.State = StateCompleted
	rec.job.LastError = ""
	rec.job.LeaseExpiresAt = time.Time{}
	rec.job.UpdatedAt = s.now().UTC()
	rec.expireAt = s.now().Add(CompletedRetention)
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, job *Job, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(job)
	if !ok {
		return nil
	}
	rec.job.LastError = cause.Error()
	rec.job.LeaseExpiresAt = time.Time{}
	rec.job.UpdatedAt = s.now().UTC()

	if IsPermanent(cause) || rec.job.Attempts >= rec.job.MaxAttempts {
		rec.job.State = StateFailed
		rec.expireAt = s.now().Add(FailedRetention)
		return nil
	}

	rec.job.State = StateDelayed
	rec.job.VisibleAt = s.now().UTC().Add(s.policy.Backoff(rec.job.Attempts))
	return nil
}

func (s *MemoryStore) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(job)
	if !ok {
		return nil
	}
	if rec.job.Attempts > 0 {
		rec.job.Attempts--
	}
	rec.job.State = StateDelayed
	rec.job.VisibleAt = s.now().UTC().Add(delay)
	rec.job.LeaseExpiresAt = time.Time{}
	rec.job.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, queueName, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropReady(queueName, id)
	delete(s.jobs[queueName], id)
	return nil
}

// Job returns a snapshot of a record; test helper.
func (s *MemoryStore) Job(queueName, id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[queueName][id]
	if !ok {
		return Job{}, false
	}
	return rec.job, true
}

// Pending counts jobs that are still waiting or delayed; test helper.
func (s *MemoryStore) Pending(queueName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.jobs[queueName] {
		if rec.job.State == StateWaiting || rec.job.State == StateDelayed {
			n++
		}
	}
	return n
}

// lookup resolves the live record for a leased job, honoring the epoch guard.
func (s *MemoryStore) lookup(job *Job) (*memoryJob, bool) {
	rec, ok := s.jobs[job.Queue][job.ID]
	if !ok || rec.job.Epoch != job.Epoch {
		return nil, false
	}
	return rec, true
}

func (s *MemoryStore) promoteDue(queueName string) {
	now := s.now()
	for id, rec := range s.jobs[queueName] {
		if rec.job.State == StateDelayed && !rec.job.VisibleAt.After(now) {
			rec.job.State = StateWaiting
			s.ready[queueName] = append(s.ready[queueName], id)
		}
	}
}

func (s *MemoryStore) purgeExpired(queueName string) {
	now := s.now()
	for id, rec := range s.jobs[queueName] {
		if !rec.expireAt.IsZero() && rec.expireAt.Before(now) {
			delete(s.jobs[queueName], id)
		}
	}
}

func (s *MemoryStore) dropReady(queueName, id string) {
	ids := s.ready[queueName]
	for i, rid := range ids {
		if rid == id {
			s.ready[queueName] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}
