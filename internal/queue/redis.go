package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps job records as JSON values, ready ids in a list and
// delayed ids in a sorted set scored by visibility time. Due delayed ids are
// promoted to the ready list on lease.
type RedisStore struct {
	rdb      *redis.Client
	policy   RetryPolicy
	prefix   string
	leaseTTL time.Duration
	now      func() time.Time
}

var _ Store = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

func WithRetryPolicy(p RetryPolicy) RedisStoreOption {
	return func(s *RedisStore) { s.policy = p }
}

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithLeaseTimeout sets how long a lease may run before the store treats its
// holder as dead and reclaims the job.
func WithLeaseTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.leaseTTL = d
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:      rdb,
		policy:   DefaultRetryPolicy(),
		prefix:   "jobs",
		leaseTTL: DefaultLeaseTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) readyKey(q string) string   { return s.prefix + ":" + q + ":ready" }
func (s *RedisStore) delayedKey(q string) string { return s.prefix + ":" + q + ":delayed" }
func (s *RedisStore) activeKey(q string) string  { return s.prefix + ":" + q + ":active" }
func (s *RedisStore) jobKey(q, id string) string { return s.prefix + ":" + q + ":job:" + id }

func (s *RedisStore) Enqueue(ctx context.Context, queueName string, payload any, opts *EnqueueOptions) (*Job, error) {
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

	now := s.now().UTC()
	job := &Job{
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

	prev, err := s.load(ctx, queueName, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if prev != nil {
		job.Epoch = prev.Epoch + 1
		job.CreatedAt = prev.CreatedAt
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	// Remove-then-add under one pipeline so a stable-key replacement can
	// never leave the old instance leasable next to the new one.
	pipe := s.rdb.TxPipeline()
	if prev != nil && (prev.State == StateWaiting || prev.State == StateDelayed) {
		pipe.LRem(ctx, s.readyKey(queueName), 0, id)
		pipe.ZRem(ctx, s.delayedKey(queueName), id)
	}
	pipe.Set(ctx, s.jobKey(queueName, id), raw, 0)
	if job.State == StateDelayed {
		pipe.ZAdd(ctx, s.delayedKey(queueName), redis.Z{Score: float64(job.VisibleAt.Unix()), Member: id})
	} else {
		pipe.LPush(ctx, s.readyKey(queueName), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s/%s: %w", queueName, id, err)
	}

	return job, nil
}

func (s *RedisStore) LeaseNext(ctx context.Context, queueName string) (*Job, error) {
	if err := s.reclaimExpired(ctx, queueName); err != nil {
		return nil, err
	}
	if err := s.promoteDue(ctx, queueName); err != nil {
		return nil, err
	}

	for {
		id, err := s.rdb.RPop(ctx, s.readyKey(queueName)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJobs
		}
		if err != nil {
			return nil, fmt.Errorf("pop %s: %w", queueName, err)
		}

		job, err := s.load(ctx, queueName, id)
		if errors.Is(err, ErrNotFound) {
			// Removed after its id was listed; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.State != StateWaiting && job.State != StateDelayed {
			continue
		}

		now := s.now().UTC()
		job.State = StateActive
		job.Attempts++
		job.LeaseExpiresAt = now.Add(s.leaseTTL)
		job.UpdatedAt = now

		// Record and active-index land together so a crash can never leave
		// an active record the reclaim pass does not see.
		pipe := s.rdb.TxPipeline()
		if err := s.saveTo(ctx, pipe, job, 0); err != nil {
			return nil, err
		}
		pipe.ZAdd(ctx, s.activeKey(queueName), redis.Z{
			Score: float64(job.LeaseExpiresAt.Unix()), Member: id,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("lease %s/%s: %w", queueName, id, err)
		}
		return job, nil
	}
}

// reclaimExpired requeues active jobs whose lease deadline has passed. The
// dead run's attempt stays charged; a job with no budget left goes straight
// to failed. Bumping the epoch makes any late finalization from the old
// lessee a no-op.
func (s *RedisStore) reclaimExpired(ctx context.Context, queueName string) error {
	now := s.now().UTC()
	ids, err := s.rdb.ZRangeByScore(ctx, s.activeKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.Unix(), 10), Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	for _, id := range ids {
		job, err := s.load(ctx, queueName, id)
		if errors.Is(err, ErrNotFound) {
			s.rdb.ZRem(ctx, s.activeKey(queueName), id)
			continue
		}
		if err != nil {
			return err
		}
		if job.State != StateActive || job.LeaseExpiresAt.After(now) {
			// Finalized or re-leased since the index was read.
			s.rdb.ZRem(ctx, s.activeKey(queueName), id)
			continue
		}

		job.Epoch++
		job.LeaseExpiresAt = time.Time{}
		job.UpdatedAt = now

		pipe := s.rdb.TxPipeline()
		if job.Attempts >= job.MaxAttempts {
			job.State = StateFailed
			job.LastError = "lease expired"
			if err := s.saveTo(ctx, pipe, job, FailedRetention); err != nil {
				return err
			}
		} else {
			job.State = StateWaiting
			job.VisibleAt = now
			if err := s.saveTo(ctx, pipe, job, 0); err != nil {
				return err
			}
			pipe.LPush(ctx, s.readyKey(queueName), id)
		}
		pipe.ZRem(ctx, s.activeKey(queueName), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("reclaim %s/%s: %w", queueName, id, err)
		}
	}
	return nil
}

// promoteDue moves delayed ids whose visibility has arrived onto the ready
// list, batched.
func (s *RedisStore) promoteDue(ctx context.Context, queueName string) error {
	now := s.now().Unix()
	ids, err := s.rdb.ZRangeByScore(ctx, s.delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10), Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, s.readyKey(queueName), id)
		pipe.ZRem(ctx, s.delayedKey(queueName), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Complete(ctx context.Context, job *Job) error {
	cur, err := s.load(ctx, job.Queue, job.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Epoch != job.Epoch {
		// Replaced while running; the fresh instance owns the record now.
		return nil
	}

	cur.State = StateCompleted
	cur.LastError = ""
	cur.LeaseExpiresAt = time.Time{}
	cur.UpdatedAt = s.now().UTC()

	pipe := s.rdb.TxPipeline()
	if err := s.saveTo(ctx, pipe, cur, CompletedRetention); err != nil {
		return err
	}
	pipe.ZRem(ctx, s.activeKey(cur.Queue), cur.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete %s/%s: %w", cur.Queue, cur.ID, err)
	}
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, job *Job, cause error) error {
	cur, err := s.load(ctx, job.Queue, job.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Epoch != job.Epoch {
		return nil
	}

	cur.LastError = cause.Error()
	cur.LeaseExpiresAt = time.Time{}
	cur.UpdatedAt = s.now().UTC()

	// Record and delayed-zset membership land together: a delayed record
	// with no zset entry would never be promoted.
	pipe := s.rdb.TxPipeline()
	if IsPermanent(cause) || cur.Attempts >= cur.MaxAttempts {
		cur.State = StateFailed
		if err := s.saveTo(ctx, pipe, cur, FailedRetention); err != nil {
			return err
		}
	} else {
		cur.State = StateDelayed
		cur.VisibleAt = s.now().UTC().Add(s.policy.Backoff(cur.Attempts))
		if err := s.saveTo(ctx, pipe, cur, 0); err != nil {
			return err
		}
		pipe.ZAdd(ctx, s.delayedKey(cur.Queue), redis.Z{
			Score: float64(cur.VisibleAt.Unix()), Member: cur.ID,
		})
	}
	pipe.ZRem(ctx, s.activeKey(cur.Queue), cur.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail %s/%s: %w", cur.Queue, cur.ID, err)
	}
	return nil
}

func (s *RedisStore) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	cur, err := s.load(ctx, job.Queue, job.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Epoch != job.Epoch {
		return nil
	}

	// Backpressure reschedule: give back the attempt charged at lease.
	if cur.Attempts > 0 {
		cur.Attempts--
	}
	cur.State = StateDelayed
	cur.VisibleAt = s.now().UTC().Add(delay)
	cur.LeaseExpiresAt = time.Time{}
	cur.UpdatedAt = s.now().UTC()

	pipe := s.rdb.TxPipeline()
	if err := s.saveTo(ctx, pipe, cur, 0); err != nil {
		return err
	}
	pipe.ZAdd(ctx, s.delayedKey(cur.Queue), redis.Z{
		Score: float64(cur.VisibleAt.Unix()), Member: cur.ID,
	})
	pipe.ZRem(ctx, s.activeKey(cur.Queue), cur.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue %s/%s: %w", cur.Queue, cur.ID, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, queueName, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.LRem(ctx, s.readyKey(queueName), 0, id)
	pipe.ZRem(ctx, s.delayedKey(queueName), id)
	pipe.ZRem(ctx, s.activeKey(queueName), id)
	pipe.Del(ctx, s.jobKey(queueName, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove %s/%s: %w", queueName, id, err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, queueName, id string) (*Job, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(queueName, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", queueName, id, err)
	}
	job := &Job{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", queueName, id, err)
	}
	return job, nil
}

// saveTo queues the record write on a pipeline; the caller's Exec commits it.
func (s *RedisStore) saveTo(ctx context.Context, pipe redis.Pipeliner, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe.Set(ctx, s.jobKey(job.Queue, job.ID), raw, ttl)
	return nil
}
