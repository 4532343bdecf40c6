// Package notify batches notification records and delivers them on each
// recipient scope's configured schedule.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/queue"
	"github.com/reelroom/reelroom/internal/store"
)

// Recipient identifies one delivery target: a scope's audience for one
// project.
type Recipient struct {
	Scope     string
	ProjectID string
}

// SendBatchFunc delivers one rendered batch. The scheduler does not know
// how messages are rendered or transported.
type SendBatchFunc func(ctx context.Context, to Recipient, batch []store.Notification) error

// NotificationRecords is the persistence surface the scheduler drives.
type NotificationRecords interface {
	ListPending(ctx context.Context, scope string) ([]store.Notification, error)
	AddAttempt(ctx context.Context, scope string, ids []string) error
	MarkSent(ctx context.Context, scope string, ids []string) error
	MarkFailed(ctx context.Context, scope string, ids []string) error
	Delete(ctx context.Context, id string) error
	Watermark(ctx context.Context, scope string) (*time.Time, error)
	SetWatermark(ctx context.Context, scope string, at time.Time) error
}

// CorrelationChecker answers whether a notification's source entity still
// exists. Used to cancel batched records whose trigger was deleted before
// the batch fired.
type CorrelationChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Scheduler struct {
	Records  NotificationRecords
	Source   CorrelationChecker
	Settings SettingsProvider
	Send     SendBatchFunc
	Retry    queue.RetryPolicy

	now     func() time.Time
	running atomic.Bool
}

func NewScheduler(records NotificationRecords, source CorrelationChecker, settings SettingsProvider, send SendBatchFunc, retry queue.RetryPolicy) *Scheduler {
	return &Scheduler{
		Records:  records,
		Source:   source,
		Settings: settings,
		Send:     send,
		Retry:    retry,
		now:      time.Now,
	}
}

// Run evaluates both scopes once a minute until ctx is cancelled. A tick
// still running when the next timer fires is skipped, never queued.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("notification scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			log.Info("notification scheduler stopped")
			return
		case <-ticker.C:
		}

		if !s.running.CompareAndSwap(false, true) {
			log.Warn("notification tick still running, skipping")
			continue
		}
		go func() {
			defer s.running.Store(false)
			if err := s.Tick(ctx); err != nil {
				log.Error("notification tick failed", "error", err)
			}
		}()
	}
}

// Tick evaluates every scope against its schedule boundary.
func (s *Scheduler) Tick(ctx context.Context) error {
	var firstErr error
	for _, scope := range []string{store.ScopeAdmin, store.ScopeClient} {
		if err := s.tickScope(ctx, scope); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Scheduler) tickScope(ctx context.Context, scope string) error {
	log := logger.FromContext(ctx)

	settings, err := s.Settings.ScopeSettings(ctx, scope)
	if err != nil {
		return err
	}
	if settings.Schedule == ScheduleImmediate || settings.Schedule == "" {
		// Immediate sends are the triggering collaborator's job.
		return nil
	}

	lastSent, err := s.Records.Watermark(ctx, scope)
	if err != nil {
		return fmt.Errorf("load %s watermark: %w", scope, err)
	}

	now := s.now()
	due, err := ShouldSendNow(settings.Schedule, settings.At, settings.Day, lastSent, now)
	if err != nil {
		return fmt.Errorf("evaluate %s schedule: %w", scope, err)
	}
	if !due {
		return nil
	}

	pending, err := s.Records.ListPending(ctx, scope)
	if err != nil {
		return fmt.Errorf("list pending %s: %w", scope, err)
	}

	batch, err := s.dropCancelled(ctx, scope, pending)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		// Nothing to deliver. The watermark records successful sends
		// only, so it does not advance here.
		return nil
	}

	// Attempts are charged before the send so a crash mid-send still
	// counts against the record on restart.
	ids := recordIDs(batch)
	if err := s.Records.AddAttempt(ctx, scope, ids); err != nil {
		return fmt.Errorf("charge attempts %s: %w", scope, err)
	}

	allSent := true
	for projectID, group := range groupByProject(batch) {
		to := Recipient{Scope: scope, ProjectID: projectID}
		if err := s.Send(ctx, to, group); err != nil {
			allSent = false
			s.handleSendFailure(ctx, scope, group, err)
			continue
		}
		if err := s.Records.MarkSent(ctx, scope, recordIDs(group)); err != nil {
			return fmt.Errorf("mark sent %s: %w", scope, err)
		}
		log.Info("notification batch sent",
			"scope", scope, "project_id", projectID, "count", len(group))
	}

	// A failed group must retry on the next tick, so the watermark only
	// advances when the whole boundary succeeded.
	if allSent {
		if err := s.Records.SetWatermark(ctx, scope, now); err != nil {
			return fmt.Errorf("advance %s watermark: %w", scope, err)
		}
	}
	return nil
}

// dropCancelled deletes records whose correlated source entity no longer
// exists and returns the remaining batch.
func (s *Scheduler) dropCancelled(ctx context.Context, scope string, pending []store.Notification) ([]store.Notification, error) {
	log := logger.FromContext(ctx)

	batch := pending[:0:0]
	for _, n := range pending {
		if n.CorrelationKey != nil {
			exists, err := s.Source.Exists(ctx, *n.CorrelationKey)
			if err != nil {
				return nil, fmt.Errorf("cancellation check %s: %w", n.ID, err)
			}
			if !exists {
				if err := s.Records.Delete(ctx, n.ID); err != nil {
					return nil, fmt.Errorf("delete cancelled %s: %w", n.ID, err)
				}
				log.Info("notification cancelled, source deleted",
					"scope", scope, "notification_id", n.ID)
				continue
			}
		}
		batch = append(batch, n)
	}
	return batch, nil
}

// handleSendFailure retires records that just exhausted their attempts;
// everything else stays pending for the next eligible tick.
func (s *Scheduler) handleSendFailure(ctx context.Context, scope string, group []store.Notification, cause error) {
	log := logger.FromContext(ctx)
	log.Error("notification batch send failed", "scope", scope, "count", len(group), "error", cause)

	var exhausted []string
	for _, n := range group {
		attempts := scopeState(&n, scope).Attempts + 1 // AddAttempt already ran
		if attempts >= s.Retry.MaxAttempts {
			exhausted = append(exhausted, n.ID)
		}
	}
	if len(exhausted) == 0 {
		return
	}
	if err := s.Records.MarkFailed(ctx, scope, exhausted); err != nil {
		log.Error("failed to retire notifications", "scope", scope, "error", err)
	} else {
		log.Warn("notifications retired after exhausting attempts",
			"scope", scope, "count", len(exhausted))
	}
}

func scopeState(n *store.Notification, scope string) *store.ScopeState {
	if scope == store.ScopeAdmin {
		return &n.Admin
	}
	return &n.Client
}

func groupByProject(batch []store.Notification) map[string][]store.Notification {
	groups := make(map[string][]store.Notification)
	for _, n := range batch {
		groups[n.ProjectID] = append(groups[n.ProjectID], n)
	}
	return groups
}

func recordIDs(batch []store.Notification) []string {
	ids := make([]string, len(batch))
	for i, n := range batch {
		ids[i] = n.ID
	}
	return ids
}
