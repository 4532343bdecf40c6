package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is how often a recipient scope receives batched notifications.
type Schedule string

const (
	ScheduleImmediate Schedule = "IMMEDIATE"
	ScheduleHourly    Schedule = "HOURLY"
	ScheduleDaily     Schedule = "DAILY"
	ScheduleWeekly    Schedule = "WEEKLY"
)

// TargetBoundary computes the most recent send boundary at or before now.
//
// HOURLY: the top of the current hour. DAILY: today at hh:mm, or yesterday's
// if today's has not been reached. WEEKLY: the most recent occurrence of day
// at hh:mm, walking back up to a week.
//
// The walk-back rule makes the decision self-correcting when the configured
// schedule changes between ticks: the next tick re-evaluates against the new
// boundary instead of drifting.
func TargetBoundary(schedule Schedule, at string, day time.Weekday, now time.Time) (time.Time, error) {
	switch schedule {
	case ScheduleHourly:
		// Computed from wall-clock fields, not absolute truncation, so
		// half-hour UTC offsets still land on the local top of the hour.
		return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()), nil

	case ScheduleDaily:
		hh, mm, err := parseClock(at)
		if err != nil {
			return time.Time{}, err
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		if target.After(now) {
			target = target.AddDate(0, 0, -1)
		}
		return target, nil

	case ScheduleWeekly:
		hh, mm, err := parseClock(at)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		for i := 0; i < 8; i++ {
			if candidate.Weekday() == day && !candidate.After(now) {
				return candidate, nil
			}
			candidate = candidate.AddDate(0, 0, -1)
		}
		return time.Time{}, fmt.Errorf("no weekly boundary found for day %v", day)

	default:
		return time.Time{}, fmt.Errorf("schedule %q is not batched", schedule)
	}
}

// ShouldSendNow reports whether a batch is due: the most recent boundary has
// been reached and nothing has been sent since that boundary. Idempotent
// within one boundary; after a successful send advances lastSent, it stays
// false until the next boundary.
func ShouldSendNow(schedule Schedule, at string, day time.Weekday, lastSent *time.Time, now time.Time) (bool, error) {
	target, err := TargetBoundary(schedule, at, day, now)
	if err != nil {
		return false, err
	}
	if now.Before(target) {
		return false, nil
	}
	return lastSent == nil || lastSent.Before(target), nil
}

// parseClock parses "HH:MM".
func parseClock(at string) (int, int, error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q", at)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid clock time %q", at)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid clock time %q", at)
	}
	return hh, mm, nil
}
