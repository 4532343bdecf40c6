package notify

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestTargetBoundary(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		at       string
		day      time.Weekday
		now      string
		want     string
	}{
		{
			name:     "hourly truncates to top of hour",
			schedule: ScheduleHourly,
			now:      "2026-08-31 14:37",
			want:     "2026-08-31 14:00",
		},
		{
			name:     "daily before todays slot walks back a day",
			schedule: ScheduleDaily,
			at:       "09:00",
			now:      "2026-08-31 08:55",
			want:     "2026-08-30 09:00",
		},
		{
			name:     "daily after todays slot",
			schedule: ScheduleDaily,
			at:       "09:00",
			now:      "2026-08-31 09:05",
			want:     "2026-08-31 09:00",
		},
		{
			name:     "daily exactly at slot",
			schedule: ScheduleDaily,
			at:       "09:00",
			now:      "2026-08-31 09:00",
			want:     "2026-08-31 09:00",
		},
		{
			// 2026-08-31 is a Monday.
			name:     "weekly on the configured day after slot",
			schedule: ScheduleWeekly,
			at:       "10:00",
			day:      time.Monday,
			now:      "2026-08-31 11:00",
			want:     "2026-08-31 10:00",
		},
		{
			name:     "weekly on the configured day before slot walks back a week",
			schedule: ScheduleWeekly,
			at:       "10:00",
			day:      time.Monday,
			now:      "2026-08-31 09:00",
			want:     "2026-08-24 10:00",
		},
		{
			name:     "weekly mid-week walks back to last occurrence",
			schedule: ScheduleWeekly,
			at:       "10:00",
			day:      time.Friday,
			now:      "2026-08-31 12:00",
			want:     "2026-08-28 10:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TargetBoundary(tt.schedule, tt.at, tt.day, mustTime(t, tt.now))
			if err != nil {
				t.Fatalf("TargetBoundary: %v", err)
			}
			if want := mustTime(t, tt.want); !got.Equal(want) {
				t.Errorf("TargetBoundary = %s, want %s", got, want)
			}
		})
	}
}

func TestTargetBoundaryHourlyHalfHourOffset(t *testing.T) {
	// Absolute truncation would land on :30 here; the boundary must be the
	// local top of the hour.
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 8, 31, 14, 40, 0, 0, ist)

	got, err := TargetBoundary(ScheduleHourly, "", 0, now)
	if err != nil {
		t.Fatalf("TargetBoundary: %v", err)
	}
	want := time.Date(2026, 8, 31, 14, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("TargetBoundary = %s, want %s", got, want)
	}
}

func TestTargetBoundaryErrors(t *testing.T) {
	now := mustTime(t, "2026-08-31 12:00")

	if _, err := TargetBoundary(ScheduleImmediate, "", 0, now); err == nil {
		t.Error("IMMEDIATE is not a batched schedule")
	}
	if _, err := TargetBoundary(ScheduleDaily, "25:00", 0, now); err == nil {
		t.Error("invalid clock must error")
	}
	if _, err := TargetBoundary(ScheduleDaily, "nine", 0, now); err == nil {
		t.Error("unparseable clock must error")
	}
}

func TestShouldSendNow(t *testing.T) {
	ts := func(value string) *time.Time {
		parsed := mustTime(t, value)
		return &parsed
	}

	tests := []struct {
		name     string
		schedule Schedule
		at       string
		day      time.Weekday
		lastSent *time.Time
		now      string
		want     bool
	}{
		{
			// Yesterday's 09:00 boundary has passed and was never sent, so
			// the batch fires immediately rather than waiting for 09:00.
			name:     "daily never sent fires on first tick",
			schedule: ScheduleDaily,
			at:       "09:00",
			lastSent: nil,
			now:      "2026-08-31 08:55",
			want:     true,
		},
		{
			name:     "daily due after boundary",
			schedule: ScheduleDaily,
			at:       "09:00",
			lastSent: ts("2026-08-30 09:00"),
			now:      "2026-08-31 09:05",
			want:     true,
		},
		{
			name:     "daily already sent this boundary",
			schedule: ScheduleDaily,
			at:       "09:00",
			lastSent: ts("2026-08-31 09:01"),
			now:      "2026-08-31 09:30",
			want:     false,
		},
		{
			name:     "daily not due before next boundary",
			schedule: ScheduleDaily,
			at:       "09:00",
			lastSent: ts("2026-08-30 09:02"),
			now:      "2026-08-31 08:55",
			want:     false,
		},
		{
			name:     "hourly due once per hour",
			schedule: ScheduleHourly,
			lastSent: ts("2026-08-31 13:01"),
			now:      "2026-08-31 14:05",
			want:     true,
		},
		{
			name:     "hourly already sent this hour",
			schedule: ScheduleHourly,
			lastSent: ts("2026-08-31 14:01"),
			now:      "2026-08-31 14:40",
			want:     false,
		},
		{
			name:     "weekly due after missed week",
			schedule: ScheduleWeekly,
			at:       "10:00",
			day:      time.Monday,
			lastSent: ts("2026-08-17 10:00"),
			now:      "2026-08-31 10:30",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldSendNow(tt.schedule, tt.at, tt.day, tt.lastSent, mustTime(t, tt.now))
			if err != nil {
				t.Fatalf("ShouldSendNow: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldSendNow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldSendNowIdempotentWithinBoundary(t *testing.T) {
	// Simulate repeated minute ticks across a boundary: exactly one window
	// of eligibility until lastSent advances.
	initial := mustTime(t, "2026-08-30 09:30")
	lastSent := &initial
	sends := 0
	for minute := 0; minute < 120; minute++ {
		now := mustTime(t, "2026-08-31 08:30").Add(time.Duration(minute) * time.Minute)
		due, err := ShouldSendNow(ScheduleDaily, "09:00", 0, lastSent, now)
		if err != nil {
			t.Fatal(err)
		}
		if due {
			sends++
			sent := now
			lastSent = &sent
		}
	}
	if sends != 1 {
		t.Errorf("expected exactly one send across the boundary, got %d", sends)
	}
}
