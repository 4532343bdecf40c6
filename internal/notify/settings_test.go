package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reelroom/reelroom/internal/store"
)

func TestCachedSettingsRefreshesOnTTL(t *testing.T) {
	ctx := context.Background()

	fetches := 0
	fetch := func(ctx context.Context) (map[string]Settings, error) {
		fetches++
		return map[string]Settings{
			store.ScopeAdmin: {Schedule: ScheduleHourly},
		}, nil
	}

	c := NewCachedSettings(fetch, time.Minute)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if _, err := c.ScopeSettings(ctx, store.ScopeAdmin); err != nil {
			t.Fatal(err)
		}
	}
	if fetches != 1 {
		t.Errorf("fetches within TTL = %d, want 1", fetches)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.ScopeSettings(ctx, store.ScopeAdmin); err != nil {
		t.Fatal(err)
	}
	if fetches != 2 {
		t.Errorf("fetches after TTL = %d, want 2", fetches)
	}
	if got := c.LastFetch(); !got.Equal(now) {
		t.Errorf("LastFetch = %s, want %s", got, now)
	}
}

func TestCachedSettingsServesStaleOnFetchError(t *testing.T) {
	ctx := context.Background()

	failing := false
	fetch := func(ctx context.Context) (map[string]Settings, error) {
		if failing {
			return nil, errors.New("db down")
		}
		return map[string]Settings{
			store.ScopeAdmin: {Schedule: ScheduleDaily, At: "09:00"},
		}, nil
	}

	c := NewCachedSettings(fetch, time.Minute)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.ScopeSettings(ctx, store.ScopeAdmin)
	if err != nil {
		t.Fatal(err)
	}
	lastGood := c.LastFetch()

	failing = true
	now = now.Add(2 * time.Minute)
	stale, err := c.ScopeSettings(ctx, store.ScopeAdmin)
	if err != nil {
		t.Fatalf("stale cache should still serve: %v", err)
	}
	if stale != first {
		t.Errorf("stale settings = %+v, want %+v", stale, first)
	}
	if !c.LastFetch().Equal(lastGood) {
		t.Error("failed refresh must not advance LastFetch")
	}
}

func TestCachedSettingsErrorsWithEmptyCache(t *testing.T) {
	fetch := func(ctx context.Context) (map[string]Settings, error) {
		return nil, errors.New("db down")
	}
	c := NewCachedSettings(fetch, time.Minute)
	if _, err := c.ScopeSettings(context.Background(), store.ScopeAdmin); err == nil {
		t.Error("no cache and failed fetch must error")
	}
}

func TestCachedSettingsUnknownScope(t *testing.T) {
	fetch := func(ctx context.Context) (map[string]Settings, error) {
		return map[string]Settings{store.ScopeAdmin: {Schedule: ScheduleHourly}}, nil
	}
	c := NewCachedSettings(fetch, time.Minute)
	if _, err := c.ScopeSettings(context.Background(), "nobody"); err == nil {
		t.Error("unknown scope must error")
	}
}
