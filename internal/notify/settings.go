package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Settings is one recipient scope's delivery configuration.
type Settings struct {
	Schedule Schedule
	At       string       // "HH:MM", unused for HOURLY
	Day      time.Weekday // WEEKLY only
}

// SettingsProvider resolves the current per-scope settings. Implementations
// are injected so components never reach for process-wide state.
type SettingsProvider interface {
	ScopeSettings(ctx context.Context, scope string) (Settings, error)
	// LastFetch reports when the underlying source was last consulted,
	// zero if never.
	LastFetch() time.Time
}

// FetchFunc loads all scopes' settings from the source of truth.
type FetchFunc func(ctx context.Context) (map[string]Settings, error)

// CachedSettings is a SettingsProvider that refreshes from a FetchFunc at
// most once per TTL. Stale data is served while a refresh fails so a flaky
// settings source does not stall sends.
type CachedSettings struct {
	fetch FetchFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	settings  map[string]Settings
	lastFetch time.Time
	lastErr   error
}

var _ SettingsProvider = (*CachedSettings)(nil)

func NewCachedSettings(fetch FetchFunc, ttl time.Duration) *CachedSettings {
	return &CachedSettings{fetch: fetch, ttl: ttl, now: time.Now}
}

func (c *CachedSettings) ScopeSettings(ctx context.Context, scope string) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings == nil || c.now().Sub(c.lastFetch) >= c.ttl {
		fresh, err := c.fetch(ctx)
		if err != nil {
			c.lastErr = err
			if c.settings == nil {
				return Settings{}, fmt.Errorf("fetch notification settings: %w", err)
			}
		} else {
			c.settings = fresh
			c.lastFetch = c.now()
			c.lastErr = nil
		}
	}

	s, ok := c.settings[scope]
	if !ok {
		return Settings{}, fmt.Errorf("no notification settings for scope %q", scope)
	}
	return s, nil
}

func (c *CachedSettings) LastFetch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFetch
}
