// Package agent – cache.go tracks prompt-cache invalidations. Purely
// observational: it listens for cache.invalidated and step.post, maintains
// counters, and notifies subscribers so other components can batch updates
// until a known-upcoming invalidation. It never triggers behavior itself.
package agent

import (
	"context"
	"sync"
	"time"
)

// CacheSnapshot is an immutable view of the cache state.
type CacheSnapshot struct {
	LastInvalidation        *time.Time
	Reason                  string
	TurnsSinceInvalidation  int
	TokensSinceInvalidation int
	InvalidationCount       int
}

// CacheState observes prompt-cache invalidations for one context.
type CacheState struct {
	mu          sync.Mutex
	last        *time.Time
	reason      string
	turns       int
	tokens      int
	count       int
	subscribers []func(CacheSnapshot)
}

// NewCacheState creates an empty tracker.
func NewCacheState() *CacheState {
	return &CacheState{}
}

// Snapshot returns the current state.
func (c *CacheState) Snapshot() CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CacheState) snapshotLocked() CacheSnapshot {
	var last *time.Time
	if c.last != nil {
		t := *c.last
		last = &t
	}
	return CacheSnapshot{
		LastInvalidation:        last,
		Reason:                  c.reason,
		TurnsSinceInvalidation:  c.turns,
		TokensSinceInvalidation: c.tokens,
		InvalidationCount:       c.count,
	}
}

// Subscribe registers a callback invoked once per invalidation with the new
// state.
func (c *CacheState) Subscribe(fn func(CacheSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Invalidate records an invalidation: the count increases by one, the
// turn counter resets, and each subscriber is notified exactly once.
func (c *CacheState) Invalidate(reason string, tokensBefore, tokensAfter int) {
	c.mu.Lock()
	now := time.Now()
	c.last = &now
	c.reason = reason
	c.turns = 0
	c.tokens = tokensAfter
	c.count++
	snap := c.snapshotLocked()
	subs := make([]func(CacheSnapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// StepCompleted bumps the turn counter and token tally.
func (c *CacheState) StepCompleted(tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns++
	c.tokens += tokens
}

// Hooks returns the registrations that keep this tracker current: a
// cache.invalidated listener and a step.post counter.
func (c *CacheState) Hooks() []*Hook {
	return []*Hook{
		{
			Name:    "cache_tracker",
			Type:    HookCacheInvalidated,
			Enabled: true,
			Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
				c.Invalidate(p.Reason, p.TokensBefore, p.TokensAfter)
				return HookResult{}, nil
			},
		},
		{
			Name:    "cache_tracker",
			Type:    HookStepPost,
			Enabled: true,
			Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
				c.StepCompleted(0)
				return HookResult{}, nil
			},
		},
	}
}
