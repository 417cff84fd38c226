package prompta

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// HistoryFunc generates the example exchanges injected before the live turn.
type HistoryFunc[I, P any] func(ctx context.Context, hc *HistoryContext[I, P]) ([]HistoryEntry, error)

// HistoryContext is handed to a history generator so example messages can be
// phrased with the same template and preparation as the live prompt.
type HistoryContext[I, P any] struct {
	Template  Template[P]
	Promptify PromptifyFunc[P]
	Prepare   PrepareFunc[I, P]
}

// HistoryCache holds the most recently generated history for one pipeline.
// It is either empty or holds a complete sequence; it is only ever replaced
// wholesale.
//
// The mutex guards memory only. Two calls that both find the cache empty
// both regenerate and the last one to finish wins.
type HistoryCache struct {
	entries []HistoryEntry
	cached  bool
	mu      sync.RWMutex
}

// NewHistoryCache creates an empty cache.
func NewHistoryCache() *HistoryCache {
	return &HistoryCache{}
}

// GetOrGenerate returns the cached entries, calling gen first when the cache
// is empty or fresh is set. A nil gen never populates the cache.
//
// When gen fails the previous entries stay cached and are used by the next
// call that does not force freshness.
func (c *HistoryCache) GetOrGenerate(ctx context.Context, fresh bool, gen func(context.Context) ([]HistoryEntry, error)) ([]HistoryEntry, error) {
	if gen == nil {
		return nil, nil
	}

	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()

	if cached && !fresh {
		return c.Entries(), nil
	}

	entries, err := gen(ctx)
	if err != nil {
		stale := c.Cached()
		capitan.Error(ctx, HistoryFailed,
			HistoryFreshKey.Field(flag(fresh)),
			HistoryStaleKey.Field(flag(stale)),
			ErrorKey.Field(err.Error()),
		)
		return nil, &HistoryError{Err: err, Stale: stale}
	}

	c.Replace(entries)

	capitan.Info(ctx, HistoryGenerated,
		HistoryFreshKey.Field(flag(fresh)),
		HistorySizeKey.Field(len(entries)),
	)

	// Another regeneration may already have replaced the cache.
	own := make([]HistoryEntry, len(entries))
	copy(own, entries)
	return own, nil
}

// Replace swaps the cached history for entries.
func (c *HistoryCache) Replace(entries []HistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make([]HistoryEntry, len(entries))
	copy(c.entries, entries)
	c.cached = true
}

// Entries returns a copy of the cached history.
func (c *HistoryCache) Entries() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]HistoryEntry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// Len returns the number of cached entries.
func (c *HistoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached reports whether a generated history is held.
func (c *HistoryCache) Cached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Invalidate drops the cached history so the next call regenerates it.
func (c *HistoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.cached = false
}
