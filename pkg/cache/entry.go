package cache

import (
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

const (
	// DefaultTTL is how long a completed result stays usable
	DefaultTTL = 5 * time.Minute
)

// CacheEntry represents a cached query result.
type CacheEntry struct {
	// Response is the final Done response of a pagination run
	Response *query.Response `json:"response"`

	// Range is the time range the response covers
	Range frame.TimeRange `json:"range"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps a completed response covering r. A non-positive ttl falls
// back to DefaultTTL.
func NewEntry(resp *query.Response, r frame.TimeRange, ttl time.Duration) *CacheEntry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &CacheEntry{
		Response: resp,
		Range:    r,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Frames returns the cached frames, or nil for an empty entry.
func (e *CacheEntry) Frames() []*frame.Frame {
	if e == nil || e.Response == nil {
		return nil
	}
	return e.Response.Data
}
