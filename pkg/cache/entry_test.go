package cache

import (
	"testing"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

func TestCacheEntry_Expiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		expires     time.Time
		wantExpired bool
		wantTTL     time.Duration
	}{
		{name: "fresh", expires: now.Add(time.Hour), wantTTL: time.Hour},
		{name: "about to expire", expires: now.Add(2 * time.Second), wantTTL: 2 * time.Second},
		{name: "just expired", expires: now.Add(-time.Second), wantExpired: true},
		{name: "long expired", expires: now.Add(-24 * time.Hour), wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires, CachedAt: now}

			if got := entry.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := entry.TTL(); got > tt.wantTTL || got < tt.wantTTL-time.Second {
				t.Errorf("TTL() = %v, want about %v", got, tt.wantTTL)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	resp := &query.Response{Data: []*frame.Frame{{RefID: "A"}}, State: query.StateDone}
	r := frame.TimeRange{From: time.UnixMilli(0), To: time.UnixMilli(60000)}

	tests := []struct {
		name    string
		ttl     time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{name: "explicit ttl", ttl: time.Minute, wantMin: 59 * time.Second, wantMax: time.Minute},
		{name: "zero falls back to default", ttl: 0, wantMin: DefaultTTL - time.Second, wantMax: DefaultTTL},
		{name: "negative falls back to default", ttl: -time.Minute, wantMin: DefaultTTL - time.Second, wantMax: DefaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(resp, r, tt.ttl)
			if got := entry.TTL(); got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
			if entry.Range != r {
				t.Errorf("Range = %v, want %v", entry.Range, r)
			}
			if entry.CachedAt.IsZero() {
				t.Error("CachedAt not set")
			}
			if len(entry.Frames()) != 1 {
				t.Errorf("Frames() = %d frames, want 1", len(entry.Frames()))
			}
		})
	}
}

func TestCacheEntry_FramesNil(t *testing.T) {
	var entry *CacheEntry
	if got := entry.Frames(); got != nil {
		t.Errorf("Frames() = %v, want nil", got)
	}
	if got := (&CacheEntry{}).Frames(); got != nil {
		t.Errorf("Frames() = %v, want nil", got)
	}
}
