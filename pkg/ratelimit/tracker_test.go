package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.throttle = 20 * time.Millisecond
	return tracker
}

func TestUpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		remainHeader  string
		resetHeader   string
		wantRemaining int
		wantThrottle  bool
		shouldError   bool
	}{
		{name: "healthy", remainHeader: "100", resetHeader: "60", wantRemaining: 100},
		{name: "low budget", remainHeader: "3", resetHeader: "30", wantRemaining: 3, wantThrottle: true},
		{name: "missing headers", wantRemaining: -1},
		{name: "missing remain header", resetHeader: "60", wantRemaining: -1},
		{name: "invalid remain header", remainHeader: "invalid", resetHeader: "60", wantRemaining: -1, shouldError: true},
		{name: "missing reset header", remainHeader: "10", wantRemaining: -1, shouldError: true},
		{name: "invalid reset header", remainHeader: "10", resetHeader: "soon", wantRemaining: -1, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker()
			ctx := context.Background()

			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set("X-RateLimit-Remaining", tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set("X-RateLimit-Reset", tt.resetHeader)
			}

			err := tracker.UpdateFromHeaders(ctx, headers)
			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if got := state.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
		})
	}
}

func TestBlock_KeepsLongerBlock(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	if err := tracker.Block(ctx, time.Minute); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if err := tracker.Block(ctx, time.Second); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	state, _ := tracker.GetState(ctx)
	if d := state.TimeUntilUnblock(); d < 50*time.Second {
		t.Errorf("TimeUntilUnblock() = %v, want the one minute block kept", d)
	}
}

func TestBlock_NonPositiveIgnored(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	if err := tracker.Block(ctx, 0); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	state, _ := tracker.GetState(ctx)
	if state.Blocked() {
		t.Error("Blocked() = true after zero block")
	}
}

func TestWait(t *testing.T) {
	t.Run("unknown state allows immediately", func(t *testing.T) {
		tracker := newTestTracker()

		start := time.Now()
		if err := tracker.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
			t.Errorf("Wait() took %v, want no delay", elapsed)
		}
	})

	t.Run("blocked waits for the block", func(t *testing.T) {
		tracker := newTestTracker()
		tracker.Block(context.Background(), 100*time.Millisecond)

		start := time.Now()
		if err := tracker.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
			t.Errorf("Wait() took %v, want about 100ms", elapsed)
		}
	})

	t.Run("throttled waits the throttle delay", func(t *testing.T) {
		tracker := newTestTracker()
		headers := http.Header{}
		headers.Set("X-RateLimit-Remaining", "1")
		headers.Set("X-RateLimit-Reset", "60")
		tracker.UpdateFromHeaders(context.Background(), headers)

		start := time.Now()
		if err := tracker.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
			t.Errorf("Wait() took %v, want the throttle delay", elapsed)
		}
	})

	t.Run("context cancelled while blocked", func(t *testing.T) {
		tracker := newTestTracker()
		tracker.Block(context.Background(), time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := tracker.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
		}
	})

	t.Run("context already cancelled", func(t *testing.T) {
		tracker := newTestTracker()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := tracker.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	})
}
