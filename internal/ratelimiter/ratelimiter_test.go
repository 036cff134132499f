package ratelimiter

import (
	"context"
	"math"
	"testing"
	"time"
)

// TestNew verifies limiter creation for enabled and disabled configurations.
func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerSecond float64
		burst             int
		wantEnabled       bool
		wantBurst         int
	}{
		{
			name:              "standard rate",
			requestsPerSecond: 100,
			burst:             200,
			wantEnabled:       true,
			wantBurst:         200,
		},
		{
			name:              "zero burst defaults to rate",
			requestsPerSecond: 2.5,
			burst:             0,
			wantEnabled:       true,
			wantBurst:         3,
		},
		{
			name:              "disabled",
			requestsPerSecond: 0,
			burst:             10,
			wantEnabled:       false,
		},
		{
			name:              "negative rate disabled",
			requestsPerSecond: -1,
			wantEnabled:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requestsPerSecond, tt.burst)
			if limiter.Enabled() != tt.wantEnabled {
				t.Fatalf("Enabled() = %v, want %v", limiter.Enabled(), tt.wantEnabled)
			}
			if !tt.wantEnabled {
				return
			}
			if got := limiter.limiter.Burst(); got != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

// TestAllow verifies that Allow() enforces the burst and then refuses.
func TestAllow(t *testing.T) {
	limiter := New(1, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow() {
		t.Error("request beyond burst should be refused")
	}
}

// TestNilLimiterAdmitsEverything verifies the disabled limiter never blocks.
func TestNilLimiterAdmitsEverything(t *testing.T) {
	var limiter *RateLimiter

	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatalf("nil limiter refused request %d", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx); err != nil {
		t.Errorf("nil limiter Wait() = %v, want nil", err)
	}
	if !math.IsInf(limiter.Tokens(), 1) {
		t.Errorf("nil limiter Tokens() = %v, want +Inf", limiter.Tokens())
	}
}

// TestWait verifies that Wait() throttles to the configured rate.
func TestWait(t *testing.T) {
	limiter := New(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First token is immediate, the next two arrive 50ms apart.
	if elapsed < 80*time.Millisecond {
		t.Errorf("3 waits at 20 req/s took %v, expected >= ~100ms", elapsed)
	}
}

// TestWaitCancelled verifies that Wait() respects context cancellation.
func TestWaitCancelled(t *testing.T) {
	limiter := New(1, 1)
	if !limiter.Allow() {
		t.Fatal("first request should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Wait() should fail when the context expires before a token arrives")
	}
}
