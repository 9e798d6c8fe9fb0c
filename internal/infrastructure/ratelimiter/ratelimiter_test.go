package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 10, MaxBurst: 3})

	for i := 0; i < 3; i++ {
		if !rl.Allow("p1") {
			t.Fatalf("request %d inside the burst must pass", i)
		}
	}
	if rl.Allow("p1") {
		t.Fatal("request past the burst must be rejected")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 100, MaxBurst: 2})

	rl.Allow("p1")
	rl.Allow("p1")
	if rl.Allow("p1") {
		t.Fatal("bucket must be empty")
	}

	// 100 tokens/s means one token roughly every 10ms.
	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("p1") {
		t.Fatal("bucket must refill over time")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 10, MaxBurst: 1})

	if !rl.Allow("p1") {
		t.Fatal("first key must pass")
	}
	if rl.Allow("p1") {
		t.Fatal("first key must be exhausted")
	}
	if !rl.Allow("p2") {
		t.Fatal("second key must have its own bucket")
	}
}

func TestRemaining(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 10, MaxBurst: 5})

	if got := rl.Remaining("p1"); got != 5 {
		t.Fatalf("fresh key remaining = %d, want 5", got)
	}
	rl.Allow("p1")
	rl.Allow("p1")
	if got := rl.Remaining("p1"); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 7})
	if got := rl.GetMaxBurst(); got != 7 {
		t.Fatalf("default burst = %d, want the per-second rate", got)
	}
}
