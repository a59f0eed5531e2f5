package api

import (
	"testing"
	"time"
)

func newFakeClockLimiter(t *testing.T, perMin, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(perMin, burst)
	t.Cleanup(rl.Stop)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl, clock := newFakeClockLimiter(t, 60, 2) // one token per second

	for i := 0; i < 2; i++ {
		if ok, _, _ := rl.take("1.2.3.4", 1); !ok {
			t.Fatalf("request %d within burst was refused", i+1)
		}
	}
	ok, _, wait := rl.take("1.2.3.4", 1)
	if ok {
		t.Fatalf("third request should be refused")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want (0, 1s]", wait)
	}

	if ok, _, _ := rl.take("5.6.7.8", 1); !ok {
		t.Errorf("other clients have their own bucket")
	}

	*clock = clock.Add(time.Second)
	if ok, _, _ := rl.take("1.2.3.4", 1); !ok {
		t.Errorf("bucket should refill after a second")
	}
}

func TestRateLimiter_LargeUploadsCostMore(t *testing.T) {
	tests := []struct {
		name   string
		length int64
		want   float64
	}{
		{"unknown length", -1, 1},
		{"small", 1024, 1},
		{"one unit", uploadCostUnit, 2},
		{"three and a bit", 3*uploadCostUnit + 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestCost(tt.length); got != tt.want {
				t.Errorf("requestCost(%d) = %v, want %v", tt.length, got, tt.want)
			}
		})
	}

	rl, _ := newFakeClockLimiter(t, 60, 3)
	if ok, left, _ := rl.take("ip", requestCost(2*uploadCostUnit)); !ok || left != 0 {
		t.Fatalf("3-token upload should drain the bucket, ok=%v left=%v", ok, left)
	}

	// Costs above capacity are capped rather than refused forever
	rl2, clock := newFakeClockLimiter(t, 60, 2)
	if ok, _, _ := rl2.take("ip", 10); !ok {
		t.Fatalf("oversized cost should be capped to the capacity")
	}
	*clock = clock.Add(2 * time.Second)
	if ok, _, _ := rl2.take("ip", 10); !ok {
		t.Errorf("capped cost should fit again after a full refill")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl, clock := newFakeClockLimiter(t, 60, 1)
	rl.take("old", 1)
	*clock = clock.Add(bucketIdleTTL + time.Minute)
	rl.take("fresh", 1)

	if n := rl.evictIdle(clock.Add(-bucketIdleTTL)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := rl.clients["fresh"]; !ok {
		t.Errorf("fresh bucket should survive")
	}
	rl.Stop() // second Stop from Cleanup must not panic
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := bearerToken(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
			}
		})
	}
}
