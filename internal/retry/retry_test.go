package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponential(t *testing.T) {
	p := Exponential(4, time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(p.Delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), p.Delays)
	}
	for i := range want {
		if p.Delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], p.Delays[i])
		}
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	p := Policy{Attempts: 3, Delays: []time.Duration{time.Millisecond, 2 * time.Millisecond}}

	var notified []int
	calls := 0
	err := Do(context.Background(), p, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		notified = append(notified, attempt)
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("unexpected notifications %v", notified)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{Attempts: 3, Delays: []time.Duration{time.Millisecond}}
	lastErr := errors.New("still failing")

	calls := 0
	err := Do(context.Background(), p, func(int) error {
		calls++
		return lastErr
	}, nil)

	if !errors.Is(err, lastErr) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentStops(t *testing.T) {
	p := Policy{Attempts: 5, Delays: []time.Duration{time.Millisecond}}
	bad := errors.New("bad request")

	calls := 0
	err := Do(context.Background(), p, func(int) error {
		calls++
		return Permanent(bad)
	}, nil)

	if !errors.Is(err, bad) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 3, Delays: []time.Duration{time.Hour}}

	calls := 0
	err := Do(ctx, p, func(int) error {
		calls++
		cancel()
		return errors.New("transient")
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := map[int]bool{
		200: false,
		400: false,
		401: false,
		408: true,
		429: true,
		500: true,
		503: true,
	}
	for code, want := range tests {
		if got := RetryableStatus(code); got != want {
			t.Errorf("RetryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
