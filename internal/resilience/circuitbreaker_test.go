package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 2})
	for range 10 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 3, Cooldown: time.Hour})

	for i := range 3 {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if got := b.State(); got != Open {
		t.Fatalf("state after threshold = %v, want open", got)
	}

	// Further calls are rejected without running fn.
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if ran {
		t.Error("fn ran while the breaker was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 3, Cooldown: time.Hour})

	// Two failures, a success, then two more failures: never three
	// consecutive, so the breaker stays closed.
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })

	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 2})

	b.Do(func() error { return errBoom })
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", got)
	}

	// Two successful probes close the breaker.
	for i := range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := b.State(); got != Closed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want boom", err)
	}
	if got := b.State(); got != Open {
		t.Errorf("state after failed probe = %v, want open", got)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 1, Cooldown: time.Hour})
	b.Do(func() error { return errBoom })
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want open", got)
	}

	b.Reset()
	if got := b.State(); got != Closed {
		t.Errorf("state after reset = %v, want closed", got)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Settings{Name: "test", FailureThreshold: 50, Cooldown: time.Hour})

	var mu sync.Mutex
	calls := 0
	// Fails the first 25 calls, then succeeds.
	fn := func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 25 {
			return errBoom
		}
		return nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				b.Do(fn)
			}
		}()
	}
	wg.Wait()

	// 25 failures never reach the threshold of 50 consecutive.
	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	cases := map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
