package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})

	fail := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if cb.State() != StateClosed {
			t.Fatalf("Expected closed before threshold, got %s", cb.State())
		}
		cb.Execute(ctx, fail)
	}

	if cb.State() != StateOpen {
		t.Fatalf("Expected open after %d failures, got %s", 3, cb.State())
	}

	// Open circuit rejects without running fn.
	ran := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if ran {
		t.Error("Open circuit must not execute the call")
	}

	t.Log("✓ Breaker opens after consecutive failures and rejects calls")
}

func TestCircuitBreakerRecovers(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          30 * time.Millisecond,
	})

	fail := func(ctx context.Context) error { return errors.New("boom") }
	ok := func(ctx context.Context) error { return nil }

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.State())
	}

	time.Sleep(50 * time.Millisecond)

	// First probe after the timeout moves to half-open.
	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open after one probe, got %s", cb.State())
	}

	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after success threshold, got %s", cb.State())
	}

	t.Log("✓ Breaker recovers through half-open probes")
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          20 * time.Millisecond,
	})

	cb.Execute(ctx, func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(40 * time.Millisecond)

	// A failed probe trips straight back to open.
	cb.Execute(ctx, func(ctx context.Context) error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("Expected reopen after failed probe, got %s", cb.State())
	}

	t.Log("✓ A failed half-open probe reopens the breaker")
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	ctx := context.Background()

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	cb.Execute(ctx, func(ctx context.Context) error { return errors.New("boom") })
	cb.Reset()

	want := []string{"closed>open", "open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, transitions)
		}
	}

	t.Log("✓ State changes fire the callback")
}
