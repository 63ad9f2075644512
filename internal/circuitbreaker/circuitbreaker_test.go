package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

// TestCircuitBreaker_OpensAfterThreshold verifies consecutive failures open the
// circuit and further calls are rejected without running fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb := New(Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Call(fail)
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v after 1 failure, want closed", cb.State())
	}
	_ = cb.Call(fail)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after 2 failures, want open", cb.State())
	}

	ran := false
	err := cb.Call(func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() error = %v, want ErrOpen", err)
	}
	if ran {
		t.Error("fn ran while circuit open")
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies the circuit half-opens after the
// timeout and closes after SuccessThreshold successes.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Call(fail)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	now = now.Add(2 * time.Second)
	if err := cb.Call(succeed); err != nil {
		t.Fatalf("probe Call() error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v after one probe, want half_open", cb.State())
	}
	_ = cb.Call(succeed)
	if cb.State() != StateClosed {
		t.Errorf("State() = %v after two probes, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New(Config{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Call(fail)
	now = now.Add(2 * time.Second)
	_ = cb.Call(fail)
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open after failed probe", cb.State())
	}
}

// TestCircuitBreaker_IsFailureFilter verifies errors rejected by IsFailure do not trip the circuit.
func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return notFound }); !errors.Is(err, notFound) {
			t.Fatalf("Call() error = %v, want not found passthrough", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}
