package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockRetryObserver struct {
	mu       sync.Mutex
	attempts []string
	classes  []ErrorClass
}

func (m *mockRetryObserver) DeploymentStarted()                                    {}
func (m *mockRetryObserver) DeploymentCompleted(status string, d time.Duration)    {}
func (m *mockRetryObserver) StageCompleted(stage Stage, d time.Duration)           {}
func (m *mockRetryObserver) RollbackResource(kind string, success bool)            {}
func (m *mockRetryObserver) RetryAttempted(operation string, class ErrorClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, operation)
	m.classes = append(m.classes, class)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return NewTransientError("flaky", nil)
	})

	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls != 4 {
		t.Errorf("Expected 1+3 attempts, got %d", calls)
	}
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return NewPermanentError("rejected", nil)
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt for a permanent error, got %d", calls)
	}
}

func TestRetryUnclassifiedErrorTreatedAsPermanent(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), "op", nil, func(ctx context.Context) error {
		calls++
		return errors.New("plain error")
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	obs := &mockRetryObserver{}

	calls := 0
	err := policy.Do(context.Background(), "createCredential", obs, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError("flaky", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected a third attempt to succeed, got %d", calls)
	}
	if len(obs.attempts) != 2 {
		t.Fatalf("Expected 2 retry notifications, got %d", len(obs.attempts))
	}
	if obs.classes[0] != ErrorClassTransient {
		t.Errorf("Expected transient class, got %s", obs.classes[0])
	}
}

func TestRetryThrottledClassReported(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond}
	obs := &mockRetryObserver{}

	_ = policy.Do(context.Background(), "op", obs, func(ctx context.Context) error {
		return NewThrottledError("rate limited", nil)
	})

	if len(obs.classes) != 1 || obs.classes[0] != ErrorClassThrottled {
		t.Errorf("Expected throttled class, got %v", obs.classes)
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		// Cancel once the first attempt is in its backoff wait.
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, "op", nil, func(ctx context.Context) error {
		calls++
		return NewTransientError("flaky", nil)
	})

	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt before cancellation, got %d", calls)
	}
	var e *EngineError
	if !errors.As(err, &e) || e.Code != ErrCodeTimeout {
		t.Errorf("Expected timeout-coded engine error, got %v", err)
	}
}

func TestBackoffDoublingAndCap(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, RateLimitDelay: 5 * time.Second, MaxDelay: 3 * time.Second}
	transient := NewTransientError("flaky", nil)

	if got := policy.backoff(0, transient); got != time.Second {
		t.Errorf("Expected 1s for attempt 0, got %s", got)
	}
	if got := policy.backoff(1, transient); got != 2*time.Second {
		t.Errorf("Expected 2s for attempt 1, got %s", got)
	}
	if got := policy.backoff(2, transient); got != 3*time.Second {
		t.Errorf("Expected cap at 3s, got %s", got)
	}
}

func TestBackoffThrottledFloorAndHint(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, RateLimitDelay: 5 * time.Second, MaxDelay: 30 * time.Second}

	throttled := NewThrottledError("rate limited", nil)
	if got := policy.backoff(0, throttled); got != 5*time.Second {
		t.Errorf("Expected rate limit floor 5s, got %s", got)
	}

	hinted := NewThrottledError("rate limited", nil).WithRetryAfter(12 * time.Second)
	if got := policy.backoff(0, hinted); got != 12*time.Second {
		t.Errorf("Expected server hint 12s, got %s", got)
	}

	// A hint below the computed delay never shortens the wait.
	shortHint := NewThrottledError("rate limited", nil).WithRetryAfter(time.Second)
	if got := policy.backoff(0, shortHint); got != 5*time.Second {
		t.Errorf("Expected floor to win over a short hint, got %s", got)
	}
}
