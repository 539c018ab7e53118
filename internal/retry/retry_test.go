package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/config"
)

func fastRetry(attempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts: attempts,
		BaseDelayMs: 5 * time.Millisecond,
		MaxDelayMs:  20 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// failing returns fn that fails the first n calls with err, and a pointer to the call count
func failing(n int, err error) (func() error, *int) {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return err
		}
		return nil
	}, &calls
}

func TestDoWithRetry(t *testing.T) {
	t.Parallel()
	errBroker := errors.New("broker not available")

	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "first_call_succeeds", attempts: 3, failures: 0, wantCalls: 1},
		{name: "succeeds_after_two_failures", attempts: 3, failures: 2, err: errBroker, wantCalls: 3},
		{name: "succeeds_on_last_attempt", attempts: 2, failures: 2, err: errBroker, wantCalls: 3},
		{name: "exhausted", attempts: 2, failures: 10, err: errBroker, wantCalls: 3, wantErr: ErrMaxRetriesExceeded},
		{name: "no_retries_configured", attempts: 0, failures: 1, err: errBroker, wantCalls: 1, wantErr: ErrMaxRetriesExceeded},
		{name: "permanent_error_stops", attempts: 5, failures: 10, err: Permanent(errBroker), wantCalls: 1, wantErr: errBroker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fn, calls := failing(tt.failures, tt.err)

			err := DoWithRetry(context.Background(), fastRetry(tt.attempts), fn)

			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error wrapping %v, got: %v", tt.wantErr, err)
			}
			if *calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, *calls)
			}
		})
	}
}

func TestDoWithRetry_ExhaustedKeepsLastError(t *testing.T) {
	t.Parallel()
	errBroker := errors.New("broker not available")
	fn, _ := failing(10, errBroker)

	err := DoWithRetry(context.Background(), fastRetry(1), fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, errBroker) {
		t.Fatalf("expected both ErrMaxRetriesExceeded and the last error, got: %v", err)
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		t.Error("exhausted error must not be marked permanent")
	}
}

func TestDoWithRetry_Context(t *testing.T) {
	t.Parallel()

	t.Run("cancelled_before_first_call", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fn, calls := failing(0, nil)

		if err := DoWithRetry(ctx, fastRetry(3), fn); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
		if *calls != 0 {
			t.Errorf("fn must not run on a cancelled context, ran %d times", *calls)
		}
	})

	t.Run("cancelled_while_backing_off", func(t *testing.T) {
		t.Parallel()
		cfg := &config.RetryConfig{MaxAttempts: 5, BaseDelayMs: time.Second, MaxDelayMs: time.Second, Multiplier: 1}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		fn, calls := failing(10, errors.New("leader not available"))

		start := time.Now()
		err := DoWithRetry(ctx, cfg, fn)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded, got: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("backoff was not interrupted, took %v", elapsed)
		}
		if *calls != 1 {
			t.Errorf("expected 1 call before the deadline, got %d", *calls)
		}
	})
}

func TestDoWithNotify(t *testing.T) {
	t.Parallel()
	errBroker := errors.New("broker not available")
	fn, _ := failing(2, errBroker)

	var attempts []int
	err := DoWithNotify(context.Background(), fastRetry(3), fn, func(attempt int, err error) {
		if !errors.Is(err, errBroker) {
			t.Errorf("notify got unexpected error: %v", err)
		}
		attempts = append(attempts, attempt)
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected notify for attempts [1 2], got %v", attempts)
	}
}

func TestDoWithNotify_NotCalledAfterLastAttempt(t *testing.T) {
	t.Parallel()
	fn, _ := failing(10, errors.New("broker not available"))

	notified := 0
	_ = DoWithNotify(context.Background(), fastRetry(2), fn, func(int, error) { notified++ })
	if notified != 2 {
		t.Errorf("expected 2 notifications for 3 calls, got %d", notified)
	}
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()
	cfg := &config.RetryConfig{BaseDelayMs: 100 * time.Millisecond, MaxDelayMs: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		if got := calculateBackoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}

	cause := errors.New("unknown topic")
	err := Permanent(cause)
	if !errors.Is(err, cause) {
		t.Error("permanent error must unwrap to its cause")
	}
	if err.Error() != cause.Error() {
		t.Errorf("expected message %q, got %q", cause.Error(), err.Error())
	}
}
