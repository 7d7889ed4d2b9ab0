package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("upstream hiccup"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("upstream down"), 503)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// The last attempt's error must come back intact, classification and all.
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %T", err)
	}
	if te.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", te.StatusCode)
	}
}

func TestDo_PermanentErrorFailsFast(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return errors.New("invalid request payload")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors are not retried)", calls)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	wontFix := errors.New("schema mismatch")
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		ShouldRetry:    func(err error) bool { return err.Error() == "flaky" },
	}

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("flaky")
		}
		return wontFix
	})
	if !errors.Is(err, wontFix) {
		t.Fatalf("err = %v, want %v", err, wontFix)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (retry once, then stop on the unmatched error)", calls)
	}
}

func TestDo_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fnErr := NewTransientError(errors.New("reset mid-flight"), 0)
	var calls int
	err := Do(ctx, DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		cancel()
		return fnErr
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	// The attempt's own error is reported, not the cancellation.
	if !errors.Is(err, fnErr) {
		t.Errorf("err = %v, want %v", err, fnErr)
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		OnRetry:        func(int, error) { cancel() },
	}

	var calls int
	start := time.Now()
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("still down"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation during backoff took %v, want immediate return", elapsed)
	}
}

func TestDo_OnRetryReportsAttempts(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry:        func(attempt int, _ error) { attempts = append(attempts, attempt) },
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 500)
	})

	// Two retries follow three attempts; the hook sees the attempt that failed.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestDoVal_ValuePreserved(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}

	var calls int
	got, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("fail"), 500)
		}
		return "profile text", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "profile text" {
		t.Errorf("got %q, want %q", got, "profile text")
	}
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}

	got, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != 0 {
		t.Errorf("got %d, want the zero value on failure", got)
	}
}

func TestWithDefaults_FillsZeroFields(t *testing.T) {
	got := withDefaults(RetryConfig{})
	want := DefaultRetryConfig()

	if got.MaxAttempts != want.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", got.MaxAttempts, want.MaxAttempts)
	}
	if got.InitialBackoff != want.InitialBackoff {
		t.Errorf("InitialBackoff = %v, want %v", got.InitialBackoff, want.InitialBackoff)
	}
	if got.MaxBackoff != want.MaxBackoff {
		t.Errorf("MaxBackoff = %v, want %v", got.MaxBackoff, want.MaxBackoff)
	}
	if got.Multiplier != want.Multiplier {
		t.Errorf("Multiplier = %v, want %v", got.Multiplier, want.Multiplier)
	}

	neg := withDefaults(RetryConfig{JitterFraction: -1})
	if neg.JitterFraction != 0 {
		t.Errorf("negative JitterFraction = %v, want clamped to 0", neg.JitterFraction)
	}
}

func TestBackoff_Growth(t *testing.T) {
	cfg := withDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: -1, // clamped to 0 for a deterministic ladder
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := Backoff(attempt, cfg); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoff_Ceiling(t *testing.T) {
	cfg := withDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
		JitterFraction: -1,
	})

	if got := Backoff(6, cfg); got != 5*time.Second {
		t.Errorf("Backoff(6) = %v, want the 5s ceiling", got)
	}
}

func TestBackoff_JitterSpread(t *testing.T) {
	cfg := withDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := Backoff(0, cfg)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("Backoff(0) = %v, want within [500ms, 1500ms]", d)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Error("jitter produced identical delays across 100 draws")
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	hook := RetryLogger("census", "download")
	hook(1, errors.New("connection reset by peer"))
}
