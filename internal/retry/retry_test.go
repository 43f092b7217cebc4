package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoStopsOnFirstSuccess(t *testing.T) {
	var delays []time.Duration
	calls := 0
	p := Policy{MaxAttempts: 3, Backoff: Linear(2 * time.Second), Sleep: recordingSleep(&delays)}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("delays = %v, want none", delays)
	}
}

func TestDoExhaustsLinearBackoff(t *testing.T) {
	var delays []time.Duration
	calls := 0
	wantErr := errors.New("boom")
	p := Policy{MaxAttempts: 3, Backoff: Linear(2 * time.Second), Sleep: recordingSleep(&delays)}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	p := Policy{MaxAttempts: 4, Backoff: Exponential(time.Second), Sleep: recordingSleep(&delays)}

	_ = p.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("always")
	})
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoRecoversMidway(t *testing.T) {
	var delays []time.Duration
	calls := 0
	p := Policy{MaxAttempts: 3, Backoff: Linear(2 * time.Second), Sleep: recordingSleep(&delays)}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("delays = %v, want [2s]", delays)
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	p := Policy{MaxAttempts: 3, Backoff: Linear(time.Second)}
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("never reached")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestDoDefaultsToSingleAttempt(t *testing.T) {
	calls := 0
	p := Policy{}
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
