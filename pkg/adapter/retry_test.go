package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &AdapterError{Status: 503, Err: errors.New("overloaded")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid request")
	err := Retry(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Retry() error = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1; permanent errors must not be retried", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return &AdapterError{Status: 429, Err: errors.New("rate limited")}
	})
	if err == nil {
		t.Fatal("exhausted retries must return the last error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want initial attempt plus two retries", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastConfig(), func(context.Context) error {
		calls++
		cancel()
		return &AdapterError{Status: 500, Err: errors.New("flaky")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: true},
		{name: "cancellation", err: context.Canceled, want: false},
		{name: "rate limit", err: &AdapterError{Status: 429}, want: true},
		{name: "server error", err: &AdapterError{Status: 502}, want: true},
		{name: "client error", err: &AdapterError{Status: 400}, want: false},
		{name: "flagged temporary", err: &AdapterError{Temporary: true}, want: true},
		{name: "net timeout", err: net.Error(timeoutErr{}), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAdapterErrorUnwrap(t *testing.T) {
	inner := errors.New("quota exceeded")
	err := &AdapterError{Status: 429, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("AdapterError must unwrap to its cause")
	}
	if err.Error() != "quota exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}
}
