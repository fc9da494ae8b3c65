package sheets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want CallResult
	}{
		{200, CallResultOK},
		{204, CallResultOK},
		{400, CallResultFail},
		{403, CallResultFail},
		{404, CallResultFail},
		{429, CallResultRetry},
		{500, CallResultRetry},
		{503, CallResultRetry},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := p.Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryPolicy_BackoffDefaults(t *testing.T) {
	var p RetryPolicy
	if got := p.Backoff(0); got != defaultBaseDelay {
		t.Errorf("got %v, want %v", got, defaultBaseDelay)
	}
	if got := p.Backoff(100); got != defaultMaxDelay {
		t.Errorf("got %v, want %v", got, defaultMaxDelay)
	}
}

var errTransient = errors.New("transient")

func newTestRetrier(maxRetries int) (*retrier, *[]time.Duration, *int) {
	var slept []time.Duration
	retries := 0
	r := &retrier{
		policy: RetryPolicy{MaxRetries: maxRetries, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
		classify: func(err error) CallResult {
			if errors.Is(err, errTransient) {
				return CallResultRetry
			}
			return CallResultFail
		},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		onRetry: func(string) { retries++ },
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return r, &slept, &retries
}

func TestRetrier_RetriesTransientFailures(t *testing.T) {
	r, slept, retries := newTestRetrier(3)
	calls := 0
	err := r.do(context.Background(), "get_rows", true, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if *retries != 2 {
		t.Errorf("retries = %d, want 2", *retries)
	}
	if len(*slept) != 2 || (*slept)[0] != 10*time.Millisecond || (*slept)[1] != 20*time.Millisecond {
		t.Errorf("slept = %v", *slept)
	}
}

func TestRetrier_GivesUpAfterMaxRetries(t *testing.T) {
	r, _, _ := newTestRetrier(2)
	calls := 0
	err := r.do(context.Background(), "get_rows", true, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("初回+再試行2回で計3回呼ばれるべき, got %d", calls)
	}
}

func TestRetrier_DoesNotRetryPermanentFailure(t *testing.T) {
	r, _, _ := newTestRetrier(3)
	calls := 0
	permanent := errors.New("bad request")
	err := r.do(context.Background(), "get_rows", true, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetrier_NotRetryable(t *testing.T) {
	r, _, _ := newTestRetrier(3)
	calls := 0
	_ = r.do(context.Background(), "append_row", false, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrier_StopsWhenParentCancelled(t *testing.T) {
	r, _, _ := newTestRetrier(5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.do(ctx, "get_rows", true, func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	if err == nil || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	r, _, _ := newTestRetrier(1)
	r.policy.AttemptTimeout = 10 * time.Millisecond
	r.classify = classifyTransport
	calls := 0
	err := r.do(context.Background(), "get_rows", true, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("タイムアウトは再試行対象, calls = %d", calls)
	}
}

func TestClassifyTransport(t *testing.T) {
	if got := classifyTransport(context.DeadlineExceeded); got != CallResultRetry {
		t.Errorf("DeadlineExceeded: got %v", got)
	}
	var netErr net.Error = &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if got := classifyTransport(netErr); got != CallResultRetry {
		t.Errorf("net.Error: got %v", got)
	}
	if got := classifyTransport(errors.New("other")); got != CallResultFail {
		t.Errorf("other: got %v", got)
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
