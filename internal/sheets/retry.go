package sheets

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// CallResult はリモート呼び出しの失敗分類。
type CallResult int

const (
	// CallResultOK は成功。
	CallResultOK CallResult = iota
	// CallResultRetry は一時的な失敗でリトライしてよいもの（429/5xx/タイムアウト/通信断）。
	CallResultRetry
	// CallResultFail はリトライしても解決しない失敗（4xx等）。
	CallResultFail
)

const (
	// defaultBaseDelay は指数バックオフの初回遅延。
	defaultBaseDelay = 200 * time.Millisecond
	// defaultMaxDelay は指数バックオフの最大遅延。
	defaultMaxDelay = 5 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードをリトライ可否に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return CallResultOK
	case statusCode == 429:
		return CallResultRetry
	case statusCode >= 500:
		return CallResultRetry
	default:
		return CallResultFail
	}
}

// RetryPolicy はリモート呼び出しのタイムアウトと再試行の方針。
type RetryPolicy struct {
	MaxRetries     int           // 初回を除く最大再試行回数
	BaseDelay      time.Duration // 初回バックオフ
	MaxDelay       time.Duration // バックオフ上限
	AttemptTimeout time.Duration // 1回の呼び出しのハードタイムアウト（0なら無制限）
}

// DefaultRetryPolicy はデフォルトのリトライ方針を返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      defaultBaseDelay,
		MaxDelay:       defaultMaxDelay,
		AttemptTimeout: 10 * time.Second,
	}
}

// Backoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// BaseDelayから2倍ずつ増加し、MaxDelayで頭打ちになる。
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// retrier はRetryPolicyに従って呼び出しを繰り返す。
type retrier struct {
	policy   RetryPolicy
	classify func(err error) CallResult
	logger   *slog.Logger
	onRetry  func(op string)
	sleep    func(ctx context.Context, d time.Duration) error
}

// do はfnを実行し、一時的な失敗であればバックオフを挟んで再試行する。
// 呼び出し元のコンテキストがキャンセルされた時点で打ち切る。
func (r *retrier) do(ctx context.Context, op string, retryable bool, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !retryable || attempt >= r.policy.MaxRetries || r.classify(err) != CallResultRetry {
			return err
		}

		delay := r.policy.Backoff(attempt)
		r.logger.Warn("sheets call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if r.onRetry != nil {
			r.onRetry(op)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sleepContext はdだけ待機する。コンテキストが先に終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyTransport はHTTPステータスを持たない失敗を分類する。
// 1回分のタイムアウトと通信断は一時的な失敗として扱う。
func classifyTransport(err error) CallResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return CallResultRetry
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CallResultRetry
	}
	return CallResultFail
}
