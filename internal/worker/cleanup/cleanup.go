// Package cleanup は失効済みトークン記録の定期削除ジョブを提供する。
// 有効期限を過ぎた失効記録は照会結果に影響しないため、
// 一定間隔で削除してストアの肥大化を防ぐ。
// ネイティブTTLを持つRedisバックエンドでは使用しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredRevocationSweeper は期限切れの失効記録を削除し、削除件数を返す。
type ExpiredRevocationSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepRecorder は削除件数をメトリクスとして記録する。
type SweepRecorder interface {
	RecordRevocationsSwept(n int64)
}

// DefaultInterval は削除ジョブのデフォルト実行間隔。
const DefaultInterval = time.Minute

// RevocationCleanupJob は期限切れの失効記録を削除するジョブ。
// 削除は冪等で、対象が無い場合もエラーにならない。
type RevocationCleanupJob struct {
	store    ExpiredRevocationSweeper
	logger   *slog.Logger
	recorder SweepRecorder
}

// NewRevocationCleanupJob は新しいRevocationCleanupJobを生成する。
// recorderはnil可。
func NewRevocationCleanupJob(store ExpiredRevocationSweeper, logger *slog.Logger, recorder SweepRecorder) *RevocationCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationCleanupJob{
		store:    store,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れの失効記録を1回削除する。
func (j *RevocationCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.store.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("失効記録のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("失効記録のクリーンアップに失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordRevocationsSwept(deleted)
	}

	level := slog.LevelDebug
	if deleted > 0 {
		level = slog.LevelInfo
	}
	j.logger.Log(ctx, level, "失効記録のクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 起動直後に1回実行する。個々の失敗はログに記録し、ループは継続する。
func (j *RevocationCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
