package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gradesheet/internal/session"
)

// PostgresRevocationRepo はPostgreSQLを使用した失効トークンリポジトリ。
// 複数インスタンスで失効状態を共有する場合の選択肢。期限切れ行はクリーンアップワーカーが削除する。
type PostgresRevocationRepo struct {
	db *sql.DB
}

// NewPostgresRevocationRepo はPostgresRevocationRepoを生成する。
func NewPostgresRevocationRepo(db *sql.DB) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db}
}

// Add は失効キーを記録する。既存の行があれば有効期限の長い方を残す。
func (r *PostgresRevocationRepo) Add(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_key, expires_at)
		 VALUES ($1, $2)
		 ON CONFLICT (token_key)
		 DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`,
		key, time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to add revoked token: %w", err)
	}
	return nil
}

// Contains は期限内の失効キーが存在するかを返す。
func (r *PostgresRevocationRepo) Contains(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_key = $1 AND expires_at > now())`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return exists, nil
}

// DeleteExpired は期限切れの失効キーを削除し、削除件数を返す。
func (r *PostgresRevocationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revoked tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ session.RevocationStore = (*PostgresRevocationRepo)(nil)
