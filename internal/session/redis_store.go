package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore は複数インスタンスで共有するRevocationStore。
// 期限切れはRedisのキー有効期限に任せる。
type RedisRevocationStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRevocationStore はRedisRevocationStoreを生成する。
func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{
		client: client,
		prefix: "revoked:",
	}
}

func (r *RedisRevocationStore) key(k string) string {
	return r.prefix + k
}

// Add はkeyをttl付きで保存する。
func (r *RedisRevocationStore) Add(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to add revocation: %w", err)
	}
	return nil
}

// Contains はkeyの存在を確認する。
func (r *RedisRevocationStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// DialRedis はRedisに接続し、疎通確認したクライアントを返す。
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", addr, err)
	}
	return client, nil
}

// compile-time interface check
var _ RevocationStore = (*RedisRevocationStore)(nil)
