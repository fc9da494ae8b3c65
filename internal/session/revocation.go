package session

import (
	"context"
	"sync"
	"time"
)

// RevocationStore は失効したトークンのキーを有効期限付きで保持する。
// 実装は並行利用に対して安全でなければならない。
type RevocationStore interface {
	// Add はkeyをttlの間だけ失効済みとして記録する。
	Add(ctx context.Context, key string, ttl time.Duration) error
	// Contains はkeyが失効済みかを返す。
	Contains(ctx context.Context, key string) (bool, error)
}

// MemoryRevocationStore は単一インスタンス向けのプロセス内RevocationStore。
// 期限切れエントリは参照時に無視し、DeleteExpiredを定期実行して取り除く。
// トークンごとのタイマーは持たない。
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore は空のMemoryRevocationStoreを生成する。
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add はkeyを記録する。ttlが0以下なら何もしない。
func (s *MemoryRevocationStore) Add(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	expiresAt := s.now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[key]; ok && current.After(expiresAt) {
		return nil
	}
	s.entries[key] = expiresAt
	return nil
}

// Contains はkeyが記録済みかつ期限内かを返す。
func (s *MemoryRevocationStore) Contains(_ context.Context, key string) (bool, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiresAt, ok := s.entries[key]
	return ok && now.Before(expiresAt), nil
}

// Sweep はnow時点で期限切れのエントリを削除し、削除件数を返す。
func (s *MemoryRevocationStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// DeleteExpired は現在時刻でSweepする。クリーンアップワーカーから呼ばれる。
func (s *MemoryRevocationStore) DeleteExpired(_ context.Context) (int64, error) {
	return int64(s.Sweep(s.now())), nil
}

// Len は保持しているエントリ数を返す（期限切れで未削除のものを含む）。
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// compile-time interface check
var _ RevocationStore = (*MemoryRevocationStore)(nil)
