package session

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Authority はセッショントークンの発行・検証・失効を行う。
// 検証は 構造/署名 → 有効期限 → 失効 の順に行い、いずれかで失敗すれば拒否する。
type Authority struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	store      RevocationStore
	logger     *slog.Logger
	now        func() time.Time
}

// Option はAuthorityの設定を変更する。
type Option func(*Authority)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority はAuthorityを生成する。
func NewAuthority(privateKey ed25519.PrivateKey, store RevocationStore, logger *slog.Logger, opts ...Option) (*Authority, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("session: private key has %d bytes, want %d", len(privateKey), ed25519.PrivateKeySize)
	}
	if store == nil {
		return nil, fmt.Errorf("session: revocation store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Authority{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue はsubjectとclaimsを埋め込んだトークンを発行する。
// TokenID, Subject, IssuedAt, ExpiresAt はこちらで設定し、claimsの値は上書きされる。
func (a *Authority) Issue(subject string, claims Claims, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("session: subject is required")
	}
	// 有効期限はUnix秒に切り捨てるため、1秒未満では発行直後に期限切れになりうる
	if ttl < time.Second {
		return "", nil, fmt.Errorf("session: ttl must be at least 1s, got %v", ttl)
	}

	now := a.now()
	claims.TokenID = uuid.NewString()
	claims.Subject = subject
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()

	token, err := encodeToken(a.privateKey, &claims)
	if err != nil {
		return "", nil, err
	}
	return token, &claims, nil
}

// Verify はトークンを検証してClaimsを返す。
func (a *Authority) Verify(ctx context.Context, token string) (*Claims, error) {
	return a.VerifyAt(ctx, token, a.now())
}

// VerifyAt はVerifyと同じだが有効期限の判定に任意の時刻を使う。
func (a *Authority) VerifyAt(ctx context.Context, token string, now time.Time) (*Claims, error) {
	claims, err := decodeToken(a.publicKey, token)
	if err != nil {
		return nil, err
	}

	if now.Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	revoked, err := a.store.Contains(ctx, RevocationKey(claims.TokenID))
	if err != nil {
		a.logger.Warn("revocation check failed",
			slog.String("token_id", claims.TokenID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrRevocationCheck, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke はトークンを失効させる。失効エントリは元のトークンの残り有効期間だけ保持される。
// 既に期限切れのトークンは何もしない。
func (a *Authority) Revoke(ctx context.Context, token string) error {
	claims, err := decodeToken(a.publicKey, token)
	if err != nil {
		return err
	}

	remaining := time.Unix(claims.ExpiresAt, 0).Sub(a.now())
	if remaining <= 0 {
		return nil
	}

	if err := a.store.Add(ctx, RevocationKey(claims.TokenID), remaining); err != nil {
		return fmt.Errorf("session: failed to record revocation: %w", err)
	}
	a.logger.Info("session revoked",
		slog.String("token_id", claims.TokenID),
		slog.String("subject", claims.Subject),
	)
	return nil
}

// IsRevoked はトークンが失効済みかを返す。署名を検証できないトークンはエラーになる。
func (a *Authority) IsRevoked(ctx context.Context, token string) (bool, error) {
	claims, err := decodeToken(a.publicKey, token)
	if err != nil {
		return false, err
	}
	return a.store.Contains(ctx, RevocationKey(claims.TokenID))
}

// RevocationKey は署名済みペイロード内のTokenIDのBLAKE3-256ダイジェストをhexで返す。
// 文字列表記ではなくTokenIDで引くため、同じトークンの別表記も失効扱いになる。
// 失効ストアにはベアラートークンそのものを保存しない。
func RevocationKey(tokenID string) string {
	sum := blake3.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}

// Remaining はClaimsの残り有効期間を返す。
func (c *Claims) Remaining(now time.Time) time.Duration {
	d := time.Unix(c.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsAuthError はトークン検証由来のエラーかを返す。
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenRevoked)
}
