// Package session は署名付きセッショントークンの発行・検証・失効を提供する。
//
// トークンはCBORでエンコードしたClaimsにEd25519署名を連結し、base64urlで文字列化したもの。
// 発行済みトークンの記録は持たず、失効したトークンのみRevocationStoreに保持する。
package session

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// signatureSize はEd25519署名の固定長（64バイト）。
const signatureSize = ed25519.SignatureSize

// Claims はセッショントークンのペイロード。
type Claims struct {
	// TokenID はトークンごとの一意なID。
	TokenID string `cbor:"1,keyasint"`
	// Subject は利用者の識別子（学籍番号）。
	Subject     string `cbor:"2,keyasint"`
	Email       string `cbor:"3,keyasint,omitempty"`
	DisplayName string `cbor:"4,keyasint,omitempty"`
	// IssuedAt, ExpiresAt はUnix秒。
	IssuedAt  int64 `cbor:"5,keyasint"`
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// 検証エラー。ErrMalformedToken, ErrInvalidSignature, ErrRevocationCheck はいずれも
// errors.Is(err, ErrInvalidToken) を満たす。
var (
	ErrInvalidToken     = errors.New("session: invalid token")
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrInvalidToken)
	ErrRevocationCheck  = fmt.Errorf("%w: revocation check failed", ErrInvalidToken)
	ErrTokenExpired     = errors.New("session: token has expired")
	ErrTokenRevoked     = errors.New("session: token has been revoked")
)

// tokenEncoding はパディングなしbase64url。Strictモードで余りビットが0でない入力を拒否する。
var tokenEncoding = base64.RawURLEncoding.Strict()

// encMode はCore Deterministic Encoding。同じClaimsは常に同じバイト列になる。
var encMode cbor.EncMode

// decMode は未知のフィールドを無視する。
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("session: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodeToken はClaimsに署名し、base64url文字列を返す。
func encodeToken(privateKey ed25519.PrivateKey, claims *Claims) (string, error) {
	payload, err := encMode.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("session: encoding claims: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)
	raw := make([]byte, len(payload)+signatureSize)
	copy(raw, payload)
	copy(raw[len(payload):], signature)

	return tokenEncoding.EncodeToString(raw), nil
}

// decodeToken は構造と署名を検証してClaimsを取り出す。有効期限は確認しない。
func decodeToken(publicKey ed25519.PublicKey, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	// 末尾文字の余りビットが異なる別表記は受け付けない
	if tokenEncoding.EncodeToString(raw) != token {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrMalformedToken)
	}
	if len(raw) <= signatureSize {
		return nil, fmt.Errorf("%w: token too short", ErrMalformedToken)
	}

	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var claims Claims
	if err := decMode.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if claims.TokenID == "" || claims.Subject == "" || claims.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: missing token id, subject or expiry", ErrMalformedToken)
	}
	return &claims, nil
}
