package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseSigningSeed は32バイトのEd25519シードをhexまたはbase64文字列から読み込み、秘密鍵を返す。
func ParseSigningSeed(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("signing seed is empty")
	}

	seed, err := decodeSeed(s)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func decodeSeed(s string) ([]byte, error) {
	if len(s) == hex.EncodedLen(ed25519.SeedSize) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("signing seed must be hex or base64")
}

// GenerateSigningSeed は新しいシードをhex文字列で返す。
func GenerateSigningSeed() (string, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("generating signing seed: %w", err)
	}
	return hex.EncodeToString(seed), nil
}
