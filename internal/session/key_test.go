package session

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestParseSigningSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x2a}, ed25519.SeedSize)
	want := ed25519.NewKeyFromSeed(seed)

	for name, s := range map[string]string{
		"hex":       hex.EncodeToString(seed),
		"base64":    base64.StdEncoding.EncodeToString(seed),
		"base64url": base64.RawURLEncoding.EncodeToString(seed),
		"padded":    "  " + hex.EncodeToString(seed) + "\n",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSigningSeed(s)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Error("秘密鍵が一致しない")
			}
		})
	}
}

func TestParseSigningSeed_Invalid(t *testing.T) {
	for _, s := range []string{"", "not-a-seed!!", hex.EncodeToString([]byte("short"))} {
		if _, err := ParseSigningSeed(s); err == nil {
			t.Errorf("ParseSigningSeed(%q) はエラーになるべき", s)
		}
	}
}

func TestGenerateSigningSeed(t *testing.T) {
	s, err := GenerateSigningSeed()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseSigningSeed(s); err != nil {
		t.Errorf("生成したシードは読み込めるべき: %v", err)
	}
}
