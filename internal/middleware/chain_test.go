package middleware

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/gradesheet/internal/session"
)

func newChainAuthority(t *testing.T) *session.Authority {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	authority, err := session.NewAuthority(ed25519.NewKeyFromSeed(seed), session.NewMemoryRevocationStore(), nil)
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	return authority
}

// TestMiddlewareChain_RealAuthority_IssueVerifyRevoke は
// 実際のAuthorityと組み合わせて、発行したトークンが通り失効後は拒否されることを検証する。
func TestMiddlewareChain_RealAuthority_IssueVerifyRevoke(t *testing.T) {
	authority := newChainAuthority(t)
	token, _, err := authority.Issue("s-chain", session.Claims{}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var capturedID string
	handler := NewSessionMiddleware(authority, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID, _ = StudentIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedID != "s-chain" {
		t.Errorf("studentID = %q", capturedID)
	}

	if err := authority.Revoke(context.Background(), token); err != nil {
		t.Fatal(err)
	}

	w := do()
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != "TOKEN_REVOKED" {
		t.Errorf("code = %q, want TOKEN_REVOKED", code)
	}
}

// TestMiddlewareChain_SessionCSRF_CookieRequiresToken は
// Cookie認証のPOSTにはCSRFトークンが必要で、Bearer認証では不要であることを検証する。
func TestMiddlewareChain_SessionCSRF_CookieRequiresToken(t *testing.T) {
	verifier := &mockVerifier{claims: &session.Claims{Subject: "s001"}}
	handler := NewSessionMiddleware(verifier, nil)(NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	// Cookie認証・CSRFトークン無し
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("cookie without csrf: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// Cookie認証・CSRFトークン有り
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf-1"})
	req.Header.Set(csrfHeaderName, "csrf-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("cookie with csrf: status = %d, want %d", w.Code, http.StatusOK)
	}

	// Bearer認証
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestMiddlewareChain_RecoveryReturnsUnifiedError はpanicが統一フォーマットの500になることを検証する。
func TestMiddlewareChain_RecoveryReturnsUnifiedError(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if code := decodeErrorCode(t, w); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q", code)
	}
}
