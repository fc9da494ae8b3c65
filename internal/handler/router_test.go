package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/gradesheet/internal/middleware"
	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/session"
)

// stubVerifier は固定のトークンのみ受け付けるTokenVerifier。
type stubVerifier struct {
	token     string
	studentID string
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (*session.Claims, error) {
	if token == v.token {
		return &session.Claims{Subject: v.studentID}, nil
	}
	return nil, session.ErrInvalidToken
}

var _ middleware.TokenVerifier = (*stubVerifier)(nil)

func newTestRouter(t *testing.T, metrics http.Handler) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Verifier:    &stubVerifier{token: "router-token", studentID: "s-router"},
		RateLimiter: rl,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthService: &mockAuthService{},
		UserService: &mockUserService{
			updateProfileFn: func(ctx context.Context, studentID string, req updateProfileRequest) (*userResponse, error) {
				return &userResponse{StudentID: studentID}, nil
			},
			gradesFn: func(ctx context.Context, studentID string) (*gradeResponse, error) {
				return &gradeResponse{StudentID: studentID, Fields: map[string]string{}}, nil
			},
		},
		SheetLister:    &mockSheetLister{names: []string{"Users"}},
		MetricsHandler: metrics,
	})
}

func TestNewRouter_ProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPatch, "/api/users/me"},
		{http.MethodGet, "/api/grades/me"},
		{http.MethodGet, "/api/sheets"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestNewRouter_ProtectedRoutesWithBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/auth/me", "/api/grades/me", "/api/sheets"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer router-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestNewRouter_CookieSessionRequiresCSRF(t *testing.T) {
	router := newTestRouter(t, nil)

	req := jsonRequest(http.MethodPatch, "/api/users/me", `{"first_name":"Yuki"}`)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "router-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("without CSRF status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = jsonRequest(http.MethodPatch, "/api/users/me", `{"first_name":"Yuki"}`)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "router-token"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-value"})
	req.Header.Set("X-CSRF-Token", "csrf-value")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with CSRF status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/health", "/api/csrf-token"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}

	// /metrics は未設定なら登録しない
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouter_MetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	router := newTestRouter(t, metrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("GET /metrics status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestNewRouter_LogoutWithoutSession(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestNewRouter_LoginErrorUsesUnifiedBody(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"x"}`))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q", code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}
