// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/session"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みClaimsを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*session.Claims, error)
}

// VerificationRecorder はトークン検証の結果を記録する（metrics.Collector）。
type VerificationRecorder interface {
	RecordTokenVerification(result string)
}

// NewSessionMiddleware はAuthorizationヘッダー（Bearer）またはCookieから
// セッショントークンを読み取り、検証するミドルウェアを返す。
// 検証済みClaimsをリクエストコンテキストに注入する。
// 失効ストアの障害を含め、検証に失敗したリクエストには401を返す。
func NewSessionMiddleware(verifier TokenVerifier, recorder VerificationRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				record(recorder, "missing")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(model.ErrCodeUnauthorized))
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				code, result := classifyVerifyError(err)
				record(recorder, result)
				if errors.Is(err, session.ErrRevocationCheck) {
					slog.Warn("session rejected: revocation check failed",
						slog.String("path", r.URL.Path),
					)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(code))
				return
			}

			record(recorder, "ok")
			noteIdentity(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// TokenFromRequest はAuthorization: Bearer ヘッダー、またはセッションCookieからトークンを取り出す。
// ヘッダーが優先される。
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// classifyVerifyError は検証エラーをAPIエラーコードとメトリクスのラベルに変換する。
func classifyVerifyError(err error) (code, result string) {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		return model.ErrCodeTokenExpired, "expired"
	case errors.Is(err, session.ErrTokenRevoked):
		return model.ErrCodeTokenRevoked, "revoked"
	case errors.Is(err, session.ErrRevocationCheck):
		return model.ErrCodeInvalidToken, "check_failed"
	default:
		return model.ErrCodeInvalidToken, "invalid"
	}
}

func record(recorder VerificationRecorder, result string) {
	if recorder != nil {
		recorder.RecordTokenVerification(result)
	}
}

// ClaimsFromContext はリクエストコンテキストから検証済みClaimsを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*session.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*session.Claims)
	if !ok || claims == nil || claims.Subject == "" {
		return nil, fmt.Errorf("session claims not found in context")
	}
	return claims, nil
}

// StudentIDFromContext はリクエストコンテキストから学籍番号（トークンのsubject）を取得する。
func StudentIDFromContext(ctx context.Context) (string, error) {
	claims, err := ClaimsFromContext(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ContextWithClaims はコンテキストにClaimsを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
