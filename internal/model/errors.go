// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ストアアダプタが返すエラー分類。
// 呼び出し側はerrors.Isで判定する。
var (
	// ErrStoreUnavailable はリモートの表計算サービスに到達できない、または呼び出しが拒否されたことを示す。
	// 握りつぶさずに必ず呼び出し元へ伝播させる。
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchemaMismatch はヘッダー解決にも固定位置フォールバックにも失敗したことを示す。
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNotFound はキーに一致する行が存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrConflict は同一キーのレコードが既に存在することを示す。
	ErrConflict = errors.New("record already exists")
	// ErrUnknownSheet は設定されていない論理シート名が指定されたことを示す。
	ErrUnknownSheet = errors.New("unknown sheet")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountConflict    = "ACCOUNT_CONFLICT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked       = "TOKEN_REVOKED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidInputError は入力不備エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// アカウント未登録とパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAccountConflictError はアカウント作成の競合エラーを生成する。
// 既存アカウントの有無を推測できないよう汎用的なメッセージにする。
func NewAccountConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountConflict,
		Message:  "アカウントを作成できませんでした。",
		Category: "account",
		Action:   "別のメールアドレスを使用するか、ログインをお試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRecordNotFoundError はシート上に該当レコードがない場合のエラーを生成する。
func NewRecordNotFoundError(sheet string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("該当するレコードが見つかりません: %s", sheet),
		Category: "account",
		Action:   "登録内容を管理者に確認してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError(code string) *APIError {
	action := "ログインしてください。"
	message := "認証が必要です。"
	switch code {
	case ErrCodeTokenExpired:
		message = "セッションの有効期限が切れました。"
		action = "再度ログインしてください。"
	case ErrCodeTokenRevoked:
		message = "セッションは無効化されています。"
		action = "再度ログインしてください。"
	case ErrCodeInvalidToken:
		message = "セッションが無効です。"
	default:
		code = ErrCodeUnauthorized
	}
	return &APIError{
		Code:     code,
		Message:  message,
		Category: "auth",
		Action:   action,
	}
}

// NewStoreUnavailableError はリモートストア障害時のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
