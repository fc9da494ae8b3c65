// Package repository はデータ永続化のインターフェースを定義する。
//
// 利用者と成績はスプレッドシート上のシートに、失効トークンはRevocationStoreの
// いずれかの実装（メモリ/Redis/PostgreSQL）に保存される。
package repository

import (
	"context"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/sheets"
)

// UserRepository は利用者アカウントの永続化インターフェース。
type UserRepository interface {
	// FindByEmail はメールアドレスで利用者を取得する。見つからない場合はnilを返す。
	// 比較は大文字小文字と前後の空白を無視する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByStudentID は学籍番号で利用者を取得する。見つからない場合はnilを返す。
	FindByStudentID(ctx context.Context, studentID string) (*model.User, error)

	// Create は利用者を追加する。同じメールアドレスが存在すればmodel.ErrConflictを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は氏名のみを更新し、その他の列は保持する。
	// 見つからない場合はmodel.ErrNotFoundを返す。
	UpdateProfile(ctx context.Context, studentID, firstName, lastName string) (*model.User, error)
}

// GradeRepository は成績の参照インターフェース。
type GradeRepository interface {
	// FindByStudentID は学籍番号の成績行を取得する。見つからない場合はnilを返す。
	FindByStudentID(ctx context.Context, studentID string) (*model.Grade, error)
}

// RecordStore はシートリポジトリが使うレコードストア操作。
type RecordStore interface {
	Find(ctx context.Context, sheet string, candidateKeyNames []string, value string) (*sheets.Record, error)
	AppendIfAbsent(ctx context.Context, sheet string, candidateKeyNames []string, key string, fieldValues map[string]string) (*sheets.WriteResult, error)
	Update(ctx context.Context, sheet string, candidateKeyNames []string, key string, fieldUpdates map[string]string) (*sheets.WriteResult, error)
}

// compile-time interface check
var _ RecordStore = (*sheets.Store)(nil)
