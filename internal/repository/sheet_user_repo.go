package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/sheets"
)

// 論理シート名。
const (
	UsersSheet  = "Users"
	GradesSheet = "Grades"
)

var (
	emailKey     = []string{sheets.FieldEmail}
	studentIDKey = []string{sheets.FieldStudentID}
	// gradeStudentIDKey はGradesシートの学籍番号列の表記揺れ。
	gradeStudentIDKey = []string{"Student_ID", "StudentID", "Student Id", "ID"}
)

// SheetUserRepo はUsersシートを使用した利用者リポジトリ。
type SheetUserRepo struct {
	store RecordStore
}

// NewSheetUserRepo はSheetUserRepoを生成する。
func NewSheetUserRepo(store RecordStore) *SheetUserRepo {
	return &SheetUserRepo{store: store}
}

// FindByEmail はメールアドレスで利用者を取得する。見つからない場合はnilを返す。
func (r *SheetUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(ctx, emailKey, email)
}

// FindByStudentID は学籍番号で利用者を取得する。見つからない場合はnilを返す。
func (r *SheetUserRepo) FindByStudentID(ctx context.Context, studentID string) (*model.User, error) {
	return r.find(ctx, studentIDKey, studentID)
}

func (r *SheetUserRepo) find(ctx context.Context, key []string, value string) (*model.User, error) {
	rec, err := r.store.Find(ctx, UsersSheet, key, value)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// Create は利用者を追加する。同じメールアドレスの行が既にあればmodel.ErrConflictを返す。
func (r *SheetUserRepo) Create(ctx context.Context, user *model.User) error {
	res, err := r.store.AppendIfAbsent(ctx, UsersSheet, emailKey, user.Email, map[string]string{
		sheets.FieldStudentID:     user.StudentID,
		sheets.FieldFirstName:     user.FirstName,
		sheets.FieldLastName:      user.LastName,
		sheets.FieldEmail:         user.Email,
		sheets.FieldPasswordHash:  user.PasswordHash,
		sheets.FieldEmailVerified: formatBool(user.EmailVerified),
	})
	if err != nil {
		return err
	}
	user.RowNumber = res.RowNumber
	return nil
}

// UpdateProfile は氏名を更新し、更新後の利用者を返す。
func (r *SheetUserRepo) UpdateProfile(ctx context.Context, studentID, firstName, lastName string) (*model.User, error) {
	_, err := r.store.Update(ctx, UsersSheet, studentIDKey, studentID, map[string]string{
		sheets.FieldFirstName: firstName,
		sheets.FieldLastName:  lastName,
	})
	if err != nil {
		return nil, err
	}

	user, err := r.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.ErrNotFound
	}
	return user, nil
}

// SheetGradeRepo はGradesシートを使用した成績リポジトリ。
type SheetGradeRepo struct {
	store RecordStore
}

// NewSheetGradeRepo はSheetGradeRepoを生成する。
func NewSheetGradeRepo(store RecordStore) *SheetGradeRepo {
	return &SheetGradeRepo{store: store}
}

// FindByStudentID は学籍番号の成績行を取得する。見つからない場合はnilを返す。
func (r *SheetGradeRepo) FindByStudentID(ctx context.Context, studentID string) (*model.Grade, error) {
	rec, err := r.store.Find(ctx, GradesSheet, gradeStudentIDKey, studentID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Grade{
		StudentID: studentID,
		RowNumber: rec.RowNumber,
		Fields:    rec.Fields,
	}, nil
}

func userFromRecord(rec *sheets.Record) *model.User {
	return &model.User{
		StudentID:     strings.TrimSpace(rec.Get(sheets.FieldStudentID)),
		FirstName:     rec.Get(sheets.FieldFirstName),
		LastName:      rec.Get(sheets.FieldLastName),
		Email:         strings.TrimSpace(rec.Get(sheets.FieldEmail)),
		PasswordHash:  rec.Get(sheets.FieldPasswordHash),
		EmailVerified: parseBool(rec.Get(sheets.FieldEmailVerified)),
		RowNumber:     rec.RowNumber,
	}
}

// parseBool はシートの真偽値表記（TRUE/true/1/yes）を解釈する。
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// compile-time interface check
var (
	_ UserRepository  = (*SheetUserRepo)(nil)
	_ GradeRepository = (*SheetGradeRepo)(nil)
)
