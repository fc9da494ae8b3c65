// Package user は利用者のプロフィールと成績参照のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/repository"
)

// TextSanitizer は氏名などの入力テキストを無害化する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// ProfileInput はプロフィール更新の入力。
// nilのフィールドは変更しない。
type ProfileInput struct {
	FirstName *string
	LastName  *string
}

// Service は利用者のプロフィール管理と成績参照のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	gradeRepo repository.GradeRepository
	sanitizer TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	gradeRepo repository.GradeRepository,
	sanitizer TextSanitizer,
) *Service {
	return &Service{
		userRepo:  userRepo,
		gradeRepo: gradeRepo,
		sanitizer: sanitizer,
	}
}

// UpdateProfile は氏名を更新する。指定されなかった項目と他の列はそのまま残る。
func (s *Service) UpdateProfile(ctx context.Context, studentID string, in ProfileInput) (*model.User, error) {
	if in.FirstName == nil && in.LastName == nil {
		return nil, model.NewInvalidInputError("更新する項目がありません")
	}

	current, err := s.userRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewUserNotFoundError()
	}

	first, last := current.FirstName, current.LastName
	if in.FirstName != nil {
		first = s.sanitizer.SanitizeText(*in.FirstName)
	}
	if in.LastName != nil {
		last = s.sanitizer.SanitizeText(*in.LastName)
	}
	if first == "" && last == "" {
		return nil, model.NewInvalidInputError("氏名を入力してください")
	}

	user, err := s.userRepo.UpdateProfile(ctx, studentID, first, last)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("プロフィールを更新しました",
		slog.String("student_id", studentID),
		slog.Int("row", user.RowNumber),
	)
	return user, nil
}

// Grades は利用者の成績行を返す。
func (s *Service) Grades(ctx context.Context, studentID string) (*model.Grade, error) {
	grade, err := s.gradeRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("成績の取得に失敗しました: %w", err)
	}
	if grade == nil {
		return nil, model.NewRecordNotFoundError(repository.GradesSheet)
	}
	return grade, nil
}
