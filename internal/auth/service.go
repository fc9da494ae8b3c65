// Package auth はアカウント登録・パスワードログイン・セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/repository"
	"github.com/hitoshi/gradesheet/internal/session"
)

// SessionAuthority はセッショントークンの発行と失効を行う。
type SessionAuthority interface {
	Issue(subject string, claims session.Claims, ttl time.Duration) (string, *session.Claims, error)
	Revoke(ctx context.Context, token string) error
}

// TextSanitizer は利用者が入力した表示用テキストを無害化する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// RegisterInput はアカウント登録の入力。
// 学籍番号はトークンのSubjectになるため利用者には選ばせず、Registerが生成する。
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token  string
	Claims *session.Claims
	User   *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	authority SessionAuthority
	hasher    *PasswordHasher
	sanitizer TextSanitizer
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	authority SessionAuthority,
	hasher *PasswordHasher,
	sanitizer TextSanitizer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:  userRepo,
		authority: authority,
		hasher:    hasher,
		sanitizer: sanitizer,
		config:    config,
	}
}

// Register はアカウントを作成する。
// メールアドレスが既に登録されている場合はアカウント競合エラーを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, ErrPasswordTooShort) {
		return nil, model.NewInvalidInputError(fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		StudentID:    uuid.NewString(),
		FirstName:    s.sanitizer.SanitizeText(in.FirstName),
		LastName:     s.sanitizer.SanitizeText(in.LastName),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrConflict) {
			slog.Info("registration rejected: account exists", slog.String("email", email))
			return nil, model.NewAccountConflictError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("student_id", user.StudentID),
		slog.Int("row", user.RowNumber),
	)
	return user, nil
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// アカウント未登録とパスワード誤りは同じエラーになる。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.hasher.DummyVerify(password)
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		slog.Info("login failed", slog.String("student_id", user.StudentID))
		return nil, model.NewInvalidCredentialsError()
	}

	ttl := time.Duration(s.config.SessionMaxAge) * time.Second
	token, claims, err := s.authority.Issue(user.StudentID, session.Claims{
		Email:       user.Email,
		DisplayName: user.DisplayName(),
	}, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	slog.Info("user logged in", slog.String("student_id", user.StudentID))
	return &LoginResult{Token: token, Claims: claims, User: user}, nil
}

// Logout はセッショントークンを失効させる。
// 既に無効なトークンは失効済みと同じ扱いとしてエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.authority.Revoke(ctx, token)
	if errors.Is(err, session.ErrInvalidToken) {
		slog.Debug("logout with invalid token ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// CurrentUser はセッションのClaimsから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, claims *session.Claims) (*model.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, model.NewUnauthorizedError(model.ErrCodeUnauthorized)
	}

	user, err := s.userRepo.FindByStudentID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// normalizeEmail はメールアドレスの形式を検証し、前後の空白を除去して返す。
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", model.NewInvalidInputError("メールアドレスは必須です")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}
	return email, nil
}
