package handler

import (
	"context"
	"time"

	"github.com/hitoshi/gradesheet/internal/auth"
	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/session"
	"github.com/hitoshi/gradesheet/internal/user"
)

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
type AuthServiceAdapter struct {
	svc *auth.Service
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(svc *auth.Service) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc}
}

// Register はアカウントを作成しhandlerレスポンス型で返す。
func (a *AuthServiceAdapter) Register(ctx context.Context, req registerRequest) (*userResponse, error) {
	u, err := a.svc.Register(ctx, auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(u)
	return &resp, nil
}

// Login は認証してトークンと利用者情報を返す。
func (a *AuthServiceAdapter) Login(ctx context.Context, email, password string) (*loginResult, error) {
	res, err := a.svc.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &loginResult{
		Token:     res.Token,
		ExpiresAt: time.Unix(res.Claims.ExpiresAt, 0),
		User:      toUserResponse(res.User),
	}, nil
}

// Logout はトークンを失効させる。
func (a *AuthServiceAdapter) Logout(ctx context.Context, token string) error {
	return a.svc.Logout(ctx, token)
}

// CurrentUser はClaimsの利用者をhandlerレスポンス型で返す。
func (a *AuthServiceAdapter) CurrentUser(ctx context.Context, claims *session.Claims) (*userResponse, error) {
	u, err := a.svc.CurrentUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(u)
	return &resp, nil
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// UpdateProfile はプロフィールを更新しhandlerレスポンス型で返す。
func (a *UserServiceAdapter) UpdateProfile(ctx context.Context, studentID string, req updateProfileRequest) (*userResponse, error) {
	u, err := a.svc.UpdateProfile(ctx, studentID, user.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(u)
	return &resp, nil
}

// Grades は成績行をhandlerレスポンス型で返す。
func (a *UserServiceAdapter) Grades(ctx context.Context, studentID string) (*gradeResponse, error) {
	g, err := a.svc.Grades(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &gradeResponse{StudentID: g.StudentID, Fields: g.Fields}, nil
}

// toUserResponse はドメインのUserをhandlerのレスポンス型に変換する。
func toUserResponse(u *model.User) userResponse {
	return userResponse{
		StudentID:     u.StudentID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		DisplayName:   u.DisplayName(),
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)
