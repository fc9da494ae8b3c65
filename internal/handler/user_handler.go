package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/gradesheet/internal/middleware"
	"github.com/hitoshi/gradesheet/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// UpdateProfile は氏名を更新する。nilの項目は変更しない。
	UpdateProfile(ctx context.Context, studentID string, req updateProfileRequest) (*userResponse, error)
	// Grades は利用者の成績行を返す。
	Grades(ctx context.Context, studentID string) (*gradeResponse, error)
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// gradeResponse は成績行のAPIレスポンス。列はシートのヘッダー名をそのままキーにする。
type gradeResponse struct {
	StudentID string            `json:"student_id"`
	Fields    map[string]string `json:"fields"`
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// UpdateProfile はプロフィールを更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudentID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), studentID, req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// MyGrades はログインユーザーの成績を返す。
// GET /api/grades/me
func (h *UserHandler) MyGrades(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudentID(w, r)
	if !ok {
		return
	}

	grade, err := h.service.Grades(r.Context(), studentID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, grade)
}

func requireStudentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	studentID, err := middleware.StudentIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(model.ErrCodeUnauthorized))
		return "", false
	}
	return studentID, true
}
