package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/gradesheet/internal/middleware"
)

// SheetLister はスプレッドシートのタブ一覧を返す。
type SheetLister interface {
	ListSheetNames(ctx context.Context) ([]string, error)
}

// sheetListResponse はタブ一覧のAPIレスポンス。
type sheetListResponse struct {
	Sheets []string `json:"sheets"`
}

// SheetHandler はスプレッドシート情報のHTTPハンドラー。
type SheetHandler struct {
	lister SheetLister
}

// NewSheetHandler はSheetHandlerを生成する。
func NewSheetHandler(lister SheetLister) *SheetHandler {
	return &SheetHandler{lister: lister}
}

// ListSheets はタブ名の一覧を返す。
// GET /api/sheets
func (h *SheetHandler) ListSheets(w http.ResponseWriter, r *http.Request) {
	names, err := h.lister.ListSheetNames(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, sheetListResponse{Sheets: names})
}

// Health はプロセスの稼働確認に応答する。外部ストアへの到達性は確認しない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
