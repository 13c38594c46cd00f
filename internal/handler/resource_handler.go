package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nutrisport/internal/dashboard"
	"github.com/hitoshi/nutrisport/internal/model"
)

// maxBodySize はリクエストボディの上限。
const maxBodySize = 1 << 20

// PanelProvider はリソース名からPanelを引く。dashboard.Boardが満たす。
type PanelProvider interface {
	Panel(name string) (dashboard.Panel, error)
	Names() []string
}

// ResourceHandler は全リソース種別のCRUDをAPIゲートウェイへ中継する。
type ResourceHandler struct {
	panels PanelProvider
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(panels PanelProvider) *ResourceHandler {
	return &ResourceHandler{panels: panels}
}

// writeResponse は書き込み操作の結果と通知。
type writeResponse struct {
	Data   any              `json:"data,omitempty"`
	Notice dashboard.Notice `json:"notice"`
}

// List は一覧を取得する。
// GET /api/{resource}
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panel(w, r)
	if !ok {
		return
	}
	items, err := panel.List(r.Context())
	if err != nil {
		handleResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Get は1件取得する。
// GET /api/{resource}/{id}
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panel(w, r)
	if !ok {
		return
	}
	item, err := panel.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Create は新規作成する。
// POST /api/{resource}
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panel(w, r)
	if !ok {
		return
	}
	payload, ok := readBody(w, r)
	if !ok {
		return
	}
	created, notice, err := panel.Create(r.Context(), payload)
	if err != nil {
		handleResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeResponse{Data: created, Notice: notice})
}

// Update は既存レコードを更新する。
// PUT /api/{resource}/{id}
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panel(w, r)
	if !ok {
		return
	}
	payload, ok := readBody(w, r)
	if !ok {
		return
	}
	updated, notice, err := panel.Update(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		handleResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Data: updated, Notice: notice})
}

// Delete はレコードを削除する。
// DELETE /api/{resource}/{id}
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panel(w, r)
	if !ok {
		return
	}
	notice, err := panel.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleResourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Notice: notice})
}

func (h *ResourceHandler) panel(w http.ResponseWriter, r *http.Request) (dashboard.Panel, bool) {
	name := chi.URLParam(r, "resource")
	panel, err := h.panels.Panel(name)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUnknownResourceError(name))
		return nil, false
	}
	return panel, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidPayloadError("request body too large"))
			return nil, false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("failed to read request body"))
		return nil, false
	}
	return payload, true
}

// handleResourceError はゲートウェイ・入力検証のエラーをHTTPステータスと統一エラーフォーマットに変換する。
func handleResourceError(w http.ResponseWriter, err error) {
	var (
		authErr    *model.AuthError
		statusErr  *model.StatusError
		connectErr *model.ConnectError
	)

	switch {
	case errors.As(err, &authErr):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError(authErr.Reason))
	case errors.Is(err, dashboard.ErrInvalidID):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(reason(err, dashboard.ErrInvalidID)))
	case errors.Is(err, dashboard.ErrInvalidPayload):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError(reason(err, dashboard.ErrInvalidPayload)))
	case errors.As(err, &statusErr):
		writeAPIErrorResponse(w, mapUpstreamStatus(statusErr.StatusCode), model.NewUpstreamStatusError(statusErr))
	case errors.As(err, &connectErr):
		slog.Error("api server unreachable", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUpstreamUnreachableError())
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "An internal error occurred.",
			Category: "system",
			Action:   "Please try again later.",
		})
	}
}

// reason は検証エラーのメッセージから種別の接頭辞を取り除く。
func reason(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

// mapUpstreamStatus はAPIサーバーのステータスをコンソールのステータスに変換する。
// クライアント起因の4xxはそのまま返し、サーバー側の失敗は502にまとめる。
// 401はAPIサーバーがトークンを拒否したことを示すため、そのまま返す。
func mapUpstreamStatus(code int) int {
	if code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}
