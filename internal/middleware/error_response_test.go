package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/nutrisport/internal/model"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v\nraw: %s", err, w.Body.String())
	}
	return body
}

// TestWriteErrorResponse_ConsoleErrors はコンソールAPIが返すエラーごとの応答を検証する。
func TestWriteErrorResponse_ConsoleErrors(t *testing.T) {
	deleteFailed := &model.StatusError{
		Op:         "deleting",
		Resource:   "exercise",
		StatusCode: http.StatusInternalServerError,
		StatusText: "Internal Server Error",
		Method:     http.MethodDelete,
		Endpoint:   "/api/exercise/7",
	}

	tests := []struct {
		name     string
		status   int
		apiErr   *model.APIError
		code     string
		category string
		message  string
	}{
		{
			name:     "guard without session",
			status:   http.StatusUnauthorized,
			apiErr:   model.NewNotAuthenticatedError(model.AuthReasonNotAuthenticated),
			code:     model.ErrCodeNotAuthenticated,
			category: "auth",
		},
		{
			name:     "unknown resource segment",
			status:   http.StatusNotFound,
			apiErr:   model.NewUnknownResourceError("workouts"),
			code:     model.ErrCodeUnknownResource,
			category: "validation",
			message:  "Unknown resource: workouts",
		},
		{
			name:     "non numeric id",
			status:   http.StatusBadRequest,
			apiErr:   model.NewInvalidIDError("abc"),
			code:     model.ErrCodeInvalidID,
			category: "validation",
			message:  "Invalid id: abc",
		},
		{
			name:     "api server 500 on delete",
			status:   http.StatusBadGateway,
			apiErr:   model.NewUpstreamStatusError(deleteFailed),
			code:     model.ErrCodeUpstreamStatus,
			category: "upstream",
			message:  deleteFailed.Error(),
		},
		{
			name:     "api server unreachable",
			status:   http.StatusBadGateway,
			apiErr:   model.NewUpstreamUnreachableError(),
			code:     model.ErrCodeUpstreamUnreachable,
			category: "upstream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.apiErr)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeBody(t, w)
			if body.Code != tt.code || body.Category != tt.category {
				t.Errorf("code/category = %s/%s, want %s/%s", body.Code, body.Category, tt.code, tt.category)
			}
			if tt.message != "" && body.Message != tt.message {
				t.Errorf("message = %q, want %q", body.Message, tt.message)
			}
			if body.Action == "" {
				t.Error("action should tell the user what to do")
			}
		})
	}
}

func TestWriteErrorResponse_UpstreamMessageNamesOperation(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamStatusError(&model.StatusError{
		Op: "fetching", Resource: "statistics", StatusText: "Service Unavailable",
		Method: http.MethodGet, Endpoint: "/api/statistic/getAll",
	}))

	want := "error fetching statistics: Service Unavailable (GET /api/statistic/getAll)"
	if got := decodeBody(t, w).Message; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestWriteInternalServerError_HidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "An internal error occurred." {
		t.Errorf("message = %q", body.Message)
	}
}
