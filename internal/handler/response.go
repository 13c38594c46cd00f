package handler

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/hitoshi/nutrisport/internal/middleware"
	"github.com/hitoshi/nutrisport/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// isJSON はリクエストボディがJSONの場合、またはJSONの応答を求めている場合にtrueを返す。
func isJSON(r *http.Request) bool {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "application/json" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Accept"))
	return err == nil && mediaType == "application/json"
}
