package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// healthTimeout は依存先の疎通確認の待ち時間の上限。
const healthTimeout = 2 * time.Second

// Health はコンソールの稼働状態を返す。
// GET /health
// checkerがnilの場合は常にok。セッションの保存先に到達できない場合は503を返す。
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
