// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/nutrisport/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionSource は現在のセッションを提供する。auth.Storeが満たす。
type SessionSource interface {
	Session() (model.Session, bool)
}

// PassVerifier はリクエストがコンソールの通行証を持つかを判定する。ConsolePassが満たす。
type PassVerifier interface {
	Valid(r *http.Request) bool
}

// GuardConfig はルートガードの設定。
type GuardConfig struct {
	LoginPath string // 未認証の画面遷移のリダイレクト先
	APIPrefix string // このプレフィックス配下は401のJSONで応答する
}

// NewGuard は認証済みセッションがない場合、または呼び出し元が通行証Cookieを
// 持たない場合にアクセスを拒否するミドルウェアを返す。
// 画面遷移はログインページへ303でリダイレクトし、元のパスとクエリをfromに載せる。
// API呼び出しには統一エラーフォーマットの401を返す。
// 認証済みならユーザーIDをリクエストコンテキストに注入する。
func NewGuard(sessions SessionSource, pass PassVerifier, cfg GuardConfig) func(next http.Handler) http.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessions.Session()
			if !ok || !pass.Valid(r) {
				if strings.HasPrefix(r.URL.Path, cfg.APIPrefix) {
					WriteErrorResponse(w, http.StatusUnauthorized,
						model.NewNotAuthenticatedError(model.AuthReasonNotAuthenticated))
					return
				}
				target := cfg.LoginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}

			userID := session.UserID
			if userID == "" {
				userID = session.Email
			}
			ctx := ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// SafeRedirectPath はログイン後のリダイレクト先として安全なパスを返す。
// 同一オリジンの絶対パス以外（スキーム付き、//始まり、空）はfallbackにする。
func SafeRedirectPath(from, fallback string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return from
}
