// Package handler はローカルコンソールのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/nutrisport/internal/middleware"
	"github.com/hitoshi/nutrisport/internal/model"
)

// フォーム検証メッセージ
const (
	msgEmailRequired    = "Email is required"
	msgPasswordRequired = "Password is required"
)

// SessionManager は認証ハンドラーが必要とするセッション操作。auth.Storeが満たす。
type SessionManager interface {
	Login(ctx context.Context, identifier, secret string) bool
	Logout(ctx context.Context)
	Session() (model.Session, bool)
	Err() string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	DefaultRedirect string // fromが無い場合のログイン後の遷移先
	LoginPath       string
}

// AuthHandler はログイン・ログアウトとセッション情報の表示を扱う。
type AuthHandler struct {
	sessions  SessionManager
	pass      *middleware.ConsolePass
	resources []string
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。resourcesはダッシュボードに並べるリソース名。
// passはログイン成功時に通行証を発行し、ログアウト時に無効化する。
func NewAuthHandler(sessions SessionManager, pass *middleware.ConsolePass, resources []string, config AuthHandlerConfig) *AuthHandler {
	if config.DefaultRedirect == "" {
		config.DefaultRedirect = "/dashboard"
	}
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	return &AuthHandler{
		sessions:  sessions,
		pass:      pass,
		resources: resources,
		config:    config,
	}
}

// loginRequest はJSONでのログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// sessionResponse はトークンを除いたセッション情報。
type sessionResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginPage はログインフォームを表示する。
// GET /login
// このブラウザでログイン済みの場合はfromへそのまま遷移する。
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	from := middleware.SafeRedirectPath(r.URL.Query().Get("from"), h.config.DefaultRedirect)
	if _, ok := h.sessions.Session(); ok && h.pass.Valid(r) {
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, loginView{From: from})
}

// Login は資格情報を検証してログインする。
// POST /login
// JSONの場合は結果をJSONで返し、フォームの場合は成功時にリダイレクト、失敗時にフォームを再表示する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := isJSON(r)

	var req loginRequest
	if asJSON {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("malformed login request"))
			return
		}
	} else {
		req = loginRequest{
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
			From:     r.PostFormValue("from"),
		}
	}
	req.Email = strings.TrimSpace(req.Email)
	from := middleware.SafeRedirectPath(req.From, h.config.DefaultRedirect)

	// 1. 入力チェック（APIには送信しない）
	if msg := validateLogin(req); msg != "" {
		if asJSON {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError(msg))
			return
		}
		h.renderLogin(w, r, http.StatusBadRequest, loginView{Email: req.Email, From: from, Error: msg})
		return
	}

	// 2. 認証
	if !h.sessions.Login(r.Context(), req.Email, req.Password) {
		msg := h.sessions.Err()
		slog.Warn("console login failed", slog.String("reason", msg))
		if asJSON {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewLoginFailedError(msg))
			return
		}
		h.renderLogin(w, r, http.StatusUnauthorized, loginView{Email: req.Email, From: from, Error: msg})
		return
	}

	// 3. このブラウザに通行証を発行
	if err := h.pass.Issue(w); err != nil {
		slog.Error("failed to issue console pass", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// 4. 元のページへ
	if asJSON {
		session, _ := h.sessions.Session()
		writeJSON(w, http.StatusOK, map[string]any{
			"redirect": from,
			"user":     toSessionResponse(session),
		})
		return
	}
	http.Redirect(w, r, from, http.StatusSeeOther)
}

// Logout はセッションを破棄し、発行済みの通行証をすべて無効にする。
// 通行証を持たない呼び出し元からはセッションを破棄しない。応答は同じ。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.pass.Valid(r) {
		h.sessions.Logout(r.Context())
		h.pass.RevokeAll(w)
	}

	if isJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, h.config.LoginPath, http.StatusSeeOther)
}

// Me は現在のセッション情報を返す。トークンは含めない。
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Session()
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError(model.AuthReasonNotAuthenticated))
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Dashboard はログイン中のユーザーの概要を表示する。
// GET /dashboard
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Session()
	if !ok {
		http.Redirect(w, r, h.config.LoginPath, http.StatusSeeOther)
		return
	}
	h.renderDashboard(w, r, dashboardView{
		Email:     session.Email,
		UserID:    session.UserID,
		Roles:     strings.Join(session.Roles, ", "),
		ExpiresAt: session.ExpiresAt.Local().Format(time.RFC1123),
		Resources: h.resources,
	})
}

func validateLogin(req loginRequest) string {
	if req.Email == "" {
		return msgEmailRequired
	}
	if req.Password == "" {
		return msgPasswordRequired
	}
	return ""
}

func toSessionResponse(s model.Session) sessionResponse {
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return sessionResponse{
		UserID:    s.UserID,
		Email:     s.Email,
		Roles:     roles,
		ExpiresAt: s.ExpiresAt,
	}
}
