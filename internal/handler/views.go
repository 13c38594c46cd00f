package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nutrisport/internal/middleware"
)

// loginView はログインフォームの表示内容。
type loginView struct {
	Email string
	From  string
	Error string
	CSRF  string
}

// dashboardView はダッシュボードの表示内容。
type dashboardView struct {
	Email     string
	UserID    string
	Roles     string
	ExpiresAt string
	Resources []string
	CSRF      string
}

var views = template.Must(template.New("").Parse(`
{{define "login"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>NutriSport - Login</title></head>
<body>
<h1>Login</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="csrf_token" value="{{.CSRF}}">
  <input type="hidden" name="from" value="{{.From}}">
  <label>Email <input type="email" name="email" value="{{.Email}}" autocomplete="username"></label>
  <label>Password <input type="password" name="password" autocomplete="current-password"></label>
  <button type="submit">Login</button>
</form>
</body>
</html>
{{end}}
{{define "dashboard"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>NutriSport - Dashboard</title></head>
<body>
<h1>Dashboard</h1>
<dl>
  <dt>Email</dt><dd>{{.Email}}</dd>
  <dt>User ID</dt><dd>{{.UserID}}</dd>
  <dt>Roles</dt><dd>{{.Roles}}</dd>
  <dt>Session expires</dt><dd>{{.ExpiresAt}}</dd>
</dl>
<h2>Resources</h2>
<ul>
{{range .Resources}}  <li><a href="/api/{{.}}">{{.}}</a></li>
{{end}}</ul>
<form method="post" action="/logout">
  <input type="hidden" name="csrf_token" value="{{.CSRF}}">
  <button type="submit">Logout</button>
</form>
</body>
</html>
{{end}}
`))

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, v loginView) {
	v.CSRF = middleware.CSRFTokenFromContext(r.Context())
	render(w, status, "login", v)
}

func (h *AuthHandler) renderDashboard(w http.ResponseWriter, r *http.Request, v dashboardView) {
	v.CSRF = middleware.CSRFTokenFromContext(r.Context())
	render(w, http.StatusOK, "dashboard", v)
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合に途中までのHTMLを返さないため。
func render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render view", slog.String("view", name), slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
