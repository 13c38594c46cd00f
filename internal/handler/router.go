package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/nutrisport/internal/middleware"
)

// Sessions はルーターが必要とするセッション操作。auth.Storeが満たす。
type Sessions interface {
	SessionManager
	middleware.SessionSource
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 認証
	Sessions    Sessions
	AuthConfig  AuthHandlerConfig
	RateLimiter *middleware.RateLimiter
	CSRF        middleware.CSRFConfig

	// AllowedHosts はDefaultAllowedHostsに加えて受け付けるHostヘッダーの名前。
	AllowedHosts []string

	// リソース
	Panels PanelProvider

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter はコンソールの全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → HostCheck → SecurityHeaders → CSRF → Guard（保護ルートのみ）
//
// /login、/logout、/health、/metrics はガードの外に配置する。
// ガードはセッションに加えて、POST /loginで発行した通行証Cookieを要求する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewHostCheckMiddleware(append(slices.Clone(middleware.DefaultAllowedHosts), deps.AllowedHosts...)))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	pass := middleware.NewConsolePass(deps.CSRF.CookieSecure)
	authHandler := NewAuthHandler(deps.Sessions, pass, deps.Panels.Names(), deps.AuthConfig)
	resourceHandler := NewResourceHandler(deps.Panels)

	// --- 認証不要のルート ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, authHandler.config.DefaultRedirect, http.StatusSeeOther)
		})

		var loginMiddlewares []func(http.Handler) http.Handler
		if deps.RateLimiter != nil {
			loginMiddlewares = append(loginMiddlewares, deps.RateLimiter.LoginMiddleware())
		}
		login := r.With(loginMiddlewares...)
		login.Get(authHandler.config.LoginPath, authHandler.LoginPage)
		login.Post(authHandler.config.LoginPath, authHandler.Login)

		r.Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuard(deps.Sessions, pass, middleware.GuardConfig{
				LoginPath: authHandler.config.LoginPath,
				APIPrefix: "/api/",
			}))

			r.Get("/me", authHandler.Me)
			r.Get("/dashboard", authHandler.Dashboard)

			r.Route("/api/{resource}", func(r chi.Router) {
				r.Get("/", resourceHandler.List)
				r.Post("/", resourceHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", resourceHandler.Get)
					r.Put("/", resourceHandler.Update)
					r.Delete("/", resourceHandler.Delete)
				})
			})
		})
	})

	return r
}
