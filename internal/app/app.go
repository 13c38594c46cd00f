// Package app はCLIとローカルコンソールの起動・依存関係の組み立てを提供する。
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/nutrisport/internal/auth"
	"github.com/hitoshi/nutrisport/internal/config"
	"github.com/hitoshi/nutrisport/internal/dashboard"
	"github.com/hitoshi/nutrisport/internal/gateway"
	"github.com/hitoshi/nutrisport/internal/handler"
	"github.com/hitoshi/nutrisport/internal/logger"
	"github.com/hitoshi/nutrisport/internal/metrics"
	"github.com/hitoshi/nutrisport/internal/middleware"
	"github.com/hitoshi/nutrisport/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// logWriterがnilの場合はos.Stderrに出力する。
func Init(logWriter io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定が読めなくてもエラーはログに残す
		logger.SetupDefault(logWriter, logger.ParseLevel(config.DefaultLogLevel))
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(logWriter, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。コマンドの出力はwに書き込む。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand()
	root.SetOut(w)
	root.SetErr(w)
	root.SetArgs(args)
	return root.Execute()
}

// components はコマンドが利用する依存関係一式。
type components struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	sessions *auth.Store
	board    *dashboard.Board
	health   handler.HealthChecker
	closers  []func() error
}

// build は設定からセッションストア・ゲートウェイ・ダッシュボードを組み立てる。
// 永続化されたセッションはこの時点で復元する。
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}

	// 1. セッションの保存先
	st, err := c.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(c.registry)

	// 3. セッションストアとゲートウェイ
	httpClient := newHTTPClient(cfg.TLSInsecureSkipVerify)
	c.sessions = auth.NewStore(st, httpClient, c.logger, collector, auth.StoreConfig{
		BaseURL:    cfg.APIURL,
		SessionKey: cfg.SessionKey,
	})
	client := gateway.NewClient(cfg.APIURL, httpClient, c.sessions, c.logger, collector)
	c.board = dashboard.NewBoard(gateway.NewCatalog(client), c.logger)

	c.sessions.Restore(ctx)
	return c, nil
}

// openStorage はSESSION_BACKENDに対応するStoreを生成する。
func (c *components) openStorage(ctx context.Context) (storage.Store, error) {
	switch c.cfg.SessionBackend {
	case config.BackendRedis:
		client, err := storage.OpenRedis(ctx, c.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		st := storage.NewRedisStore(client, c.cfg.RedisPrefix)
		c.health = st
		slog.Info("session backend ready", slog.String("backend", config.BackendRedis))
		return st, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		st, err := storage.NewFileStore(c.cfg.SessionDir, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session directory: %w", err)
		}
		return st, nil
	}
}

// Close は保持している接続を閉じる。
func (c *components) Close() {
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// newHTTPClient はAPIサーバー向けのHTTPクライアントを生成する。
// タイムアウトは設けず、呼び出し側のcontextで打ち切る。
// insecureはローカル開発用の自己署名証明書を受け入れる場合にだけ指定する。
func newHTTPClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // TLS_INSECURE_SKIP_VERIFY
	}
	return &http.Client{Transport: transport}
}

// loginRateLimiterConfig はreq/min単位の設定値をreq/secのリミッター設定に変換する。
func loginRateLimiterConfig(perMinute int) middleware.RateLimiterConfig {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.LoginRate = rate.Limit(float64(perMinute) / 60.0)
	cfg.LoginBurst = perMinute
	return cfg
}

// runServe はローカルコンソールを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, c *components) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rateLimiter := middleware.NewRateLimiter(loginRateLimiterConfig(c.cfg.LoginRateLimit))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         c.logger,
		Sessions:       c.sessions,
		RateLimiter:    rateLimiter,
		AllowedHosts:   c.cfg.ConsoleHosts(),
		Panels:         c.board,
		HealthChecker:  c.health,
		MetricsHandler: metrics.Handler(c.registry),
	})

	server := &http.Server{
		Addr:         c.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 別プロセス（CLIのlogin/logout）によるセッション変更を反映する
	go func() {
		if err := c.sessions.Watch(ctx); err != nil {
			slog.Warn("session watch stopped", slog.String("error", err.Error()))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("console server starting",
			slog.String("addr", server.Addr),
			slog.String("api_url", c.cfg.APIURL),
			slog.String("session_backend", c.cfg.SessionBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down console server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("console server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はフル初期化を行わずにSERVER_PORTを解決する。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return config.DefaultServerPort
}
