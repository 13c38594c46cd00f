// Package auth はクライアント側のセッション管理（復元・ログイン・ログアウト）を提供する。
// Storeは明示的に生成して依存先へ渡す。グローバル状態は持たない。
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/nutrisport/internal/metrics"
	"github.com/hitoshi/nutrisport/internal/model"
	"github.com/hitoshi/nutrisport/internal/storage"
)

// DefaultSessionKey はセッションを永続化するキー。
const DefaultSessionKey = "user"

// ユーザーに表示するログイン失敗メッセージ
const (
	MsgLoginFailed   = "Login failed"
	MsgConnectFailed = "Failed to connect to authentication server"
)

// maxLoginResponseSize はログインレスポンスの読み取り上限。
const maxLoginResponseSize = 1 << 20

// StoreConfig はStoreの設定。
type StoreConfig struct {
	BaseURL    string // APIベースアドレス（/auth/login を付与する）
	SessionKey string
}

// Store は認証済みセッションを保持する。
// セッションを変更するのはStoreだけで、消費側はコピーを受け取る。
type Store struct {
	storage    storage.Store
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	sanitizer  *bluemonday.Policy
	baseURL    string
	key        string
	now        func() time.Time

	// persistMu はメモリ上のセッションと永続データの更新を直列化する。
	persistMu sync.Mutex

	mu      sync.RWMutex
	session *model.Session
	errMsg  string
	loading bool
}

// NewStore はStoreを生成する。生成直後はセッションを持たないため、起動時にRestoreを呼ぶ。
func NewStore(st storage.Store, httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, cfg StoreConfig) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	key := cfg.SessionKey
	if key == "" {
		key = DefaultSessionKey
	}
	return &Store{
		storage:    st,
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		sanitizer:  bluemonday.StrictPolicy(),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        key,
		now:        time.Now,
	}
}

// Restore は永続化されたセッションを読み込む。
// 解析エラー、トークン欠落、期限切れの場合はセッションなしとし、永続データを削除する。
// 読み込み結果で常にメモリ上の状態を置き換える。
func (s *Store) Restore(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.setSession(nil)
		return
	}
	if err != nil {
		// 読めない状態のデータは消さずに残す
		s.logger.Warn("failed to read persisted session", slog.String("error", err.Error()))
		s.setSession(nil)
		return
	}

	session, err := model.ParseSession(data)
	if err != nil {
		s.logger.Info("discarding persisted session", slog.String("reason", err.Error()))
		s.discardLocked(ctx)
		return
	}
	if !session.Valid(s.now()) {
		s.logger.Info("discarding persisted session",
			slog.String("reason", "expired"),
			slog.Time("expires_at", session.ExpiresAt),
		)
		s.discardLocked(ctx)
		return
	}

	s.setSession(session)
}

// Login は認証エンドポイントへ資格情報を送信し、成功時にセッションを保存する。
// 失敗はすべてErrで参照できるエラー状態として記録され、戻り値はtrue/falseのみ。
func (s *Store) Login(ctx context.Context, identifier, secret string) bool {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	resp, err := s.requestLogin(ctx, identifier, secret)
	if err != nil {
		s.logger.Error("login request failed", slog.String("error", err.Error()))
		s.metrics.RecordLogin(metrics.LoginError)
		s.setError(MsgConnectFailed)
		return false
	}

	if !resp.IsAuthenticated {
		msg := s.plainText(resp.Message)
		if msg == "" {
			msg = MsgLoginFailed
		}
		s.metrics.RecordLogin(metrics.LoginRejected)
		s.setError(msg)
		return false
	}

	session, err := sessionFromResponse(resp)
	if err != nil {
		s.logger.Warn("login response rejected", slog.String("reason", err.Error()))
		s.metrics.RecordLogin(metrics.LoginRejected)
		s.setError(MsgLoginFailed)
		return false
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if data, err := model.MarshalSession(*session); err != nil {
		s.logger.Error("failed to encode session", slog.String("error", err.Error()))
	} else if err := s.storage.Set(ctx, s.key, data); err != nil {
		// 永続化に失敗してもこのプロセス内ではログイン状態を維持する
		s.logger.Error("failed to persist session", slog.String("error", err.Error()))
	}

	s.setSession(session)
	s.metrics.RecordLogin(metrics.LoginSucceeded)
	s.logger.Info("user logged in", slog.String("user_id", session.UserID))
	return true
}

// requestLogin は POST /auth/login を発行し、レスポンスを正規化する。
// ステータスコードに関わらずボディのisAuthenticatedで成否を判定する。
func (s *Store) requestLogin(ctx context.Context, identifier, secret string) (*model.LoginResponse, error) {
	body, err := json.Marshal(model.LoginRequest{Email: identifier, Password: secret})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}

	parsed, err := model.ParseLoginResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("unexpected login response (status %d): %w", resp.StatusCode, err)
	}
	return parsed, nil
}

// Logout はメモリ上と永続化されたセッションを無条件に破棄する。冪等。
func (s *Store) Logout(ctx context.Context) {
	s.persistMu.Lock()
	s.discardLocked(ctx)
	s.persistMu.Unlock()
	s.logger.Info("user logged out")
}

// IsAuthenticated はセッションを保持している場合にtrueを返す。
// アクセス制御はこの値だけで判断する。
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Session は現在のセッションのコピーを返す。
func (s *Store) Session() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return model.Session{}, false
	}
	return s.session.Clone(), true
}

// Err は直近のログイン失敗メッセージを返す。失敗していなければ空文字列。
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Loading はログイン処理中の場合にtrueを返す。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Token はゲートウェイ用のBearerトークンを返す。
// 期限切れを検出した場合はセッションを破棄する。
// 検出までの間に別のセッションへ置き換わっていた場合は、そちらで判定し直す。
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session == nil {
		return "", &model.AuthError{Reason: model.AuthReasonNotAuthenticated}
	}
	if session.Token == "" {
		return "", &model.AuthError{Reason: model.AuthReasonNoToken}
	}
	if !session.ExpiresAt.After(s.now()) {
		if !s.discardIf(ctx, session) {
			return s.Token(ctx)
		}
		s.logger.Info("session expired", slog.String("user_id", session.UserID))
		return "", &model.AuthError{Reason: model.AuthReasonExpired}
	}
	return session.Token, nil
}

// Watch は永続データの外部変更を監視し、変更のたびにRestoreする。
// ストアが監視に対応していない場合は何もせずnilを返す。ctx終了までブロックする。
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.storage.(storage.Watcher)
	if !ok {
		return nil
	}
	ch, err := w.Watch(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to watch session storage: %w", err)
	}
	for range ch {
		s.Restore(ctx)
	}
	return nil
}

func (s *Store) setSession(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

// discardLocked はセッションを破棄し、永続データを削除する。persistMuを保持して呼ぶ。
func (s *Store) discardLocked(ctx context.Context) {
	s.setSession(nil)
	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.logger.Warn("failed to remove persisted session", slog.String("error", err.Error()))
	}
}

// discardIf は現在のセッションがsessionのままの場合に限り破棄する。
// 破棄した場合にtrueを返す。
func (s *Store) discardIf(ctx context.Context, session *model.Session) bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	current := s.session
	s.mu.RUnlock()
	if current != session {
		return false
	}
	s.discardLocked(ctx)
	return true
}

// plainText はサーバー由来のメッセージからHTMLを取り除く。
func (s *Store) plainText(msg string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(msg)))
}

// sessionFromResponse は認証成功レスポンスからセッションを構築する。
// expiresAtが無い場合はトークンのexpクレームで補う。
func sessionFromResponse(resp *model.LoginResponse) (*model.Session, error) {
	if resp.Token == "" {
		return nil, errors.New("response has no token")
	}
	expiresAt := resp.ExpiresAt
	if expiresAt.IsZero() {
		exp, ok := expiryFromToken(resp.Token)
		if !ok {
			return nil, errors.New("response has no usable expiry")
		}
		expiresAt = exp
	}
	return &model.Session{
		UserID:    resp.UserID,
		Email:     resp.Email,
		Roles:     resp.Roles,
		Token:     resp.Token,
		ExpiresAt: expiresAt,
	}, nil
}
