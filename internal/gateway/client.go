// Package gateway はNutriSportPro APIへの認証付きリクエストを組み立てる共通クライアントを提供する。
// 全リソースが同じ手順（URL構築、Bearerトークン付与、ペイロードのJSON化、
// 非成功ステータスのエラー化、レスポンスのJSONデコード）を共有する。
// リトライ、タイムアウト、重複排除は行わない。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/nutrisport/internal/metrics"
	"github.com/hitoshi/nutrisport/internal/model"
)

// DefaultBaseURL は設定で上書きされない場合のAPIベースアドレス。
const DefaultBaseURL = "https://localhost:7082/api"

// maxErrorBodySize はエラーレスポンスを読み捨てる際の上限。
const maxErrorBodySize = 64 << 10

// TokenSource は現在のセッションのBearerトークンを提供する。
// セッションがない場合は *model.AuthError を返す。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc は関数をTokenSourceとして扱うためのアダプタ。
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token はf(ctx)を呼ぶ。
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Operation はリソースに対する操作の種別。
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Verb はエラーメッセージに使う進行形の動詞を返す。
func (o Operation) Verb() string {
	switch o {
	case OpCreate:
		return "creating"
	case OpUpdate:
		return "updating"
	case OpDelete:
		return "deleting"
	default:
		return "fetching"
	}
}

// Client はAPIゲートウェイのクライアント。
// 状態を持たず、各呼び出しは独立している。並行に呼び出してよい。
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。collectorはnilでもよい。
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		metrics:    collector,
	}
}

// BaseURL はAPIのベースアドレスを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthHeaders はBearerトークンとJSONのContent-Typeを含むヘッダーを生成する。
// セッションまたはトークンがない場合はネットワークI/Oの前に *model.AuthError を返す。
func (c *Client) AuthHeaders(ctx context.Context) (http.Header, error) {
	if c.tokens == nil {
		return nil, &model.AuthError{Reason: model.AuthReasonNotAuthenticated}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &model.AuthError{Reason: model.AuthReasonNoToken}
	}

	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	return h, nil
}

// call は1回のAPI呼び出しの内容。
type call struct {
	resource string // メトリクス用のラベル
	noun     string // エラーメッセージ用の名詞
	op       Operation
	method   string
	path     string
	payload  any
	out      any
}

// do はリクエストを発行し、成功時はoutにJSONをデコードする。
func (c *Client) do(ctx context.Context, cl call) error {
	// 1. 認証ヘッダー（未認証ならここで失敗し、通信は発生しない）
	headers, err := c.AuthHeaders(ctx)
	if err != nil {
		return err
	}

	// 2. ペイロードのJSON化
	var body io.Reader
	if cl.payload != nil {
		b, err := json.Marshal(cl.payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", cl.noun, err)
		}
		body = bytes.NewReader(b)
	}

	// 3. HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", cl.path, err)
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	// 4. HTTPリクエスト実行
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordTransportFailure(cl.resource, string(cl.op))
		c.logger.Error("api request failed",
			slog.String("request_id", requestID),
			slog.String("method", cl.method),
			slog.String("endpoint", cl.path),
			slog.String("error", err.Error()),
		)
		return &model.ConnectError{Endpoint: cl.path, Err: err}
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	c.metrics.RecordRequest(cl.resource, string(cl.op), resp.StatusCode, duration)

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("method", cl.method),
		slog.String("endpoint", cl.path),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
	}

	// 5. HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Warn("api returned error status", attrs...)
		return &model.StatusError{
			Op:         cl.op.Verb(),
			Resource:   cl.noun,
			Method:     cl.method,
			Endpoint:   cl.path,
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
		}
	}
	c.logger.Debug("api request", attrs...)

	// 6. レスポンスのデコード（削除はボディを使わない）
	if cl.out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode %s response: %w", cl.noun, err)
	}
	return nil
}

// statusText はレスポンスのステータス行から理由句を取り出す。
// 理由句が無い場合は標準の文言を使う。
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
