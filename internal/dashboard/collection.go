// Package dashboard はリソース種別ごとの一覧キャッシュと、書き込み結果の通知を提供する。
// 一覧は常にサーバーから取得し直した内容で置き換え、楽観的更新は行わない。
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/nutrisport/internal/gateway"
	"github.com/hitoshi/nutrisport/internal/model"
)

// Backend はCollectionが利用するリソース操作。*gateway.Resource が満たす。
type Backend[T any, F any, K gateway.ID] interface {
	Spec() gateway.Spec
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id K) (*T, error)
	Create(ctx context.Context, form F) (*T, error)
	Update(ctx context.Context, id K, form F) (*T, error)
	Delete(ctx context.Context, id K) error
}

// NoticeLevel は通知の種別。
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice は書き込み操作の結果をユーザーに伝える短いメッセージ。
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// Collection は1種類のリソースについて最後に取得した一覧を保持する。
type Collection[T any, F any, K gateway.ID] struct {
	backend Backend[T, F, K]
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	items     []T
	loaded    bool
	stale     bool
	fetchedAt time.Time
}

// NewCollection はCollectionを生成する。一覧は最初のRefreshまで空。
func NewCollection[T any, F any, K gateway.ID](backend Backend[T, F, K], logger *slog.Logger) *Collection[T, F, K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T, F, K]{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Spec はリソースの定義を返す。
func (c *Collection[T, F, K]) Spec() gateway.Spec {
	return c.backend.Spec()
}

// Refresh はサーバーから一覧を取得し、保持している一覧を丸ごと置き換える。
// 取得に失敗した場合は保持している一覧を変更しない。
func (c *Collection[T, F, K]) Refresh(ctx context.Context) ([]T, error) {
	items, err := c.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.stale = false
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return clone(items), nil
}

// Items は保持している一覧のコピーを返す。
func (c *Collection[T, F, K]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.items)
}

// Loaded は一度でも一覧の取得に成功していればtrueを返す。
func (c *Collection[T, F, K]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Stale は書き込み成功後の再取得に失敗し、一覧が古い可能性がある場合にtrueを返す。
func (c *Collection[T, F, K]) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// FetchedAt は最後に一覧を取得した時刻を返す。
func (c *Collection[T, F, K]) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Get は1件取得する。一覧には影響しない。
func (c *Collection[T, F, K]) Get(ctx context.Context, id K) (*T, error) {
	return c.backend.Get(ctx, id)
}

// Create はレコードを作成し、成功時に一覧を取得し直す。
func (c *Collection[T, F, K]) Create(ctx context.Context, form F) (*T, Notice, error) {
	created, err := c.backend.Create(ctx, form)
	if err != nil {
		return nil, c.failed(gateway.OpCreate, err), err
	}
	c.invalidate(ctx)
	return created, c.succeeded("created"), nil
}

// Update はレコードを更新し、成功時に一覧を取得し直す。
func (c *Collection[T, F, K]) Update(ctx context.Context, id K, form F) (*T, Notice, error) {
	updated, err := c.backend.Update(ctx, id, form)
	if err != nil {
		return nil, c.failed(gateway.OpUpdate, err), err
	}
	c.invalidate(ctx)
	return updated, c.succeeded("updated"), nil
}

// Delete はレコードを削除し、成功時に一覧を取得し直す。
func (c *Collection[T, F, K]) Delete(ctx context.Context, id K) (Notice, error) {
	if err := c.backend.Delete(ctx, id); err != nil {
		return c.failed(gateway.OpDelete, err), err
	}
	c.invalidate(ctx)
	return c.succeeded("deleted"), nil
}

// invalidate は書き込み成功後に一覧を取得し直す。
// 再取得の失敗は書き込み自体の結果を変えず、一覧をstaleとして残す。
func (c *Collection[T, F, K]) invalidate(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("failed to refetch list after write",
			slog.String("resource", c.backend.Spec().Name),
			slog.String("error", err.Error()),
		)
		c.mu.Lock()
		c.stale = true
		c.mu.Unlock()
	}
}

func (c *Collection[T, F, K]) succeeded(past string) Notice {
	return Notice{
		Level: NoticeSuccess,
		Text:  fmt.Sprintf("%s %s successfully", capitalize(c.backend.Spec().Singular), past),
	}
}

func (c *Collection[T, F, K]) failed(op gateway.Operation, err error) Notice {
	return Notice{
		Level: NoticeError,
		Text:  fmt.Sprintf("Error %s %s: %s", op.Verb(), c.backend.Spec().Singular, detail(err)),
	}
}

// detail は通知に載せるエラーの説明を返す。
// ステータスエラーは理由句だけにして同じ文言の重複を避ける。
func detail(err error) string {
	var statusErr *model.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusText
	}
	return err.Error()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
