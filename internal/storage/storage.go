// Package storage はセッションを永続化するクライアントローカルなキー・バリューストアを提供する。
// ファイル、Redis、メモリの3種類のバックエンドを持つ。
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound は指定キーが存在しない場合に返される。
var ErrNotFound = errors.New("storage: key not found")

// Store はキー・バリューストアのインターフェース。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove は存在しないキーに対してもエラーを返さない。
	Remove(ctx context.Context, key string) error
}

// Watcher は外部プロセスによる変更を通知できるストアが実装する。
// 返されたチャネルはctxの終了時にクローズされる。
type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}

// MemoryStore はプロセス内で完結するStore実装。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get はキーの値のコピーを返す。
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set はキーに値を保存する。
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Remove はキーを削除する。
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
