package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ID はリソースのサーバー採番IDの型。
type ID interface {
	int | string
}

// ParseID は文字列をリソースのID型に変換する。
func ParseID[K ID](s string) (K, error) {
	var id K
	switch p := any(&id).(type) {
	case *int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return id, fmt.Errorf("invalid id %q: %w", s, err)
		}
		*p = n
	case *string:
		if s == "" {
			return id, errors.New("invalid id: empty")
		}
		*p = s
	}
	return id, nil
}

// Spec はリソース種別ごとのエンドポイントと表示名。
type Spec struct {
	Name     string // CLI・コンソールでの識別子、メトリクスのラベル
	Singular string
	Plural   string
	Path     string
	// ListPath, CreatePath は一覧・作成のパスがPathと異なる場合のみ指定する。
	ListPath   string
	CreatePath string
	// SendIDOnUpdate は更新ペイロードに "Id" を含めるリソースでtrueにする。
	SendIDOnUpdate bool
}

func (s Spec) listPath() string {
	if s.ListPath != "" {
		return s.ListPath
	}
	return s.Path
}

func (s Spec) createPath() string {
	if s.CreatePath != "" {
		return s.CreatePath
	}
	return s.Path
}

func (s Spec) itemPath(id any) string {
	return s.Path + "/" + url.PathEscape(fmt.Sprint(id))
}

// Resource は1種類のリソースに対するCRUD操作。
// Tは読み取り型、Fは作成・更新ペイロード型、KはID型。
type Resource[T any, F any, K ID] struct {
	client *Client
	spec   Spec
}

// NewResource はResourceを生成する。
func NewResource[T any, F any, K ID](client *Client, spec Spec) *Resource[T, F, K] {
	return &Resource[T, F, K]{client: client, spec: spec}
}

// Spec はリソースの定義を返す。
func (r *Resource[T, F, K]) Spec() Spec {
	return r.spec
}

// List は全件を取得する。空の場合も非nilのスライスを返す。
func (r *Resource[T, F, K]) List(ctx context.Context) ([]T, error) {
	var out []T
	err := r.client.do(ctx, call{
		resource: r.spec.Name,
		noun:     r.spec.Plural,
		op:       OpList,
		method:   http.MethodGet,
		path:     r.spec.listPath(),
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Get はIDを指定して1件取得する。
func (r *Resource[T, F, K]) Get(ctx context.Context, id K) (*T, error) {
	var out T
	err := r.client.do(ctx, call{
		resource: r.spec.Name,
		noun:     r.spec.Singular,
		op:       OpGet,
		method:   http.MethodGet,
		path:     r.spec.itemPath(id),
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create は新規作成し、サーバーが返したレコードを返す。
func (r *Resource[T, F, K]) Create(ctx context.Context, form F) (*T, error) {
	var out T
	err := r.client.do(ctx, call{
		resource: r.spec.Name,
		noun:     r.spec.Singular,
		op:       OpCreate,
		method:   http.MethodPost,
		path:     r.spec.createPath(),
		payload:  form,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update は既存レコードを更新する。競合検出は行わずサーバーに委ねる。
func (r *Resource[T, F, K]) Update(ctx context.Context, id K, form F) (*T, error) {
	var payload any = form
	if r.spec.SendIDOnUpdate {
		p, err := withID(form, id)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", r.spec.Singular, err)
		}
		payload = p
	}

	var out T
	err := r.client.do(ctx, call{
		resource: r.spec.Name,
		noun:     r.spec.Singular,
		op:       OpUpdate,
		method:   http.MethodPut,
		path:     r.spec.itemPath(id),
		payload:  payload,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete はレコードを削除する。
func (r *Resource[T, F, K]) Delete(ctx context.Context, id K) error {
	return r.client.do(ctx, call{
		resource: r.spec.Name,
		noun:     r.spec.Singular,
		op:       OpDelete,
		method:   http.MethodDelete,
		path:     r.spec.itemPath(id),
	})
}

// withID はフォームのJSONオブジェクトに "Id" を追加する。
func withID(form any, id any) (map[string]any, error) {
	b, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	m["Id"] = id
	return m, nil
}
