// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Session は認証済みユーザーのクライアント側セッションを表す。
// セッションストアだけが生成・破棄する。
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid はトークンを持ち、かつnow時点で期限切れでない場合にtrueを返す。
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && s.ExpiresAt.After(now)
}

// Clone はRolesを含めたディープコピーを返す。
func (s Session) Clone() Session {
	roles := make([]string, len(s.Roles))
	copy(roles, s.Roles)
	s.Roles = roles
	return s
}

// 永続化データの検証エラー
var (
	ErrMalformedSession = errors.New("persisted session is malformed")
	ErrMissingToken     = errors.New("persisted session has no token")
	ErrInvalidExpiry    = errors.New("persisted session has an invalid expiry")
)

// dateOnlyLayout は日付のみの形式。その日のUTC 0時として解釈する。
const dateOnlyLayout = "2006-01-02"

// expiryLayouts はサーバーが返しうる日時フォーマット。
// タイムゾーンなしの日時はローカル時刻として解釈する。
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateOnlyLayout,
}

// ParseExpiry はISO-8601形式の日時文字列を解釈する。
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		var (
			t   time.Time
			err error
		)
		switch layout {
		case time.RFC3339Nano, dateOnlyLayout:
			t, err = time.Parse(layout, s)
		default:
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeRoles はrolesフィールドを正規のリスト形式に変換する。
// 配列はそのまま、カンマ区切り文字列は分割し、欠落・nullは空スライスとする。
// 戻り値がnilになることはない。
func NormalizeRoles(v gjson.Result) []string {
	roles := []string{}
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return roles
	case v.IsArray():
		for _, r := range v.Array() {
			if name := strings.TrimSpace(r.String()); name != "" {
				roles = append(roles, name)
			}
		}
	case v.Type == gjson.String:
		for _, part := range strings.Split(v.Str, ",") {
			if name := strings.TrimSpace(part); name != "" {
				roles = append(roles, name)
			}
		}
	default:
		if name := strings.TrimSpace(v.String()); name != "" {
			roles = append(roles, name)
		}
	}
	return roles
}

// ParseSession は永続化されたセッションJSONを検証し、正規形のSessionに変換する。
// 期限の判定は呼び出し元が行う。
func ParseSession(data []byte) (*Session, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedSession
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrMalformedSession
	}

	token := doc.Get("token").String()
	if token == "" {
		return nil, ErrMissingToken
	}

	expiresAt, ok := ParseExpiry(doc.Get("expiresAt").String())
	if !ok {
		return nil, ErrInvalidExpiry
	}

	return &Session{
		UserID:    doc.Get("userId").String(),
		Email:     doc.Get("email").String(),
		Roles:     NormalizeRoles(doc.Get("roles")),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// MarshalSession は永続化用のJSONを生成する。
// expiresAtはRFC3339（UTC）で書き出す。
func MarshalSession(s Session) ([]byte, error) {
	if s.Roles == nil {
		s.Roles = []string{}
	}
	return json.Marshal(struct {
		UserID    string   `json:"userId"`
		Email     string   `json:"email"`
		Roles     []string `json:"roles"`
		Token     string   `json:"token"`
		ExpiresAt string   `json:"expiresAt"`
	}{
		UserID:    s.UserID,
		Email:     s.Email,
		Roles:     s.Roles,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// LoginRequest は /auth/login へ送信する認証情報。
type LoginRequest struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

// LoginResponse は /auth/login のレスポンスを正規化したもの。
// ExpiresAtは欠落・解釈不能の場合ゼロ値になる。
type LoginResponse struct {
	IsAuthenticated bool
	UserID          string
	Email           string
	Roles           []string
	Token           string
	ExpiresAt       time.Time
	Message         string
}

// ParseLoginResponse はログインレスポンスを検証して正規形に変換する。
// JSONオブジェクトでない場合はErrMalformedSessionを返す。
func ParseLoginResponse(data []byte) (*LoginResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedSession
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrMalformedSession
	}

	resp := &LoginResponse{
		IsAuthenticated: doc.Get("isAuthenticated").Bool(),
		UserID:          doc.Get("userId").String(),
		Email:           doc.Get("email").String(),
		Roles:           NormalizeRoles(doc.Get("roles")),
		Token:           doc.Get("token").String(),
		Message:         doc.Get("message").String(),
	}
	if t, ok := ParseExpiry(doc.Get("expiresAt").String()); ok {
		resp.ExpiresAt = t
	}
	return resp, nil
}
