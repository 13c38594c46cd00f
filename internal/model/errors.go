package model

import (
	"errors"
	"fmt"
)

// AuthError はリクエスト送信前に検出された認証状態のエラーを表す。
// セッションがない、またはトークンがない場合に返される。
type AuthError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return e.Reason
}

// 認証状態エラーの理由
const (
	AuthReasonNotAuthenticated = "user not authenticated"
	AuthReasonNoToken          = "no authentication token found"
	AuthReasonExpired          = "session expired"
)

// IsAuthError はerrがAuthErrorを含む場合にtrueを返す。
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError はAPIが成功以外のHTTPステータスを返したことを表す。
type StatusError struct {
	Op         string // fetching, creating, updating, deleting
	Resource   string // エラーメッセージ用のリソース名
	Method     string
	Endpoint   string
	StatusCode int
	StatusText string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("error %s %s: %s (%s %s)", e.Op, e.Resource, e.StatusText, e.Method, e.Endpoint)
}

// ConnectError はAPIサーバーへの接続自体に失敗したことを表す。
type ConnectError struct {
	Endpoint string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

// Unwrap は元のトランスポートエラーを返す。
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// APIError はコンソールAPIの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthenticated    = "NOT_AUTHENTICATED"
	ErrCodeUnknownResource     = "UNKNOWN_RESOURCE"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeUpstreamStatus      = "UPSTREAM_STATUS"
	ErrCodeUpstreamUnreachable = "UPSTREAM_UNREACHABLE"
	ErrCodeLoginFailed         = "LOGIN_FAILED"
)

// NewNotAuthenticatedError は未ログインエラーを生成する。
func NewNotAuthenticatedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  fmt.Sprintf("Not authenticated: %s", reason),
		Category: "auth",
		Action:   "Log in again via /login.",
	}
}

// NewUnknownResourceError は未知のリソース種別エラーを生成する。
func NewUnknownResourceError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownResource,
		Message:  fmt.Sprintf("Unknown resource: %s", name),
		Category: "validation",
		Action:   "Use one of nutrition, training, trainingplan, exercise, sportsprofile, statistic, foodprogram.",
	}
}

// NewInvalidIDError は不正なID指定エラーを生成する。
func NewInvalidIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("Invalid id: %s", id),
		Category: "validation",
		Action:   "Check the id of the record.",
	}
}

// NewInvalidPayloadError は不正なリクエストボディエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("Invalid payload: %s", reason),
		Category: "validation",
		Action:   "Send a JSON object with the form fields of the resource.",
	}
}

// NewUpstreamStatusError はAPIサーバーのエラーステータスを伝えるエラーを生成する。
func NewUpstreamStatusError(err *StatusError) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamStatus,
		Message:  err.Error(),
		Category: "upstream",
		Action:   "Check the request and try again later.",
	}
}

// NewUpstreamUnreachableError はAPIサーバーに接続できないエラーを生成する。
func NewUpstreamUnreachableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnreachable,
		Message:  "Failed to connect to the API server.",
		Category: "upstream",
		Action:   "Check NUTRISPORT_API_URL and that the API server is running.",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  message,
		Category: "auth",
		Action:   "Check your email and password.",
	}
}
