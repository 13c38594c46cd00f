package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
)

// ConsoleCookieName はコンソールのログインで発行する通行証Cookieの名前。
const ConsoleCookieName = "nutrisport_console"

// ConsolePass はコンソールにログインしたブラウザへ発行する通行証を管理する。
// セッションはプロセスで1つだが、通行証を持たない呼び出し元には使わせない。
type ConsolePass struct {
	mu           sync.RWMutex
	tokens       map[string]struct{}
	cookieSecure bool
}

// NewConsolePass はConsolePassを生成する。
func NewConsolePass(cookieSecure bool) *ConsolePass {
	return &ConsolePass{
		tokens:       make(map[string]struct{}),
		cookieSecure: cookieSecure,
	}
}

// Issue は新しい通行証を発行してCookieに設定する。
func (p *ConsolePass) Issue(w http.ResponseWriter) error {
	token, err := generateCSRFToken()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.tokens[token] = struct{}{}
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     ConsoleCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Valid はリクエストが有効な通行証Cookieを持つかを判定する。
func (p *ConsolePass) Valid(r *http.Request) bool {
	cookie, err := r.Cookie(ConsoleCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for token := range p.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) == 1 {
			return true
		}
	}
	return false
}

// RevokeAll は発行済みの通行証をすべて無効にし、呼び出し元のCookieを削除する。
// ログアウトはプロセスのセッションを破棄するため、他のブラウザの通行証も残さない。
func (p *ConsolePass) RevokeAll(w http.ResponseWriter) {
	p.mu.Lock()
	clear(p.tokens)
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     ConsoleCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// DefaultAllowedHosts はHostヘッダーとして受け付けるローカルの名前。
var DefaultAllowedHosts = []string{"localhost", "127.0.0.1", "::1"}

// NewHostCheckMiddleware はHostヘッダーが許可された名前でないリクエストを403で拒否する。
// DNSリバインディング経由でブラウザからコンソールを操作されるのを防ぐ。
// allowedが空の場合はDefaultAllowedHostsを使う。
func NewHostCheckMiddleware(allowed []string) func(next http.Handler) http.Handler {
	if len(allowed) == 0 {
		allowed = DefaultAllowedHosts
	}
	hosts := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		hosts[normalizeHost(h)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := hosts[normalizeHost(r.Host)]; !ok {
				slog.Warn("request with disallowed host rejected",
					slog.String("host", r.Host),
					slog.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// normalizeHost はポートと角括弧を除いた小文字のホスト名を返す。
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
