package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/nutrisport/internal/dashboard"
	"github.com/hitoshi/nutrisport/internal/model"
)

// fakeAPI はNutriSportPro APIサーバーの最小限の代替。
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string

	loginBody    string
	deleteStatus int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key)
	f.bodies[key] = string(raw)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case key == "POST /api/auth/login":
		w.Write([]byte(f.loginBody))
	case r.URL.Path != "/api/auth/login" && r.Header.Get("Authorization") != "Bearer tok-cli":
		w.WriteHeader(http.StatusUnauthorized)
	case key == "GET /api/exercise":
		w.Write([]byte(`[{"id":1,"sets":3,"repetitions":10},{"id":2,"sets":5,"repetitions":5}]`))
	case key == "POST /api/exercise":
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":3,"sets":4,"repetitions":8}`))
	case strings.HasPrefix(key, "DELETE /api/exercise/"):
		if f.deleteStatus != 0 {
			w.WriteHeader(f.deleteStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.requests {
		if k == key {
			n++
		}
	}
	return n
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

// setTestEnv はfakeAPIを向き、一時ディレクトリにセッションを保存する環境を用意する。
func setTestEnv(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		bodies: make(map[string]string),
		loginBody: `{"isAuthenticated":true,"userId":"7","email":"cli@example.com","roles":["Admin","Coach"],` +
			`"token":"tok-cli","expiresAt":"` + time.Now().Add(time.Hour).UTC().Format(time.RFC3339) + `"}`,
	}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	for _, k := range []string{"NUTRISPORT_CONFIG", "TLS_INSECURE_SKIP_VERIFY", "SESSION_KEY", "REDIS_URL", "REDIS_PREFIX", "SERVER_HOST", "SERVER_PORT", "CONSOLE_ALLOWED_HOSTS", "LOGIN_RATE_LIMIT", passwordEnv} {
		t.Setenv(k, "")
	}
	t.Setenv("NUTRISPORT_API_URL", server.URL+"/api")
	t.Setenv("SESSION_BACKEND", "file")
	t.Setenv("SESSION_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
	t.Chdir(t.TempDir())

	return api
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := Run(&buf, args)
	return buf.String(), err
}

func login(t *testing.T) {
	t.Helper()
	if out, err := run(t, "login", "--email", "cli@example.com", "--password", "pw"); err != nil {
		t.Fatalf("login failed: %v (%s)", err, out)
	}
}

func TestRun_Version(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nutrisport version") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	if _, err := run(t, "meals", "list"); err == nil {
		t.Fatal("未知のコマンドはエラーになるべき")
	}
}

func TestRun_InvalidConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SESSION_BACKEND", "sqlite")

	_, err := run(t, "whoami")
	if err == nil {
		t.Fatal("不正な設定ではエラーになるべき")
	}
	if !strings.Contains(err.Error(), "SESSION_BACKEND") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_ResourceCommand_NotLoggedIn_DoesNotCallAPI(t *testing.T) {
	api := setTestEnv(t)

	_, err := run(t, "exercise", "list")

	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("err = %v, want %v", err, errNotLoggedIn)
	}
	if err.Error() != "not logged in: run `nutrisport login`" {
		t.Errorf("message = %q", err.Error())
	}
	if api.total() != 0 {
		t.Errorf("未ログインでAPIを呼ぶべきでない: %d requests", api.total())
	}
}

func TestRun_LoginWhoamiLogout(t *testing.T) {
	api := setTestEnv(t)

	out, err := run(t, "login", "--email", "cli@example.com", "--password", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "Logged in as cli@example.com") {
		t.Errorf("login output = %q", out)
	}

	var creds map[string]string
	if err := json.Unmarshal([]byte(api.body("POST /api/auth/login")), &creds); err != nil {
		t.Fatalf("ログインリクエストがJSONでない: %v", err)
	}
	if creds["Email"] != "cli@example.com" || creds["Password"] != "pw" {
		t.Errorf("credentials = %v", creds)
	}

	// 別のRun呼び出しでも永続化されたセッションが復元される
	out, err = run(t, "whoami")
	if err != nil {
		t.Fatalf("whoami failed: %v", err)
	}
	for _, want := range []string{"cli@example.com", "User ID: 7", "Admin, Coach"} {
		if !strings.Contains(out, want) {
			t.Errorf("whoami output should contain %q: %q", want, out)
		}
	}
	if strings.Contains(out, "tok-cli") {
		t.Error("whoamiでトークンを表示すべきでない")
	}

	if _, err := run(t, "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := run(t, "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("ログアウト後のwhoami err = %v, want %v", err, errNotLoggedIn)
	}
}

func TestRun_Login_PasswordFromEnv(t *testing.T) {
	setTestEnv(t)
	t.Setenv(passwordEnv, "pw")

	if _, err := run(t, "login", "--email", "cli@example.com"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestRun_Login_MissingInput(t *testing.T) {
	api := setTestEnv(t)

	if _, err := run(t, "login", "--password", "pw"); err == nil || !strings.Contains(err.Error(), "email") {
		t.Errorf("email missing: err = %v", err)
	}
	if _, err := run(t, "login", "--email", "cli@example.com"); err == nil || !strings.Contains(err.Error(), passwordEnv) {
		t.Errorf("password missing: err = %v", err)
	}
	if api.total() != 0 {
		t.Error("入力エラー時はAPIへ送信すべきでない")
	}
}

func TestRun_Login_Rejected(t *testing.T) {
	api := setTestEnv(t)
	api.loginBody = `{"isAuthenticated":false,"message":"Invalid credentials"}`

	_, err := run(t, "login", "--email", "cli@example.com", "--password", "wrong")

	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "login failed: Invalid credentials" {
		t.Errorf("err = %q", err.Error())
	}
}

func TestRun_ExerciseList(t *testing.T) {
	api := setTestEnv(t)
	login(t)

	out, err := run(t, "exercise", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	var items []model.Exercise
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("出力がJSONでない: %v (%s)", err, out)
	}
	if len(items) != 2 || items[1].Sets != 5 {
		t.Errorf("items = %+v", items)
	}
	if api.count("GET /api/exercise") != 1 {
		t.Errorf("GET /api/exercise count = %d, want 1", api.count("GET /api/exercise"))
	}
}

func TestRun_ExerciseCreate_FromFile(t *testing.T) {
	api := setTestEnv(t)
	login(t)

	path := filepath.Join(t.TempDir(), "exercise.json")
	if err := os.WriteFile(path, []byte(`{"sets":4,"repetitions":8,"trainingId":2}`), 0600); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	out, err := run(t, "exercise", "create", "--data", "@"+path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(out, "Exercise created successfully") {
		t.Errorf("output = %q", out)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(api.body("POST /api/exercise")), &sent); err != nil {
		t.Fatalf("送信ボディがJSONでない: %v", err)
	}
	if sent["Sets"] != float64(4) {
		t.Errorf("sent = %v", sent)
	}
	// 作成後は一覧を取得し直す
	if api.count("GET /api/exercise") != 1 {
		t.Errorf("GET /api/exercise count = %d, want 1", api.count("GET /api/exercise"))
	}
}

func TestRun_ExerciseCreate_InvalidPayload(t *testing.T) {
	api := setTestEnv(t)
	login(t)

	_, err := run(t, "exercise", "create", "--data", "[1,2]")
	if !errors.Is(err, dashboard.ErrInvalidPayload) {
		t.Fatalf("err = %v, want %v", err, dashboard.ErrInvalidPayload)
	}
	if api.count("POST /api/exercise") != 0 {
		t.Error("不正なペイロードをAPIへ送信すべきでない")
	}
}

func TestRun_ExerciseDelete_Failure(t *testing.T) {
	api := setTestEnv(t)
	api.deleteStatus = http.StatusInternalServerError
	login(t)

	_, err := run(t, "exercise", "delete", "42")

	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Error deleting exercise: Internal Server Error" {
		t.Errorf("err = %q", err.Error())
	}
	if api.count("GET /api/exercise") != 0 {
		t.Error("削除失敗時は一覧を取得し直すべきでない")
	}
}

func TestRun_ExerciseDelete_InvalidID(t *testing.T) {
	api := setTestEnv(t)
	login(t)

	_, err := run(t, "exercise", "delete", "abc")
	if !errors.Is(err, dashboard.ErrInvalidID) {
		t.Fatalf("err = %v, want %v", err, dashboard.ErrInvalidID)
	}
	if api.count("DELETE /api/exercise/abc") != 0 {
		t.Error("不正なIDでAPIを呼ぶべきでない")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, port, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to parse addr: %v", err)
	}
	t.Setenv("SERVER_PORT", port)

	if _, err := run(t, "healthcheck"); err != nil {
		t.Errorf("healthcheck failed: %v", err)
	}
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0600); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	tests := []struct {
		name    string
		data    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "inline", data: `{"a":1}`, want: `{"a":1}`},
		{name: "stdin", data: "-", stdin: `{"from":"stdin"}`, want: `{"from":"stdin"}`},
		{name: "file", data: "@" + path, want: `{"from":"file"}`},
		{name: "missing file", data: "@" + path + ".missing", wantErr: true},
		{name: "empty", data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(strings.NewReader(tt.stdin), tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResourceError(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name   string
		notice dashboard.Notice
		err    error
		want   string
	}{
		{
			name: "expired",
			err:  &model.AuthError{Reason: model.AuthReasonExpired},
			want: errSessionExpired.Error(),
		},
		{
			name: "no token",
			err:  &model.AuthError{Reason: model.AuthReasonNoToken},
			want: errNotLoggedIn.Error(),
		},
		{
			name:   "error notice",
			notice: dashboard.Notice{Level: dashboard.NoticeError, Text: "Error updating food program: Bad Request"},
			err:    &model.StatusError{StatusCode: 400, StatusText: "Bad Request"},
			want:   "Error updating food program: Bad Request",
		},
		{
			name: "plain error",
			err:  other,
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resourceError(tt.notice, tt.err); got.Error() != tt.want {
				t.Errorf("resourceError = %q, want %q", got.Error(), tt.want)
			}
		})
	}
}

func TestLoginRateLimiterConfig(t *testing.T) {
	cfg := loginRateLimiterConfig(30)
	if float64(cfg.LoginRate) != 0.5 {
		t.Errorf("LoginRate = %v, want 0.5", cfg.LoginRate)
	}
	if cfg.LoginBurst != 30 {
		t.Errorf("LoginBurst = %d, want 30", cfg.LoginBurst)
	}
}
