package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"NUTRISPORT_CONFIG",
	"NUTRISPORT_API_URL",
	"TLS_INSECURE_SKIP_VERIFY",
	"SESSION_BACKEND",
	"SESSION_DIR",
	"SESSION_KEY",
	"REDIS_URL",
	"REDIS_PREFIX",
	"SERVER_HOST",
	"SERVER_PORT",
	"CONSOLE_ALLOWED_HOSTS",
	"LOGIN_RATE_LIMIT",
	"LOG_LEVEL",
}

// isolateEnv は外部の環境変数と.envの影響を受けないようにする。
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_DefaultValues(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.SessionBackend != BackendFile {
		t.Errorf("SessionBackend = %q, want %q", cfg.SessionBackend, BackendFile)
	}
	if cfg.SessionKey != "user" {
		t.Errorf("SessionKey = %q, want %q", cfg.SessionKey, "user")
	}
	if cfg.ServerPort != "8090" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8090")
	}
	if cfg.Addr() != "127.0.0.1:8090" {
		t.Errorf("Addr() = %q, デフォルトはループバックのみで待ち受けるべき", cfg.Addr())
	}
	if cfg.LoginRateLimit != 10 {
		t.Errorf("LoginRateLimit = %d, want %d", cfg.LoginRateLimit, 10)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.TLSInsecureSkipVerify {
		t.Error("TLSInsecureSkipVerify should default to false")
	}
	if !strings.HasSuffix(cfg.SessionDir, "nutrisport") {
		t.Errorf("SessionDir = %q, want suffix %q", cfg.SessionDir, "nutrisport")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NUTRISPORT_API_URL", "http://api.example.com/api")
	t.Setenv("TLS_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_KEY", "session")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LOGIN_RATE_LIMIT", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIURL != "http://api.example.com/api" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if !cfg.TLSInsecureSkipVerify {
		t.Error("TLSInsecureSkipVerify = false, want true")
	}
	if cfg.SessionBackend != BackendRedis {
		t.Errorf("SessionBackend = %q, want %q", cfg.SessionBackend, BackendRedis)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.SessionKey != "session" {
		t.Errorf("SessionKey = %q", cfg.SessionKey)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.LoginRateLimit != 3 {
		t.Errorf("LoginRateLimit = %d", cfg.LoginRateLimit)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_YAMLFile_OverriddenByEnv(t *testing.T) {
	dir := isolateEnv(t)

	path := filepath.Join(dir, "nutrisport.yaml")
	content := "api_url: http://yaml.example.com/api\nserver_port: \"7000\"\nsession_backend: memory\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("NUTRISPORT_CONFIG", path)
	t.Setenv("SERVER_PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIURL != "http://yaml.example.com/api" {
		t.Errorf("APIURL = %q, want value from YAML", cfg.APIURL)
	}
	if cfg.SessionBackend != BackendMemory {
		t.Errorf("SessionBackend = %q, want %q", cfg.SessionBackend, BackendMemory)
	}
	if cfg.ServerPort != "7100" {
		t.Errorf("ServerPort = %q, 環境変数がYAMLより優先されるべき", cfg.ServerPort)
	}
	if cfg.SessionKey != "user" {
		t.Errorf("YAMLに無い項目はデフォルト値のまま: SessionKey = %q", cfg.SessionKey)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := isolateEnv(t)

	envFile := "NUTRISPORT_API_URL=http://dotenv.example.com/api\nSERVER_PORT=7200\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envFile), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("SERVER_PORT", "7300")
	// godotenvはos.Setenvで値を設定するため、テスト終了時に元へ戻るよう登録しておく
	t.Setenv("NUTRISPORT_API_URL", "")
	os.Unsetenv("NUTRISPORT_API_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIURL != "http://dotenv.example.com/api" {
		t.Errorf("APIURL = %q, want value from .env", cfg.APIURL)
	}
	if cfg.ServerPort != "7300" {
		t.Errorf("ServerPort = %q, 既存の環境変数は上書きされないべき", cfg.ServerPort)
	}
}

func TestLoad_MissingConfigFile_ReturnsError(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("NUTRISPORT_CONFIG", filepath.Join(dir, "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidValues_ReturnsError(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown backend",
			env:  map[string]string{"SESSION_BACKEND": "sqlite"},
			want: "SESSION_BACKEND",
		},
		{
			name: "redis without url",
			env:  map[string]string{"SESSION_BACKEND": "redis"},
			want: "REDIS_URL",
		},
		{
			name: "api url without scheme",
			env:  map[string]string{"NUTRISPORT_API_URL": "localhost:7082/api"},
			want: "NUTRISPORT_API_URL",
		},
		{
			name: "non-positive rate limit",
			env:  map[string]string{"LOGIN_RATE_LIMIT": "0"},
			want: "LOGIN_RATE_LIMIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err.Error(), tt.want)
			}
		})
	}
}

func TestGetEnvBool_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("TEST_BOOL", "maybe")
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Error("invalid value should fall back to default")
	}
}

func TestLoad_ServerHostAndAllowedHosts(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("CONSOLE_ALLOWED_HOSTS", " console.internal , ,nutri.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Addr() != "0.0.0.0:8090" {
		t.Errorf("Addr() = %q, want %q", cfg.Addr(), "0.0.0.0:8090")
	}
	want := []string{"console.internal", "nutri.local"}
	got := cfg.ConsoleHosts()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ConsoleHosts() = %v, want %v (ワイルドカードのSERVER_HOSTは含めない)", got, want)
	}
}

func TestConfig_ConsoleHosts_IncludesSpecificServerHost(t *testing.T) {
	cfg := Default()
	cfg.ServerHost = "192.168.1.20"

	got := cfg.ConsoleHosts()
	if len(got) != 1 || got[0] != "192.168.1.20" {
		t.Errorf("ConsoleHosts() = %v, want [192.168.1.20]", got)
	}
}
