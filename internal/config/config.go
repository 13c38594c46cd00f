package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// セッションの保存先
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// デフォルト値
const (
	DefaultAPIURL         = "https://localhost:7082/api"
	DefaultSessionKey     = "user"
	DefaultServerHost     = "127.0.0.1"
	DefaultServerPort     = "8090"
	DefaultLogLevel       = "info"
	DefaultLoginRateLimit = 10
	DefaultRedisPrefix    = "nutrisport:"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIURL                string `yaml:"api_url"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`

	// Session
	SessionBackend string `yaml:"session_backend"`
	SessionDir     string `yaml:"session_dir"`
	SessionKey     string `yaml:"session_key"`
	RedisURL       string `yaml:"redis_url"`
	RedisPrefix    string `yaml:"redis_prefix"`

	// Console server
	ServerHost     string   `yaml:"server_host"`
	ServerPort     string   `yaml:"server_port"`
	AllowedHosts   []string `yaml:"allowed_hosts"` // localhost以外に受け付けるHostヘッダー
	LoginRateLimit int      `yaml:"login_rate_limit"` // req/min/IP

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default はデフォルト値で埋めたConfigを返す。
func Default() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		SessionBackend: BackendFile,
		SessionDir:     defaultSessionDir(),
		SessionKey:     DefaultSessionKey,
		RedisPrefix:    DefaultRedisPrefix,
		ServerHost:     DefaultServerHost,
		ServerPort:     DefaultServerPort,
		LoginRateLimit: DefaultLoginRateLimit,
		LogLevel:       DefaultLogLevel,
	}
}

// Load は設定を読み込む。優先順位は低い順に
// デフォルト値、NUTRISPORT_CONFIGのYAMLファイル、環境変数。
// カレントディレクトリの.envは既存の環境変数を上書きせずに読み込む。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("NUTRISPORT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.APIURL = getEnvString("NUTRISPORT_API_URL", cfg.APIURL)
	cfg.TLSInsecureSkipVerify = getEnvBool("TLS_INSECURE_SKIP_VERIFY", cfg.TLSInsecureSkipVerify)
	cfg.SessionBackend = strings.ToLower(getEnvString("SESSION_BACKEND", cfg.SessionBackend))
	cfg.SessionDir = getEnvString("SESSION_DIR", cfg.SessionDir)
	cfg.SessionKey = getEnvString("SESSION_KEY", cfg.SessionKey)
	cfg.RedisURL = getEnvString("REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvString("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.ServerHost = getEnvString("SERVER_HOST", cfg.ServerHost)
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.AllowedHosts = getEnvList("CONSOLE_ALLOWED_HOSTS", cfg.AllowedHosts)
	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", cfg.LoginRateLimit)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile はYAMLファイルに書かれた項目だけをcfgに上書きする。
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("NUTRISPORT_API_URL must be an http(s) URL: %q", c.APIURL))
	}

	switch c.SessionBackend {
	case BackendFile:
		if c.SessionDir == "" {
			problems = append(problems, "SESSION_DIR is required for the file session backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for the redis session backend")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("SESSION_BACKEND must be one of file, redis, memory: %q", c.SessionBackend))
	}

	if c.SessionKey == "" {
		problems = append(problems, "SESSION_KEY must not be empty")
	}
	if c.LoginRateLimit <= 0 {
		problems = append(problems, "LOGIN_RATE_LIMIT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr はコンソールサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, c.ServerPort)
}

// ConsoleHosts はコンソールがHostヘッダーとして受け付ける追加の名前を返す。
// SERVER_HOSTが特定のアドレスならそれも含める。
func (c *Config) ConsoleHosts() []string {
	hosts := slices.Clone(c.AllowedHosts)
	switch c.ServerHost {
	case "", "0.0.0.0", "::":
	default:
		hosts = append(hosts, c.ServerHost)
	}
	return hosts
}

func defaultSessionDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "nutrisport")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
