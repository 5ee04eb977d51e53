package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/coachlink/internal/domain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Socket   SocketConfig
	Session  SessionConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	API      APIConfig
	Log      LogConfig
}

// SocketConfig describes the agent websocket endpoint and reconnect policy.
type SocketConfig struct {
	URL             string
	UserID          string
	ChatKind        domain.ChatKind
	DialTimeout     time.Duration
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	ReconnectJitter time.Duration
}

type SessionConfig struct {
	AckTimeout  time.Duration
	ToolTimeout time.Duration
}

// AuthConfig selects the bearer credential. OAuth wins over a signing
// secret, which wins over a static token.
type AuthConfig struct {
	Token             string //nolint:gosec // G117: bearer token config
	JWTSecret         string //nolint:gosec // G117: JWT signing secret config
	JWTTTL            time.Duration
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string //nolint:gosec // G117: OAuth client secret config
	OAuthScopes       []string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN keeps
// health data in memory.
type DatabaseConfig struct {
	DSN      string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables
// event fan-out.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// APIConfig holds local control API settings. An empty Addr disables it.
type APIConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	RateLimit    float64
	RateBurst    int
	JWTSecret    string //nolint:gosec // G117: JWT verification secret config
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dialTimeout, err := getEnvDuration("COACHLINK_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectBase, err := getEnvDuration("COACHLINK_RECONNECT_BASE_DELAY", time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectMax, err := getEnvDuration("COACHLINK_RECONNECT_MAX_DELAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reconnectJitter, err := getEnvDuration("COACHLINK_RECONNECT_JITTER", 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ackTimeout, err := getEnvDuration("COACHLINK_ACK_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	toolTimeout, err := getEnvDuration("COACHLINK_TOOL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jwtTTL, err := getEnvDuration("COACHLINK_AUTH_JWT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("COACHLINK_DB_MAX_CONNS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("COACHLINK_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("COACHLINK_API_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("COACHLINK_API_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("COACHLINK_API_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("COACHLINK_API_RATE_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Socket: SocketConfig{
			URL:             getEnv("COACHLINK_SOCKET_URL", "ws://localhost:8000/ws"),
			UserID:          getEnv("COACHLINK_USER_ID", ""),
			ChatKind:        domain.ChatKind(getEnv("COACHLINK_CHAT_KIND", string(domain.ChatAtWill))),
			DialTimeout:     dialTimeout,
			ReconnectBase:   reconnectBase,
			ReconnectMax:    reconnectMax,
			ReconnectJitter: reconnectJitter,
		},
		Session: SessionConfig{
			AckTimeout:  ackTimeout,
			ToolTimeout: toolTimeout,
		},
		Auth: AuthConfig{
			Token:             getEnv("COACHLINK_AUTH_TOKEN", ""),
			JWTSecret:         getEnv("COACHLINK_AUTH_JWT_SECRET", ""),
			JWTTTL:            jwtTTL,
			OAuthTokenURL:     getEnv("COACHLINK_OAUTH_TOKEN_URL", ""),
			OAuthClientID:     getEnv("COACHLINK_OAUTH_CLIENT_ID", ""),
			OAuthClientSecret: getEnv("COACHLINK_OAUTH_CLIENT_SECRET", ""),
			OAuthScopes:       getEnvList("COACHLINK_OAUTH_SCOPES", nil),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("COACHLINK_DB_DSN", ""),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("COACHLINK_REDIS_ADDR", ""),
			Password: getEnv("COACHLINK_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		API: APIConfig{
			Addr:         getEnv("COACHLINK_API_ADDR", ""),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("COACHLINK_API_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:    rateLimit,
			RateBurst:    rateBurst,
			JWTSecret:    getEnv("COACHLINK_API_JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("COACHLINK_LOG_LEVEL", "info"),
			Format: getEnv("COACHLINK_LOG_FORMAT", "text"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Socket.UserID == "" {
		return errors.New("COACHLINK_USER_ID is required")
	}

	u, err := url.Parse(c.Socket.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("COACHLINK_SOCKET_URL must be a ws:// or wss:// URL, got %q", c.Socket.URL)
	}
	if u.Scheme == "ws" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Warn().Str("url", c.Socket.URL).Msg("COACHLINK_SOCKET_URL is unencrypted; the bearer token is sent in clear text")
	}

	if _, err := domain.ParseChatKind(string(c.Socket.ChatKind)); err != nil {
		return fmt.Errorf("COACHLINK_CHAT_KIND: %w", err)
	}

	if c.Socket.DialTimeout <= 0 {
		return fmt.Errorf("COACHLINK_DIAL_TIMEOUT must be positive, got %s", c.Socket.DialTimeout)
	}
	if c.Socket.ReconnectBase <= 0 {
		return fmt.Errorf("COACHLINK_RECONNECT_BASE_DELAY must be positive, got %s", c.Socket.ReconnectBase)
	}
	if c.Socket.ReconnectMax < c.Socket.ReconnectBase {
		return fmt.Errorf("COACHLINK_RECONNECT_MAX_DELAY must be >= base delay, got %s", c.Socket.ReconnectMax)
	}
	if c.Socket.ReconnectJitter < 0 {
		return fmt.Errorf("COACHLINK_RECONNECT_JITTER must not be negative, got %s", c.Socket.ReconnectJitter)
	}
	if c.Session.AckTimeout <= 0 {
		return fmt.Errorf("COACHLINK_ACK_TIMEOUT must be positive, got %s", c.Session.AckTimeout)
	}
	if c.Session.ToolTimeout <= 0 {
		return fmt.Errorf("COACHLINK_TOOL_TIMEOUT must be positive, got %s", c.Session.ToolTimeout)
	}

	if c.Auth.OAuthTokenURL != "" && c.Auth.OAuthClientID == "" {
		return errors.New("COACHLINK_OAUTH_CLIENT_ID is required when COACHLINK_OAUTH_TOKEN_URL is set")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("COACHLINK_AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.JWTTTL <= 0 {
		return fmt.Errorf("COACHLINK_AUTH_JWT_TTL must be positive, got %s", c.Auth.JWTTTL)
	}
	if c.Auth.Token == "" && c.Auth.JWTSecret == "" && c.Auth.OAuthTokenURL == "" {
		log.Warn().Msg("no agent credential configured; the service may reject the connection")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("COACHLINK_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("COACHLINK_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}

	if c.API.ReadTimeout <= 0 {
		return fmt.Errorf("COACHLINK_API_READ_TIMEOUT must be positive, got %s", c.API.ReadTimeout)
	}
	if c.API.WriteTimeout <= 0 {
		return fmt.Errorf("COACHLINK_API_WRITE_TIMEOUT must be positive, got %s", c.API.WriteTimeout)
	}
	if c.API.RateLimit <= 0 {
		return fmt.Errorf("COACHLINK_API_RATE_LIMIT must be positive, got %g", c.API.RateLimit)
	}
	if c.API.RateBurst < 1 {
		return fmt.Errorf("COACHLINK_API_RATE_BURST must be >= 1, got %d", c.API.RateBurst)
	}
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < 32 {
		return errors.New("COACHLINK_API_JWT_SECRET must be at least 32 characters")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("COACHLINK_LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("COACHLINK_LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
