package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DevAccessSecret is the insecure placeholder used when JWT_SECRET is unset.
	DevAccessSecret = "your-secret-key"
	// DevRefreshSecret is the insecure placeholder used when JWT_REFRESH_SECRET is unset.
	DevRefreshSecret = "your-refresh-secret-key"

	envProduction = "production"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	CORS     CORSConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// ProxyHeader names the header carrying the client IP when the service
	// runs behind a reverse proxy, e.g. X-Forwarded-For. Empty uses the
	// socket address.
	ProxyHeader string
	// TrustedProxies restricts ProxyHeader to requests arriving from these
	// addresses or CIDR ranges. Empty trusts the header from any peer.
	TrustedProxies []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// AuditStream names the stream auth events are appended to; empty
	// keeps auditing in the log only.
	AuditStream string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token, cookie and credential parameters.
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// RotateRefreshWithin is the remaining refresh lifetime under which
	// /refresh also re-issues the refresh token.
	RotateRefreshWithin   time.Duration
	BcryptCost            int
	AllowSelfAssignedRole bool
	RevocationEnabled     bool
	LoginRatePerMinute    int
	LoginBurst            int
	// SecureCookies switches cookies to Secure + SameSite=None.
	SecureCookies bool
}

// CORSConfig lists the browser origins allowed to send credentials.
type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	accessTTL, err := ParseLifetime(getEnv("JWT_EXPIRES_IN", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}
	refreshTTL, err := ParseLifetime(getEnv("JWT_REFRESH_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRES_IN: %w", err)
	}
	rotateWithin, err := ParseLifetime(getEnv("AUTH_REFRESH_ROTATE_WITHIN", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_REFRESH_ROTATE_WITHIN: %w", err)
	}

	env := getEnv("APP_ENV", getEnv("NODE_ENV", "development"))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "restaurant-api"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", getEnv("PORT", "5001")),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ProxyHeader:           os.Getenv("PROXY_HEADER"),
			TrustedProxies:        splitList(os.Getenv("TRUSTED_PROXIES")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			AuditStream: os.Getenv("AUTH_AUDIT_STREAM"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			AccessSecret:          getEnv("JWT_SECRET", DevAccessSecret),
			RefreshSecret:         getEnv("JWT_REFRESH_SECRET", DevRefreshSecret),
			AccessTTL:             accessTTL,
			RefreshTTL:            refreshTTL,
			RotateRefreshWithin:   rotateWithin,
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AllowSelfAssignedRole: getEnvAsBool("AUTH_ALLOW_SELF_ASSIGNED_ROLE", false),
			RevocationEnabled:     getEnvAsBool("AUTH_REVOCATION_ENABLED", false),
			LoginRatePerMinute:    getEnvAsInt("AUTH_LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:            getEnvAsInt("AUTH_LOGIN_BURST", 5),
			SecureCookies:         env == envProduction,
		},
		CORS: CORSConfig{
			AllowedOrigins: allowedOrigins(),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that are unsafe to run.
func (c *Config) Validate() error {
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("token secrets must not be empty")
	}
	if len(c.App.TrustedProxies) > 0 && c.App.ProxyHeader == "" {
		return errors.New("TRUSTED_PROXIES requires PROXY_HEADER")
	}
	if !c.App.IsProduction() {
		return nil
	}
	if c.Auth.UsesPlaceholderSecrets() {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set in production")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}

// UsesPlaceholderSecrets reports whether either token secret is still the
// built-in development value.
func (a AuthConfig) UsesPlaceholderSecrets() bool {
	return a.AccessSecret == DevAccessSecret || a.RefreshSecret == DevRefreshSecret
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return a.Env == envProduction
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ParseLifetime parses a Go duration string, additionally accepting a
// whole-number day suffix such as "7d".
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parse days %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func allowedOrigins() []string {
	origins := []string{"http://localhost:3000"}
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	if client := strings.TrimSuffix(os.Getenv("CLIENT_URL"), "/"); client != "" {
		origins = append(origins, client)
	}
	return origins
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
