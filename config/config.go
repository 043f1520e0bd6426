package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the client.
type Config struct {
	Auth    AuthConfig
	HTTP    HTTPConfig
	OAuth   OAuthConfig
	Chat    ChatConfig
	Storage StorageConfig
	Logging LoggingConfig
}

// AuthConfig holds the auth service base URL and endpoint paths.
type AuthConfig struct {
	BaseURL string

	SignInPath        string
	SignUpPath        string
	MePath            string
	UpdateProfilePath string
	DeleteAccountPath string
	GoogleTokenPath   string
	DailyTierlistPath string
}

// HTTPConfig holds outbound HTTP timeouts and retry budgets.
type HTTPConfig struct {
	// Timeout applies to ordinary calls; registration may involve heavier
	// backend work and gets its own, longer ceiling.
	Timeout         time.Duration
	RegisterTimeout time.Duration
	HealthTimeout   time.Duration

	MaxAttempts         int
	RegisterMaxAttempts int
	RetryBaseDelay      time.Duration
}

// OAuthConfig holds the third-party identity provider configuration.
type OAuthConfig struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	RevocationEndpoint    string

	ClientID     string
	ClientSecret string
	Scopes       []string

	// RedirectHost/RedirectPort form the loopback redirect URI the
	// provider sends the user back to.
	RedirectHost string
	RedirectPort int
	RedirectPath string
}

// ChatConfig holds the real-time messaging service configuration.
type ChatConfig struct {
	BaseURL        string
	WSPath         string
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
}

// StorageConfig holds credential storage configuration.
type StorageConfig struct {
	Dir        string
	Passphrase string

	// Redis-backed storage is optional; used when RedisAddr is set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level           string
	Environment     string
	SQLiteEnabled   bool
	SQLiteDBPath    string
	AsyncBufferSize int
	RetentionDays   int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Auth: AuthConfig{
			BaseURL:           getEnv("AUTH_BASE_URL", "http://localhost:8081"),
			SignInPath:        getEnv("AUTH_SIGNIN_PATH", "/signin"),
			SignUpPath:        getEnv("AUTH_SIGNUP_PATH", "/signup"),
			MePath:            getEnv("AUTH_ME_PATH", "/me"),
			UpdateProfilePath: getEnv("AUTH_UPDATE_PROFILE_PATH", "/update-profile"),
			DeleteAccountPath: getEnv("AUTH_DELETE_ACCOUNT_PATH", "/delete-account"),
			GoogleTokenPath:   getEnv("AUTH_GOOGLE_TOKEN_PATH", "/google-token"),
			DailyTierlistPath: getEnv("AUTH_DAILY_TIERLIST_PATH", "/api/users/daily-tierlist"),
		},
		HTTP: HTTPConfig{
			Timeout:             getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
			RegisterTimeout:     getEnvDuration("HTTP_REGISTER_TIMEOUT", 30*time.Second),
			HealthTimeout:       getEnvDuration("HTTP_HEALTH_TIMEOUT", 5*time.Second),
			MaxAttempts:         getEnvInt("HTTP_MAX_ATTEMPTS", 3),
			RegisterMaxAttempts: getEnvInt("HTTP_REGISTER_MAX_ATTEMPTS", 5),
			RetryBaseDelay:      getEnvDuration("HTTP_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		OAuth: OAuthConfig{
			AuthorizationEndpoint: getEnv("OAUTH_AUTHORIZATION_ENDPOINT", "https://accounts.google.com/o/oauth2/v2/auth"),
			TokenEndpoint:         getEnv("OAUTH_TOKEN_ENDPOINT", "https://oauth2.googleapis.com/token"),
			RevocationEndpoint:    getEnv("OAUTH_REVOCATION_ENDPOINT", "https://oauth2.googleapis.com/revoke"),
			ClientID:              getEnv("OAUTH_CLIENT_ID", ""),
			ClientSecret:          getEnv("OAUTH_CLIENT_SECRET", ""),
			Scopes:                getEnvSlice("OAUTH_SCOPES", []string{"openid", "profile", "email"}),
			RedirectHost:          getEnv("OAUTH_REDIRECT_HOST", "127.0.0.1"),
			RedirectPort:          getEnvInt("OAUTH_REDIRECT_PORT", 19006),
			RedirectPath:          getEnv("OAUTH_REDIRECT_PATH", "/auth/google/callback"),
		},
		Chat: ChatConfig{
			BaseURL:        getEnv("CHAT_BASE_URL", "http://localhost:8082"),
			WSPath:         getEnv("CHAT_WS_PATH", "/ws"),
			ReconnectDelay: getEnvDuration("CHAT_RECONNECT_DELAY", 5*time.Second),
			Heartbeat:      getEnvDuration("CHAT_HEARTBEAT", 4*time.Second),
		},
		Storage: StorageConfig{
			Dir:           getEnv("STORAGE_DIR", defaultStorageDir()),
			Passphrase:    getEnv("STORAGE_PASSPHRASE", ""),
			RedisAddr:     getEnv("STORAGE_REDIS_ADDR", ""),
			RedisPassword: getEnv("STORAGE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("STORAGE_REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:           getEnv("LOG_LEVEL", "info"),
			Environment:     getEnv("LOG_ENVIRONMENT", "development"),
			SQLiteEnabled:   getEnvBool("LOG_SQLITE_ENABLED", true),
			SQLiteDBPath:    getEnv("LOG_SQLITE_PATH", "logs/client.db"),
			AsyncBufferSize: getEnvInt("LOG_ASYNC_BUFFER_SIZE", 1000),
			RetentionDays:   getEnvInt("LOG_RETENTION_DAYS", 7),
		},
	}
}

// WSURL returns the websocket URL derived from the chat base URL.
func (c *ChatConfig) WSURL() string {
	url := c.BaseURL
	if strings.HasPrefix(url, "https") {
		url = "wss" + strings.TrimPrefix(url, "https")
	} else if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	return url + c.WSPath
}

// RedirectURI returns the loopback redirect URI handed to the provider.
func (c *OAuthConfig) RedirectURI() string {
	return "http://" + c.RedirectHost + ":" + strconv.Itoa(c.RedirectPort) + c.RedirectPath
}

// ScopesString returns the scopes as a space-separated string.
func (c *OAuthConfig) ScopesString() string {
	return strings.Join(c.Scopes, " ")
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tierlist"
	}
	return home + "/.tierlist"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
