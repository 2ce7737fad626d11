package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/csis-platform/iam/internal/iam/keycloak"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens, doubles as the public base URL

	KeyStorageMode   string // Optional: key storage mode (ephemeral, persistent) (default: persistent)
	KeyDir           string // Optional: directory holding the RS256 keypair (default: ./keys)
	KeyEncryptAtRest bool   // Optional: store the private key encrypted under the master key
	MasterKeyPath    string // Optional: path to master encryption key file
	RSABits          int    // Optional: RSA key size (default: 2048)

	DatabaseFile string // Optional: path to SQLite database file (default: ./iam.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	AccessTokenTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 7d)
	ResetTokenTTL   time.Duration // Password reset link lifetime (default: 1h)
	VerifyTokenTTL  time.Duration // Email verification link lifetime (default: 7d)

	LockoutThreshold int           // Failures before a lockout (default: 5)
	LockoutWindow    time.Duration // Lockout window and duration (default: 15m)

	FrontendBaseURL string // Where verification and reset links point (default: http://localhost:3000)

	MailProvider string // Mail backend: "ses" or "console" (default: console)
	MailFrom     string // From address for outbound mail

	Keycloak keycloak.Config // Optional mirror target; disabled when BaseURL is empty

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer: getEnvOrDefault("IAM_ISSUER", "csis-iam"),

		KeyStorageMode:   getEnvOrDefault("IAM_KEY_STORAGE_MODE", "persistent"),
		KeyDir:           getEnvOrDefault("IAM_KEY_DIR", "keys"),
		KeyEncryptAtRest: getEnvBool("IAM_KEY_ENCRYPT_AT_REST"),
		MasterKeyPath:    os.Getenv("IAM_MASTER_KEY_PATH"),

		DatabaseFile: getEnvOrDefault("IAM_DATABASE_FILE", "iam.db"),
		PepperFile:   getEnvOrDefault("IAM_PEPPER_FILE", "pepper"),

		AccessTokenTTL:  getEnvDurationOrDefault("IAM_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("IAM_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:   getEnvDurationOrDefault("IAM_RESET_TOKEN_TTL", time.Hour),
		VerifyTokenTTL:  getEnvDurationOrDefault("IAM_VERIFY_TOKEN_TTL", 7*24*time.Hour),

		LockoutThreshold: getEnvIntOrDefault("IAM_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getEnvDurationOrDefault("IAM_LOCKOUT_WINDOW", 15*time.Minute),

		FrontendBaseURL: getEnvOrDefault("IAM_FRONTEND_URL", "http://localhost:3000"),

		MailProvider: getEnvOrDefault("IAM_MAIL_PROVIDER", "console"),
		MailFrom:     getEnvOrDefault("IAM_MAIL_FROM", "no-reply@localhost"),

		Keycloak: keycloak.Config{
			BaseURL:      os.Getenv("KEYCLOAK_BASE_URL"),
			Realm:        os.Getenv("KEYCLOAK_REALM"),
			ClientID:     os.Getenv("KEYCLOAK_CLIENT_ID"),
			ClientSecret: os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		},

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if bits := getEnvIntOrDefault("IAM_RSA_BITS", 0); bits > 0 {
		cfg.RSABits = bits
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

// getEnvDurationOrDefault parses durations. On top of Go's native syntax it
// accepts a "d" suffix for days, so "7d" works for the refresh lifetime.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
