// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication (dashboard sessions are issued by the dashboard
	// service; this API only verifies them)
	JWTSecret     string
	EncryptionKey []byte // 32-byte key for AES-256-GCM encryption

	// Tracking
	CookieName        string        // attribution cookie name
	CookieSecure      bool          // set Secure on the attribution cookie
	DefaultCookieDays int           // attribution window when an offer has none
	TrackingRateLimit int           // requests per IP per minute on public endpoints
	RequestTimeout    time.Duration

	// CORS
	CORSOrigins []string

	// Blocklist (S3-backed IP blocklist for the public surface)
	BlocklistBucket  string
	BlocklistKey     string
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageRegion    string

	// Notifier (outbound affiliate webhooks)
	NotifierPollInterval time.Duration
	NotifierConcurrency  int
	NotifierMaxAttempts  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:betlinkr.db?_journal=WAL&_timeout=5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		CookieName:        getEnv("TRACKING_COOKIE_NAME", "bl_attr"),
		CookieSecure:      getEnvBool("TRACKING_COOKIE_SECURE", true),
		DefaultCookieDays: getEnvInt("TRACKING_COOKIE_DAYS", 90),
		TrackingRateLimit: getEnvInt("TRACKING_RATE_LIMIT", 300),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		BlocklistBucket:  getEnv("BLOCKLIST_BUCKET", ""),
		BlocklistKey:     getEnv("BLOCKLIST_KEY", "config/blocklist.json"),
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		NotifierPollInterval: getEnvDuration("NOTIFIER_POLL_INTERVAL", 5*time.Second),
		NotifierConcurrency:  getEnvInt("NOTIFIER_CONCURRENCY", 2),
		NotifierMaxAttempts:  getEnvInt("NOTIFIER_MAX_ATTEMPTS", 5),
	}

	// Generate a random JWT secret when none is configured so local
	// development works out of the box. Production must set JWT_SECRET.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateRandomSecret(64)
	}

	// Set up encryption key (derive from JWT secret if not explicitly set)
	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.JWTSecret)
	}

	if cfg.DefaultCookieDays <= 0 {
		return nil, fmt.Errorf("TRACKING_COOKIE_DAYS must be positive")
	}

	return cfg, nil
}

// BlocklistEnabled returns true if the S3-backed blocklist is configured.
func (c *Config) BlocklistEnabled() bool {
	return c.BlocklistBucket != "" && c.StorageEndpoint != ""
}

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
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
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

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "betlinkr-secret-change-me-" + base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
// HKDF is appropriate for deriving keys from high-entropy secrets like JWT
// secrets. For low-entropy passwords, use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("betlinkr-api-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
