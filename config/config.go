/*
Package config loads process configuration and provides the shared logger.

PURPOSE:
  Startup settings (port, database, redis, email, storage, tracing) are
  read once into Config. A few values are deliberately read at call time
  through Lookup so that an operator can fix a missing value without a
  restart: the staff broadcast address and the portal base URL.

LOADING ORDER:
  1. .env file in the working directory (optional, godotenv)
  2. Process environment (always wins over .env)
  3. Defaults below

SEE ALSO:
  - logger.go: logrus setup and LogError
  - cmd/server/main.go: Consumer
*/
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

// Call-time keys.
const (
	KeyStaffEmail = "STAFF_EMAIL"
	KeyBaseURL    = "BASE_URL"
)

// =============================================================================
// ERRORS
// =============================================================================

var ErrConfigurationMissing = errors.New("configuration missing")

// MissingError names the configuration value that is absent.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("configuration value %s is not set, contact the administrator", e.Key)
}

func (e *MissingError) Unwrap() error {
	return ErrConfigurationMissing
}

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Email    EmailConfig
	Storage  StorageConfig
	Tracing  TracingConfig
	Log      LogConfig
	Workflow WorkflowConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type DatabaseConfig struct {
	Path string
}

// RedisConfig enables the Redis sequence counter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	Provider       string // "sendgrid" or "console"
	SendGridAPIKey string
	DefaultFrom    string
	DefaultName    string
	RDCFrom        string
	RDCName        string
}

type StorageConfig struct {
	Provider string // "s3" or "memory"
	Bucket   string
	Region   string
	Endpoint string // LocalStack or other S3-compatible endpoint
	Public   bool
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
}

type LogConfig struct {
	Level string
}

type WorkflowConfig struct {
	PolicyFile      string // optional incentive policy override
	ReferencePrefix string // prepended to payment sheet references
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config.godotenv: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./incentives.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", "console"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			DefaultFrom:    getEnv("EMAIL_FROM", "noreply@paruluniversity.ac.in"),
			DefaultName:    getEnv("EMAIL_FROM_NAME", "Research Portal"),
			RDCFrom:        getEnv("RDC_EMAIL_FROM", "rdc@paruluniversity.ac.in"),
			RDCName:        getEnv("RDC_EMAIL_FROM_NAME", "Research & Development Cell"),
		},
		Storage: StorageConfig{
			Provider: getEnv("STORAGE_PROVIDER", "memory"),
			Bucket:   getEnv("S3_BUCKET", ""),
			Region:   getEnv("AWS_REGION", "ap-south-1"),
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Public:   getEnvBool("S3_PUBLIC_PROOFS", true),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName: getEnv("SERVICE_NAME", "incentive-engine"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Workflow: WorkflowConfig{
			PolicyFile:      getEnv("INCENTIVE_POLICY_FILE", ""),
			ReferencePrefix: getEnv("PAYMENT_REF_PREFIX", ""),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks the values the process cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return &MissingError{Key: "PORT"}
	}
	if c.Database.Path == "" {
		return &MissingError{Key: "DATABASE_PATH"}
	}
	if c.Email.Provider == "sendgrid" && c.Email.SendGridAPIKey == "" {
		return &MissingError{Key: "SENDGRID_API_KEY"}
	}
	if c.Storage.Provider == "s3" && c.Storage.Bucket == "" {
		return &MissingError{Key: "S3_BUCKET"}
	}
	return nil
}

// =============================================================================
// CALL-TIME LOOKUPS
// =============================================================================

// Lookup reads a named value now, not at startup.
func Lookup(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", &MissingError{Key: key}
	}
	return v, nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

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
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
