package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no .env
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("STORAGE_PROVIDER", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "./incentives.db", cfg.Database.Path)
	assert.Equal(t, "console", cfg.Email.Provider)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("PAYMENT_REF_PREFIX", "RDC/PAY/")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "RDC/PAY/", cfg.Workflow.ReferencePrefix)
}

func TestValidate_RequiredBackendSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		missing string
	}{
		{"sendgrid without key", func(c *Config) { c.Email.Provider = "sendgrid" }, "SENDGRID_API_KEY"},
		{"s3 without bucket", func(c *Config) { c.Storage.Provider = "s3" }, "S3_BUCKET"},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Server: ServerConfig{Port: "8080"}, Database: DatabaseConfig{Path: "x.db"}}
			tt.mutate(c)

			err := c.Validate()

			var missing *MissingError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tt.missing, missing.Key)
			assert.ErrorIs(t, err, ErrConfigurationMissing)
		})
	}
}

func TestLookup_ReadsAtCallTime(t *testing.T) {
	t.Setenv(KeyStaffEmail, "")
	_, err := Lookup(KeyStaffEmail)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Contains(t, err.Error(), KeyStaffEmail)

	t.Setenv(KeyStaffEmail, " rdc@pu.test ")
	v, err := Lookup(KeyStaffEmail)
	require.NoError(t, err)
	assert.Equal(t, "rdc@pu.test", v)
}

func TestLogError_StructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)

	LogError(logger, "claim", "SubmitStageAction", "update claim", map[string]string{"id": "c1"}, errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "claim", line["module"])
	assert.Equal(t, "SubmitStageAction", line["funcName"])
	assert.Equal(t, "update claim", line["context"])
	assert.Equal(t, "boom", line["msg"])
	assert.Equal(t, "error", line["level"])
}

func TestLogError_NilErrorIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	LogError(logger, "claim", "Get", "", nil, nil)

	assert.Zero(t, buf.Len())
}

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger(LogConfig{Level: "debug"}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger(LogConfig{Level: "nonsense"}).GetLevel())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
