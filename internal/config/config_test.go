package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("UPLOAD_TIMEOUT_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.UploadTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", " Production ")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://www.example.com ,")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("UPLOAD_TIMEOUT_SECONDS", "5")
	t.Setenv("S3_PUBLIC_READ", "false")
	t.Setenv("BROADCAST_MODE", "LOCAL")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://app.example.com", "https://www.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.UploadTimeout)
	assert.False(t, cfg.S3PublicRead)
	assert.Equal(t, "local", cfg.BroadcastMode)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("UPLOAD_TIMEOUT_SECONDS", "soon")
	t.Setenv("SEND_RATE_PER_MINUTE", "-3")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.UploadTimeout)
	assert.Equal(t, 60, cfg.SendRatePerMinute)
}

func TestLoadDevSessions(t *testing.T) {
	t.Setenv("DEV_SESSIONS", "alice:65a1f0c2e4b0a1b2c3d4e5f6, broken, :x,bob:65a1f0c2e4b0a1b2c3d4e5f7")

	cfg := Load()
	assert.Equal(t, map[string]string{
		"alice": "65a1f0c2e4b0a1b2c3d4e5f6",
		"bob":   "65a1f0c2e4b0a1b2c3d4e5f7",
	}, cfg.DevSessions)
}
