package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DETECT_CONCURRENCY", "PIPELINE_TIMEOUT", "URL_CACHE_TTL", "DETECT_RPS", "RETENTION"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 8, cfg.DetectConcurrency)
	assert.Equal(t, time.Duration(0), cfg.PipelineTimeout)
	assert.Equal(t, 50*time.Minute, cfg.URLCacheTTL)
	assert.Zero(t, cfg.DetectRPS)
	assert.Zero(t, cfg.Retention)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DETECT_CONCURRENCY", "3")
	t.Setenv("PIPELINE_TIMEOUT", "90s")
	t.Setenv("DETECT_RPS", "2.5")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("ENRICH_CONCURRENCY", "lots")

	cfg := Load()
	assert.Equal(t, 3, cfg.DetectConcurrency)
	assert.Equal(t, 90*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, 2.5, cfg.DetectRPS)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
	assert.Equal(t, 5, cfg.EnrichConcurrency)
}
