package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 10, cfg.ReferralTarget)
	assert.Equal(t, 24*time.Hour, cfg.PendingMaxAge)
	assert.Equal(t, "@every 1h", cfg.SweepSchedule)
	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.False(t, cfg.WebhookMode)
	assert.True(t, cfg.NotifyOnReferral)
	assert.Empty(t, cfg.AllowedChats)

	// With no explicit secret the webhook path falls back to the bot token.
	assert.Equal(t, cfg.BotToken, cfg.WebhookSecret)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "@my_bot")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("REFERRAL_TARGET", "5")
	t.Setenv("SUPER_ADMIN_ID", "42")
	t.Setenv("ALLOWED_CHAT_IDS", "-1001, -1002,")
	t.Setenv("PENDING_REFERRAL_TIMEOUT", "3600")
	t.Setenv("WEBHOOK_MODE", "true")
	t.Setenv("WEBHOOK_SECRET", "hunter2")
	t.Setenv("NOTIFY_ON_LEAVE", "off")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "my_bot", cfg.BotUsername, "leading @ is stripped")
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, 5, cfg.ReferralTarget)
	assert.Equal(t, int64(42), cfg.SuperAdminID)
	assert.Equal(t, []int64{-1001, -1002}, cfg.AllowedChats)
	assert.Equal(t, time.Hour, cfg.PendingMaxAge)
	assert.True(t, cfg.WebhookMode)
	assert.Equal(t, "hunter2", cfg.WebhookSecret)
	assert.False(t, cfg.NotifyOnLeave)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	t.Run("zero target", func(t *testing.T) {
		t.Setenv("REFERRAL_TARGET", "0")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "cassandra")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("negative pending timeout", func(t *testing.T) {
		t.Setenv("PENDING_REFERRAL_TIMEOUT", "-1")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestIsAllowedChat(t *testing.T) {
	open := &Config{}
	assert.True(t, open.IsAllowedChat(-1001), "empty allow list allows every chat")

	restricted := &Config{AllowedChats: []int64{-1001, -1002}}
	assert.True(t, restricted.IsAllowedChat(-1001))
	assert.False(t, restricted.IsAllowedChat(-1003))
}
