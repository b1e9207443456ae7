package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	BotToken    string
	BotUsername string

	StorageBackend string
	DataDir        string

	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	StatsCacheTTL time.Duration

	ReferralTarget int
	RewardType     string
	SuperAdminID   int64
	AllowedChats   []int64

	PendingMaxAge time.Duration
	SweepSchedule string

	WebhookMode   bool
	WebhookURL    string
	WebhookSecret string
	HTTPPort      string

	NotifyOnReferral bool
	NotifyOnLeave    bool
	NotifyOnReward   bool

	Debug bool
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using system environment variables")
	}

	cfg := &Config{
		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername: strings.TrimPrefix(getEnv("BOT_USERNAME", ""), "@"),

		StorageBackend: getEnv("STORAGE_BACKEND", BackendFile),
		DataDir:        getEnv("DATA_DIR", "data"),

		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "referral_bot"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StatsCacheTTL: time.Duration(getEnvInt("STATS_CACHE_TTL", 60)) * time.Second,

		ReferralTarget: getEnvInt("REFERRAL_TARGET", 10),
		RewardType:     getEnv("REWARD_TYPE", "Premium Access"),
		SuperAdminID:   getEnvInt64("SUPER_ADMIN_ID", 0),
		AllowedChats:   parseIDList(getEnv("ALLOWED_CHAT_IDS", "")),

		PendingMaxAge: time.Duration(getEnvInt("PENDING_REFERRAL_TIMEOUT", 86400)) * time.Second,
		SweepSchedule: getEnv("PENDING_SWEEP_SCHEDULE", "@every 1h"),

		WebhookMode:   getEnvBool("WEBHOOK_MODE", false),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		HTTPPort:      getEnv("PORT", "8000"),

		NotifyOnReferral: getEnvBool("NOTIFY_ON_REFERRAL", true),
		NotifyOnLeave:    getEnvBool("NOTIFY_ON_LEAVE", true),
		NotifyOnReward:   getEnvBool("NOTIFY_ON_REWARD", true),

		Debug: getEnvBool("DEBUG", false),
	}

	// The webhook path token defaults to the bot token, matching the URL
	// registered with Telegram.
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = cfg.BotToken
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReferralTarget <= 0 {
		return fmt.Errorf("REFERRAL_TARGET must be greater than 0, got %d", c.ReferralTarget)
	}
	if c.StorageBackend != BackendFile && c.StorageBackend != BackendPostgres {
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.PendingMaxAge <= 0 {
		return fmt.Errorf("PENDING_REFERRAL_TIMEOUT must be positive")
	}
	return nil
}

// IsAllowedChat reports whether the chat is on the allow list. An empty list
// allows every chat.
func (c *Config) IsAllowedChat(chatID int64) bool {
	if len(c.AllowedChats) == 0 {
		return true
	}
	for _, id := range c.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func parseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
