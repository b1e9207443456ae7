package models

import (
	"time"
)

// Channel is a Telegram channel registered by an admin. IDs follow the
// Telegram convention and are typically negative.
type Channel struct {
	TelegramID   int64     `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	Name         string    `gorm:"size:255" json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	LastUpdated  time.Time `json:"last_updated"`
}
