package models

import (
	"time"
)

type User struct {
	TelegramID int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Username   string    `gorm:"size:255" json:"username,omitempty"`
	FirstName  string    `gorm:"size:255" json:"first_name,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
	LastActive time.Time `json:"last_active"`
}
