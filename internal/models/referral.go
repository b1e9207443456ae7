package models

import (
	"time"
)

// PendingReferral is a short-lived reservation created when a user clicks a
// referral deep link but has not joined the channel yet. It is consumed the
// moment the join event is observed.
type PendingReferral struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ChannelID  int64     `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	ReferrerID int64     `gorm:"not null" json:"referrer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReferralCode maps an issued code back to its referrer and channel so the
// deep-link attribution path works on every backend.
type ReferralCode struct {
	Code       string    `gorm:"primaryKey;size:128" json:"code"`
	ReferrerID int64     `gorm:"not null;index" json:"referrer_id"`
	ChannelID  int64     `gorm:"not null;index" json:"channel_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// InviteLinkMapping maps a native channel invite link, created per user and
// channel, to the referrer who gets credit when someone joins through it.
type InviteLinkMapping struct {
	InviteLink   string    `gorm:"primaryKey;size:512" json:"invite_link"`
	ReferrerID   int64     `gorm:"not null;index" json:"referrer_id"`
	ChannelID    int64     `gorm:"not null;index" json:"channel_id"`
	ReferralCode string    `gorm:"size:128" json:"referral_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
