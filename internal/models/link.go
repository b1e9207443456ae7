package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UserChannelLink is the per (user, channel) referral record: the user's
// referral link for that channel, the referral counters and the log of
// referred-user events. SuccessfulReferrals never goes below zero and
// RewardsClaimed only grows.
type UserChannelLink struct {
	UserID              int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ChannelID           int64     `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	ReferralLink        string    `gorm:"size:512" json:"referral_link,omitempty"`
	ReferralCode        string    `gorm:"size:128;index" json:"referral_code,omitempty"`
	InviteLink          string    `gorm:"size:512" json:"invite_link,omitempty"`
	SuccessfulReferrals int       `gorm:"default:0" json:"successful_referrals"`
	RewardsClaimed      int       `gorm:"default:0" json:"rewards_claimed"`
	PendingWelcome      bool      `gorm:"default:false" json:"pending_welcome,omitempty"`
	ReferredUsers       Int64List `gorm:"type:jsonb" json:"referred_users"`
	History             EventList `gorm:"type:jsonb" json:"referral_history"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Int64List is stored as a JSON array in both backends.
type Int64List []int64

func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		l = Int64List{}
	}
	return json.Marshal(l)
}

func (l *Int64List) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into Int64List", value)
	}
}

func (l Int64List) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns the list with the first occurrence of id removed.
func (l Int64List) Without(id int64) Int64List {
	out := make(Int64List, 0, len(l))
	removed := false
	for _, v := range l {
		if !removed && v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out
}
