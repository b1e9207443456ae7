package storage

import (
	"time"

	"referral-bot/internal/models"
)

// Store is the persistence contract shared by the flat-file and postgres
// backends. All writes are upsert-by-key (last writer wins). Lookups that
// find nothing return (nil, nil): a missing record is a neutral result, not
// an error.
type Store interface {
	GetUser(id int64) (*models.User, error)
	SaveUser(u *models.User) error
	GetAllUsers() ([]models.User, error)

	RegisterChannel(id int64, name string) error
	GetChannel(id int64) (*models.Channel, error)
	GetAllChannels() ([]models.Channel, error)

	GetLink(userID, channelID int64) (*models.UserChannelLink, error)
	SaveLink(l *models.UserChannelLink) error
	GetChannelLinks(channelID int64) ([]models.UserChannelLink, error)
	GetUserLinks(userID int64) ([]models.UserChannelLink, error)

	AddPendingReferral(userID, channelID, referrerID int64) error
	GetPendingReferral(userID, channelID int64) (*models.PendingReferral, error)
	RemovePendingReferral(userID, channelID int64) error
	// CleanupPendingReferrals removes pending referrals older than maxAge and
	// returns how many were dropped.
	CleanupPendingReferrals(maxAge time.Duration) (int, error)

	StoreReferralCode(code string, referrerID, channelID int64) error
	GetReferralCode(code string) (*models.ReferralCode, error)

	StoreInviteLink(link string, referrerID, channelID int64, referralCode string) error
	LookupInviteLink(link string) (*models.InviteLinkMapping, error)

	Counts() (Counts, error)
}

// Aggregator is an optional backend capability. Backends that can compute
// per-channel totals natively implement it; callers fall back to scanning
// channel links otherwise.
type Aggregator interface {
	ChannelAggregate(channelID int64) (*ChannelAggregate, error)
}

type ChannelAggregate struct {
	TotalUsers      int `json:"total_users"`
	ActiveReferrers int `json:"active_referrers"`
	TotalReferrals  int `json:"total_referrals"`
	RewardsClaimed  int `json:"rewards_claimed"`
}

// Counts is a cross-collection summary for the super-admin dashboard.
type Counts struct {
	Users            int `json:"total_users"`
	Channels         int `json:"total_channels"`
	ReferralCodes    int `json:"total_referral_codes"`
	PendingReferrals int `json:"pending_referrals"`
}
