package referral

import (
	"github.com/rs/zerolog/log"

	"referral-bot/internal/storage"
)

// JoinEvent describes an observed channel join.
type JoinEvent struct {
	ChannelID  int64
	UserID     int64
	InviteLink string
}

// Source resolves a join event to a referrer. A source consumes any
// single-use state backing the attribution when it resolves.
type Source interface {
	Resolve(join JoinEvent) (referrerID int64, ok bool, err error)
}

// pendingSource wins when the joiner previously clicked a referral deep link:
// the reservation is deleted the moment it is used.
type pendingSource struct {
	store storage.Store
}

func (s pendingSource) Resolve(join JoinEvent) (int64, bool, error) {
	p, err := s.store.GetPendingReferral(join.UserID, join.ChannelID)
	if err != nil || p == nil {
		return 0, false, err
	}
	if err := s.store.RemovePendingReferral(join.UserID, join.ChannelID); err != nil {
		log.Warn().Err(err).
			Int64("user_id", join.UserID).
			Int64("channel_id", join.ChannelID).
			Msg("Failed to consume pending referral")
	}
	return p.ReferrerID, true, nil
}

// inviteLinkSource attributes joins through a per-user native invite link.
type inviteLinkSource struct {
	store storage.Store
}

func (s inviteLinkSource) Resolve(join JoinEvent) (int64, bool, error) {
	if join.InviteLink == "" {
		return 0, false, nil
	}
	m, err := s.store.LookupInviteLink(join.InviteLink)
	if err != nil || m == nil {
		return 0, false, err
	}
	if m.ChannelID != join.ChannelID {
		return 0, false, nil
	}
	return m.ReferrerID, true, nil
}
