package referral

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/models"
	"referral-bot/internal/storage"
)

var (
	ErrInvalidCode  = errors.New("invalid referral code")
	ErrSelfReferral = errors.New("self-referral is not allowed")
	ErrNoReward     = errors.New("no rewards available")
)

// Config is the engine's immutable configuration.
type Config struct {
	// Target is the number of successful referrals needed per reward,
	// shared across all channels.
	Target      int
	BotUsername string
}

// Engine owns the referral bookkeeping: attribution of joins, counter
// updates, leave reversal and reward-claim arithmetic. It never caches
// entity state across calls; every operation reads, mutates and writes back
// through the store.
type Engine struct {
	store   storage.Store
	cache   *storage.StatsCache
	cfg     Config
	sources []Source
	locks   keyedMutex
}

func NewEngine(store storage.Store, cache *storage.StatsCache, cfg Config) *Engine {
	return &Engine{
		store: store,
		cache: cache,
		cfg:   cfg,
		// Fixed precedence: a pending deep-link reservation beats an
		// invite-link match for the same join.
		sources: []Source{
			pendingSource{store: store},
			inviteLinkSource{store: store},
		},
	}
}

func (e *Engine) Target() int { return e.cfg.Target }

// GenerateReferralLink returns the user's deep link for the channel, issuing
// a fresh code the first time and reusing the stored one afterwards.
func (e *Engine) GenerateReferralLink(userID, channelID int64) (string, error) {
	unlock := e.locks.lock(pairLockKey(userID, channelID))
	defer unlock()

	link, err := e.store.GetLink(userID, channelID)
	if err != nil {
		return "", err
	}
	if link != nil && link.ReferralLink != "" {
		return link.ReferralLink, nil
	}

	code := EncodeCode(userID, channelID)
	if err := e.store.StoreReferralCode(code, userID, channelID); err != nil {
		return "", fmt.Errorf("failed to store referral code: %w", err)
	}

	if link == nil {
		link = &models.UserChannelLink{UserID: userID, ChannelID: channelID}
	}
	link.ReferralCode = code
	link.ReferralLink = DeepLink(e.cfg.BotUsername, code)
	if err := e.store.SaveLink(link); err != nil {
		return "", err
	}

	log.Info().Int64("user_id", userID).Int64("channel_id", channelID).Msg("Generated referral link")
	return link.ReferralLink, nil
}

// ResolveCode validates a referral code and returns who issued it for which
// channel. Codes that don't decode are retried against the stored code
// mapping before being rejected.
func (e *Engine) ResolveCode(code string) (referrerID, channelID int64, err error) {
	if data, ok := DecodeCode(code); ok {
		return data.ReferrerID, data.ChannelID, nil
	}

	rec, err := e.store.GetReferralCode(code)
	if err != nil {
		return 0, 0, err
	}
	if rec == nil {
		return 0, 0, ErrInvalidCode
	}
	return rec.ReferrerID, rec.ChannelID, nil
}

// StartReferral records the pending reservation for a prospective joiner.
// The self-referral guard fires before anything is written.
func (e *Engine) StartReferral(joinerID, referrerID, channelID int64) error {
	if referrerID == joinerID {
		return ErrSelfReferral
	}
	if err := e.store.AddPendingReferral(joinerID, channelID, referrerID); err != nil {
		return fmt.Errorf("failed to record pending referral: %w", err)
	}
	return nil
}

// RegisterInviteLink stores the invite-link attribution mapping for a native
// channel invite link created on behalf of a referrer.
func (e *Engine) RegisterInviteLink(inviteLink string, referrerID, channelID int64, code string) error {
	return e.store.StoreInviteLink(inviteLink, referrerID, channelID, code)
}

// EnsureInviteLink returns the user's native channel invite link, calling
// create to mint one through the transport the first time. The link is
// registered as an attribution mapping for the user.
func (e *Engine) EnsureInviteLink(userID, channelID int64, create func() (string, error)) (string, error) {
	unlock := e.locks.lock(pairLockKey(userID, channelID))
	defer unlock()

	link, err := e.store.GetLink(userID, channelID)
	if err != nil {
		return "", err
	}
	if link != nil && link.InviteLink != "" {
		return link.InviteLink, nil
	}

	invite, err := create()
	if err != nil {
		return "", err
	}

	if link == nil {
		link = &models.UserChannelLink{UserID: userID, ChannelID: channelID}
	}
	link.InviteLink = invite
	if err := e.store.SaveLink(link); err != nil {
		return "", err
	}
	if err := e.store.StoreInviteLink(invite, userID, channelID, link.ReferralCode); err != nil {
		return "", err
	}
	return invite, nil
}

// UserLinks returns every channel record the user holds.
func (e *Engine) UserLinks(userID int64) ([]models.UserChannelLink, error) {
	return e.store.GetUserLinks(userID)
}

// ResolveJoin decides who, if anyone, gets credit for a join. Sources are
// consulted in precedence order; a resolved referrer equal to the joiner is
// rejected and the join treated as organic.
func (e *Engine) ResolveJoin(channelID, joinerID int64, inviteLink string) (int64, bool) {
	join := JoinEvent{ChannelID: channelID, UserID: joinerID, InviteLink: inviteLink}
	for _, src := range e.sources {
		referrerID, ok, err := src.Resolve(join)
		if err != nil {
			log.Error().Err(err).Int64("channel_id", channelID).Int64("user_id", joinerID).
				Msg("Attribution source failed")
			continue
		}
		if !ok {
			continue
		}
		if referrerID == joinerID {
			return 0, false
		}
		return referrerID, true
	}
	return 0, false
}

// ProcessSuccessfulReferral credits the referrer for the referred user's
// join and returns the new successful-referral total. Crediting the same
// referred user twice without an intervening leave is a no-op.
func (e *Engine) ProcessSuccessfulReferral(referrerID, channelID, referredUserID int64) (int, error) {
	unlock := e.locks.lock(pairLockKey(referrerID, channelID))
	defer unlock()

	link, err := e.store.GetLink(referrerID, channelID)
	if err != nil {
		return 0, err
	}
	if link == nil {
		link = &models.UserChannelLink{UserID: referrerID, ChannelID: channelID}
	}
	if link.ReferredUsers.Contains(referredUserID) {
		return link.SuccessfulReferrals, nil
	}

	link.SuccessfulReferrals++
	link.ReferredUsers = append(link.ReferredUsers, referredUserID)
	link.History = append(link.History, models.ReferralEvent{
		ID:        uuid.New().String(),
		UserID:    referredUserID,
		Action:    models.EventJoined,
		Timestamp: time.Now(),
	})

	if err := e.store.SaveLink(link); err != nil {
		return 0, err
	}
	e.cache.Invalidate(channelID)

	log.Info().
		Int64("referrer_id", referrerID).
		Int64("referred_user_id", referredUserID).
		Int64("channel_id", channelID).
		Int("total", link.SuccessfulReferrals).
		Msg("Processed successful referral")
	return link.SuccessfulReferrals, nil
}

// ProcessReferralLeave reverses credit when a referred user leaves. Leaves
// for users never credited to this referrer are no-ops, and the counter
// never drops below zero.
func (e *Engine) ProcessReferralLeave(referrerID, channelID, leftUserID int64) (int, error) {
	unlock := e.locks.lock(pairLockKey(referrerID, channelID))
	defer unlock()

	link, err := e.store.GetLink(referrerID, channelID)
	if err != nil {
		return 0, err
	}
	if link == nil {
		return 0, nil
	}
	if !link.ReferredUsers.Contains(leftUserID) {
		return link.SuccessfulReferrals, nil
	}

	if link.SuccessfulReferrals > 0 {
		link.SuccessfulReferrals--
	}
	link.ReferredUsers = link.ReferredUsers.Without(leftUserID)
	link.History = append(link.History, models.ReferralEvent{
		ID:        uuid.New().String(),
		UserID:    leftUserID,
		Action:    models.EventLeft,
		Timestamp: time.Now(),
	})

	if err := e.store.SaveLink(link); err != nil {
		return 0, err
	}
	e.cache.Invalidate(channelID)

	log.Info().
		Int64("referrer_id", referrerID).
		Int64("left_user_id", leftUserID).
		Int64("channel_id", channelID).
		Int("total", link.SuccessfulReferrals).
		Msg("Processed referral leave")
	return link.SuccessfulReferrals, nil
}

// FindReferrer locates who referred a user into a channel, if anyone.
func (e *Engine) FindReferrer(channelID, userID int64) (int64, bool, error) {
	links, err := e.store.GetChannelLinks(channelID)
	if err != nil {
		return 0, false, err
	}
	for _, l := range links {
		if l.ReferredUsers.Contains(userID) {
			return l.UserID, true, nil
		}
	}
	return 0, false, nil
}

// ClaimReward redeems exactly one reward per call.
// eligible = floor(successful_referrals / target) - rewards_claimed.
func (e *Engine) ClaimReward(userID, channelID int64) (int, error) {
	unlock := e.locks.lock(pairLockKey(userID, channelID))
	defer unlock()

	link, err := e.store.GetLink(userID, channelID)
	if err != nil {
		return 0, err
	}
	if link == nil {
		return 0, ErrNoReward
	}

	eligible := link.SuccessfulReferrals/e.cfg.Target - link.RewardsClaimed
	if eligible <= 0 {
		return 0, ErrNoReward
	}

	link.RewardsClaimed++
	if err := e.store.SaveLink(link); err != nil {
		return 0, err
	}
	e.cache.Invalidate(channelID)

	log.Info().Int64("user_id", userID).Int64("channel_id", channelID).
		Int("rewards_claimed", link.RewardsClaimed).Msg("Reward claimed")
	return link.RewardsClaimed, nil
}

// Progress is the per-user, per-channel view shown by /status.
type Progress struct {
	SuccessfulReferrals int
	RewardsClaimed      int
	ProgressPercent     float64
	ReferralsNeeded     int
	AvailableRewards    int
	History             models.EventList
}

func (e *Engine) UserProgress(userID, channelID int64) (*Progress, error) {
	link, err := e.store.GetLink(userID, channelID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, nil
	}

	pct := float64(link.SuccessfulReferrals) / float64(e.cfg.Target) * 100
	if pct > 100 {
		pct = 100
	}
	needed := e.cfg.Target - link.SuccessfulReferrals
	if needed < 0 {
		needed = 0
	}

	return &Progress{
		SuccessfulReferrals: link.SuccessfulReferrals,
		RewardsClaimed:      link.RewardsClaimed,
		ProgressPercent:     pct,
		ReferralsNeeded:     needed,
		AvailableRewards:    link.SuccessfulReferrals/e.cfg.Target - link.RewardsClaimed,
		History:             link.History,
	}, nil
}

// ChannelStats returns aggregate channel totals, preferring a backend-native
// aggregate query and falling back to scanning the channel's links.
func (e *Engine) ChannelStats(channelID int64) (*storage.ChannelAggregate, error) {
	if agg, ok := e.cache.Get(channelID); ok {
		return agg, nil
	}

	if aggregator, ok := e.store.(storage.Aggregator); ok {
		agg, err := aggregator.ChannelAggregate(channelID)
		if err == nil {
			e.cache.Set(channelID, agg)
			return agg, nil
		}
		log.Warn().Err(err).Int64("channel_id", channelID).
			Msg("Native aggregate failed, falling back to scan")
	}

	links, err := e.store.GetChannelLinks(channelID)
	if err != nil {
		return nil, err
	}

	agg := &storage.ChannelAggregate{}
	for _, l := range links {
		agg.TotalUsers++
		agg.TotalReferrals += l.SuccessfulReferrals
		agg.RewardsClaimed += l.RewardsClaimed
		if l.SuccessfulReferrals > 0 {
			agg.ActiveReferrers++
		}
	}
	e.cache.Set(channelID, agg)
	return agg, nil
}

// LeaderboardEntry is one row of a channel leaderboard.
type LeaderboardEntry struct {
	UserID              int64
	SuccessfulReferrals int
	RewardsClaimed      int
}

// Leaderboard lists referrers with at least one successful referral, highest
// first, truncated to limit. Ties keep a stable order on the user id.
func (e *Engine) Leaderboard(channelID int64, limit int) ([]LeaderboardEntry, error) {
	links, err := e.store.GetChannelLinks(channelID)
	if err != nil {
		return nil, err
	}

	var entries []LeaderboardEntry
	for _, l := range links {
		if l.SuccessfulReferrals > 0 {
			entries = append(entries, LeaderboardEntry{
				UserID:              l.UserID,
				SuccessfulReferrals: l.SuccessfulReferrals,
				RewardsClaimed:      l.RewardsClaimed,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].SuccessfulReferrals != entries[j].SuccessfulReferrals {
			return entries[i].SuccessfulReferrals > entries[j].SuccessfulReferrals
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// keyedMutex serializes counter mutations per (referrer, channel) pair so
// concurrent joins for the same referrer cannot lose updates.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func pairLockKey(userID, channelID int64) string {
	return fmt.Sprintf("%d:%d", userID, channelID)
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
