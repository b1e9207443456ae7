package referral

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-bot/internal/models"
	"referral-bot/internal/storage"
)

const (
	testChannel = int64(-1001234567890)
	alice       = int64(111)
	bob         = int64(222)
	carol       = int64(333)
)

func newTestEngine(t *testing.T, target int) (*Engine, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	engine := NewEngine(store, storage.NewStatsCache(nil, 0), Config{
		Target:      target,
		BotUsername: "test_referral_bot",
	})
	return engine, store
}

func TestGenerateReferralLinkIsStable(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	first, err := engine.GenerateReferralLink(alice, testChannel)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "https://t.me/test_referral_bot?start="))

	second, err := engine.GenerateReferralLink(alice, testChannel)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The embedded code round-trips to the issuing user and channel.
	code := strings.TrimPrefix(first, "https://t.me/test_referral_bot?start=")
	data, ok := DecodeCode(code)
	require.True(t, ok)
	assert.Equal(t, alice, data.ReferrerID)
	assert.Equal(t, testChannel, data.ChannelID)

	// The code is also persisted for lookup-based resolution.
	rec, err := store.GetReferralCode(code)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, alice, rec.ReferrerID)
}

func TestResolveCode(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	referrerID, channelID, err := engine.ResolveCode(EncodeCode(alice, testChannel))
	require.NoError(t, err)
	assert.Equal(t, alice, referrerID)
	assert.Equal(t, testChannel, channelID)

	// Codes that no longer decode still resolve through the stored mapping.
	require.NoError(t, store.StoreReferralCode("legacy-code", bob, testChannel))
	referrerID, channelID, err = engine.ResolveCode("legacy-code")
	require.NoError(t, err)
	assert.Equal(t, bob, referrerID)
	assert.Equal(t, testChannel, channelID)

	_, _, err = engine.ResolveCode("no-such-code")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestStartReferralSelfGuard(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	err := engine.StartReferral(alice, alice, testChannel)
	assert.ErrorIs(t, err, ErrSelfReferral)

	// The guard fires before anything is written.
	pending, err := store.GetPendingReferral(alice, testChannel)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestStartReferralRecordsPending(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	require.NoError(t, engine.StartReferral(bob, alice, testChannel))

	pending, err := store.GetPendingReferral(bob, testChannel)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, alice, pending.ReferrerID)
}

func TestResolveJoinPrecedence(t *testing.T) {
	engine, store := newTestEngine(t, 10)
	invite := "https://t.me/+abcdef"

	// Bob clicked Alice's deep link, but joins through Carol's invite link.
	require.NoError(t, engine.StartReferral(bob, alice, testChannel))
	require.NoError(t, engine.RegisterInviteLink(invite, carol, testChannel, "code"))

	referrerID, ok := engine.ResolveJoin(testChannel, bob, invite)
	require.True(t, ok)
	assert.Equal(t, alice, referrerID, "pending referral outranks the invite link")

	// The pending record is single use.
	pending, err := store.GetPendingReferral(bob, testChannel)
	require.NoError(t, err)
	assert.Nil(t, pending)

	// With the pending record consumed the invite link wins next time.
	referrerID, ok = engine.ResolveJoin(testChannel, bob, invite)
	require.True(t, ok)
	assert.Equal(t, carol, referrerID)
}

func TestResolveJoinOrganic(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	_, ok := engine.ResolveJoin(testChannel, bob, "")
	assert.False(t, ok)
}

func TestResolveJoinRejectsSelfAttribution(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	// A pending record naming the joiner as their own referrer is discarded.
	require.NoError(t, store.AddPendingReferral(alice, testChannel, alice))
	_, ok := engine.ResolveJoin(testChannel, alice, "")
	assert.False(t, ok)
}

func TestResolveJoinIgnoresForeignChannelInvite(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	invite := "https://t.me/+other"

	require.NoError(t, engine.RegisterInviteLink(invite, alice, testChannel, "code"))
	_, ok := engine.ResolveJoin(testChannel+1, bob, invite)
	assert.False(t, ok)
}

func TestProcessSuccessfulReferralDeduplicates(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	total, err := engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// Same referred user again: no double credit.
	total, err = engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = engine.ProcessSuccessfulReferral(alice, testChannel, carol)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestProcessReferralLeave(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	_, err := engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)

	total, err := engine.ProcessReferralLeave(alice, testChannel, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	// A second leave for the same user is a no-op and never goes negative.
	total, err = engine.ProcessReferralLeave(alice, testChannel, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	// Leaves for users the referrer never credited are no-ops too.
	total, err = engine.ProcessReferralLeave(alice, testChannel, carol)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestLeaveThenRejoinCanBeCreditedAgain(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	_, err := engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)
	_, err = engine.ProcessReferralLeave(alice, testChannel, bob)
	require.NoError(t, err)

	total, err := engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestFindReferrer(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	_, err := engine.ProcessSuccessfulReferral(alice, testChannel, bob)
	require.NoError(t, err)

	referrerID, ok, err := engine.FindReferrer(testChannel, bob)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alice, referrerID)

	_, ok, err = engine.FindReferrer(testChannel, carol)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimRewardMath(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	require.NoError(t, store.SaveLink(&models.UserChannelLink{
		UserID:              alice,
		ChannelID:           testChannel,
		SuccessfulReferrals: 25,
		RewardsClaimed:      1,
	}))

	// 25 referrals at target 10 earn 2 rewards; 1 already claimed.
	claimed, err := engine.ClaimReward(alice, testChannel)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)

	_, err = engine.ClaimReward(alice, testChannel)
	assert.ErrorIs(t, err, ErrNoReward)
}

func TestClaimRewardWithoutLink(t *testing.T) {
	engine, _ := newTestEngine(t, 10)

	_, err := engine.ClaimReward(alice, testChannel)
	assert.ErrorIs(t, err, ErrNoReward)
}

func TestReferralLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, 1)

	// Alice shares her link, Bob clicks it and joins.
	link, err := engine.GenerateReferralLink(alice, testChannel)
	require.NoError(t, err)
	code := strings.TrimPrefix(link, "https://t.me/test_referral_bot?start=")

	referrerID, channelID, err := engine.ResolveCode(code)
	require.NoError(t, err)
	require.NoError(t, engine.StartReferral(bob, referrerID, channelID))

	resolved, ok := engine.ResolveJoin(channelID, bob, "")
	require.True(t, ok)
	total, err := engine.ProcessSuccessfulReferral(resolved, channelID, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// Target 1, so one referral is one claimable reward.
	progress, err := engine.UserProgress(alice, testChannel)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.AvailableRewards)
	assert.Equal(t, float64(100), progress.ProgressPercent)
	assert.Len(t, progress.History, 1)

	claimed, err := engine.ClaimReward(alice, testChannel)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	// Bob leaves, Alice drops back to zero.
	total, err = engine.ProcessReferralLeave(alice, channelID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestUserProgressBounds(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	require.NoError(t, store.SaveLink(&models.UserChannelLink{
		UserID:              alice,
		ChannelID:           testChannel,
		SuccessfulReferrals: 42,
	}))

	progress, err := engine.UserProgress(alice, testChannel)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, float64(100), progress.ProgressPercent)
	assert.Equal(t, 0, progress.ReferralsNeeded)
	assert.Equal(t, 4, progress.AvailableRewards)

	missing, err := engine.UserProgress(bob, testChannel)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestChannelStatsScan(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	require.NoError(t, store.SaveLink(&models.UserChannelLink{
		UserID: alice, ChannelID: testChannel, SuccessfulReferrals: 5, RewardsClaimed: 1,
	}))
	require.NoError(t, store.SaveLink(&models.UserChannelLink{
		UserID: bob, ChannelID: testChannel, SuccessfulReferrals: 0,
	}))
	require.NoError(t, store.SaveLink(&models.UserChannelLink{
		UserID: carol, ChannelID: testChannel, SuccessfulReferrals: 3,
	}))

	stats, err := engine.ChannelStats(testChannel)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 2, stats.ActiveReferrers)
	assert.Equal(t, 8, stats.TotalReferrals)
	assert.Equal(t, 1, stats.RewardsClaimed)
}

func TestLeaderboard(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	for userID, referrals := range map[int64]int{101: 5, 102: 0, 103: 12, 104: 3} {
		require.NoError(t, store.SaveLink(&models.UserChannelLink{
			UserID:              userID,
			ChannelID:           testChannel,
			SuccessfulReferrals: referrals,
		}))
	}

	board, err := engine.Leaderboard(testChannel, 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, int64(103), board[0].UserID)
	assert.Equal(t, 12, board[0].SuccessfulReferrals)
	assert.Equal(t, int64(101), board[1].UserID)

	// Zero-referral users never make the board, whatever the limit.
	full, err := engine.Leaderboard(testChannel, 10)
	require.NoError(t, err)
	assert.Len(t, full, 3)
}

func TestEnsureInviteLinkIdempotent(t *testing.T) {
	engine, store := newTestEngine(t, 10)

	calls := 0
	mint := func() (string, error) {
		calls++
		return "https://t.me/+minted", nil
	}

	first, err := engine.EnsureInviteLink(alice, testChannel, mint)
	require.NoError(t, err)
	second, err := engine.EnsureInviteLink(alice, testChannel, mint)
	require.NoError(t, err)

	assert.Equal(t, "https://t.me/+minted", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	// The minted link resolves back to its owner.
	mapping, err := store.LookupInviteLink(first)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, alice, mapping.ReferrerID)
}
