package bot

import (
	"strings"
)

// Button labels.
const (
	btnStatus  = "📊 My Status"
	btnClaim   = "🎁 Claim Rewards"
	btnHelp    = "❓ Help"
	btnMyLink  = "💎 My Link"
	btnGetLink = "Get my referral link"
	btnRefresh = "🔄 Refresh"
)

// Message templates. Placeholders are filled with fmt.Sprintf.
const (
	msgWelcome = "🎉 Welcome to the Referral Bot, %s!\n\n" +
		"I help you manage referral systems for Telegram channels.\n\n" +
		"🔹 Get invited to channels and earn rewards\n" +
		"🔹 Share your referral links to invite others\n" +
		"🔹 Track your progress and claim rewards\n\n" +
		"Use /help to see all available commands."

	msgWelcomeGroup = "👋 Hi! I'm a referral bot. Add me as an admin to your channel to start using referral features!"

	msgHelp = "🤖 *Referral Bot Commands*\n\n" +
		"• `/start` - Start the bot or join via referral link\n" +
		"• `/status` - Check your referral progress\n" +
		"• `/mylink` - Show your referral links\n" +
		"• `/claim` - Claim your rewards\n" +
		"• `/help` - Show this help message\n" +
		"• `/admin` - Admin commands (channel admins only)\n\n" +
		"*How to Earn:*\n" +
		"1️⃣ Get your link with /start\n" +
		"2️⃣ Invite %d friends to the channel\n" +
		"3️⃣ Use /claim to redeem your reward!"

	msgInvalidLink = "❌ Invalid referral link. Please check the link and try again."

	msgSelfReferral = "❌ You cannot use your own referral link!"

	msgAlreadyMember = "ℹ️ You're already a member of this channel!"

	msgJoinInvite = "🎉 Welcome! You've been invited to join:\n\n" +
		"📺 *%s*\n\n" +
		"Click the link below to join:\n%s\n\n" +
		"After joining, you'll get your own referral link to earn rewards!"

	msgJoinFailed = "❌ There was an error processing your referral. " +
		"Please make sure the bot is added as an admin to the channel."

	msgMemberWelcome = "🎉 Welcome to %s!\n\n" +
		"🔗 Here's your unique referral link:\n`%s`\n\n" +
		"Share this link to invite %d friends and earn rewards!\n\n" +
		"Use /status to track your progress."

	msgChannelFallback = "Welcome, %s! 🚀\n" +
		"Tap '" + btnGetLink + "' below to start the bot and claim your unique link."

	msgPendingWelcome = "🎉 Welcome to %s!\n\n" +
		"🔗 Here's your unique referral link:\n`%s`\n\n" +
		"Share this link to invite %d friends and earn rewards!"

	msgStatusHeader = "📊 *Your Referral Status*\n\n"

	msgStatusEmpty = "📊 *Your Referral Status*\n\n" +
		"You haven't joined any channels yet.\n" +
		"Use a referral link to get started!"

	msgClaimEmpty = "🎁 *Claim Rewards*\n\n" +
		"No rewards available to claim.\n" +
		"Keep inviting friends to earn rewards!"

	msgClaimHeader = "🎁 *Available Rewards*\n\n"

	msgClaimSuccess = "🎉 *Congratulations!*\n\n" +
		"You've successfully claimed your reward for %s!\n\n" +
		"🎁 Reward: %s\n" +
		"📊 Total rewards claimed: %d\n\n" +
		"Keep inviting friends to earn more rewards!"

	msgClaimNone = "❌ No rewards available. You need %d successful referrals per reward."

	msgMyLink = "🔗 *Your referral link for %s:*\n\n`%s`\n\nTap to copy and share!"

	msgMyLinkMissing = "⚠️ You don't have a referral link yet.\nUse /start to generate one!"

	msgReferralNotification = "🚀 *New Referral!*\n\n" +
		"Someone just joined using your link!\n" +
		"📊 Total Referrals: %d/%d\n"

	msgMilestoneReached = "\n🏆 *TARGET REACHED!* 🏆\n" +
		"You have reached %d referrals!\n" +
		"Use /claim to get your reward."

	msgReferralLeft = "😔 Someone you referred has left the channel.\n\n" +
		"Use /status to check your updated progress."

	msgAdminDenied = "❌ You need to be a channel admin to use this command."

	msgAdminStats = "🔧 *Channel Admin Panel*\n\n" +
		"📊 *%s*\n" +
		"• Total users: %d\n" +
		"• Active referrers: %d\n" +
		"• Total referrals: %d\n" +
		"• Rewards claimed: %d\n\n" +
		"🎯 *Settings:*\n" +
		"• Referral target: %d\n" +
		"• Reward type: %s\n"

	msgSuperAdminHeader = "🛠 *Bot Dashboard*\n\n" +
		"• Users: %d\n" +
		"• Channels: %d\n" +
		"• Referral codes: %d\n" +
		"• Pending referrals: %d\n\n" +
		"Pick a channel for detailed stats:"
)

// progressBar renders referral progress as a ten-segment bar.
func progressBar(current, target int) string {
	const length = 10
	if target <= 0 {
		return strings.Repeat("▓", length)
	}
	filled := current * length / target
	if filled > length {
		filled = length
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", length-filled)
}
