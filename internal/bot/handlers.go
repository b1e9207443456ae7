package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/models"
	"referral-bot/internal/referral"
)

const getLinkPayload = "getlink_"

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message == nil || message.From == nil {
		return nil
	}
	user := message.From
	b.ensureUser(user)

	args := ""
	if parts := strings.SplitN(message.Text, " ", 2); len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	if message.Chat.Type != telego.ChatTypePrivate {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), msgWelcomeGroup))
		return nil
	}

	if strings.HasPrefix(args, getLinkPayload) {
		channelID, err := strconv.ParseInt(strings.TrimPrefix(args, getLinkPayload), 10, 64)
		if err != nil {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(user.ID), msgInvalidLink))
			return nil
		}
		return b.sendUserLink(ctx, user.ID, channelID)
	}

	if args != "" {
		return b.handleReferralStart(ctx, user.ID, args)
	}

	b.flushPendingWelcomes(ctx, user.ID)

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(btnStatus).WithCallbackData("status"),
			tu.InlineKeyboardButton(btnMyLink).WithCallbackData("mylink"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(btnClaim).WithCallbackData("claim"),
			tu.InlineKeyboardButton(btnHelp).WithCallbackData("help"),
		),
	)
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(user.ID),
		fmt.Sprintf(msgWelcome, user.FirstName),
	).WithReplyMarkup(keyboard))
	return nil
}

// handleReferralStart runs the deep-link referral flow: validate the code,
// short-circuit existing members, reserve the pending referral and hand the
// prospective joiner an invite into the channel.
func (b *Bot) handleReferralStart(ctx *th.Context, userID int64, code string) error {
	referrerID, channelID, err := b.Engine.ResolveCode(code)
	if err != nil {
		if errors.Is(err, referral.ErrInvalidCode) {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgInvalidLink))
			return nil
		}
		return err
	}

	member, err := ctx.Bot().GetChatMember(ctx.Context(), &telego.GetChatMemberParams{
		ChatID: tu.ID(channelID),
		UserID: userID,
	})
	if err == nil && isMemberStatus(member.MemberStatus()) {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgAlreadyMember))
		return nil
	}

	if err := b.Engine.StartReferral(userID, referrerID, channelID); err != nil {
		if errors.Is(err, referral.ErrSelfReferral) {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgSelfReferral))
			return nil
		}
		return err
	}

	chat, err := ctx.Bot().GetChat(ctx.Context(), &telego.GetChatParams{ChatID: tu.ID(channelID)})
	if err != nil {
		log.Error().Err(err).Int64("channel_id", channelID).Msg("Failed to fetch channel for referral join")
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgJoinFailed))
		return nil
	}

	invite, err := ctx.Bot().CreateChatInviteLink(ctx.Context(), &telego.CreateChatInviteLinkParams{
		ChatID: tu.ID(channelID),
	})
	if err != nil {
		log.Error().Err(err).Int64("channel_id", channelID).Msg("Failed to create invite link for referral join")
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgJoinFailed))
		return nil
	}

	// The invite carries the referrer's attribution too, so the join still
	// credits them if the pending record expires first.
	if err := b.Engine.RegisterInviteLink(invite.InviteLink, referrerID, channelID, code); err != nil {
		log.Error().Err(err).Msg("Failed to register invite link mapping")
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(userID),
		fmt.Sprintf(msgJoinInvite, chat.Title, invite.InviteLink),
	).WithParseMode(telego.ModeMarkdown))
	return nil
}

func (b *Bot) handleHelp(ctx *th.Context, update telego.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	return b.sendHelp(ctx, update.Message.From.ID)
}

func (b *Bot) sendHelp(ctx *th.Context, userID int64) error {
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(userID),
		fmt.Sprintf(msgHelp, b.Engine.Target()),
	).WithParseMode(telego.ModeMarkdown))
	return nil
}

func (b *Bot) handleStatus(ctx *th.Context, update telego.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	return b.sendStatus(ctx, update.Message.From.ID)
}

func (b *Bot) sendStatus(ctx *th.Context, userID int64) error {
	links, err := b.Engine.UserLinks(userID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgStatusEmpty).
			WithParseMode(telego.ModeMarkdown))
		return nil
	}

	target := b.Engine.Target()
	text := msgStatusHeader
	for _, l := range links {
		name := b.channelName(ctx, l.ChannelID)
		text += fmt.Sprintf("🔸 *%s*\n", name)
		text += fmt.Sprintf("   • Referrals: %d/%d\n", l.SuccessfulReferrals, target)
		text += fmt.Sprintf("   • Progress: %s\n", progressBar(l.SuccessfulReferrals, target))
		text += fmt.Sprintf("   • Rewards claimed: %d\n", l.RewardsClaimed)
		if l.SuccessfulReferrals >= target {
			text += "   • ✅ Ready to claim reward!\n"
		} else {
			text += fmt.Sprintf("   • 🎯 Need %d more referrals\n", target-l.SuccessfulReferrals)
		}
		text += "\n"
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton(btnClaim).WithCallbackData("claim")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton(btnRefresh).WithCallbackData("status")),
	)
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text).
		WithParseMode(telego.ModeMarkdown).WithReplyMarkup(keyboard))
	return nil
}

func (b *Bot) handleMyLink(ctx *th.Context, update telego.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	return b.sendMyLink(ctx, update.Message.From.ID)
}

func (b *Bot) sendMyLink(ctx *th.Context, userID int64) error {
	links, err := b.Engine.UserLinks(userID)
	if err != nil {
		return err
	}

	sent := false
	for _, l := range links {
		if l.ReferralLink == "" {
			continue
		}
		name := b.channelName(ctx, l.ChannelID)
		text := fmt.Sprintf(msgMyLink, name, l.ReferralLink)
		if l.InviteLink != "" {
			text += fmt.Sprintf("\n\n📨 Direct invite link:\n%s", l.InviteLink)
		}
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text).
			WithParseMode(telego.ModeMarkdown))
		sent = true
	}
	if !sent {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgMyLinkMissing))
	}
	return nil
}

// sendUserLink issues (or re-issues) the user's links for one channel: the
// deep link and, when the bot can mint one, a native invite link.
func (b *Bot) sendUserLink(ctx *th.Context, userID, channelID int64) error {
	deepLink, err := b.Engine.GenerateReferralLink(userID, channelID)
	if err != nil {
		return err
	}

	invite, err := b.Engine.EnsureInviteLink(userID, channelID, func() (string, error) {
		l, err := ctx.Bot().CreateChatInviteLink(ctx.Context(), &telego.CreateChatInviteLinkParams{
			ChatID: tu.ID(channelID),
			Name:   fmt.Sprintf("ref-%d", userID),
		})
		if err != nil {
			return "", err
		}
		return l.InviteLink, nil
	})
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Int64("channel_id", channelID).
			Msg("Could not issue native invite link")
	}

	name := b.channelName(ctx, channelID)
	text := fmt.Sprintf(msgMyLink, name, deepLink)
	if invite != "" {
		text += fmt.Sprintf("\n\n📨 Direct invite link:\n%s", invite)
	}
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text).
		WithParseMode(telego.ModeMarkdown))
	return nil
}

func (b *Bot) handleClaim(ctx *th.Context, update telego.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	return b.sendClaimMenu(ctx, update.Message.From.ID)
}

func (b *Bot) sendClaimMenu(ctx *th.Context, userID int64) error {
	links, err := b.Engine.UserLinks(userID)
	if err != nil {
		return err
	}

	target := b.Engine.Target()
	var rows [][]telego.InlineKeyboardButton
	text := msgClaimHeader
	for _, l := range links {
		available := l.SuccessfulReferrals/target - l.RewardsClaimed
		if available <= 0 {
			continue
		}
		name := b.channelName(ctx, l.ChannelID)
		text += fmt.Sprintf("🔸 %s: %d reward(s)\n", name, available)
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("🎁 Claim %d reward(s) - %s", available, name)).
				WithCallbackData(fmt.Sprintf("claim_%d", l.ChannelID)),
		))
	}

	if len(rows) == 0 {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), msgClaimEmpty).
			WithParseMode(telego.ModeMarkdown))
		return nil
	}

	text += "\nClick below to claim your rewards!"
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text).
		WithParseMode(telego.ModeMarkdown).WithReplyMarkup(tu.InlineKeyboard(rows...)))
	return nil
}

func (b *Bot) processClaim(ctx *th.Context, userID, channelID int64) error {
	total, err := b.Engine.ClaimReward(userID, channelID)
	if err != nil {
		if errors.Is(err, referral.ErrNoReward) {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(userID),
				fmt.Sprintf(msgClaimNone, b.Engine.Target()),
			))
			return nil
		}
		return err
	}

	name := b.channelName(ctx, channelID)
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(userID),
		fmt.Sprintf(msgClaimSuccess, name, b.Cfg.RewardType, total),
	).WithParseMode(telego.ModeMarkdown))
	return nil
}

func (b *Bot) handleAdmin(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message == nil || message.From == nil {
		return nil
	}
	chat := message.Chat

	if chat.Type == telego.ChatTypePrivate {
		if b.Cfg.SuperAdminID == 0 || message.From.ID != b.Cfg.SuperAdminID {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chat.ID), msgAdminDenied))
			return nil
		}
		return b.sendDashboard(ctx, message.From.ID)
	}

	member, err := ctx.Bot().GetChatMember(ctx.Context(), &telego.GetChatMemberParams{
		ChatID: tu.ID(chat.ID),
		UserID: message.From.ID,
	})
	if err != nil || !isAdminStatus(member.MemberStatus()) {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chat.ID), msgAdminDenied))
		return nil
	}

	title := chat.Title
	if title == "" {
		title = "Unknown Channel"
	}
	if err := b.Store.RegisterChannel(chat.ID, title); err != nil {
		log.Error().Err(err).Int64("channel_id", chat.ID).Msg("Failed to register channel")
	}

	return b.sendChannelStats(ctx, chat.ID, chat.ID)
}

// sendDashboard shows the super admin a cross-store summary plus per-channel
// drill-down buttons.
func (b *Bot) sendDashboard(ctx *th.Context, userID int64) error {
	counts, err := b.Store.Counts()
	if err != nil {
		return err
	}
	channels, err := b.Store.GetAllChannels()
	if err != nil {
		return err
	}

	var rows [][]telego.InlineKeyboardButton
	for _, ch := range channels {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📊 "+ch.Name).
				WithCallbackData(fmt.Sprintf("admin_stats_%d", ch.TelegramID)),
			tu.InlineKeyboardButton("🔗 Link").
				WithCallbackData(fmt.Sprintf("get_link_%d", ch.TelegramID)),
		))
	}

	msg := tu.Message(tu.ID(userID), fmt.Sprintf(msgSuperAdminHeader,
		counts.Users, counts.Channels, counts.ReferralCodes, counts.PendingReferrals)).
		WithParseMode(telego.ModeMarkdown)
	if len(rows) > 0 {
		msg = msg.WithReplyMarkup(tu.InlineKeyboard(rows...))
	}
	_, _ = ctx.Bot().SendMessage(ctx.Context(), msg)
	return nil
}

func (b *Bot) sendChannelStats(ctx *th.Context, replyTo, channelID int64) error {
	stats, err := b.Engine.ChannelStats(channelID)
	if err != nil {
		return err
	}

	name := b.channelName(ctx, channelID)
	text := fmt.Sprintf(msgAdminStats,
		name,
		stats.TotalUsers, stats.ActiveReferrers, stats.TotalReferrals, stats.RewardsClaimed,
		b.Engine.Target(), b.Cfg.RewardType)

	if board, err := b.Engine.Leaderboard(channelID, 5); err == nil && len(board) > 0 {
		text += "\n🏅 *Top referrers:*\n"
		for i, entry := range board {
			text += fmt.Sprintf("%d. `%d` — %d referrals\n", i+1, entry.UserID, entry.SuccessfulReferrals)
		}
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(replyTo), text).
		WithParseMode(telego.ModeMarkdown))
	return nil
}

func (b *Bot) handleCallback(ctx *th.Context, update telego.Update) error {
	query := update.CallbackQuery
	if query == nil {
		return nil
	}
	userID := query.From.ID
	data := query.Data

	var err error
	switch {
	case data == "status":
		err = b.sendStatus(ctx, userID)
	case data == "claim":
		err = b.sendClaimMenu(ctx, userID)
	case data == "help":
		err = b.sendHelp(ctx, userID)
	case data == "mylink", data == "start_link":
		err = b.sendMyLink(ctx, userID)
	case strings.HasPrefix(data, "claim_"):
		if channelID, perr := strconv.ParseInt(strings.TrimPrefix(data, "claim_"), 10, 64); perr == nil {
			err = b.processClaim(ctx, userID, channelID)
		}
	case strings.HasPrefix(data, "admin_stats_"):
		if channelID, perr := strconv.ParseInt(strings.TrimPrefix(data, "admin_stats_"), 10, 64); perr == nil {
			if b.Cfg.SuperAdminID != 0 && userID == b.Cfg.SuperAdminID {
				err = b.sendChannelStats(ctx, userID, channelID)
			}
		}
	case strings.HasPrefix(data, "get_link_"):
		if channelID, perr := strconv.ParseInt(strings.TrimPrefix(data, "get_link_"), 10, 64); perr == nil {
			err = b.sendUserLink(ctx, userID, channelID)
		}
	}

	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(query.ID))
	return err
}

// flushPendingWelcomes delivers welcome messages the bot could not send
// earlier because the user had not started it yet.
func (b *Bot) flushPendingWelcomes(ctx *th.Context, userID int64) {
	links, err := b.Engine.UserLinks(userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load links for pending welcomes")
		return
	}

	for _, l := range links {
		if !l.PendingWelcome || l.ReferralLink == "" {
			continue
		}
		name := b.channelName(ctx, l.ChannelID)
		_, sendErr := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(userID),
			fmt.Sprintf(msgPendingWelcome, name, l.ReferralLink, b.Engine.Target()),
		).WithParseMode(telego.ModeMarkdown))
		if sendErr != nil {
			continue
		}
		l.PendingWelcome = false
		if err := b.Store.SaveLink(&l); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to clear pending welcome")
		}
	}
}

func (b *Bot) ensureUser(user *telego.User) {
	existing, err := b.Store.GetUser(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to load user")
		return
	}

	record := existing
	if record == nil {
		record = &models.User{TelegramID: user.ID, JoinedAt: time.Now()}
	}
	record.Username = user.Username
	record.FirstName = user.FirstName
	if err := b.Store.SaveUser(record); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to save user")
	}
}

func (b *Bot) channelName(ctx *th.Context, channelID int64) string {
	if ch, err := b.Store.GetChannel(channelID); err == nil && ch != nil && ch.Name != "" {
		return ch.Name
	}
	if chat, err := ctx.Bot().GetChat(ctx.Context(), &telego.GetChatParams{ChatID: tu.ID(channelID)}); err == nil && chat.Title != "" {
		return chat.Title
	}
	return "Unknown Channel"
}

func isMemberStatus(status string) bool {
	switch status {
	case telego.MemberStatusMember, telego.MemberStatusAdministrator, telego.MemberStatusCreator:
		return true
	}
	return false
}

func isAdminStatus(status string) bool {
	return status == telego.MemberStatusAdministrator || status == telego.MemberStatusCreator
}
