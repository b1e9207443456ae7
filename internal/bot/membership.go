package bot

import (
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/referral"
)

// handleChatMember reacts to membership transitions in tracked channels.
// Joins are attributed to a referrer when one can be resolved, leaves
// decrement the referrer's counter.
func (b *Bot) handleChatMember(ctx *th.Context, update telego.Update) error {
	upd := update.ChatMember
	if upd == nil {
		return nil
	}

	user := upd.NewChatMember.MemberUser()
	if user.IsBot {
		return nil
	}
	if !b.Cfg.IsAllowedChat(upd.Chat.ID) {
		log.Debug().Int64("chat_id", upd.Chat.ID).Msg("Ignoring chat member update from disallowed chat")
		return nil
	}

	wasMember := isMemberStatus(upd.OldChatMember.MemberStatus())
	isMember := isMemberStatus(upd.NewChatMember.MemberStatus())

	switch {
	case !wasMember && isMember:
		return b.handleJoin(ctx, upd)
	case wasMember && !isMember:
		return b.handleLeave(ctx, upd)
	}
	return nil
}

func (b *Bot) handleJoin(ctx *th.Context, upd *telego.ChatMemberUpdated) error {
	user := upd.NewChatMember.MemberUser()
	chat := upd.Chat
	b.ensureUser(&user)

	title := chat.Title
	if title == "" {
		title = "Unknown Channel"
	}
	if err := b.Store.RegisterChannel(chat.ID, title); err != nil {
		log.Error().Err(err).Int64("channel_id", chat.ID).Msg("Failed to register channel")
	}

	inviteLink := ""
	if upd.InviteLink != nil {
		inviteLink = upd.InviteLink.InviteLink
	}

	if referrerID, ok := b.Engine.ResolveJoin(chat.ID, user.ID, inviteLink); ok {
		b.creditReferrer(ctx, referrerID, chat.ID, user.ID)
	}

	b.welcomeNewMember(ctx, &user, chat.ID, title)
	return nil
}

func (b *Bot) creditReferrer(ctx *th.Context, referrerID, channelID, joinerID int64) {
	total, err := b.Engine.ProcessSuccessfulReferral(referrerID, channelID, joinerID)
	if err != nil {
		log.Error().Err(err).Int64("referrer_id", referrerID).Int64("user_id", joinerID).
			Msg("Failed to process successful referral")
		return
	}

	log.Info().
		Int64("referrer_id", referrerID).
		Int64("user_id", joinerID).
		Int64("channel_id", channelID).
		Int("total", total).
		Msg("Referral credited")

	if !b.Cfg.NotifyOnReferral {
		return
	}
	target := b.Engine.Target()
	text := fmt.Sprintf(msgReferralNotification, total, target)
	if b.Cfg.NotifyOnReward && total > 0 && total%target == 0 {
		text += fmt.Sprintf(msgMilestoneReached, total)
	}
	if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(referrerID), text).
		WithParseMode(telego.ModeMarkdown)); err != nil {
		log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("Could not notify referrer")
	}
}

// welcomeNewMember issues the joiner their own referral link and delivers it
// over DM. When the DM fails (user never started the bot) the welcome is
// deferred and a fallback prompt is posted in the channel instead.
func (b *Bot) welcomeNewMember(ctx *th.Context, user *telego.User, channelID int64, title string) {
	deepLink, err := b.Engine.GenerateReferralLink(user.ID, channelID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Int64("channel_id", channelID).
			Msg("Failed to generate referral link for new member")
		return
	}

	invite, err := b.Engine.EnsureInviteLink(user.ID, channelID, func() (string, error) {
		l, err := ctx.Bot().CreateChatInviteLink(ctx.Context(), &telego.CreateChatInviteLinkParams{
			ChatID: tu.ID(channelID),
			Name:   fmt.Sprintf("ref-%d", user.ID),
		})
		if err != nil {
			return "", err
		}
		return l.InviteLink, nil
	})
	if err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Could not issue native invite link")
	}

	text := fmt.Sprintf(msgMemberWelcome, title, deepLink, b.Engine.Target())
	if invite != "" {
		text += fmt.Sprintf("\n\n📨 Direct invite link:\n%s", invite)
	}

	_, sendErr := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(user.ID), text).
		WithParseMode(telego.ModeMarkdown))
	if sendErr == nil {
		return
	}

	log.Debug().Err(sendErr).Int64("user_id", user.ID).
		Msg("DM failed, deferring welcome and posting channel fallback")

	if link, err := b.Store.GetLink(user.ID, channelID); err == nil && link != nil {
		link.PendingWelcome = true
		if err := b.Store.SaveLink(link); err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to mark pending welcome")
		}
	}

	keyboard := tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(btnGetLink).
			WithURL(referral.DeepLink(b.username, fmt.Sprintf("%s%d", getLinkPayload, channelID))),
	))
	if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(channelID),
		fmt.Sprintf(msgChannelFallback, user.FirstName),
	).WithReplyMarkup(keyboard)); err != nil {
		log.Warn().Err(err).Int64("channel_id", channelID).Msg("Could not post channel fallback")
	}
}

func (b *Bot) handleLeave(ctx *th.Context, upd *telego.ChatMemberUpdated) error {
	user := upd.NewChatMember.MemberUser()
	chatID := upd.Chat.ID

	referrerID, ok, err := b.Engine.FindReferrer(chatID, user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to look up referrer on leave")
		return nil
	}
	if !ok {
		return nil
	}

	total, err := b.Engine.ProcessReferralLeave(referrerID, chatID, user.ID)
	if err != nil {
		log.Error().Err(err).Int64("referrer_id", referrerID).Msg("Failed to process referral leave")
		return nil
	}

	log.Info().
		Int64("referrer_id", referrerID).
		Int64("user_id", user.ID).
		Int64("channel_id", chatID).
		Int("total", total).
		Msg("Referral decremented after leave")

	if b.Cfg.NotifyOnLeave {
		if _, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(referrerID), msgReferralLeft)); err != nil {
			log.Warn().Err(err).Int64("referrer_id", referrerID).Msg("Could not notify referrer about leave")
		}
	}
	return nil
}
