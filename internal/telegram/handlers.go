package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/DrctNews/DRCT-NEWS/internal/logging"
)

const (
	adminWelcomeText = "🎯 Admin Panel\n\n" +
		"Welcome! Send me any message and I will replicate it to every connected group.\n\n" +
		"Available Commands:\n" +
		"/status - Check bot status\n" +
		"/groups - List connected groups\n" +
		"/help - Show help message"

	publicWelcomeText = "👋 Hello! I'm a news broadcasting bot.\n\n" +
		"Add me to your group as an admin to receive news updates!"

	groupWelcomeText = "✅ Hello! I'm now connected to this group.\n\n" +
		"I'll relay news and updates from my admin. " +
		"Make sure I have permission to send messages!"

	adminHelpText = "🤖 Admin Help\n\n" +
		"How to use:\n" +
		"• Send any message to me and I'll replicate it to all groups\n" +
		"• Supports text, photos, videos, documents, etc.\n\n" +
		"Commands:\n" +
		"/start - Start the bot\n" +
		"/status - Check bot status\n" +
		"/groups - List connected groups\n" +
		"/help - Show this help"

	publicHelpText = "🤖 Bot Help\n\n" +
		"I'm a news broadcasting bot that relays updates from my admin.\n\n" +
		"To receive updates:\n" +
		"1. Add me to your group\n" +
		"2. Make me an admin\n" +
		"3. You'll receive news updates automatically!\n\n" +
		"Contact my admin if you have any issues."

	rejectionText = "❌ Only admin can use this command."
)

// handleUpdate is the default handler: everything that is not a registered
// command lands here. An update may match more than one category, so both
// classifiers always run.
func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	c.handleMembership(ctx, update.Message)
	c.handleBroadcastCandidate(ctx, update.Message)
}

// handleMembership reacts to the bot itself joining or leaving a chat.
func (c *Client) handleMembership(ctx context.Context, msg *models.Message) {
	for _, member := range msg.NewChatMembers {
		if member.ID != c.botID {
			continue
		}

		if err := c.registry.Add(ctx, msg.Chat.ID, msg.Chat.Title, string(msg.Chat.Type)); err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "group_add_error",
				"chat_id": msg.Chat.ID,
			}).WithError(err).Error("failed to register group")
		}
	}

	if msg.LeftChatMember != nil && msg.LeftChatMember.ID == c.botID {
		if err := c.registry.Remove(ctx, msg.Chat.ID); err != nil {
			c.logger.WithFields(logging.Fields{
				"event":   "group_remove_error",
				"chat_id": msg.Chat.ID,
			}).WithError(err).Error("failed to remove group")
		}
	}
}

// handleBroadcastCandidate relays non-command private messages from admins.
// Non-admin private traffic is dropped without any reply, while unauthorized
// privileged commands do get a rejection; that asymmetry is deliberate.
func (c *Client) handleBroadcastCandidate(ctx context.Context, msg *models.Message) {
	if msg.Chat.Type != "private" {
		return
	}
	if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		return
	}
	if msg.From == nil || !c.admins.IsAdmin(msg.From.ID) {
		return
	}

	report, err := c.relay.Broadcast(ctx, msg.Chat.ID, msg.ID)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "broadcast_error",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("broadcast failed")
		return
	}

	c.logger.WithFields(logging.Fields{
		"event":     "broadcast_requested",
		"admin_id":  msg.From.ID,
		"delivered": report.Delivered,
		"failed":    report.Failed(),
	}).Info("broadcast handled")
}

func (c *Client) handleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := messageFrom(update)
	if msg == nil {
		return
	}

	if msg.Chat.Type != "private" {
		c.reply(ctx, msg.Chat.ID, groupWelcomeText)
		return
	}

	if c.admins.IsAdmin(msg.From.ID) {
		c.reply(ctx, msg.Chat.ID, adminWelcomeText)
		return
	}

	c.reply(ctx, msg.Chat.ID, publicWelcomeText)
}

func (c *Client) handleHelp(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := messageFrom(update)
	if msg == nil {
		return
	}

	if c.admins.IsAdmin(msg.From.ID) {
		c.reply(ctx, msg.Chat.ID, adminHelpText)
		return
	}

	c.reply(ctx, msg.Chat.ID, publicHelpText)
}

func (c *Client) handleStatus(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := messageFrom(update)
	if msg == nil {
		return
	}

	if !c.admins.IsAdmin(msg.From.ID) {
		c.reply(ctx, msg.Chat.ID, rejectionText)
		return
	}

	uptime := time.Since(c.processStart).Round(time.Second)
	text := fmt.Sprintf("🤖 Bot Status\n\n✅ Bot is running\n📊 Connected groups: %d\n👥 Admins: %d\n⏱ Uptime: %s\n\nReady to broadcast messages!",
		c.registry.Count(), c.admins.Count(), uptime)

	c.reply(ctx, msg.Chat.ID, text)
}

func (c *Client) handleGroups(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := messageFrom(update)
	if msg == nil {
		return
	}

	if !c.admins.IsAdmin(msg.From.ID) {
		c.reply(ctx, msg.Chat.ID, rejectionText)
		return
	}

	c.reply(ctx, msg.Chat.ID, c.registry.Describe())
}

func (c *Client) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "reply_error",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to send reply")
	}
}

func messageFrom(update *models.Update) *models.Message {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return nil
	}

	return update.Message
}
