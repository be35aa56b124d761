// Package telegram hosts the Telegram client, update routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/DrctNews/DRCT-NEWS/internal/auth"
	"github.com/DrctNews/DRCT-NEWS/internal/broadcast"
	"github.com/DrctNews/DRCT-NEWS/internal/config"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
	"github.com/DrctNews/DRCT-NEWS/internal/registry"
)

const identityTimeout = 10 * time.Second

// botClient is the slice of *bot.Bot the client relies on, stubbed in tests.
type botClient interface {
	Start(ctx context.Context)
	GetMe(ctx context.Context) (*models.User, error)
	broadcast.Sender
}

var (
	// Membership changes arrive as service messages (new_chat_members /
	// left_chat_member), so plain message updates cover every routing case.
	defaultAllowedUpdates = bot.AllowedUpdates{"message"}

	createBot = func(token string, options ...bot.Option) (botClient, error) {
		return bot.New(token, options...)
	}
)

// GroupRegistry is the registry surface the update handlers need.
type GroupRegistry interface {
	Add(ctx context.Context, chatID int64, title, kind string) error
	Remove(ctx context.Context, chatID int64) error
	Count() int
	Describe() string
}

// Broadcaster fans an admin message out to the active groups.
type Broadcaster interface {
	Broadcast(ctx context.Context, originChatID int64, messageID int) (broadcast.Report, error)
}

// Client wraps the Telegram bot instance, the admin gate, and the components
// each update is routed to.
type Client struct {
	bot      botClient
	logger   *logrus.Entry
	admins   *auth.AdminSet
	registry GroupRegistry
	relay    Broadcaster

	botID        int64
	botUsername  string
	processStart time.Time
}

// Option customizes client construction.
type Option func(*Client)

// WithBroadcaster overrides the default broadcast engine; used by tests.
func WithBroadcaster(relay Broadcaster) Option {
	return func(c *Client) {
		c.relay = relay
	}
}

// WithProcessStart records the process start time reported by /status.
func WithProcessStart(ts time.Time) Option {
	return func(c *Client) {
		c.processStart = ts
	}
}

// NewClient initializes the Telegram bot with long polling, the command
// handlers, and a broadcast engine over the supplied registry.
func NewClient(cfg config.Config, reg *registry.Registry, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if reg == nil {
		return nil, errors.New("group registry is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{
		logger:       logger,
		admins:       auth.NewAdminSet(cfg.AdminID, cfg.ExtraAdminIDs...),
		registry:     reg,
		processStart: time.Now(),
	}

	if c.admins.Count() == 0 {
		return nil, errors.New("at least one admin id is required")
	}

	for _, opt := range opts {
		opt(c)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
		bot.WithMessageTextHandler("/start", bot.MatchTypePrefix, c.handleStart),
		bot.WithMessageTextHandler("/help", bot.MatchTypePrefix, c.handleHelp),
		bot.WithMessageTextHandler("/status", bot.MatchTypePrefix, c.handleStatus),
		bot.WithMessageTextHandler("/groups", bot.MatchTypePrefix, c.handleGroups),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	c.bot = tgBot

	if c.relay == nil {
		engine, err := broadcast.NewEngine(tgBot, reg, cfg.RelayMode, cfg.BroadcastWorkers, logger)
		if err != nil {
			return nil, fmt.Errorf("init broadcast engine: %w", err)
		}
		c.relay = engine
	}

	return c, nil
}

// Start resolves the bot's own identity, notifies the primary admin, and
// receives updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	meCtx, cancel := context.WithTimeout(ctx, identityTimeout)
	me, err := c.bot.GetMe(meCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	c.botID = me.ID
	c.botUsername = me.Username

	c.logger.WithFields(logging.Fields{
		"event":        "telegram_listen",
		"bot_username": c.botUsername,
		"admins":       c.admins.Count(),
	}).Info("starting telegram long polling")

	c.notifyStartup(ctx)

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
	return nil
}

// notifyStartup tells the primary admin the bot is up. Best effort: a failure
// here must not block serving.
func (c *Client) notifyStartup(ctx context.Context) {
	text := fmt.Sprintf("🚀 Bot Started!\n\n📊 Connected groups: %d\n👥 Admins: %d\n\nSend me any message to broadcast it.",
		c.registry.Count(), c.admins.Count())

	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: c.admins.Primary(),
		Text:   text,
	}); err != nil {
		c.logger.WithField("event", "startup_notice_error").WithError(err).Warn("failed to notify admin of startup")
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		// Transient fetch failures land here; the library keeps polling
		// without advancing the cursor, so logging is all that is needed.
		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
