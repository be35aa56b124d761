// Package broadcast fans a single admin message out to every active group.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/DrctNews/DRCT-NEWS/internal/config"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
)

// Sender is the slice of the Telegram client the engine needs. *bot.Bot
// satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

// GroupSource supplies delivery targets and accepts deactivations discovered
// during delivery.
type GroupSource interface {
	ActiveGroups() []int64
	Deactivate(ctx context.Context, chatID int64) error
}

// Outcome classifies one per-group delivery attempt.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeBlocked    Outcome = "blocked"    // bot ejected or blocked; the group is deactivated
	OutcomeRejected   Outcome = "rejected"   // e.g. insufficient rights; the group stays active
	OutcomeUnexpected Outcome = "unexpected" // anything else; the group stays active
)

// Report aggregates the per-group outcomes of one broadcast.
type Report struct {
	Attempted  int
	Delivered  int
	Blocked    int
	Rejected   int
	Unexpected int
}

// Failed returns the number of groups that did not receive the message.
func (r Report) Failed() int {
	return r.Blocked + r.Rejected + r.Unexpected
}

// Engine delivers one admin-originated message to every active group. Each
// attempt is independent: a failure never aborts or skips the remaining
// groups, and nothing is retried within the same broadcast.
type Engine struct {
	sender  Sender
	groups  GroupSource
	mode    string
	workers int
	logger  *logrus.Entry
}

// NewEngine constructs the engine. mode selects copy or forward delivery;
// workers bounds the fan-out pool.
func NewEngine(sender Sender, groups GroupSource, mode string, workers int, logger *logrus.Entry) (*Engine, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if groups == nil {
		return nil, errors.New("group source is required")
	}
	if mode != config.RelayModeCopy && mode != config.RelayModeForward {
		return nil, fmt.Errorf("unknown relay mode %q", mode)
	}
	if workers <= 0 {
		workers = config.DefaultBroadcastWorkers
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		sender:  sender,
		groups:  groups,
		mode:    mode,
		workers: workers,
		logger:  logger,
	}, nil
}

// Broadcast replicates the message identified by (originChatID, messageID)
// into every active group and reports the tally back to the origin chat.
func (e *Engine) Broadcast(ctx context.Context, originChatID int64, messageID int) (Report, error) {
	if e == nil {
		return Report{}, errors.New("broadcast engine is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	targets := e.groups.ActiveGroups()
	if len(targets) == 0 {
		e.notify(ctx, originChatID, "📭 No active groups to broadcast to.\nAdd the bot to groups as admin to start broadcasting!")
		return Report{}, nil
	}

	progressID := e.sendProgress(ctx, originChatID, len(targets))

	report := e.fanOut(ctx, originChatID, messageID, targets)

	e.sendTally(ctx, originChatID, progressID, report)

	e.logger.WithFields(logging.Fields{
		"event":     "broadcast_complete",
		"attempted": report.Attempted,
		"delivered": report.Delivered,
		"failed":    report.Failed(),
	}).Info("broadcast finished")

	return report, nil
}

func (e *Engine) fanOut(ctx context.Context, originChatID int64, messageID int, targets []int64) Report {
	workers := e.workers
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan int64)
	outcomes := make(chan Outcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for groupID := range jobs {
				outcomes <- e.deliverOne(ctx, originChatID, messageID, groupID)
			}
		}()
	}

	for _, groupID := range targets {
		jobs <- groupID
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	report := Report{Attempted: len(targets)}
	for outcome := range outcomes {
		switch outcome {
		case OutcomeDelivered:
			report.Delivered++
		case OutcomeBlocked:
			report.Blocked++
		case OutcomeRejected:
			report.Rejected++
		default:
			report.Unexpected++
		}
	}

	return report
}

func (e *Engine) deliverOne(ctx context.Context, originChatID int64, messageID int, groupID int64) Outcome {
	err := e.deliver(ctx, originChatID, messageID, groupID)
	outcome := classify(err)

	fields := logging.Fields{
		"event":   "broadcast_delivery",
		"chat_id": groupID,
		"outcome": string(outcome),
	}

	switch outcome {
	case OutcomeDelivered:
		e.logger.WithFields(fields).Debug("message delivered")
	case OutcomeBlocked:
		e.logger.WithFields(fields).WithError(err).Warn("bot blocked or ejected, deactivating group")
		if derr := e.groups.Deactivate(ctx, groupID); derr != nil {
			e.logger.WithFields(logging.Fields{
				"event":   "broadcast_deactivate_error",
				"chat_id": groupID,
			}).WithError(derr).Error("failed to deactivate group")
		}
	case OutcomeRejected:
		e.logger.WithFields(fields).WithError(err).Error("delivery rejected, group left active")
	default:
		e.logger.WithFields(fields).WithError(err).Error("unexpected delivery failure, group left active")
	}

	return outcome
}

func (e *Engine) deliver(ctx context.Context, originChatID int64, messageID int, groupID int64) error {
	if e.mode == config.RelayModeForward {
		_, err := e.sender.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     groupID,
			FromChatID: originChatID,
			MessageID:  messageID,
		})
		return err
	}

	_, err := e.sender.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     groupID,
		FromChatID: originChatID,
		MessageID:  messageID,
	})
	return err
}

func (e *Engine) sendProgress(ctx context.Context, originChatID int64, targets int) int {
	msg, err := e.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: originChatID,
		Text:   fmt.Sprintf("📤 Broadcasting to %d groups...", targets),
	})
	if err != nil || msg == nil {
		e.logger.WithField("event", "broadcast_progress_error").WithError(err).Warn("failed to send progress notice")
		return 0
	}

	return msg.ID
}

func (e *Engine) sendTally(ctx context.Context, originChatID int64, progressID int, report Report) {
	text := formatTally(report)

	if progressID != 0 {
		if _, err := e.sender.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    originChatID,
			MessageID: progressID,
			Text:      text,
		}); err == nil {
			return
		}
	}

	e.notify(ctx, originChatID, text)
}

func (e *Engine) notify(ctx context.Context, chatID int64, text string) {
	if _, err := e.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		e.logger.WithField("event", "broadcast_notify_error").WithError(err).Warn("failed to notify admin chat")
	}
}

func formatTally(report Report) string {
	text := fmt.Sprintf("📤 Broadcast Complete\n\n✅ Sent to: %d groups\n", report.Delivered)

	if failed := report.Failed(); failed > 0 {
		text += fmt.Sprintf("❌ Failed: %d groups\n", failed)
	}
	if report.Blocked > 0 {
		text += "💡 Blocked groups have been deactivated"
	}

	return text
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDelivered
	case errors.Is(err, bot.ErrorForbidden):
		return OutcomeBlocked
	case errors.Is(err, bot.ErrorBadRequest):
		return OutcomeRejected
	default:
		return OutcomeUnexpected
	}
}
