// ABOUTME: Telegram transport over the Bot API
// ABOUTME: Forwards the chat id/name and original inbound message id for threading

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/2389/inbox-console/internal/model"
)

// botSender is the subset of tgbotapi.BotAPI the transport uses, split out
// so tests can fake the wire.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramTransport sends messages through the Telegram Bot API.
type TelegramTransport struct {
	bot    botSender
	logger *slog.Logger
}

// NewTelegramTransport creates a transport authenticated with the bot
// token. Pass nil logger for default.
func NewTelegramTransport(token string, logger *slog.Logger) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newTelegramTransport(bot, logger), nil
}

func newTelegramTransport(bot botSender, logger *slog.Logger) *TelegramTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramTransport{
		bot:    bot,
		logger: logger.With("component", "transport", "channel", "telegram"),
	}
}

// Send delivers one message to the chat in target.AccountID. The original
// inbound message id rides along as the reply-to so the Bot API threads the
// reply; the chat name is carried for log correlation only.
func (t *TelegramTransport) Send(ctx context.Context, target model.DispatchTarget, body string) error {
	chatID, err := strconv.ParseInt(target.AccountID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", target.AccountID, err)
	}

	msg := tgbotapi.NewMessage(chatID, body)
	if target.ReplyAnchorID != "" {
		replyTo, err := strconv.Atoi(target.ReplyAnchorID)
		if err != nil {
			t.logger.Warn("reply anchor is not a telegram message id, sending unthreaded",
				"chat_id", chatID,
				"anchor", target.ReplyAnchorID,
				"error", err)
		} else {
			msg.ReplyToMessageID = replyTo
		}
	}

	if _, err := t.bot.Send(msg); err != nil {
		return wrapTransport("telegram send", err)
	}

	t.logger.Debug("telegram message sent",
		"chat_id", chatID,
		"chat_name", target.AccountName,
		"reply_to", target.ReplyAnchorID)
	return nil
}
