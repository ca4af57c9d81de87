package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
)

// Notifier delivers escalation messages as plain text private messages.
type Notifier struct {
	bot *bot.Bot
}

func NewNotifier(b *bot.Bot) *Notifier {
	return &Notifier{bot: b}
}

// Send returns domain.ErrBotBlocked when the user has blocked the bot; the
// message is then retried on later cycles like any other failure.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, config.MaxTelegramMessageLen) {
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		})
		if err != nil {
			if errors.Is(err, bot.ErrorForbidden) {
				return fmt.Errorf("%w: chat %d: %v", domain.ErrBotBlocked, chatID, err)
			}
			return fmt.Errorf("send message to chat %d: %w", chatID, err)
		}
	}
	return nil
}
