package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Logging returns middleware that logs update processing time.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()

			attrs := []any{"update_id", update.ID}
			switch {
			case update.Message != nil:
				attrs = append(attrs, "type", "message")
				if strings.HasPrefix(update.Message.Text, "/") {
					attrs = append(attrs, "command", command(update.Message.Text))
				}
			case update.CallbackQuery != nil:
				// Callback data carries only ids, never user text.
				attrs = append(attrs, "type", "callback_query", "data", update.CallbackQuery.Data)
			default:
				attrs = append(attrs, "type", "other")
			}
			if from, chatID := sender(update); from != nil {
				attrs = append(attrs, "chat_id", chatID, "telegram_id", from.ID)
			}

			next(ctx, b, update)

			slog.Debug("update processed", append(attrs, "duration", time.Since(start))...)
		}
	}
}
