package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/domain"
	"github.com/set-night/taskflow/internal/service"
	"github.com/set-night/taskflow/internal/telegram"
)

type ctxKey string

const UserKey ctxKey = "user"

// GetUser extracts user from context.
func GetUser(ctx context.Context) *domain.User {
	u, ok := ctx.Value(UserKey).(*domain.User)
	if !ok {
		return nil
	}
	return u
}

// WithUser stores user in ctx the way UserLoader does.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// sender returns who sent the update and the chat it came from.
func sender(update *models.Update) (from *models.User, chatID int64) {
	switch {
	case update.Message != nil:
		from = update.Message.From
		chatID = update.Message.Chat.ID
	case update.CallbackQuery != nil:
		from = &update.CallbackQuery.From
		if msg := update.CallbackQuery.Message.Message; msg != nil {
			chatID = msg.Chat.ID
		}
	}
	return from, chatID
}

// UserLoader registers first-time senders and puts the user into context.
// Updates from private chats only are considered; the bot is not meant for groups.
func UserLoader(users *service.UserService, tgLog *telegram.TelegramLogger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			from, _ := sender(update)
			if from == nil || from.IsBot {
				next(ctx, b, update)
				return
			}

			user, created, err := users.FindOrCreate(ctx, from.ID, from.FirstName, from.LanguageCode)
			if err != nil {
				slog.Error("load user", "telegram_id", from.ID, "error", err)
				tgLog.LogError(err, "load user")
				next(ctx, b, update)
				return
			}
			if created {
				tgLog.LogRegistration(user)
			}

			next(WithUser(ctx, user), b, update)
		}
	}
}
