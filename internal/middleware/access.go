package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/access"
	"github.com/set-night/taskflow/internal/config"
)

// Commands that stay available after the trial ends.
var ungatedCommands = map[string]bool{
	"/start":    true,
	"/activate": true,
	"/help":     true,
	"/status":   true,
}

func command(text string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	// "/start@taskflow_bot" addresses the same command.
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(word)
}

// AccessGate stops updates from users whose trial ended without activation.
// Updates without a loaded user pass through; handlers reject them on their own.
// Users for which isAdmin reports true are never gated.
func AccessGate(gate *access.Gate, now func() time.Time, isAdmin func(telegramID int64) bool) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			user := GetUser(ctx)
			if user == nil || gate.IsAllowed(user, now()) || (isAdmin != nil && isAdmin(user.TelegramID)) {
				next(ctx, b, update)
				return
			}
			if update.Message != nil && ungatedCommands[command(update.Message.Text)] {
				next(ctx, b, update)
				return
			}

			slog.Debug("access denied", "user_id", user.ID, "trial_ended", gate.TrialEndsAt(user))
			text := fmt.Sprintf("⛔ Your free trial ended on %s.\nSend /activate <code> to keep using the bot.",
				gate.TrialEndsAt(user).Format(config.DueLayout))

			switch {
			case update.CallbackQuery != nil:
				_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
					CallbackQueryID: update.CallbackQuery.ID,
					Text:            text,
					ShowAlert:       true,
				})
			case update.Message != nil:
				_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   text,
				})
			}
		}
	}
}
