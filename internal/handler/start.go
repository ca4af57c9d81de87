package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/middleware"
	tg "github.com/set-night/taskflow/internal/telegram"
)

const helpText = "📋 *Commands:*\n" +
	"/add — Add a task\n" +
	"/tasks — Your open tasks\n" +
	"/status — Trial and activation status\n" +
	"/activate <code> — Activate your account\n" +
	"/cancel — Stop adding a task\n" +
	"/help — This message\n\n" +
	"I remind you an hour before a task is due and once more when it is overdue."

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	text := fmt.Sprintf("👋 Hi, *%s*!\n\nI keep track of your tasks and their deadlines.\n\n%s",
		tg.EscapeMarkdown(user.Name), helpText)
	h.replyMarkdown(ctx, b, update.Message.Chat.ID, text, tg.MainMenuKeyboard())
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.replyMarkdown(ctx, b, update.Message.Chat.ID, helpText, nil)
}
