package handler

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	tg "github.com/set-night/taskflow/internal/telegram"
)

// Register registers all command and callback handlers on the bot instance.
// Plain text goes through HandleText, which main installs as the default handler.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleHelp)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/add", bot.MatchTypePrefix, h.handleAdd)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/tasks", bot.MatchTypePrefix, h.handleTasks)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleCancel)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/activate", bot.MatchTypePrefix, h.handleActivate)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, h.handleStatus)

	// Task callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackAddTask, bot.MatchTypeExact, h.handleAddTaskButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackListTasks, bot.MatchTypeExact, h.handleListTasks)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackTasksPage+"_", bot.MatchTypePrefix, h.handleTasksPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackDone, bot.MatchTypePrefix, h.handleDone)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackDelete, bot.MatchTypePrefix, h.handleDelete)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.CallbackNoop, bot.MatchTypeExact, h.handleNoop)
}

// handleNoop acknowledges buttons that only display information.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		})
	}
}

func (h *Handler) logSendError(chatID int64, err error) {
	slog.Error("send reply", "chat_id", chatID, "error", err)
}
