package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
	"github.com/set-night/taskflow/internal/middleware"
	tg "github.com/set-night/taskflow/internal/telegram"
)

func (h *Handler) handleTasks(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	h.sendTasksPage(ctx, b, update.Message.Chat.ID, user, 0, false, 0)
}

func (h *Handler) handleListTasks(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	h.answer(ctx, b, update, "")

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	chatID, messageID := callbackMessage(update)
	h.sendTasksPage(ctx, b, chatID, user, 0, messageID != 0, messageID)
}

func (h *Handler) handleTasksPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	h.answer(ctx, b, update, "")

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	page, err := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, tg.CallbackTasksPage+"_"))
	if err != nil {
		return
	}

	chatID, messageID := callbackMessage(update)
	h.sendTasksPage(ctx, b, chatID, user, page, messageID != 0, messageID)
}

func (h *Handler) handleDone(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTaskAction(ctx, b, update, tg.CallbackDone, "✅ Done. Nice work!", h.taskService.Complete)
}

func (h *Handler) handleDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTaskAction(ctx, b, update, tg.CallbackDelete, "🗑 Task deleted.", h.taskService.Delete)
}

// handleTaskAction runs a done/delete button. The action only succeeds for the
// task's own assignee; anyone else sees "not found".
func (h *Handler) handleTaskAction(ctx context.Context, b *bot.Bot, update *models.Update, prefix, okText string,
	action func(ctx context.Context, id, userID int64) (bool, error)) {
	if update.CallbackQuery == nil {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		h.answer(ctx, b, update, "")
		return
	}

	taskID, ok := tg.ParseIDSuffix(update.CallbackQuery.Data, prefix)
	if !ok {
		h.answer(ctx, b, update, "")
		return
	}

	ok, err := action(ctx, taskID, user.ID)
	if err != nil {
		slog.Error("task action failed", "action", prefix, "task_id", taskID, "user_id", user.ID, "error", err)
		h.tgLogger.LogError(err, fmt.Sprintf("%s task %d", strings.TrimSuffix(prefix, "_"), taskID))
		h.answer(ctx, b, update, "⚠️ Something went wrong, please try again.")
		return
	}
	if !ok {
		h.answer(ctx, b, update, "Task not found.")
	} else {
		h.answer(ctx, b, update, okText)
	}

	chatID, messageID := callbackMessage(update)
	h.sendTasksPage(ctx, b, chatID, user, 0, messageID != 0, messageID)
}

func (h *Handler) sendTasksPage(ctx context.Context, b *bot.Bot, chatID int64, user *domain.User, page int, edit bool, messageID int) {
	tasks, err := h.taskService.List(ctx, user)
	if err != nil {
		slog.Error("list tasks", "user_id", user.ID, "error", err)
		h.reply(ctx, b, chatID, "⚠️ Could not load your tasks, please try again.")
		return
	}

	text, markup := renderTasks(tasks, page, h.now)
	if edit {
		if err := tg.EditMessage(ctx, b, chatID, messageID, text, markup); err != nil {
			slog.Warn("edit task list", "chat_id", chatID, "error", err)
		}
		return
	}
	h.replyMarkdown(ctx, b, chatID, text, markup)
}

func renderTasks(tasks []domain.Task, page int, now func() time.Time) (string, *models.InlineKeyboardMarkup) {
	if len(tasks) == 0 {
		return "🎉 You have no open tasks.", tg.MainMenuKeyboard()
	}

	page, _, start, end := tg.PageBounds(len(tasks), page, config.TasksPerPage)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 *Your tasks* (%d)\n\n", len(tasks))
	at := now()
	for i, t := range tasks[start:end] {
		marker := "▫️"
		switch {
		case t.Status == domain.TaskStatusOverdue || !t.Due.After(at):
			marker = "🔴"
		case t.NotificationLevel == domain.LevelApproaching:
			marker = "⏰"
		}
		fmt.Fprintf(&sb, "%s %d. %s\n      due %s\n", marker, start+i+1,
			tg.EscapeMarkdown(tg.Truncate(t.Description, 200)), t.Due.Format(config.DueLayout))
	}

	return sb.String(), tg.TaskListKeyboard(tasks, page, config.TasksPerPage)
}
