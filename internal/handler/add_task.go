package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/conversation"
	"github.com/set-night/taskflow/internal/domain"
	"github.com/set-night/taskflow/internal/duedate"
	"github.com/set-night/taskflow/internal/middleware"
	"github.com/set-night/taskflow/internal/service"
	tg "github.com/set-night/taskflow/internal/telegram"
)

const (
	askDescription = "✏️ What needs to be done? Send the task description."
	askDue         = "📅 When is it due? For example:\n" +
		"tomorrow · tomorrow 10pm · today 18:30\n" +
		"25/12 9am · 2026-12-25 09:00 · +2h\n\n" +
		"Send /cancel to stop."
	privateOnly = "Tasks are added in a private chat with me."
)

// handleAdd starts the add-task dialog. "/add Buy milk" skips straight to the due date.
func (h *Handler) handleAdd(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if middleware.GetUser(ctx) == nil {
		return
	}

	chatID := update.Message.Chat.ID
	// Replies outside private chats never reach HandleText.
	if update.Message.Chat.Type != models.ChatTypePrivate {
		h.reply(ctx, b, chatID, privateOnly)
		return
	}

	userID := update.Message.From.ID
	h.dialogs.Begin(userID)

	_, payload, _ := strings.Cut(update.Message.Text, " ")
	if strings.TrimSpace(payload) == "" {
		h.reply(ctx, b, chatID, askDescription)
		return
	}
	h.acceptDescription(ctx, b, chatID, userID, payload)
}

func (h *Handler) handleAddTaskButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	h.answer(ctx, b, update, "")
	if middleware.GetUser(ctx) == nil {
		return
	}

	chatID, _ := callbackMessage(update)
	if msg := update.CallbackQuery.Message.Message; msg != nil && msg.Chat.Type != models.ChatTypePrivate {
		h.reply(ctx, b, chatID, privateOnly)
		return
	}
	h.dialogs.Begin(update.CallbackQuery.From.ID)
	h.reply(ctx, b, chatID, askDescription)
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if h.dialogs.Cancel(update.Message.From.ID) {
		h.reply(ctx, b, update.Message.Chat.ID, "Cancelled.")
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, "Nothing to cancel.")
}

// HandleText receives every message no command handler matched and feeds it
// to the add-task dialog.
func (h *Handler) HandleText(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	msg := update.Message
	if strings.HasPrefix(msg.Text, "/") {
		h.reply(ctx, b, msg.Chat.ID, "Unknown command. Send /help to see what I can do.")
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	switch h.dialogs.Current(msg.From.ID).State {
	case conversation.AwaitingDescription:
		h.acceptDescription(ctx, b, msg.Chat.ID, msg.From.ID, msg.Text)
	case conversation.AwaitingDue:
		h.acceptDue(ctx, b, msg.Chat.ID, user, msg.From.ID, msg.Text)
	default:
		h.replyMarkdown(ctx, b, msg.Chat.ID, "Send /add to create a task or /tasks to see yours.", tg.MainMenuKeyboard())
	}
}

func (h *Handler) acceptDescription(ctx context.Context, b *bot.Bot, chatID, userID int64, text string) {
	description, err := service.NormalizeDescription(text)
	switch {
	case errors.Is(err, domain.ErrEmptyDescription):
		h.reply(ctx, b, chatID, "The description cannot be empty. "+askDescription)
		return
	case errors.Is(err, service.ErrDescriptionTooLong):
		h.reply(ctx, b, chatID, fmt.Sprintf("That is too long, keep it under %d characters.", config.MaxDescriptionLen))
		return
	case err != nil:
		slog.Error("normalize description", "error", err)
		return
	}

	if !h.dialogs.SetDescription(userID, description) {
		h.reply(ctx, b, chatID, "Send /add to start a new task.")
		return
	}
	h.reply(ctx, b, chatID, askDue)
}

func (h *Handler) acceptDue(ctx context.Context, b *bot.Bot, chatID int64, user *domain.User, userID int64, text string) {
	now := h.now()
	due, err := duedate.Parse(text, now)
	if err != nil {
		h.reply(ctx, b, chatID, "I could not understand that date. "+askDue)
		return
	}
	if !due.After(now) {
		h.reply(ctx, b, chatID, "That moment has already passed. "+askDue)
		return
	}

	description := h.dialogs.Current(userID).Description
	task, err := h.taskService.Create(ctx, user, description, due)
	if err != nil {
		slog.Error("create task", "user_id", user.ID, "error", err)
		h.tgLogger.LogError(err, "create task")
		h.reply(ctx, b, chatID, "⚠️ Could not save the task, please try again.")
		return
	}
	h.dialogs.Finish(userID)

	slog.Info("task created", "task_id", task.ID, "user_id", user.ID, "due", task.Due)
	text = fmt.Sprintf("✅ Task added:\n*%s*\nDue %s",
		tg.EscapeMarkdown(task.Description), task.Due.Format(config.DueLayout))
	h.replyMarkdown(ctx, b, chatID, text, tg.MainMenuKeyboard())
}
