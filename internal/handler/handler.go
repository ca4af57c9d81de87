package handler

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/access"
	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/conversation"
	"github.com/set-night/taskflow/internal/service"
	"github.com/set-night/taskflow/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot         *bot.Bot
	cfg         *config.Config
	userService *service.UserService
	taskService *service.TaskService
	gate        *access.Gate
	dialogs     *conversation.Tracker
	tgLogger    *telegram.TelegramLogger
	now         func() time.Time
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot         *bot.Bot
	Cfg         *config.Config
	UserService *service.UserService
	TaskService *service.TaskService
	Gate        *access.Gate
	Dialogs     *conversation.Tracker
	TgLogger    *telegram.TelegramLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:         deps.Bot,
		cfg:         deps.Cfg,
		userService: deps.UserService,
		taskService: deps.TaskService,
		gate:        deps.Gate,
		dialogs:     deps.Dialogs,
		tgLogger:    deps.TgLogger,
		now:         time.Now,
	}
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.logSendError(chatID, err)
	}
}

func (h *Handler) replyMarkdown(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) {
	if err := telegram.SendLongMessage(ctx, b, chatID, text, markup); err != nil {
		h.logSendError(chatID, err)
	}
}

func (h *Handler) answer(ctx context.Context, b *bot.Bot, update *models.Update, text string) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
		Text:            text,
	})
}

// callbackMessage returns the message that carried the pressed button.
func callbackMessage(update *models.Update) (chatID int64, messageID int) {
	if msg := update.CallbackQuery.Message.Message; msg != nil {
		return msg.Chat.ID, msg.ID
	}
	return update.CallbackQuery.From.ID, 0
}
