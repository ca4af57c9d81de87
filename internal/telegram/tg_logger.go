package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
)

// TelegramLogger mirrors operational events into forum topics of a log chat.
// A zero chat id or topic id disables the corresponding events.
type TelegramLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewTelegramLogger(b *bot.Bot, cfg *config.Config) *TelegramLogger {
	return &TelegramLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError        LogType = "error"
	LogTypeRegistration LogType = "registration"
	LogTypeActivation   LogType = "activation"
	LogTypeOverdue      LogType = "overdue"
)

func (l *TelegramLogger) Log(logType LogType, message string) {
	if l == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.topicID(logType)
	if topicID == 0 {
		return
	}

	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.LogSendTimeout)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       models.ParseModeMarkdownV1,
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *TelegramLogger) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		EscapeMarkdown(context), err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

func (l *TelegramLogger) LogRegistration(user *domain.User) {
	msg := fmt.Sprintf("👤 *New Registration*\n\n*ID:* `%d`\n*Name:* %s\n*Trial from:* %s",
		user.TelegramID, EscapeMarkdown(user.Name), user.StartDate.Format(config.DueLayout))
	l.Log(LogTypeRegistration, msg)
}

func (l *TelegramLogger) LogActivation(user *domain.User) {
	msg := fmt.Sprintf("🔓 *Account Activated*\n\n*ID:* `%d`\n*Name:* %s",
		user.TelegramID, EscapeMarkdown(user.Name))
	l.Log(LogTypeActivation, msg)
}

// LogOverdue matches escalation.Options.OnOverdue.
func (l *TelegramLogger) LogOverdue(user *domain.User, task domain.Task) {
	msg := fmt.Sprintf("🔴 *Task Overdue*\n\n*User:* `%d` %s\n*Task:* #%d %s\n*Due:* %s",
		user.TelegramID, EscapeMarkdown(user.Name), task.ID,
		EscapeMarkdown(Truncate(task.Description, 200)), task.Due.Format(config.DueLayout))
	l.Log(LogTypeOverdue, msg)
}

func (l *TelegramLogger) topicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeRegistration:
		return l.cfg.LogTopicRegistration
	case LogTypeActivation:
		return l.cfg.LogTopicActivation
	case LogTypeOverdue:
		return l.cfg.LogTopicOverdue
	default:
		return 0
	}
}
