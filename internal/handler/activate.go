package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/middleware"
)

func (h *Handler) handleActivate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	chatID := update.Message.Chat.ID
	_, code, _ := strings.Cut(update.Message.Text, " ")
	if strings.TrimSpace(code) == "" {
		h.reply(ctx, b, chatID, "Usage: /activate <code>")
		return
	}

	wasActive := user.Activated
	ok, err := h.gate.Activate(ctx, user, code)
	if err != nil {
		slog.Error("activate user", "user_id", user.ID, "error", err)
		h.tgLogger.LogError(err, "activate user")
		h.reply(ctx, b, chatID, "⚠️ Activation failed, please try again.")
		return
	}
	if !ok {
		slog.Info("activation code rejected", "user_id", user.ID)
		h.reply(ctx, b, chatID, "❌ That code is not valid.")
		return
	}
	if wasActive {
		h.reply(ctx, b, chatID, "Your account is already active.")
		return
	}

	slog.Info("user activated", "user_id", user.ID)
	h.tgLogger.LogActivation(user)
	h.reply(ctx, b, chatID, "🔓 Your account is now active. Thank you!")
}

func (h *Handler) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if user.Activated {
		h.reply(ctx, b, chatID, "✅ Your account is active.")
		return
	}

	ends := h.gate.TrialEndsAt(user)
	now := h.now()
	if !h.gate.IsAllowed(user, now) {
		h.reply(ctx, b, chatID, fmt.Sprintf("⛔ Your free trial ended on %s.\nSend /activate <code> to continue.",
			ends.Format(config.DueLayout)))
		return
	}

	days := int(ends.Sub(now).Hours() / 24)
	h.reply(ctx, b, chatID, fmt.Sprintf("⏳ Free trial: %d day(s) left, until %s.\nSend /activate <code> once you have a code.",
		days, ends.Format(config.DueLayout)))
}
