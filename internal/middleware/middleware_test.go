package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/taskflow/internal/access"
	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
	"github.com/set-night/taskflow/internal/repository"
	"github.com/set-night/taskflow/internal/service"
	"github.com/set-night/taskflow/internal/telegram"
	"github.com/set-night/taskflow/internal/telegram/telegramtest"
)

func textUpdate(fromID int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			From: &models.User{ID: fromID, FirstName: "Rami", LanguageCode: "ar"},
			Chat: models.Chat{ID: fromID, Type: models.ChatTypePrivate},
			Text: text,
		},
	}
}

func callbackUpdate(fromID int64, data string) *models.Update {
	return &models.Update{
		ID: 2,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: fromID, FirstName: "Rami"},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: 11, Chat: models.Chat{ID: fromID}},
			},
		},
	}
}

// recorder is a terminal handler that remembers whether it ran and with which user.
type recorder struct {
	called bool
	user   *domain.User
}

func (r *recorder) handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	r.called = true
	r.user = GetUser(ctx)
}

func TestUserLoader(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b := srv.Bot(t)
	store := repository.NewMemory()
	users := service.NewUserService(store)
	tgLog := telegram.NewTelegramLogger(b, &config.Config{LogTelegramChatID: -1, LogTopicRegistration: 3})

	var rec recorder
	h := UserLoader(users, tgLog)(rec.handle)

	h(context.Background(), b, textUpdate(500, "/start"))
	require.True(t, rec.called)
	require.NotNil(t, rec.user)
	assert.Equal(t, int64(500), rec.user.TelegramID)
	assert.Equal(t, "ar", rec.user.Language)
	assert.Len(t, srv.Requests("sendMessage"), 1, "registration is logged once")

	rec = recorder{}
	h(context.Background(), b, callbackUpdate(500, "list_tasks"))
	require.NotNil(t, rec.user)
	assert.Len(t, srv.Requests("sendMessage"), 1)

	rec = recorder{}
	h(context.Background(), b, &models.Update{ID: 3})
	assert.True(t, rec.called)
	assert.Nil(t, rec.user)
}

func TestAccessGate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	gate := access.NewGate(repository.NewMemory(), 14*24*time.Hour, "secret")
	mw := AccessGate(gate, func() time.Time { return now }, func(id int64) bool { return id == 500 })

	expired := &domain.User{ID: 1, TelegramID: 100, StartDate: now.Add(-15 * 24 * time.Hour)}
	trial := &domain.User{ID: 2, TelegramID: 200, StartDate: now.Add(-24 * time.Hour)}
	activated := &domain.User{ID: 3, TelegramID: 300, StartDate: now.Add(-90 * 24 * time.Hour), Activated: true}
	admin := &domain.User{ID: 4, TelegramID: 500, StartDate: now.Add(-90 * 24 * time.Hour)}

	tests := []struct {
		name    string
		user    *domain.User
		update  *models.Update
		passes  bool
		replyTo string
	}{
		{"trial user", trial, textUpdate(200, "/tasks"), true, ""},
		{"activated user", activated, textUpdate(300, "/tasks"), true, ""},
		{"expired admin", admin, textUpdate(500, "/tasks"), true, ""},
		{"no user", nil, textUpdate(400, "/tasks"), true, ""},
		{"expired command", expired, textUpdate(100, "/tasks"), false, "sendMessage"},
		{"expired free text", expired, textUpdate(100, "buy milk"), false, "sendMessage"},
		{"expired callback", expired, callbackUpdate(100, "done_1"), false, "answerCallbackQuery"},
		{"expired activate", expired, textUpdate(100, "/activate secret"), true, ""},
		{"expired start addressed", expired, textUpdate(100, "/start@taskflow_bot"), true, ""},
		{"expired help", expired, textUpdate(100, "/help"), true, ""},
		{"expired status", expired, textUpdate(100, "/status"), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := telegramtest.NewServer(t)
			b := srv.Bot(t)
			var rec recorder

			ctx := context.Background()
			if tt.user != nil {
				ctx = WithUser(ctx, tt.user)
			}
			mw(rec.handle)(ctx, b, tt.update)

			assert.Equal(t, tt.passes, rec.called)
			if tt.replyTo == "" {
				assert.Empty(t, srv.Requests(""))
				return
			}
			reqs := srv.Requests(tt.replyTo)
			require.Len(t, reqs, 1)
			assert.Contains(t, reqs[0].Params["text"], "/activate")
		})
	}
}

func TestRecover(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b := srv.Bot(t)
	h := Recover(nil)(func(ctx context.Context, b *bot.Bot, update *models.Update) {
		panic("boom")
	})

	assert.NotPanics(t, func() { h(context.Background(), b, textUpdate(1, "x")) })
}

func TestLoggingPassesThrough(t *testing.T) {
	srv := telegramtest.NewServer(t)
	var rec recorder
	Logging()(rec.handle)(context.Background(), srv.Bot(t), callbackUpdate(1, "done_2"))
	assert.True(t, rec.called)
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "/start", command("/start"))
	assert.Equal(t, "/activate", command("  /Activate  abc"))
	assert.Equal(t, "/help", command("/help@taskflow_bot"))
	assert.Equal(t, "hello", command("hello world"))
}
