package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	taskflow "github.com/set-night/taskflow"
	"github.com/set-night/taskflow/internal/access"
	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/conversation"
	"github.com/set-night/taskflow/internal/escalation"
	"github.com/set-night/taskflow/internal/handler"
	"github.com/set-night/taskflow/internal/middleware"
	"github.com/set-night/taskflow/internal/repository"
	"github.com/set-night/taskflow/internal/service"
	"github.com/set-night/taskflow/internal/telegram"
)

// store is everything the bot needs from a backend; both Postgres and SQLite provide it.
type store interface {
	escalation.Store
	service.UserStore
	service.TaskStore
	access.UserActivator
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Operational logs go through their own client so middlewares can use them
	// before the polling bot exists.
	logBot, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		slog.Error("failed to create log bot", "error", err)
		os.Exit(1)
	}
	tgLogger := telegram.NewTelegramLogger(logBot, cfg)

	// Initialize services
	userService := service.NewUserService(st)
	taskService := service.NewTaskService(st)
	gate := access.NewGate(st, cfg.TrialPeriod, cfg.ActivationCode)
	dialogs := conversation.NewTracker(config.ConversationTTL)

	// Handler pointer for use in default handler closure
	var h *handler.Handler

	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(tgLogger),
			middleware.Logging(),
			middleware.UserLoader(userService, tgLogger),
			middleware.AccessGate(gate, time.Now, cfg.IsAdmin),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h != nil {
				h.HandleText(ctx, b, update)
			}
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	h = handler.New(handler.Deps{
		Bot:         b,
		Cfg:         cfg,
		UserService: userService,
		TaskService: taskService,
		Gate:        gate,
		Dialogs:     dialogs,
		TgLogger:    tgLogger,
	})
	h.Register()

	engine := escalation.New(st, telegram.NewNotifier(b), escalation.Options{
		Lead:        cfg.ApproachingLead,
		Concurrency: cfg.DeliveryConcurrency,
		SendTimeout: cfg.SendTimeout,
		OnOverdue:   tgLogger.LogOverdue,
	})
	wait := runBackground(ctx, engine, dialogs, cfg.ScanInterval, config.ConversationTTL)
	slog.Info("escalation engine started",
		"interval", cfg.ScanInterval,
		"lead", cfg.ApproachingLead,
		"concurrency", cfg.DeliveryConcurrency,
	)

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.Start(ctx)

	// Let an in-flight escalation cycle record what it delivered before the store closes.
	wait()

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}

// openStore connects to the backend DATABASE_URL names and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	driver, ok := cfg.StoreDriver()
	if !ok {
		return nil, nil, errors.New("unsupported DATABASE_URL")
	}

	migrationsFS, err := fs.Sub(taskflow.MigrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		return nil, nil, err
	}

	switch driver {
	case "postgres":
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		slog.Info("using postgres store")
		return repository.NewPostgres(pool), pool.Close, nil
	default:
		db, err := repository.OpenSQLite(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using sqlite store", "path", cfg.SQLitePath())
		return repository.NewSQLite(db), func() { db.Close() }, nil
	}
}
