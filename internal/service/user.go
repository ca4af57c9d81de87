package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
)

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error)
}

type UserService struct {
	store UserStore
	now   func() time.Time
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store, now: time.Now}
}

// FindOrCreate returns the user registered under telegramID, registering a new
// employee whose trial starts now when there is none. created reports whether
// this call registered the user.
func (s *UserService) FindOrCreate(ctx context.Context, telegramID int64, name, language string) (*domain.User, bool, error) {
	user, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	if language == "" {
		language = config.DefaultLanguage
	}
	user, err = s.store.CreateUser(ctx, domain.NewUser{
		TelegramID: telegramID,
		Name:       strings.TrimSpace(name),
		Language:   language,
		Role:       domain.RoleEmployee,
		StartDate:  s.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID, "telegram_id", telegramID)
	return user, true, nil
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}
