package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
)

type TaskStore interface {
	CreateTask(ctx context.Context, description string, assignedTo int64, due time.Time) (*domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	TasksForUser(ctx context.Context, userID int64) ([]domain.Task, error)
	CompleteTask(ctx context.Context, id, userID int64) (bool, error)
	DeleteTask(ctx context.Context, id, userID int64) (bool, error)
}

// ErrDescriptionTooLong is returned when a description exceeds config.MaxDescriptionLen runes.
var ErrDescriptionTooLong = fmt.Errorf("task description longer than %d characters", config.MaxDescriptionLen)

type TaskService struct {
	store TaskStore
}

func NewTaskService(store TaskStore) *TaskService {
	return &TaskService{store: store}
}

// NormalizeDescription trims the description and checks its length.
func NormalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", domain.ErrEmptyDescription
	}
	if utf8.RuneCountInString(description) > config.MaxDescriptionLen {
		return "", ErrDescriptionTooLong
	}
	return description, nil
}

// Create stores a pending task for user.
func (s *TaskService) Create(ctx context.Context, user *domain.User, description string, due time.Time) (*domain.Task, error) {
	description, err := NormalizeDescription(description)
	if err != nil {
		return nil, err
	}
	task, err := s.store.CreateTask(ctx, description, user.ID, due)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// List returns the user's tasks that are not completed, soonest due first.
func (s *TaskService) List(ctx context.Context, user *domain.User) ([]domain.Task, error) {
	tasks, err := s.store.TasksForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Complete marks the task completed. It returns false when the task does not
// exist or is not assigned to userID.
func (s *TaskService) Complete(ctx context.Context, id, userID int64) (bool, error) {
	ok, err := s.store.CompleteTask(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return ok, nil
}

func (s *TaskService) Delete(ctx context.Context, id, userID int64) (bool, error) {
	ok, err := s.store.DeleteTask(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return ok, nil
}
