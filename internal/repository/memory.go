package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/set-night/taskflow/internal/domain"
)

// Memory is an in-process store. It backs tests and local runs without a database.
type Memory struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	byTelegram map[int64]int64
	tasks      map[int64]domain.Task
	nextUserID int64
	nextTaskID int64

	locks *taskLocks
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[int64]domain.User),
		byTelegram: make(map[int64]int64),
		tasks:      make(map[int64]domain.Task),
		locks:      newTaskLocks(),
		now:        time.Now,
	}
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTelegram[telegramID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := m.users[id]
	return &u, nil
}

// CreateUser returns the existing user unchanged when the Telegram id is already registered.
func (m *Memory) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byTelegram[nu.TelegramID]; ok {
		u := m.users[id]
		return &u, nil
	}

	m.nextUserID++
	u := domain.User{
		ID:         m.nextUserID,
		TelegramID: nu.TelegramID,
		Name:       nu.Name,
		Role:       nu.Role,
		Language:   nu.Language,
		StartDate:  nu.StartDate,
		CreatedAt:  m.now(),
	}
	m.users[u.ID] = u
	m.byTelegram[u.TelegramID] = u.ID
	return &u, nil
}

func (m *Memory) ActivateUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Activated = true
	m.users[id] = u
	return nil
}

func (m *Memory) CreateTask(ctx context.Context, description string, assignedTo int64, due time.Time) (*domain.Task, error) {
	if description == "" {
		return nil, domain.ErrEmptyDescription
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[assignedTo]; !ok {
		return nil, domain.ErrUserNotFound
	}

	m.nextTaskID++
	now := m.now()
	t := domain.Task{
		ID:                m.nextTaskID,
		Description:       description,
		AssignedTo:        assignedTo,
		Due:               due,
		Status:            domain.TaskStatusPending,
		NotificationLevel: domain.LevelNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.tasks[t.ID] = t
	return &t, nil
}

func (m *Memory) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &t, nil
}

func (m *Memory) ActiveTasksBelowLevel(ctx context.Context, maxLevel domain.NotificationLevel) ([]domain.Task, error) {
	return m.filterTasks(func(t domain.Task) bool {
		return t.Status != domain.TaskStatusCompleted && t.NotificationLevel < maxLevel
	}), nil
}

func (m *Memory) TasksForUser(ctx context.Context, userID int64) ([]domain.Task, error) {
	return m.filterTasks(func(t domain.Task) bool {
		return t.AssignedTo == userID && t.Status != domain.TaskStatusCompleted
	}), nil
}

func (m *Memory) filterTasks(keep func(domain.Task) bool) []domain.Task {
	m.mu.RLock()
	var out []domain.Task
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Due.Equal(out[j].Due) {
			return out[i].Due.Before(out[j].Due)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CompleteTask reports false without mutating anything when the task does not
// exist or belongs to someone else. Completing an already completed task is a
// successful no-op.
func (m *Memory) CompleteTask(ctx context.Context, id, userID int64) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.AssignedTo != userID {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return true, nil
	}
	t.Status = domain.TaskStatusCompleted
	t.UpdatedAt = m.now()
	m.tasks[id] = t
	return true, nil
}

func (m *Memory) DeleteTask(ctx context.Context, id, userID int64) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.AssignedTo != userID {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

func (m *Memory) UpdateNotificationState(ctx context.Context, id int64, st domain.NotificationState) error {
	unlock := m.locks.lock(id)
	defer unlock()
	return m.applyState(id, st)
}

func (m *Memory) applyState(id int64, st domain.NotificationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if !st.Advances(&t) {
		return fmt.Errorf("%w: task %d at level %d status %s", domain.ErrStateNotAdvanced, id, t.NotificationLevel, t.Status)
	}
	st.Apply(&t)
	t.UpdatedAt = m.now()
	m.tasks[id] = t
	return nil
}

func (m *Memory) EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error {
	unlock := m.locks.lock(id)
	defer unlock()

	task, err := m.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.Escalatable() {
		return nil
	}

	st, err := fn(ctx, *task)
	if err != nil || st == nil {
		return err
	}
	return m.applyState(id, *st)
}
