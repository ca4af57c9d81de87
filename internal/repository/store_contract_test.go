package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/set-night/taskflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error)
	ActivateUser(ctx context.Context, id int64) error
	CreateTask(ctx context.Context, description string, assignedTo int64, due time.Time) (*domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ActiveTasksBelowLevel(ctx context.Context, maxLevel domain.NotificationLevel) ([]domain.Task, error)
	TasksForUser(ctx context.Context, userID int64) ([]domain.Task, error)
	CompleteTask(ctx context.Context, id, userID int64) (bool, error)
	DeleteTask(ctx context.Context, id, userID int64) (bool, error)
	UpdateNotificationState(ctx context.Context, id int64, st domain.NotificationState) error
	EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error
}

var (
	_ store = (*Memory)(nil)
	_ store = (*SQLite)(nil)
	_ store = (*Postgres)(nil)
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func overdueState() domain.NotificationState {
	s := domain.TaskStatusOverdue
	return domain.NotificationState{Level: domain.LevelOverdue, Status: &s}
}

// runStoreContract exercises behavior every store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store) {
	ctx := context.Background()

	seedUser := func(t *testing.T, s store, telegramID int64) *domain.User {
		t.Helper()
		u, err := s.CreateUser(ctx, domain.NewUser{
			TelegramID: telegramID,
			Name:       "Amira",
			Language:   "ar",
			Role:       domain.RoleEmployee,
			StartDate:  epoch,
		})
		require.NoError(t, err)
		return u
	}

	t.Run("CreateUser", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1001)
		assert.NotZero(t, u.ID)
		assert.Equal(t, int64(1001), u.TelegramID)
		assert.False(t, u.Activated)
		assert.True(t, epoch.Equal(u.StartDate))
		assert.Equal(t, domain.RoleEmployee, u.Role)

		again, err := s.CreateUser(ctx, domain.NewUser{
			TelegramID: 1001, Name: "Other", Role: domain.RoleEmployee, StartDate: epoch.Add(48 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, u.ID, again.ID)
		assert.True(t, epoch.Equal(again.StartDate), "start date must never change")

		byTG, err := s.GetUserByTelegramID(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byTG.ID)

		_, err = s.GetUser(ctx, 9999)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		_, err = s.GetUserByTelegramID(ctx, 9999)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("ActivateUser", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1002)

		require.NoError(t, s.ActivateUser(ctx, u.ID))
		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Activated)

		assert.ErrorIs(t, s.ActivateUser(ctx, 9999), domain.ErrUserNotFound)
	})

	t.Run("CreateTask", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1003)

		task, err := s.CreateTask(ctx, "Send invoice", u.ID, epoch.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, domain.LevelNone, task.NotificationLevel)
		assert.True(t, epoch.Add(time.Hour).Equal(task.Due))

		_, err = s.CreateTask(ctx, "", u.ID, epoch)
		assert.ErrorIs(t, err, domain.ErrEmptyDescription)

		_, err = s.CreateTask(ctx, "orphan", 9999, epoch)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("Due keeps local wall clock", func(t *testing.T) {
		prev := time.Local
		time.Local = time.FixedZone("UTC+3", 3*60*60)
		t.Cleanup(func() { time.Local = prev })

		s := newStore(t)
		u := seedUser(t, s, 1013)
		due := time.Date(2026, 12, 25, 18, 30, 0, 0, time.Local)

		task, err := s.CreateTask(ctx, "Wrap presents", u.ID, due)
		require.NoError(t, err)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, due.Equal(got.Due))
		assert.Equal(t, "2026-12-25 18:30", got.Due.Format("2006-01-02 15:04"))

		active, err := s.ActiveTasksBelowLevel(ctx, domain.LevelOverdue)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "2026-12-25 18:30", active[0].Due.Format("2006-01-02 15:04"))
	})

	t.Run("ActiveTasksBelowLevel", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1004)

		later, err := s.CreateTask(ctx, "later", u.ID, epoch.Add(2*time.Hour))
		require.NoError(t, err)
		sooner, err := s.CreateTask(ctx, "sooner", u.ID, epoch.Add(time.Hour))
		require.NoError(t, err)
		done, err := s.CreateTask(ctx, "done", u.ID, epoch)
		require.NoError(t, err)
		escalated, err := s.CreateTask(ctx, "escalated", u.ID, epoch)
		require.NoError(t, err)

		ok, err := s.CompleteTask(ctx, done.ID, u.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.UpdateNotificationState(ctx, escalated.ID, overdueState()))

		tasks, err := s.ActiveTasksBelowLevel(ctx, domain.LevelOverdue)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, sooner.ID, tasks[0].ID)
		assert.Equal(t, later.ID, tasks[1].ID)

		mine, err := s.TasksForUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 3, "completed tasks are not listed")
	})

	t.Run("CompleteTask", func(t *testing.T) {
		s := newStore(t)
		owner := seedUser(t, s, 1005)
		other := seedUser(t, s, 1006)
		task, err := s.CreateTask(ctx, "Call supplier", owner.ID, epoch)
		require.NoError(t, err)

		ok, err := s.CompleteTask(ctx, task.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, ok, "wrong user")

		ok, err = s.CompleteTask(ctx, 9999, owner.ID)
		require.NoError(t, err)
		assert.False(t, ok, "unknown task")

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status, "failed completion must not mutate")

		ok, err = s.CompleteTask(ctx, task.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.CompleteTask(ctx, task.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, ok, "completing twice is a no-op success")

		got, err = s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	})

	t.Run("DeleteTask", func(t *testing.T) {
		s := newStore(t)
		owner := seedUser(t, s, 1007)
		other := seedUser(t, s, 1008)
		task, err := s.CreateTask(ctx, "Draft memo", owner.ID, epoch)
		require.NoError(t, err)

		ok, err := s.DeleteTask(ctx, task.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeleteTask(ctx, task.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.GetTask(ctx, task.ID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("UpdateNotificationState is a ratchet", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1009)
		task, err := s.CreateTask(ctx, "Renew license", u.ID, epoch)
		require.NoError(t, err)

		require.NoError(t, s.UpdateNotificationState(ctx, task.ID, domain.NotificationState{Level: domain.LevelApproaching}))

		err = s.UpdateNotificationState(ctx, task.ID, domain.NotificationState{Level: domain.LevelNone})
		assert.ErrorIs(t, err, domain.ErrStateNotAdvanced)
		err = s.UpdateNotificationState(ctx, task.ID, domain.NotificationState{Level: domain.LevelApproaching})
		assert.ErrorIs(t, err, domain.ErrStateNotAdvanced)

		require.NoError(t, s.UpdateNotificationState(ctx, task.ID, overdueState()))
		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LevelOverdue, got.NotificationLevel)
		assert.Equal(t, domain.TaskStatusOverdue, got.Status)

		err = s.UpdateNotificationState(ctx, 9999, overdueState())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("UpdateNotificationState leaves completed tasks alone", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1010)
		task, err := s.CreateTask(ctx, "File taxes", u.ID, epoch)
		require.NoError(t, err)
		_, err = s.CompleteTask(ctx, task.ID, u.ID)
		require.NoError(t, err)

		err = s.UpdateNotificationState(ctx, task.ID, overdueState())
		assert.ErrorIs(t, err, domain.ErrStateNotAdvanced)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		assert.Equal(t, domain.LevelNone, got.NotificationLevel)
	})

	t.Run("EscalateTask", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1011)
		task, err := s.CreateTask(ctx, "Book venue", u.ID, epoch)
		require.NoError(t, err)

		// fn error persists nothing
		err = s.EscalateTask(ctx, task.ID, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
			return nil, errors.New("send failed")
		})
		require.Error(t, err)
		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LevelNone, got.NotificationLevel)

		// nil state persists nothing
		require.NoError(t, s.EscalateTask(ctx, task.ID, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
			return nil, nil
		}))

		st := overdueState()
		require.NoError(t, s.EscalateTask(ctx, task.ID, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
			assert.Equal(t, task.ID, tk.ID)
			return &st, nil
		}))
		got, err = s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LevelOverdue, got.NotificationLevel)
		assert.Equal(t, domain.TaskStatusOverdue, got.Status)

		// fully escalated: fn is not called
		called := false
		require.NoError(t, s.EscalateTask(ctx, task.ID, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
			called = true
			return nil, nil
		}))
		assert.False(t, called)

		err = s.EscalateTask(ctx, 9999, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("EscalateTask excludes completion", func(t *testing.T) {
		s := newStore(t)
		u := seedUser(t, s, 1012)
		task, err := s.CreateTask(ctx, "Sign contract", u.ID, epoch)
		require.NoError(t, err)

		inside := make(chan struct{})
		release := make(chan struct{})
		completed := make(chan bool, 1)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := overdueState()
			err := s.EscalateTask(ctx, task.ID, func(ctx context.Context, tk domain.Task) (*domain.NotificationState, error) {
				close(inside)
				<-release
				return &st, nil
			})
			assert.NoError(t, err)
		}()

		<-inside
		go func() {
			ok, err := s.CompleteTask(ctx, task.ID, u.ID)
			assert.NoError(t, err)
			completed <- ok
		}()

		select {
		case <-completed:
			t.Fatal("completion must wait for the in-flight escalation")
		case <-time.After(50 * time.Millisecond):
		}
		close(release)
		wg.Wait()
		assert.True(t, <-completed)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		assert.Equal(t, domain.LevelOverdue, got.NotificationLevel)
	})
}
