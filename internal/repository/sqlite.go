package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/set-night/taskflow/internal/domain"
)

// SQLite stores users and tasks in a single database file owned by one
// process. Per-task serialization uses in-process locks; every write that
// touches the escalation fields is additionally guarded in SQL.
type SQLite struct {
	db    *sql.DB
	locks *taskLocks
	now   func() time.Time
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, locks: newTaskLocks(), now: time.Now}
}

// Times are stored as Unix nanoseconds and read back in the local zone,
// the zone due dates are parsed in.
func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n) }

func (s *SQLite) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLite) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	return u, nil
}

// CreateUser returns the existing row unchanged when the Telegram id is already registered.
func (s *SQLite) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (telegram_id, name, role, language, start_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = excluded.telegram_id
		RETURNING `+userColumns,
		nu.TelegramID, nu.Name, string(nu.Role), nu.Language, toUnix(nu.StartDate), toUnix(s.now()),
	))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *SQLite) ActivateUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET activated = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *SQLite) CreateTask(ctx context.Context, description string, assignedTo int64, due time.Time) (*domain.Task, error) {
	if description == "" {
		return nil, domain.ErrEmptyDescription
	}
	now := toUnix(s.now())
	t, err := scanSQLiteTask(s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (description, assigned_to, due, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+taskColumns,
		description, assignedTo, toUnix(due), now, now,
	))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *SQLite) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanSQLiteTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLite) ActiveTasksBelowLevel(ctx context.Context, maxLevel domain.NotificationLevel) ([]domain.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status <> 'completed' AND notification_level < ?
		ORDER BY due, id`, int(maxLevel))
}

func (s *SQLite) TasksForUser(ctx context.Context, userID int64) ([]domain.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to = ? AND status <> 'completed'
		ORDER BY due, id`, userID)
}

func (s *SQLite) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// CompleteTask reports false without mutating anything when the task does not
// exist or belongs to someone else. Completing an already completed task is a
// successful no-op.
func (s *SQLite) CompleteTask(ctx context.Context, id, userID int64) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', updated_at = ?
		WHERE id = ? AND assigned_to = ? AND status <> 'completed'`,
		toUnix(s.now()), id, userID)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var owned bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = ? AND assigned_to = ?)`, id, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check task owner: %w", err)
	}
	return owned, nil
}

func (s *SQLite) DeleteTask(ctx context.Context, id, userID int64) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND assigned_to = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLite) UpdateNotificationState(ctx context.Context, id int64, st domain.NotificationState) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.updateNotificationState(ctx, id, st)
}

func (s *SQLite) EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.GetTask(ctx, id)
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
	if !st.Advances(task) {
		return fmt.Errorf("%w: task %d", domain.ErrStateNotAdvanced, id)
	}
	return s.updateNotificationState(context.WithoutCancel(ctx), id, *st)
}

func (s *SQLite) updateNotificationState(ctx context.Context, id int64, st domain.NotificationState) error {
	var status sql.NullString
	if st.Status != nil {
		status = sql.NullString{String: string(*st.Status), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET notification_level = ?, status = COALESCE(?, status), updated_at = ?
		WHERE id = ? AND status <> 'completed' AND notification_level < ?`,
		int(st.Level), status, toUnix(s.now()), id, int(st.Level),
	)
	if err != nil {
		return fmt.Errorf("update notification state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: task %d", domain.ErrStateNotAdvanced, id)
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row sqliteScanner) (*domain.User, error) {
	var (
		u                    domain.User
		role                 string
		managerID            sql.NullInt64
		email                sql.NullString
		startDate, createdAt int64
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Name, &role, &managerID, &email,
		&u.Language, &startDate, &u.Activated, &createdAt); err != nil {
		return nil, err
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = r
	if managerID.Valid {
		u.ManagerID = &managerID.Int64
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.StartDate = fromUnix(startDate)
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

func scanSQLiteTask(row sqliteScanner) (*domain.Task, error) {
	var (
		t                         domain.Task
		status                    string
		level                     int64
		due, createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.Description, &t.AssignedTo, &due, &status, &level,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Due = fromUnix(due)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return decodeTask(t, status, level)
}
