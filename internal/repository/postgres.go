package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/taskflow/internal/domain"
)

const (
	userColumns = `id, telegram_id, name, role, manager_id, email, language, start_date, activated, created_at`
	taskColumns = `id, description, assigned_to, due, status, notification_level, created_at, updated_at`

	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores users and tasks in PostgreSQL. Escalation and completion of
// the same task are serialized by the task's row lock.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanPgUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	u, err := scanPgUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	return u, nil
}

// CreateUser returns the existing row unchanged when the Telegram id is
// already registered, so start_date is never overwritten.
func (p *Postgres) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, name, role, language, start_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = excluded.telegram_id
		RETURNING `+userColumns,
		nu.TelegramID, nu.Name, string(nu.Role), nu.Language, nu.StartDate,
	)
	u, err := scanPgUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) ActivateUser(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET activated = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (p *Postgres) CreateTask(ctx context.Context, description string, assignedTo int64, due time.Time) (*domain.Task, error) {
	if description == "" {
		return nil, domain.ErrEmptyDescription
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO tasks (description, assigned_to, due)
		VALUES ($1, $2, $3)
		RETURNING `+taskColumns,
		description, assignedTo, due,
	)
	t, err := scanPgTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (p *Postgres) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	return getPgTask(ctx, p.pool, id, false)
}

func (p *Postgres) ActiveTasksBelowLevel(ctx context.Context, maxLevel domain.NotificationLevel) ([]domain.Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status <> 'completed' AND notification_level < $1
		ORDER BY due, id`, int16(maxLevel))
	if err != nil {
		return nil, fmt.Errorf("query active tasks: %w", err)
	}
	return collectPgTasks(rows)
}

func (p *Postgres) TasksForUser(ctx context.Context, userID int64) ([]domain.Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to = $1 AND status <> 'completed'
		ORDER BY due, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user tasks: %w", err)
	}
	return collectPgTasks(rows)
}

// CompleteTask reports false without mutating anything when the task does not
// exist or belongs to someone else. Completing an already completed task is a
// successful no-op.
func (p *Postgres) CompleteTask(ctx context.Context, id, userID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE tasks SET status = 'completed', updated_at = now()
		WHERE id = $1 AND assigned_to = $2 AND status <> 'completed'`, id, userID)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var owned bool
	err = p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND assigned_to = $2)`, id, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check task owner: %w", err)
	}
	return owned, nil
}

func (p *Postgres) DeleteTask(ctx context.Context, id, userID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND assigned_to = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) UpdateNotificationState(ctx context.Context, id int64, st domain.NotificationState) error {
	return updatePgNotificationState(ctx, p.pool, id, st)
}

// EscalateTask holds the task's row lock (SELECT … FOR UPDATE) from the read
// through fn to the commit. The write uses a context detached from ctx's
// cancellation so a delivered notice is still recorded during shutdown.
func (p *Postgres) EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	task, err := getPgTask(ctx, tx, id, true)
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

	wctx := context.WithoutCancel(ctx)
	if err := updatePgNotificationState(wctx, tx, id, *st); err != nil {
		return err
	}
	if err := tx.Commit(wctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getPgTask(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanPgTask(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// updatePgNotificationState only moves forward: completed tasks and writes
// that would not raise the level match no row.
func updatePgNotificationState(ctx context.Context, q querier, id int64, st domain.NotificationState) error {
	var status *string
	if st.Status != nil {
		s := string(*st.Status)
		status = &s
	}

	tag, err := q.Exec(ctx, `
		UPDATE tasks
		SET notification_level = $2, status = COALESCE($3, status), updated_at = now()
		WHERE id = $1 AND status <> 'completed' AND notification_level < $2`,
		id, int16(st.Level), status,
	)
	if err != nil {
		return fmt.Errorf("update notification state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := getPgTask(ctx, q, id, false); err != nil {
		return err
	}
	return fmt.Errorf("%w: task %d", domain.ErrStateNotAdvanced, id)
}

func collectPgTasks(rows pgx.Rows) ([]domain.Task, error) {
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Task, error) {
		t, err := scanPgTask(row)
		if err != nil {
			return domain.Task{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	return tasks, nil
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Name, &role, &u.ManagerID, &u.Email,
		&u.Language, &u.StartDate, &u.Activated, &u.CreatedAt); err != nil {
		return nil, err
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = r
	return &u, nil
}

func scanPgTask(row pgx.Row) (*domain.Task, error) {
	var (
		t      domain.Task
		status string
		level  int16
	)
	if err := row.Scan(&t.ID, &t.Description, &t.AssignedTo, &t.Due, &status, &level,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return decodeTask(t, status, int64(level))
}

func decodeTask(t domain.Task, status string, level int64) (*domain.Task, error) {
	st, err := domain.ParseTaskStatus(status)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", t.ID, err)
	}
	lvl, err := domain.ParseNotificationLevel(level)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.Status = st
	t.NotificationLevel = lvl
	return &t, nil
}
