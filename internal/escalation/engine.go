// Package escalation notifies users as their task deadlines approach and pass.
//
// The engine is driven by a fixed-interval timer. Each cycle loads every task
// that is neither completed nor fully escalated, asks the Policy what is due,
// delivers the message and only then ratchets the task's notification level
// forward. A failed delivery leaves the task untouched, so the same action is
// retried on the next cycle; there is no separate retry queue.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/set-night/taskflow/internal/domain"
)

// Store is the persistence the engine needs.
type Store interface {
	ActiveTasksBelowLevel(ctx context.Context, maxLevel domain.NotificationLevel) ([]domain.Task, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	// EscalateTask locks the task, re-reads it and, if it is still
	// escalatable, runs fn and persists the state fn returns.
	EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error
}

// Notifier delivers text to a user's chat. Any error counts as a failed delivery.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	// Lead is the approaching-notice lead time.
	Lead time.Duration
	// Concurrency bounds how many tasks are processed at once within a cycle.
	Concurrency int
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	// OnOverdue, when set, is called after an overdue notice was delivered and persisted.
	OnOverdue func(user *domain.User, task domain.Task)
}

type Engine struct {
	store    Store
	notifier Notifier
	policy   Policy
	opts     Options
	now      func() time.Time
}

func New(store Store, notifier Notifier, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		policy:   Policy{Lead: opts.Lead},
		opts:     opts,
		now:      time.Now,
	}
}

// Report summarizes one cycle.
type Report struct {
	CycleID         string
	Candidates      int
	SentApproaching int
	SentOverdue     int
	DeliveryFailed  int
	Skipped         int
	StoreErrors     int
}

type counters struct {
	approaching, overdue, failed, skipped, storeErrors atomic.Int64
}

// errDelivery marks a failed Notifier.Send so it can be told apart from store errors.
type errDelivery struct{ err error }

func (e *errDelivery) Error() string { return "deliver notification: " + e.err.Error() }
func (e *errDelivery) Unwrap() error { return e.err }

// RunCycle performs one scan at instant now. It returns an error only when the
// candidate tasks cannot be loaded; failures for individual tasks are logged
// and never affect other tasks.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (Report, error) {
	report := Report{CycleID: uuid.NewString()}
	log := slog.With("cycle_id", report.CycleID)

	tasks, err := e.store.ActiveTasksBelowLevel(ctx, domain.LevelOverdue)
	if err != nil {
		return report, fmt.Errorf("load active tasks: %w", err)
	}
	report.Candidates = len(tasks)

	var c counters
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	for _, task := range tasks {
		if ctx.Err() != nil {
			// Unprocessed tasks wait for the next tick.
			break
		}
		g.Go(func() error {
			e.processTask(ctx, log, task, now, &c)
			return nil
		})
	}
	_ = g.Wait()

	report.SentApproaching = int(c.approaching.Load())
	report.SentOverdue = int(c.overdue.Load())
	report.DeliveryFailed = int(c.failed.Load())
	report.Skipped = int(c.skipped.Load())
	report.StoreErrors = int(c.storeErrors.Load())

	log.Info("escalation cycle finished",
		"candidates", report.Candidates,
		"sent_approaching", report.SentApproaching,
		"sent_overdue", report.SentOverdue,
		"delivery_failed", report.DeliveryFailed,
		"skipped", report.Skipped,
		"store_errors", report.StoreErrors,
	)
	return report, nil
}

func (e *Engine) processTask(ctx context.Context, log *slog.Logger, candidate domain.Task, now time.Time, c *counters) {
	log = log.With("task_id", candidate.ID, "user_id", candidate.AssignedTo)

	// Cheap pre-check on the snapshot; the decision that counts is made again
	// under the task lock below.
	if e.policy.Decide(candidate, now) == ActionNone {
		return
	}

	user, err := e.store.GetUser(ctx, candidate.AssignedTo)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.skipped.Add(1)
			log.Warn("task assigned to unknown user, skipping")
			return
		}
		c.storeErrors.Add(1)
		log.Error("load assignee", "error", err)
		return
	}

	var (
		sent      Action
		delivered domain.Task
	)
	err = e.store.EscalateTask(ctx, candidate.ID, func(ctx context.Context, task domain.Task) (*domain.NotificationState, error) {
		action := e.policy.Decide(task, now)
		if action == ActionNone {
			return nil, nil
		}

		next, err := action.NextState()
		if err != nil {
			return nil, err
		}
		text, err := RenderMessage(action, user, task, now)
		if err != nil {
			return nil, err
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
		defer cancel()
		if err := e.notifier.Send(sendCtx, user.TelegramID, text); err != nil {
			return nil, &errDelivery{err: err}
		}

		sent = action
		delivered = task
		next.Apply(&delivered)
		return &next, nil
	})

	var de *errDelivery
	switch {
	case err == nil:
	case errors.As(err, &de):
		c.failed.Add(1)
		log.Warn("notification not delivered, will retry next cycle", "error", de.err)
		return
	case errors.Is(err, domain.ErrTaskNotFound):
		c.skipped.Add(1)
		log.Debug("task disappeared before escalation")
		return
	default:
		c.storeErrors.Add(1)
		if sent != ActionNone {
			log.Error("notification delivered but state not saved; it may be repeated", "action", sent.String(), "error", err)
		} else {
			log.Error("escalate task", "error", err)
		}
		return
	}

	switch sent {
	case ActionSendApproaching:
		c.approaching.Add(1)
		log.Info("approaching deadline notice sent")
	case ActionSendOverdue:
		c.overdue.Add(1)
		log.Info("overdue notice sent")
		if e.opts.OnOverdue != nil {
			e.opts.OnOverdue(user, delivered)
		}
	case ActionNone:
	}
}

// Run calls RunCycle on every tick of interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunCycle(ctx, e.now()); err != nil {
				slog.Error("escalation cycle", "error", err)
			}
		}
	}
}
