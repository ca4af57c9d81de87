package domain

import (
	"context"
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// ParseTaskStatus converts a persisted status value, rejecting anything unrecognized.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusOverdue:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted
}

// CanTransitionTo encodes the task state machine:
//
//	pending, in_progress -> overdue
//	pending, in_progress, overdue -> completed
//	completed -> (nothing)
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress:
		return next == TaskStatusOverdue || next == TaskStatusCompleted || next == TaskStatusInProgress
	case TaskStatusOverdue:
		return next == TaskStatusCompleted
	case TaskStatusCompleted:
		return false
	default:
		return false
	}
}

// NotificationLevel counts the escalation milestones already delivered for a task.
type NotificationLevel int

const (
	LevelNone        NotificationLevel = 0
	LevelApproaching NotificationLevel = 1
	LevelOverdue     NotificationLevel = 2
)

// ParseNotificationLevel validates a persisted level.
func ParseNotificationLevel(v int64) (NotificationLevel, error) {
	switch l := NotificationLevel(v); l {
	case LevelNone, LevelApproaching, LevelOverdue:
		return l, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownLevel, v)
	}
}

type Task struct {
	ID                int64
	Description       string
	AssignedTo        int64
	Due               time.Time
	Status            TaskStatus
	NotificationLevel NotificationLevel
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Escalatable reports whether the notification engine still has work to do for t.
func (t *Task) Escalatable() bool {
	return !t.Status.IsTerminal() && t.NotificationLevel < LevelOverdue
}

// NotificationState is the pair of fields written back after a confirmed delivery.
// A nil Status leaves the stored status unchanged.
type NotificationState struct {
	Level  NotificationLevel
	Status *TaskStatus
}

// Advances reports whether applying s to t moves the ratchet forward without
// violating the state machine.
func (s NotificationState) Advances(t *Task) bool {
	if !t.Escalatable() || s.Level <= t.NotificationLevel {
		return false
	}
	if s.Status != nil && *s.Status != t.Status && !t.Status.CanTransitionTo(*s.Status) {
		return false
	}
	return true
}

// EscalateFunc runs while a store holds the task's lock. It receives the
// freshly read task and returns the state to persist, or nil to persist nothing.
// A returned error also means nothing is persisted.
type EscalateFunc func(ctx context.Context, task Task) (*NotificationState, error)

// Apply writes s into t. Callers check Advances first.
func (s NotificationState) Apply(t *Task) {
	t.NotificationLevel = s.Level
	if s.Status != nil {
		t.Status = *s.Status
	}
}
