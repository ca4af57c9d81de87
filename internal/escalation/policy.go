package escalation

import (
	"fmt"
	"time"

	"github.com/set-night/taskflow/internal/domain"
)

type Action int

const (
	ActionNone Action = iota
	ActionSendApproaching
	ActionSendOverdue
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSendApproaching:
		return "approaching"
	case ActionSendOverdue:
		return "overdue"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// NextState is the state to persist once the action's message was delivered.
func (a Action) NextState() (domain.NotificationState, error) {
	switch a {
	case ActionSendApproaching:
		return domain.NotificationState{Level: domain.LevelApproaching}, nil
	case ActionSendOverdue:
		overdue := domain.TaskStatusOverdue
		return domain.NotificationState{Level: domain.LevelOverdue, Status: &overdue}, nil
	case ActionNone:
		return domain.NotificationState{}, fmt.Errorf("action %s has no next state", a)
	default:
		return domain.NotificationState{}, fmt.Errorf("unknown action %d", int(a))
	}
}

// Policy decides which notification, if any, is due for a task. It performs no I/O.
type Policy struct {
	// Lead is how long before the due instant the approaching notice goes out.
	Lead time.Duration
}

// Decide checks overdue before approaching, so a task first seen after its due
// instant goes straight to the overdue notice and skips level 1.
func (p Policy) Decide(task domain.Task, now time.Time) Action {
	if !task.Escalatable() {
		return ActionNone
	}

	remaining := task.Due.Sub(now)
	switch {
	case remaining <= 0:
		return ActionSendOverdue
	case remaining <= p.Lead && task.NotificationLevel == domain.LevelNone:
		return ActionSendApproaching
	default:
		return ActionNone
	}
}
