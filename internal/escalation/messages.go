package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/set-night/taskflow/internal/config"
	"github.com/set-night/taskflow/internal/domain"
)

type templates struct {
	approaching string
	overdue     string
}

var messageTemplates = map[string]templates{
	"en": {
		approaching: "⏰ %s, your task is due in %s:\n\n%s\n\nDue: %s",
		overdue:     "🔴 %s, your task is overdue:\n\n%s\n\nWas due: %s",
	},
	"ar": {
		approaching: "⏰ %s، موعد مهمتك بعد %s:\n\n%s\n\nتاريخ الاستحقاق: %s",
		overdue:     "🔴 %s، لقد فات موعد مهمتك:\n\n%s\n\nكان موعدها: %s",
	},
}

func templatesFor(language string) templates {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if t, ok := messageTemplates[lang]; ok {
		return t
	}
	return messageTemplates[config.DefaultLanguage]
}

// RenderMessage builds the notification text for action in the user's language.
func RenderMessage(action Action, user *domain.User, task domain.Task, now time.Time) (string, error) {
	t := templatesFor(user.Language)
	due := task.Due.Format(config.DueLayout)

	switch action {
	case ActionSendApproaching:
		left := task.Due.Sub(now).Round(time.Minute)
		if left < time.Minute {
			left = time.Minute
		}
		return fmt.Sprintf(t.approaching, user.Name, formatDuration(left), task.Description, due), nil
	case ActionSendOverdue:
		return fmt.Sprintf(t.overdue, user.Name, task.Description, due), nil
	default:
		return "", fmt.Errorf("no message for action %s", action)
	}
}

func formatDuration(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
