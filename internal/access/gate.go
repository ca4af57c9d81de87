// Package access decides whether a user may act: activated users always may,
// everyone else only during the trial window that starts at registration.
package access

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/set-night/taskflow/internal/domain"
)

// UserActivator persists the one-way activation flip.
type UserActivator interface {
	ActivateUser(ctx context.Context, id int64) error
}

type Gate struct {
	store       UserActivator
	trialPeriod time.Duration
	code        string
}

// NewGate creates a gate. Every user shares the same activation code.
func NewGate(store UserActivator, trialPeriod time.Duration, activationCode string) *Gate {
	return &Gate{store: store, trialPeriod: trialPeriod, code: activationCode}
}

// IsAllowed has no side effects.
func (g *Gate) IsAllowed(user *domain.User, now time.Time) bool {
	if user.Activated {
		return true
	}
	return now.Sub(user.StartDate) < g.trialPeriod
}

// TrialEndsAt is the first instant at which a non-activated user is refused.
func (g *Gate) TrialEndsAt(user *domain.User) time.Time {
	return user.StartDate.Add(g.trialPeriod)
}

// Activate compares code against the shared activation code. On a match the
// user is activated through the store and true is returned; on a mismatch
// nothing is written.
func (g *Gate) Activate(ctx context.Context, user *domain.User, code string) (bool, error) {
	if !g.matches(code) {
		return false, nil
	}
	if user.Activated {
		return true, nil
	}
	if err := g.store.ActivateUser(ctx, user.ID); err != nil {
		return false, fmt.Errorf("activate user: %w", err)
	}
	user.Activated = true
	return true, nil
}

func (g *Gate) matches(code string) bool {
	code = strings.TrimSpace(code)
	if g.code == "" || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(g.code)) == 1
}
