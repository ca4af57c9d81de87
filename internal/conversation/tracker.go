// Package conversation keeps the per-user state of the "add task" dialog.
package conversation

import (
	"sync"
	"time"
)

type State int

const (
	Idle State = iota
	AwaitingDescription
	AwaitingDue
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDescription:
		return "awaiting_description"
	case AwaitingDue:
		return "awaiting_due"
	default:
		return "unknown"
	}
}

// Session is a snapshot of one user's dialog.
type Session struct {
	State       State
	Description string
}

type entry struct {
	Session
	touched time.Time
}

// Tracker holds dialogs in memory keyed by Telegram user id. Dialogs idle for
// longer than the TTL are forgotten; a restart forgets all of them.
type Tracker struct {
	mu       sync.Mutex
	sessions map[int64]entry
	ttl      time.Duration
	now      func() time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[int64]entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin starts a new dialog, discarding any unfinished one.
func (t *Tracker) Begin(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[userID] = entry{Session: Session{State: AwaitingDescription}, touched: t.now()}
}

func (t *Tracker) Current(userID int64) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.live(userID)
	if !ok {
		return Session{State: Idle}
	}
	return e.Session
}

// SetDescription stores the description and moves the dialog on to the due
// date. It reports false when no description was being awaited.
func (t *Tracker) SetDescription(userID int64, description string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.live(userID)
	if !ok || e.State != AwaitingDescription {
		return false
	}
	e.State = AwaitingDue
	e.Description = description
	e.touched = t.now()
	t.sessions[userID] = e
	return true
}

// Finish ends a dialog that was awaiting its due date and returns the stored
// description.
func (t *Tracker) Finish(userID int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.live(userID)
	if !ok || e.State != AwaitingDue {
		return "", false
	}
	delete(t.sessions, userID)
	return e.Description, true
}

// Cancel drops the dialog and reports whether one was in progress.
func (t *Tracker) Cancel(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live(userID)
	delete(t.sessions, userID)
	return ok
}

// Sweep removes expired dialogs and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id := range t.sessions {
		if _, ok := t.live(id); !ok {
			n++
		}
	}
	return n
}

// live must be called with mu held. It evicts the entry when expired.
func (t *Tracker) live(userID int64) (entry, bool) {
	e, ok := t.sessions[userID]
	if !ok {
		return entry{}, false
	}
	if t.ttl > 0 && t.now().Sub(e.touched) > t.ttl {
		delete(t.sessions, userID)
		return entry{}, false
	}
	return e, true
}
