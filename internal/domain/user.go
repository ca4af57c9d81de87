package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// ParseRole converts a persisted role value, rejecting anything unrecognized.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleManager, RoleEmployee:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

type User struct {
	ID         int64
	TelegramID int64
	Name       string
	Role       Role
	ManagerID  *int64
	Email      *string
	Language   string

	// StartDate anchors the trial window. It is set once at creation.
	StartDate time.Time
	// Activated only ever flips from false to true.
	Activated bool

	CreatedAt time.Time
}

// NewUser holds the fields supplied when a user registers.
type NewUser struct {
	TelegramID int64
	Name       string
	Language   string
	Role       Role
	StartDate  time.Time
}
