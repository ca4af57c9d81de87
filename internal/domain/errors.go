package domain

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrEmptyDescription = errors.New("task description is empty")
	ErrInvalidDueDate   = errors.New("invalid due date")
	ErrUnknownStatus    = errors.New("unknown task status")
	ErrUnknownRole      = errors.New("unknown user role")
	ErrUnknownLevel     = errors.New("unknown notification level")
	ErrStateNotAdvanced = errors.New("notification state does not advance")
	ErrBotBlocked       = errors.New("bot blocked by user")
)
