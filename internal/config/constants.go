package config

import "time"

const (
	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Maximum task description length accepted from chat
	MaxDescriptionLen = 500

	// Tasks shown per /tasks listing
	TasksPerPage = 10

	// Timeout for ops log messages sent to the log chat
	LogSendTimeout = 10 * time.Second

	// Conversations left unfinished are forgotten after this long
	ConversationTTL = 30 * time.Minute

	// Display layout for due dates in chat
	DueLayout = "2006-01-02 15:04"

	// Language used when Telegram does not report one
	DefaultLanguage = "en"
)
