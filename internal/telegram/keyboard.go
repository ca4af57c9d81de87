package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/taskflow/internal/domain"
)

// Callback data understood by the handlers.
const (
	CallbackAddTask   = "add_task"
	CallbackListTasks = "list_tasks"
	CallbackDone      = "done_"
	CallbackDelete    = "delete_"
	CallbackTasksPage = "tasks_page"
	CallbackNoop      = "cur"
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// InlineKeyboard creates an inline keyboard from rows of buttons.
func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// ButtonRow creates a row of inline buttons.
func ButtonRow(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

// PaginationRow creates a pagination row with prev/next buttons.
func PaginationRow(currentPage, totalPages int, callbackPrefix string) []models.InlineKeyboardButton {
	var row []models.InlineKeyboardButton

	if currentPage > 0 {
		row = append(row, InlineButton("⬅️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage-1)))
	}

	row = append(row, InlineButton(
		fmt.Sprintf("%d/%d", currentPage+1, totalPages),
		CallbackNoop,
	))

	if currentPage < totalPages-1 {
		row = append(row, InlineButton("➡️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage+1)))
	}

	return row
}

func MainMenuKeyboard() *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(InlineButton("➕ Add task", CallbackAddTask)),
		ButtonRow(InlineButton("📝 My tasks", CallbackListTasks)),
	)
}

// TaskListKeyboard shows one page of tasks, each followed by its done and
// delete buttons. page is clamped to the valid range.
func TaskListKeyboard(tasks []domain.Task, page, perPage int) *models.InlineKeyboardMarkup {
	page, totalPages, start, end := PageBounds(len(tasks), page, perPage)

	var rows [][]models.InlineKeyboardButton
	for _, t := range tasks[start:end] {
		label := Truncate(t.Description, 40)
		if t.Status == domain.TaskStatusOverdue {
			label = "🔴 " + label
		}
		rows = append(rows,
			ButtonRow(InlineButton(label, CallbackNoop)),
			ButtonRow(
				InlineButton("✅ Done", CallbackDone+strconv.FormatInt(t.ID, 10)),
				InlineButton("❌ Delete", CallbackDelete+strconv.FormatInt(t.ID, 10)),
			),
		)
	}
	if totalPages > 1 {
		rows = append(rows, PaginationRow(page, totalPages, CallbackTasksPage))
	}
	rows = append(rows, ButtonRow(InlineButton("➕ Add task", CallbackAddTask)))
	return InlineKeyboard(rows...)
}

// PageBounds clamps page to the available pages of n items and returns the
// slice bounds of that page. An empty list has one empty page.
func PageBounds(n, page, perPage int) (clamped, totalPages, start, end int) {
	totalPages = max(1, (n+perPage-1)/perPage)
	clamped = max(0, min(page, totalPages-1))
	start = min(clamped*perPage, n)
	end = min(start+perPage, n)
	return clamped, totalPages, start, end
}

// ParseIDSuffix extracts the numeric id from callback data such as "done_12".
func ParseIDSuffix(data, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
