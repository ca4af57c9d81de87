// Package duedate turns the short due-date phrases users type into the chat
// into absolute instants.
package duedate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/set-night/taskflow/internal/domain"
)

// Parse interprets text relative to now, in now's location. Accepted forms:
//
//	tomorrow | غدا                 now + 24h
//	tomorrow 10pm | غدا 10م        next day at the given clock
//	today 18:30                    today at the given clock
//	25/12 09:00 | 25/12 9am        day/month at the given clock
//	2026-12-25 09:00               absolute
//	+2h | +45m | +1h30m | +3d      relative offset
//
// Day/month dates that already passed this year roll to the next year.
func Parse(text string, now time.Time) (time.Time, error) {
	s := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if s == "" {
		return time.Time{}, domain.ErrInvalidDueDate
	}

	if strings.HasPrefix(s, "+") {
		return parseOffset(s[1:], now)
	}

	word, rest, _ := strings.Cut(s, " ")
	switch word {
	case "tomorrow", "غدا", "غداً", "بكرة":
		if rest == "" {
			return now.Add(24 * time.Hour), nil
		}
		return atClock(now.AddDate(0, 0, 1), rest)
	case "today", "اليوم":
		if rest == "" {
			return time.Time{}, invalid(text)
		}
		return atClock(now, rest)
	}

	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}

	if strings.Contains(word, "/") && rest != "" {
		return parseDayMonth(word, rest, now)
	}

	return time.Time{}, invalid(text)
}

func invalid(text string) error {
	return fmt.Errorf("%w: %q", domain.ErrInvalidDueDate, text)
}

func parseOffset(s string, now time.Time) (time.Time, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return time.Time{}, invalid("+" + s)
		}
		return now.AddDate(0, 0, n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, invalid("+" + s)
	}
	return now.Add(d), nil
}

func parseDayMonth(date, clock string, now time.Time) (time.Time, error) {
	dayStr, monthStr, _ := strings.Cut(date, "/")
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, invalid(date)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, invalid(date)
	}
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	for _, year := range []int{now.Year(), now.Year() + 1} {
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
		// time.Date normalizes 31/02 into March; 29/02 only exists in leap years.
		if t.Day() != day {
			continue
		}
		if t.After(now) {
			return t, nil
		}
	}
	return time.Time{}, invalid(date)
}

func atClock(day time.Time, clock string) (time.Time, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}

// parseClock accepts 24-hour "18:30" and 12-hour "9am", "9:15 pm", "10م", "9ص".
func parseClock(s string) (hour, minute int, err error) {
	s = strings.ReplaceAll(s, " ", "")
	meridiem := ""
	for _, suffix := range []struct{ text, value string }{
		{"am", "am"}, {"pm", "pm"}, {"ص", "am"}, {"م", "pm"},
	} {
		if rest, ok := strings.CutSuffix(s, suffix.text); ok {
			s, meridiem = rest, suffix.value
			break
		}
	}

	hourStr, minuteStr, hasMinutes := strings.Cut(s, ":")
	hour, err = strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, invalid(s)
	}
	if hasMinutes {
		minute, err = strconv.Atoi(minuteStr)
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, invalid(s)
		}
	} else if meridiem == "" {
		return 0, 0, invalid(s)
	}

	switch meridiem {
	case "":
		if hour < 0 || hour > 23 {
			return 0, 0, invalid(s)
		}
	default:
		if hour < 1 || hour > 12 {
			return 0, 0, invalid(s)
		}
		hour %= 12
		if meridiem == "pm" {
			hour += 12
		}
	}
	return hour, minute, nil
}
