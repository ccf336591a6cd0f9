// Package validation holds the pure field checks run at the edit
// boundary. Every function is deterministic given its inputs and the
// supplied current time; none touch storage.
package validation

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Result struct {
	Valid   bool
	Message string
}

func pass() Result {
	return Result{Valid: true}
}

func fail(message string) Result {
	return Result{Message: message}
}

func Title(title string) Result {
	switch {
	case strings.TrimSpace(title) == "":
		return fail("Title cannot be empty")
	case utf8.RuneCountInString(title) < 3:
		return fail("Title must be at least 3 characters")
	case utf8.RuneCountInString(title) > 100:
		return fail("Title too long")
	default:
		return pass()
	}
}

func Description(description string) Result {
	if utf8.RuneCountInString(description) > 500 {
		return fail("Description too long")
	}
	return pass()
}

func DueDate(due *time.Time, now time.Time) Result {
	if due != nil && due.Before(now) {
		return fail("Due date cannot be in the past")
	}
	return pass()
}

// Task runs the three field checks in fixed order, title before
// description before due date, and returns the first failure.
func Task(title, description string, due *time.Time, now time.Time) Result {
	if r := Title(title); !r.Valid {
		return r
	}
	if r := Description(description); !r.Valid {
		return r
	}
	if r := DueDate(due, now); !r.Valid {
		return r
	}
	return pass()
}
