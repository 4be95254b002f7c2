package job

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxCommandBytes bounds a command's payload.
const DefaultMaxCommandBytes = 511

var (
	ErrCommandEmpty   = errors.New("command is empty")
	ErrCommandNewline = errors.New("command must be a single line")
	ErrCommandTooLong = errors.New("command too long")
)

// Job is one registered shell command.
//
// A zero Due means due-immediately: the job is eligible on the first scan that
// observes it. A Due before the Unix epoch is never eligible.
type Job struct {
	ID       int
	Command  string
	Due      time.Time
	Executed bool
}

// DueImmediately reports whether the job carries no due time.
func (j Job) DueImmediately() bool { return j.Due.IsZero() }

// HasDueTime reports whether Due is a real, positive Unix instant.
func (j Job) HasDueTime() bool { return !j.Due.IsZero() && j.Due.Unix() > 0 }

// IsDue reports whether the job should be dispatched at now.
func (j Job) IsDue(now time.Time) bool {
	if j.Executed {
		return false
	}
	return j.DueImmediately() || (j.HasDueTime() && !j.Due.After(now))
}

// Status is the human-readable execution state.
func (j Job) Status() string {
	if j.Executed {
		return "done"
	}
	return "pending"
}

// NormalizeCommand trims surrounding whitespace and validates the command
// against maxBytes (<= 0 uses DefaultMaxCommandBytes).
func NormalizeCommand(cmd string, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxCommandBytes
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "", ErrCommandEmpty
	}
	if strings.ContainsAny(cmd, "\r\n") {
		return "", ErrCommandNewline
	}
	if len(cmd) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrCommandTooLong, len(cmd), maxBytes)
	}
	return cmd, nil
}

// NextID returns max(existing ids) + 1.
func NextID(jobs []Job) int {
	maxID := 0
	for _, j := range jobs {
		if j.ID > maxID {
			maxID = j.ID
		}
	}
	return maxID + 1
}
