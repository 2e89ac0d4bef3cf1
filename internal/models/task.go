package models

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// DateLayout is the calendar-date form due dates are stored and shown in.
const DateLayout = "2006-01-02"

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusCompleted:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Toggled returns the opposite status.
func (s TaskStatus) Toggled() TaskStatus {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

type Task struct {
	ID          int64      `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t Task) DueDateString() string {
	if t.DueDate == nil {
		return ""
	}
	return t.DueDate.Format(DateLayout)
}

func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// TaskInput carries the user-editable task fields after validation.
type TaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// TaskStats summarizes a user's tasks by status.
type TaskStats struct {
	Pending   int
	Completed int
}

func (s TaskStats) Total() int {
	return s.Pending + s.Completed
}
