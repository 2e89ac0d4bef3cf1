package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/common"
	"taskboard/internal/models"
)

// TaskStore persists tasks. Every method takes the owner id and filters on
// it, so a caller can never reach another user's rows.
type TaskStore struct {
	db  *DB
	now func() time.Time
}

func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

const taskColumns = `id, user_id, title, description, due_date, status, created_at, updated_at`

func (s *TaskStore) List(ctx context.Context, ownerID string) ([]models.Task, error) {
	rows, err := s.db.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("TaskStore.List: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("TaskStore.List: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("TaskStore.List: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) Get(ctx context.Context, ownerID string, id int64) (*models.Task, error) {
	row := s.db.queryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("TaskStore.Get: %w", err)
	}
	return task, nil
}

func (s *TaskStore) Create(ctx context.Context, ownerID string, in models.TaskInput) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("task title is required: %w", common.ErrValidation)
	}

	now := s.now().UTC()
	task := &models.Task{
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.queryRow(ctx,
		`INSERT INTO tasks (user_id, title, description, due_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		ownerID, task.Title, nullString(task.Description), dueDateArg(task.DueDate),
		string(task.Status), now, now,
	).Scan(&task.ID)
	if err != nil {
		return nil, fmt.Errorf("TaskStore.Create: %w", err)
	}
	return task, nil
}

// Update rewrites the editable fields of the owner's task. It reports false
// when no task with that id belongs to ownerID.
func (s *TaskStore) Update(ctx context.Context, ownerID string, id int64, in models.TaskInput) (bool, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return false, fmt.Errorf("task title is required: %w", common.ErrValidation)
	}
	res, err := s.db.exec(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		in.Title, nullString(in.Description), dueDateArg(in.DueDate), s.now().UTC(), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("TaskStore.Update: %w", err)
	}
	return affected(res)
}

// ToggleStatus flips pending and completed in a single statement.
func (s *TaskStore) ToggleStatus(ctx context.Context, ownerID string, id int64) (bool, error) {
	res, err := s.db.exec(ctx,
		`UPDATE tasks
		 SET status = CASE WHEN status = 'completed' THEN 'pending' ELSE 'completed' END, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		s.now().UTC(), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("TaskStore.ToggleStatus: %w", err)
	}
	return affected(res)
}

func (s *TaskStore) Delete(ctx context.Context, ownerID string, id int64) (bool, error) {
	res, err := s.db.exec(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("TaskStore.Delete: %w", err)
	}
	return affected(res)
}

func (s *TaskStore) Stats(ctx context.Context, ownerID string) (models.TaskStats, error) {
	var stats models.TaskStats
	rows, err := s.db.query(ctx,
		`SELECT status, COUNT(*) FROM tasks WHERE user_id = ? GROUP BY status`, ownerID)
	if err != nil {
		return stats, fmt.Errorf("TaskStore.Stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("TaskStore.Stats: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusCompleted:
			stats.Completed = n
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task   models.Task
		desc   sql.NullString
		due    sql.NullTime
		status string
	)
	if err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &desc, &due, &status,
		&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}
	task.Status = st
	task.Description = desc.String
	if due.Valid {
		d := time.Date(due.Time.Year(), due.Time.Month(), due.Time.Day(), 0, 0, 0, 0, time.UTC)
		task.DueDate = &d
	}
	return &task, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// dueDateArg binds a due date as a plain calendar-date string so no driver
// shifts it through a time zone.
func dueDateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(models.DateLayout)
}
