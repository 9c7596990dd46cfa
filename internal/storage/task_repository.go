package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// TaskRepository provides data access for tasks.
type TaskRepository struct {
	BaseRepository
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *TaskRepository) WithTx(tx *sql.Tx) *TaskRepository {
	return &TaskRepository{BaseRepository: r.bind(tx)}
}

const taskColumns = `
	id, user_id, title, notes, due, status, related_event_id,
	completed_at, created_at, updated_at`

// Open tasks sort first, then by nearest due date with undated tasks last,
// then newest first.
const taskOrder = " ORDER BY status DESC, due IS NULL, due, created_at DESC, id"

func scanTask(s interface{ Scan(...any) error }, t *models.Task) error {
	var due, completed sql.NullTime
	if err := s.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Notes, &due, &t.Status, &t.RelatedEventID,
		&completed, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return err
	}
	if due.Valid {
		d := due.Time.UTC()
		t.Due = &d
	}
	if completed.Valid {
		c := completed.Time.UTC()
		t.CompletedAt = &c
	}
	return nil
}

// TaskFilter selects tasks of one user.
type TaskFilter struct {
	UserID         string
	Status         string
	RelatedEventID string
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = GenerateID()
	}
	t.CreatedAt = r.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.UserID, t.Title, t.Notes, t.Due, t.Status, t.RelatedEventID,
		t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	t := &models.Task{}

	row := r.Q().QueryRowContext(ctx, "SELECT"+taskColumns+" FROM tasks WHERE id = ?", id)
	err := scanTask(row, t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// List retrieves the tasks matching f.
func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.RelatedEventID != "" {
		where = append(where, "related_event_id = ?")
		args = append(args, f.RelatedEventID)
	}
	return r.query(ctx, "WHERE "+strings.Join(where, " AND ")+taskOrder, args...)
}

// ListByEvent retrieves the tasks linked to an event copy.
func (r *TaskRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Task, error) {
	return r.query(ctx, "WHERE related_event_id = ? ORDER BY status DESC, created_at DESC, id", eventID)
}

func (r *TaskRepository) query(ctx context.Context, where string, args ...any) ([]models.Task, error) {
	rows, err := r.Q().QueryContext(ctx, "SELECT"+taskColumns+" FROM tasks "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update writes every mutable field of a task.
func (r *TaskRepository) Update(ctx context.Context, t *models.Task) error {
	t.UpdatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		UPDATE tasks SET title = ?, notes = ?, due = ?, status = ?,
			related_event_id = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, t.Notes, t.Due, t.Status, t.RelatedEventID, t.CompletedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("task", t.ID)
	}
	return nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}
