// Package task manages per-user tasks that may be linked to an event.
package task

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

const maxTitleLength = 500

// Service manages tasks.
type Service struct {
	db     *storage.DB
	tasks  *storage.TaskRepository
	users  *storage.UserRepository
	events *storage.EventRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a task service.
func NewService(db *storage.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		tasks:  storage.NewTaskRepository(db),
		users:  storage.NewUserRepository(db),
		events: storage.NewEventRepository(db),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "task"),
	}
}

// CreateInput holds the fields of a new task.
type CreateInput struct {
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Notes          *string    `json:"notes,omitempty"`
	Due            *time.Time `json:"due,omitempty"`
	Status         string     `json:"status,omitempty"`
	RelatedEventID *string    `json:"related_event_id,omitempty"`
}

// Update lists the task fields that can change. Setting RelatedEventID to
// null unlinks the task.
type Update struct {
	Title          event.Optional[string]     `json:"title"`
	Notes          event.Optional[*string]    `json:"notes"`
	Due            event.Optional[*time.Time] `json:"due"`
	Status         event.Optional[string]     `json:"status"`
	RelatedEventID event.Optional[*string]    `json:"related_event_id"`
}

func validTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return apperr.Validation("title is required")
	}
	if len(title) > maxTitleLength {
		return apperr.Validation("title must be at most %d characters", maxTitleLength)
	}
	return nil
}

func validStatus(status string) error {
	if status != models.TaskStatusNeedsAction && status != models.TaskStatusCompleted {
		return apperr.Validation("invalid task status %q", status)
	}
	return nil
}

// setStatus moves t to status and keeps CompletedAt in step with it.
func (s *Service) setStatus(t *models.Task, status string) {
	switch {
	case status == models.TaskStatusCompleted && !t.IsCompleted():
		done := s.now()
		t.CompletedAt = &done
	case status == models.TaskStatusNeedsAction:
		t.CompletedAt = nil
	}
	t.Status = status
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// requireEvent fails with NotFound unless the event exists. A nil tx reads
// from the pool.
func (s *Service) requireEvent(ctx context.Context, tx *sql.Tx, id string) error {
	events := s.events
	if tx != nil {
		events = events.WithTx(tx)
	}
	e, err := events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return apperr.NotFound("event", id)
	}
	return nil
}

// Create adds a task for a user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Task, error) {
	if err := validTitle(in.Title); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.TaskStatusNeedsAction
	}
	if err := validStatus(in.Status); err != nil {
		return nil, err
	}

	t := &models.Task{
		UserID:         in.UserID,
		Title:          in.Title,
		Notes:          in.Notes,
		Due:            utc(in.Due),
		Status:         models.TaskStatusNeedsAction,
		RelatedEventID: in.RelatedEventID,
	}
	s.setStatus(t, in.Status)

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		u, err := s.users.WithTx(tx).GetByID(ctx, in.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user", in.UserID)
		}
		if in.RelatedEventID != nil {
			if err := s.requireEvent(ctx, tx, *in.RelatedEventID); err != nil {
				return err
			}
		}
		return s.tasks.WithTx(tx).Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", t.ID, "user_id", t.UserID)
	return t, nil
}

// Get retrieves a task.
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("task", id)
	}
	return t, nil
}

// ListFilter narrows a user's task list.
type ListFilter struct {
	Status           string
	IncludeCompleted bool
	RelatedEventID   string
}

// List returns a user's tasks, open ones first.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]models.Task, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user", userID)
	}
	if f.Status != "" {
		if err := validStatus(f.Status); err != nil {
			return nil, err
		}
	}

	filter := storage.TaskFilter{UserID: userID, Status: f.Status, RelatedEventID: f.RelatedEventID}
	if !f.IncludeCompleted {
		if f.Status == models.TaskStatusCompleted {
			return []models.Task{}, nil
		}
		filter.Status = models.TaskStatusNeedsAction
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// ListForEvent returns the tasks linked to an event copy.
func (s *Service) ListForEvent(ctx context.Context, eventID string) ([]models.Task, error) {
	if err := s.requireEvent(ctx, nil, eventID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// Update applies a partial update. Completing a task stamps CompletedAt and
// reopening it clears the stamp.
func (s *Service) Update(ctx context.Context, id string, u Update) (*models.Task, error) {
	var t *models.Task
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = s.tasks.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.NotFound("task", id)
		}

		if u.Title.Set {
			if err := validTitle(u.Title.Value); err != nil {
				return err
			}
			t.Title = u.Title.Value
		}
		if u.Notes.Set {
			t.Notes = u.Notes.Value
		}
		if u.Due.Set {
			t.Due = utc(u.Due.Value)
		}
		if u.Status.Set {
			if err := validStatus(u.Status.Value); err != nil {
				return err
			}
			s.setStatus(t, u.Status.Value)
		}
		if u.RelatedEventID.Set {
			if u.RelatedEventID.Value != nil {
				if err := s.requireEvent(ctx, tx, *u.RelatedEventID.Value); err != nil {
					return err
				}
			}
			t.RelatedEventID = u.RelatedEventID.Value
		}
		return s.tasks.WithTx(tx).Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Toggle flips a task between open and completed.
func (s *Service) Toggle(ctx context.Context, id string) (*models.Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := models.TaskStatusCompleted
	if t.IsCompleted() {
		next = models.TaskStatusNeedsAction
	}
	return s.Update(ctx, id, Update{Status: event.Some(next)})
}

// Delete removes a task. A linked event is left untouched.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}
