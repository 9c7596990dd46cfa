package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/storage/models"
	"github.com/team-calendar/backend/internal/task"
)

// loadTask fetches the task named in the path and checks that it belongs
// to the acting user.
func loadTask(w http.ResponseWriter, r *http.Request, tasks *task.Service) (*models.Task, bool) {
	t, err := tasks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteServiceError(w, err)
		return nil, false
	}
	if !selfOnly(w, r, t.UserID, "Tasks are private to their owner") {
		return nil, false
	}
	return t, true
}

// ListUserTasks returns a user's tasks. Query parameters status,
// include_completed and related_event_id narrow the list.
func ListUserTasks(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if !selfOnly(w, r, userID, "Tasks are private to their owner") {
			return
		}

		q := r.URL.Query()
		filter := task.ListFilter{
			Status:           q.Get("status"),
			IncludeCompleted: true,
			RelatedEventID:   q.Get("related_event_id"),
		}
		if v := q.Get("include_completed"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "include_completed must be a boolean")
				return
			}
			filter.IncludeCompleted = b
		}

		list, err := tasks.List(r.Context(), userID, filter)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateTask adds a task. The owner defaults to the acting user.
func CreateTask(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req task.CreateInput
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			req.UserID = r.Header.Get(UserHeader)
		}
		if req.UserID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "user_id is required")
			return
		}
		if !selfOnly(w, r, req.UserID, "Tasks can only be created for yourself") {
			return
		}

		t, err := tasks.Create(r.Context(), req)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// GetTask returns one task.
func GetTask(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTask(w, r, tasks)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// UpdateTask applies a partial update to a task.
func UpdateTask(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTask(w, r, tasks)
		if !ok {
			return
		}

		var req task.Update
		if !decodeBody(w, r, &req) {
			return
		}

		updated, err := tasks.Update(r.Context(), t.ID, req)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// ToggleTask flips a task between open and completed.
func ToggleTask(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTask(w, r, tasks)
		if !ok {
			return
		}

		toggled, err := tasks.Toggle(r.Context(), t.ID)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toggled)
	}
}

// DeleteTask removes a task.
func DeleteTask(tasks *task.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTask(w, r, tasks)
		if !ok {
			return
		}
		if err := tasks.Delete(r.Context(), t.ID); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListEventTasks returns the tasks linked to an event copy. Readers of the
// event's calendar may see them.
func ListEventTasks(events *event.Service, tasks *task.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}

		list, err := tasks.ListForEvent(r.Context(), e.ID)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
