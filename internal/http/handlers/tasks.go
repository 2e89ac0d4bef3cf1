package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"taskboard/internal/common"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/security"
)

// TaskStore is owner scoped: every call names the owner whose rows it may touch.
type TaskStore interface {
	List(ctx context.Context, ownerID string) ([]models.Task, error)
	Get(ctx context.Context, ownerID string, id int64) (*models.Task, error)
	Create(ctx context.Context, ownerID string, in models.TaskInput) (*models.Task, error)
	Update(ctx context.Context, ownerID string, id int64, in models.TaskInput) (bool, error)
	ToggleStatus(ctx context.Context, ownerID string, id int64) (bool, error)
	Delete(ctx context.Context, ownerID string, id int64) (bool, error)
	Stats(ctx context.Context, ownerID string) (models.TaskStats, error)
}

type TaskHandler struct {
	responder
	tasks TaskStore
}

func NewTaskHandler(tasks TaskStore, sessions SessionStore, v *views.Renderer, log *zap.Logger, m *metrics.Metrics) *TaskHandler {
	return &TaskHandler{
		responder: responder{views: v, sessions: sessions, log: log, metrics: m},
		tasks:     tasks,
	}
}

// taskID parses the {id} route variable. Anything that is not a positive
// integer is reported as absent.
func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *TaskHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	page := &views.Page{Title: "Dashboard"}
	status := http.StatusOK

	stats, err := h.tasks.Stats(r.Context(), user.ID)
	if err != nil {
		status = h.storeError(r.Context(), "stats", err)
		page.Error = "Could not load your task summary."
	}
	page.Stats = stats
	h.render(w, r, status, "dashboard.html", page)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	page := &views.Page{Title: "Tasks"}
	status := http.StatusOK

	tasks, err := h.tasks.List(r.Context(), user.ID)
	if err != nil {
		status = h.storeError(r.Context(), "list", err)
		page.Error = "Failed to load tasks"
	}
	page.Tasks = tasks
	h.render(w, r, status, "tasks.html", page)
}

func (h *TaskHandler) ShowAdd(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "task_form.html", &views.Page{Title: "New task", Form: TaskForm{}})
}

func (h *TaskHandler) Add(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	var form TaskForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "task_form.html", &views.Page{Title: "New task", Error: "Invalid form submission"})
		return
	}

	in, errs := form.Validate()
	if errs.Any() {
		h.metrics.Task("create", "invalid")
		h.render(w, r, common.HTTPStatusFromError(errs.Err()), "task_form.html", &views.Page{
			Title: "New task", Form: form, Errors: errs,
		})
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, in)
	if err != nil {
		status := h.storeError(r.Context(), "create", err)
		h.metrics.Task("create", "error")
		h.render(w, r, status, "task_form.html", &views.Page{
			Title: "New task", Form: form, Error: "Failed to create task",
		})
		return
	}
	h.metrics.Task("create", "success")
	h.log.Debug("task created", zap.Int64("task_id", task.ID), zap.String("user_id", user.ID))
	h.redirect(w, r, "/tasks", security.FlashSuccess, "Task created")
}

func (h *TaskHandler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	id, ok := taskID(r)
	if !ok {
		h.redirect(w, r, "/tasks", security.FlashError, "Task not found")
		return
	}

	task, err := h.tasks.Get(r.Context(), user.ID, id)
	if errors.Is(err, common.ErrNotFound) {
		h.redirect(w, r, "/tasks", security.FlashError, "Task not found")
		return
	}
	if err != nil {
		h.storeError(r.Context(), "get", err, zap.Int64("task_id", id))
		h.redirect(w, r, "/tasks", security.FlashError, "Failed to load task")
		return
	}
	h.render(w, r, http.StatusOK, "task_form.html", &views.Page{
		Title: "Edit task", Task: task, Form: taskFormFrom(task),
	})
}

func (h *TaskHandler) Edit(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	id, idOK := taskID(r)
	// The form only needs the id for its action URL.
	formTask := &models.Task{ID: id}

	var form TaskForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "task_form.html", &views.Page{Title: "Edit task", Task: formTask, Error: "Invalid form submission"})
		return
	}

	in, errs := form.Validate()
	if errs.Any() {
		h.metrics.Task("update", "invalid")
		h.render(w, r, common.HTTPStatusFromError(errs.Err()), "task_form.html", &views.Page{
			Title: "Edit task", Task: formTask, Form: form, Errors: errs,
		})
		return
	}

	if idOK {
		updated, err := h.tasks.Update(r.Context(), user.ID, id, in)
		if err != nil {
			status := h.storeError(r.Context(), "update", err, zap.Int64("task_id", id))
			h.metrics.Task("update", "error")
			h.render(w, r, status, "task_form.html", &views.Page{
				Title: "Edit task", Task: formTask, Form: form, Error: "Update failed",
			})
			return
		}
		h.metrics.Task("update", outcome(updated))
	} else {
		h.metrics.Task("update", "noop")
	}
	// A task outside the owner's set is a silent no-op.
	h.redirect(w, r, "/tasks", security.FlashSuccess, "Task updated")
}

func (h *TaskHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	id, ok := taskID(r)
	if !ok {
		h.metrics.Task("toggle", "noop")
		h.redirect(w, r, "/tasks", "", "")
		return
	}

	toggled, err := h.tasks.ToggleStatus(r.Context(), user.ID, id)
	if err != nil {
		h.storeError(r.Context(), "toggle", err, zap.Int64("task_id", id))
		h.metrics.Task("toggle", "error")
		h.redirect(w, r, "/tasks", security.FlashError, "Failed to update task status")
		return
	}
	h.metrics.Task("toggle", outcome(toggled))
	h.redirect(w, r, "/tasks", "", "")
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	id, ok := taskID(r)
	if !ok {
		h.metrics.Task("delete", "noop")
		h.redirect(w, r, "/tasks", "", "")
		return
	}

	deleted, err := h.tasks.Delete(r.Context(), user.ID, id)
	if err != nil {
		h.storeError(r.Context(), "delete", err, zap.Int64("task_id", id))
		h.metrics.Task("delete", "error")
		h.redirect(w, r, "/tasks", security.FlashError, "Failed to delete task")
		return
	}
	h.metrics.Task("delete", outcome(deleted))
	if deleted {
		h.redirect(w, r, "/tasks", security.FlashSuccess, "Task deleted")
		return
	}
	h.redirect(w, r, "/tasks", "", "")
}

func outcome(changed bool) string {
	if changed {
		return "success"
	}
	return "noop"
}
