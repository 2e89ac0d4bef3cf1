package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"taskboard/internal/common"
	"taskboard/internal/http/middleware"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/security"
)

// SessionStore is the session behaviour handlers rely on.
type SessionStore interface {
	CreateSession(w http.ResponseWriter, r *http.Request, user models.SessionUser) error
	DestroySession(w http.ResponseWriter, r *http.Request) error
	AddFlash(w http.ResponseWriter, r *http.Request, kind security.FlashKind, msg string) error
	Flashes(w http.ResponseWriter, r *http.Request) ([]security.Flash, error)
}

// responder holds what every handler needs to answer a request.
type responder struct {
	views    *views.Renderer
	sessions SessionStore
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func (h *responder) render(w http.ResponseWriter, r *http.Request, status int, page string, data *views.Page) {
	if data == nil {
		data = &views.Page{}
	}
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		data.User = user
	}
	flashes, err := h.sessions.Flashes(w, r)
	if err != nil {
		h.log.Warn("reading flashes", zap.Error(err))
	}
	data.Flashes = append(data.Flashes, flashes...)
	data.Status = status

	if err := h.views.Render(w, status, page, data); err != nil {
		h.log.Error("render failed", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// redirect sends a 303 to url, optionally queueing a flash message first.
func (h *responder) redirect(w http.ResponseWriter, r *http.Request, url string, kind security.FlashKind, msg string) {
	if msg != "" {
		if err := h.sessions.AddFlash(w, r, kind, msg); err != nil {
			h.log.Warn("adding flash", zap.Error(err))
		}
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// storeError logs a failed store call and returns the status to answer with.
func (h *responder) storeError(ctx context.Context, op string, err error, fields ...zap.Field) int {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if user, ok := middleware.UserFromContext(ctx); ok {
		fields = append(fields, zap.String("user_id", user.ID))
	}
	h.log.Error("store operation failed", fields...)
	return common.HTTPStatusFromError(err)
}

// sessionUser returns the logged-in user. Routes behind RequireLogin always
// have one.
func sessionUser(r *http.Request) *models.SessionUser {
	user, _ := middleware.UserFromContext(r.Context())
	return user
}
