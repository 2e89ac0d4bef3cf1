package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskboard/internal/http/middleware"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
)

// PageHandler serves the routes that are not about users or tasks: the
// root redirect, error pages and the health probe.
type PageHandler struct {
	responder
	db Pinger
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewPageHandler(db Pinger, sessions SessionStore, v *views.Renderer, log *zap.Logger, m *metrics.Metrics) *PageHandler {
	return &PageHandler{
		responder: responder{views: v, sessions: sessions, log: log, metrics: m},
		db:        db,
	}
}

func (h *PageHandler) Root(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "error.html", &views.Page{Title: "Not found"})
}

func (h *PageHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusMethodNotAllowed, "error.html", &views.Page{Title: "Method not allowed"})
}

func (h *PageHandler) ServerError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusInternalServerError, "error.html", &views.Page{
		Title: "Error", Error: "Server error. Please try again.",
	})
}

func (h *PageHandler) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	h.render(w, r, http.StatusTooManyRequests, "error.html", &views.Page{
		Title: "Slow down", Error: "Too many attempts. Please wait a minute and try again.",
	})
}

func (h *PageHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
