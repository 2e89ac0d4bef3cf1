package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"taskboard/internal/common"
	"taskboard/internal/http/middleware"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthHandler struct {
	responder
	users UserStore
}

func NewAuthHandler(users UserStore, sessions SessionStore, v *views.Renderer, log *zap.Logger, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		responder: responder{views: v, sessions: sessions, log: log, metrics: m},
		users:     users,
	}
}

func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "register.html", &views.Page{Title: "Register"})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var form RegisterForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "register.html", &views.Page{Title: "Register", Error: "Invalid form submission"})
		return
	}

	if errs := form.Validate(); errs.Any() {
		h.metrics.Auth("register", "invalid")
		h.render(w, r, common.HTTPStatusFromError(errs.Err()), "register.html", &views.Page{
			Title: "Register", Form: form.redacted(), Errors: errs,
		})
		return
	}

	hash, err := security.HashPassword(form.Password)
	if err != nil {
		h.log.Error("hashing password", zap.Error(err))
		h.registerFailed(w, r, common.HTTPStatusFromError(common.ErrInternal), form)
		return
	}

	user, err := h.users.Create(r.Context(), form.Username, form.Email, hash)
	if errors.Is(err, common.ErrConflict) {
		h.metrics.Auth("register", "conflict")
		h.render(w, r, common.HTTPStatusFromError(err), "register.html", &views.Page{
			Title: "Register", Form: form.redacted(), Error: "User already exists",
		})
		return
	}
	if err != nil {
		h.registerFailed(w, r, h.storeError(r.Context(), "register", err), form)
		return
	}

	if err := h.sessions.CreateSession(w, r, user.SessionUser()); err != nil {
		h.log.Error("creating session", zap.String("user_id", user.ID), zap.Error(err))
		h.redirect(w, r, "/login", security.FlashSuccess, "Account created! Please log in")
		return
	}
	h.metrics.Auth("register", "success")
	h.log.Info("user registered", zap.String("user_id", user.ID))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) registerFailed(w http.ResponseWriter, r *http.Request, status int, form RegisterForm) {
	h.metrics.Auth("register", "error")
	h.render(w, r, status, "register.html", &views.Page{
		Title: "Register", Form: form.redacted(), Error: "Registration failed. Please try again.",
	})
}

func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", &views.Page{Title: "Login"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form LoginForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "login.html", &views.Page{Title: "Login", Error: "Invalid form submission"})
		return
	}
	page := &views.Page{Title: "Login", Form: LoginForm{Email: form.Email}}

	user, err := h.users.FindByEmail(r.Context(), form.Email)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		status := h.storeError(r.Context(), "login", err)
		h.metrics.Auth("login", "error")
		page.Error = "Login failed. Please try again."
		h.render(w, r, status, "login.html", page)
		return
	}

	// Unknown email and wrong password are indistinguishable to the client.
	valid := false
	if user == nil {
		security.CompareDummy(form.Password)
	} else {
		valid = security.ComparePasswords(user.PasswordHash, form.Password)
	}
	if !valid {
		h.metrics.Auth("login", "failure")
		page.Error = "Invalid credentials"
		h.render(w, r, common.HTTPStatusFromError(common.ErrUnauthorized), "login.html", page)
		return
	}

	if err := h.sessions.CreateSession(w, r, user.SessionUser()); err != nil {
		h.log.Error("creating session", zap.String("user_id", user.ID), zap.Error(err))
		h.metrics.Auth("login", "error")
		page.Error = "Login failed. Please try again."
		h.render(w, r, common.HTTPStatusFromError(common.ErrInternal), "login.html", page)
		return
	}
	h.metrics.Auth("login", "success")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DestroySession(w, r); err != nil {
		h.log.Warn("destroying session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
