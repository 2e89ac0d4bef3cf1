package router

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskboard/internal/http/handlers"
	"taskboard/internal/http/middleware"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
)

type Deps struct {
	Users    handlers.UserStore
	Tasks    handlers.TaskStore
	DB       handlers.Pinger
	Sessions interface {
		handlers.SessionStore
		middleware.SessionReader
	}
	Views   *views.Renderer
	Log     *zap.Logger
	Metrics *metrics.Metrics
	// AuthRatePerMinute caps login and registration posts per client address.
	AuthRatePerMinute int
	// TrustProxyHeaders rewrites RemoteAddr from proxy headers. Left off, the
	// rate limiter keys on the socket peer.
	TrustProxyHeaders bool
}

func Setup(d Deps) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d.Users, d.Sessions, d.Views, d.Log, d.Metrics)
	taskHandler := handlers.NewTaskHandler(d.Tasks, d.Sessions, d.Views, d.Log, d.Metrics)
	pageHandler := handlers.NewPageHandler(d.DB, d.Sessions, d.Views, d.Log, d.Metrics)

	instrument := middleware.Instrument(d.Metrics)
	loadSession := middleware.LoadSession(d.Sessions, d.Log)
	limitAuth := middleware.NewIPRateLimiter(d.AuthRatePerMinute).Limit(http.HandlerFunc(pageHandler.TooManyRequests))

	r.Use(instrument)

	r.HandleFunc("/healthz", pageHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	web := r.NewRoute().Subrouter()
	web.Use(loadSession)

	web.HandleFunc("/", pageHandler.Root).Methods(http.MethodGet)
	web.HandleFunc("/register", authHandler.ShowRegister).Methods(http.MethodGet)
	web.Handle("/register", limitAuth(http.HandlerFunc(authHandler.Register))).Methods(http.MethodPost)
	web.HandleFunc("/login", authHandler.ShowLogin).Methods(http.MethodGet)
	web.Handle("/login", limitAuth(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	web.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodGet)

	protected := web.NewRoute().Subrouter()
	protected.Use(middleware.RequireLogin)

	protected.HandleFunc("/dashboard", taskHandler.Dashboard).Methods(http.MethodGet)
	protected.HandleFunc("/tasks", taskHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/add", taskHandler.ShowAdd).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/add", taskHandler.Add).Methods(http.MethodPost)
	protected.HandleFunc("/tasks/edit/{id}", taskHandler.ShowEdit).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/edit/{id}", taskHandler.Edit).Methods(http.MethodPost)
	protected.HandleFunc("/tasks/delete/{id}", taskHandler.Delete).Methods(http.MethodPost)
	protected.HandleFunc("/tasks/status/{id}", taskHandler.ToggleStatus).Methods(http.MethodPost)

	r.NotFoundHandler = instrument(loadSession(http.HandlerFunc(pageHandler.NotFound)))
	r.MethodNotAllowedHandler = instrument(loadSession(http.HandlerFunc(pageHandler.MethodNotAllowed)))

	var h http.Handler = r
	h = middleware.Recover(d.Log, http.HandlerFunc(pageHandler.ServerError))(h)
	h = middleware.RequestLogger(d.Log)(h)
	h = chiMiddleware.Timeout(30 * time.Second)(h)
	if d.TrustProxyHeaders {
		h = chiMiddleware.RealIP(h)
	}
	h = chiMiddleware.RequestID(h)
	return h
}
