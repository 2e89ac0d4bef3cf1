package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"taskboard/internal/metrics"
	"taskboard/internal/models"
)

type fakeSessions struct {
	user *models.SessionUser
	err  error
}

func (f fakeSessions) GetSession(http.ResponseWriter, *http.Request) (*models.SessionUser, error) {
	return f.user, f.err
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	if u, ok := UserFromContext(r.Context()); ok {
		w.Write([]byte(u.ID))
		return
	}
	w.Write([]byte("anonymous"))
}

func TestRequireLoginRedirectsAnonymous(t *testing.T) {
	h := LoadSession(fakeSessions{}, zap.NewNop())(RequireLogin(http.HandlerFunc(echoUser)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequireLoginPassesSessionUser(t *testing.T) {
	user := &models.SessionUser{ID: "u-1", Username: "alice"}
	h := LoadSession(fakeSessions{user: user}, zap.NewNop())(RequireLogin(http.HandlerFunc(echoUser)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestLoadSessionErrorIsAnonymous(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := LoadSession(fakeSessions{err: errors.New("bad cookie")}, zap.New(core))(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rec.Body.String())
	assert.Equal(t, 1, logs.Len())
}

func TestRecoverRendersFallback(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("generic error"))
	})
	h := chiMiddleware.RequestID(Recover(zap.New(core), fallback)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "generic error", rec.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.NotEmpty(t, logs.All()[0].ContextMap()["request_id"])
}

func TestRecoverKeepsStartedResponse(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	fallbackCalled := false
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalled = true
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := Recover(zap.New(core), fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("partial"))
		panic("late failure")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, fallbackCalled)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, http.StatusAccepted, logs.All()[0].ContextMap()["status_sent"])
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.Equal(t, "/pot", fields["path"])
}

func TestInstrumentLabelsRouteTemplate(t *testing.T) {
	m := metrics.New()
	r := mux.NewRouter()
	r.Use(Instrument(m))
	r.HandleFunc("/tasks/edit/{id}", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodGet)

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tasks/edit/"+id, nil))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/tasks/edit/{id}", "GET", "200")))
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(2)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"), "limits are per address")

	clock = clock.Add(30 * time.Second)
	assert.True(t, l.Allow("1.1.1.1"))

	clock = clock.Add(time.Hour)
	l.Allow("3.3.3.3")
	assert.Len(t, l.visitors, 1, "idle visitors are swept")
}

func TestIPRateLimiterDisabled(t *testing.T) {
	l := NewIPRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("1.1.1.1"))
	}
}

func TestLimitMiddleware(t *testing.T) {
	l := NewIPRateLimiter(1)
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	h := l.Limit(limited)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
