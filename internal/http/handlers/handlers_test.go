package handlers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskboard/internal/common"
	"taskboard/internal/db"
	"taskboard/internal/http/router"
	"taskboard/internal/http/views"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/security"
)

type testApp struct {
	server *httptest.Server
	db     *db.DB
	tasks  *db.TaskStore
	users  *db.UserStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	database, err := db.Init(ctx, db.Options{
		Driver:   "sqlite3",
		DSN:      filepath.Join(t.TempDir(), "app.db"),
		Attempts: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(ctx))

	sessions, err := security.NewSessionStore(security.SessionOptions{
		Secret:      "test-secret",
		IdleTimeout: 30 * time.Minute,
		MaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	renderer, err := views.New()
	require.NoError(t, err)

	app := &testApp{
		db:    database,
		tasks: db.NewTaskStore(database),
		users: db.NewUserStore(database),
	}
	app.server = httptest.NewServer(router.Setup(router.Deps{
		Users:    app.users,
		Tasks:    app.tasks,
		DB:       database,
		Sessions: sessions,
		Views:    renderer,
		Log:      zap.NewNop(),
		Metrics:  metrics.New(),
	}))
	t.Cleanup(app.server.Close)
	return app
}

// client is a browser-like user agent that keeps cookies but does not
// follow redirects, so tests can assert on them.
type client struct {
	t    *testing.T
	http *http.Client
	base string
}

func (a *testApp) newClient(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{
		t:    t,
		base: a.server.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (c *client) do(req *http.Request) response {
	c.t.Helper()
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (c *client) get(path string) response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	require.NoError(c.t, err)
	return c.do(req)
}

func (c *client) post(path string, form url.Values) response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) register(username, email, password string) response {
	c.t.Helper()
	return c.post("/register", url.Values{
		"username": {username}, "email": {email}, "password": {password}, "confirm": {password},
	})
}

func (a *testApp) userID(t *testing.T, email string) string {
	t.Helper()
	u, err := a.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

func (a *testApp) onlyTask(t *testing.T, ownerID string) models.Task {
	t.Helper()
	list, err := a.tasks.List(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	c := newTestApp(t).newClient(t)

	for _, path := range []string{"/dashboard", "/tasks", "/tasks/add", "/tasks/edit/1"} {
		res := c.get(path)
		assert.Equal(t, http.StatusSeeOther, res.status, path)
		assert.Equal(t, "/login", res.location, path)
	}
	for _, path := range []string{"/tasks/add", "/tasks/edit/1", "/tasks/delete/1", "/tasks/status/1"} {
		res := c.post(path, url.Values{"title": {"x"}})
		assert.Equal(t, http.StatusSeeOther, res.status, path)
		assert.Equal(t, "/login", res.location, path)
	}
}

func TestRootRedirects(t *testing.T) {
	c := newTestApp(t).newClient(t)

	assert.Equal(t, "/login", c.get("/").location)
	c.register("alice", "a@x.com", "secret1")
	assert.Equal(t, "/dashboard", c.get("/").location)
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)

	res := c.post("/register", url.Values{
		"username": {"al"}, "email": {"not-an-email"}, "password": {"123"}, "confirm": {"456"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Contains(t, res.body, "Username must be at least 3 characters")
	assert.Contains(t, res.body, "Enter a valid email address")
	assert.Contains(t, res.body, "Password must be at least 6 characters")
	assert.Contains(t, res.body, "Passwords do not match")
	assert.Contains(t, res.body, `value="al"`, "input is preserved")
	assert.Contains(t, res.body, `value="not-an-email"`)

	_, err := app.users.FindByUsername(context.Background(), "al")
	assert.Error(t, err)

	// Three characters encoded in six bytes are still too short.
	res = c.register("alice", "a@x.com", "ééé")
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Contains(t, res.body, "Password must be at least 6 characters")
	_, err = app.users.FindByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)

	res := c.register("alice", "a@x.com", "secret1")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/dashboard", res.location)

	res = c.get("/dashboard")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Welcome, alice")

	// Logged-in users skip the auth forms.
	assert.Equal(t, "/dashboard", c.get("/login").location)
	assert.Equal(t, "/dashboard", c.get("/register").location)

	res = c.get("/logout")
	assert.Equal(t, "/login", res.location)
	assert.Equal(t, "/login", c.get("/dashboard").location)

	// Logout is idempotent.
	assert.Equal(t, "/login", c.get("/logout").location)

	res = c.post("/login", url.Values{"email": {"A@X.com"}, "password": {"secret1"}})
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/dashboard", res.location)
	assert.Equal(t, http.StatusOK, c.get("/dashboard").status)
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	app := newTestApp(t)
	app.newClient(t).register("alice", "a@x.com", "secret1")

	other := app.newClient(t)
	res := other.register("alice2", "A@X.COM", "secret1")
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Contains(t, res.body, "User already exists")

	res = other.register("alice", "new@x.com", "secret1")
	assert.Equal(t, http.StatusConflict, res.status)

	var n int
	require.NoError(t, app.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, "/login", other.get("/dashboard").location, "conflict does not log in")
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	app := newTestApp(t)
	app.newClient(t).register("alice", "a@x.com", "secret1")

	c := app.newClient(t)
	wrongPassword := c.post("/login", url.Values{"email": {"a@x.com"}, "password": {"secret2"}})
	unknownUser := c.post("/login", url.Values{"email": {"nobody@x.com"}, "password": {"secret1"}})

	for _, res := range []response{wrongPassword, unknownUser} {
		assert.Equal(t, http.StatusUnauthorized, res.status)
		assert.Contains(t, res.body, "Invalid credentials")
	}
	assert.Equal(t, "/login", c.get("/dashboard").location)
}

func TestTaskLifecycle(t *testing.T) {
	app := newTestApp(t)
	alice := app.newClient(t)
	alice.register("alice", "a@x.com", "secret1")
	aliceID := app.userID(t, "a@x.com")

	res := alice.post("/tasks/add", url.Values{"title": {"Buy milk"}, "dueDate": {"2025-12-01"}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/tasks", res.location)

	task := app.onlyTask(t, aliceID)
	assert.Equal(t, aliceID, task.OwnerID)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, "2025-12-01", task.DueDateString())

	res = alice.get("/tasks")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Buy milk")
	assert.Contains(t, res.body, "Task created", "flash is shown once")
	assert.NotContains(t, alice.get("/tasks").body, "Task created")

	id := idPath(task.ID)
	alice.post("/tasks/status/"+id, nil)
	assert.Equal(t, models.StatusCompleted, app.onlyTask(t, aliceID).Status)
	alice.post("/tasks/status/"+id, nil)
	assert.Equal(t, models.StatusPending, app.onlyTask(t, aliceID).Status)

	res = alice.get("/tasks/edit/" + id)
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `value="Buy milk"`)

	res = alice.post("/tasks/edit/"+id, url.Values{"title": {"Buy oat milk"}, "description": {"2 litres"}, "dueDate": {"someday"}})
	assert.Equal(t, "/tasks", res.location)
	task = app.onlyTask(t, aliceID)
	assert.Equal(t, "Buy oat milk", task.Title)
	assert.Equal(t, "2 litres", task.Description)
	assert.Nil(t, task.DueDate, "unparseable due date becomes null")

	res = alice.post("/tasks/delete/"+id, nil)
	assert.Equal(t, "/tasks", res.location)
	list, err := app.tasks.List(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Empty(t, list)

	res = alice.post("/tasks/delete/"+id, nil)
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/tasks", res.location)
	assert.NotContains(t, alice.get("/tasks").body, "Failed")
}

func TestTaskBlankTitleRejected(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)
	c.register("alice", "a@x.com", "secret1")

	res := c.post("/tasks/add", url.Values{"title": {"   "}, "description": {"keep me"}})
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Contains(t, res.body, "Title is required")
	assert.Contains(t, res.body, "keep me")

	list, err := app.tasks.List(context.Background(), app.userID(t, "a@x.com"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTasksAreInvisibleToOtherUsers(t *testing.T) {
	app := newTestApp(t)
	alice := app.newClient(t)
	alice.register("alice", "a@x.com", "secret1")
	bob := app.newClient(t)
	bob.register("bob", "b@x.com", "secret1")
	aliceID := app.userID(t, "a@x.com")

	alice.post("/tasks/add", url.Values{"title": {"Alice's secret"}})
	task := app.onlyTask(t, aliceID)

	assert.NotContains(t, bob.get("/tasks").body, "Alice's secret")

	for id := task.ID - 1; id <= task.ID+1; id++ {
		p := idPath(id)
		res := bob.get("/tasks/edit/" + p)
		assert.Equal(t, "/tasks", res.location)

		res = bob.post("/tasks/edit/"+p, url.Values{"title": {"hijacked"}})
		assert.Equal(t, "/tasks", res.location, "foreign edit looks successful")
		bob.post("/tasks/status/"+p, nil)
		bob.post("/tasks/delete/"+p, nil)
	}
	bob.post("/tasks/edit/abc", url.Values{"title": {"hijacked"}})
	bob.post("/tasks/delete/abc", nil)

	got := app.onlyTask(t, aliceID)
	assert.Equal(t, "Alice's secret", got.Title)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestDashboardShowsCounts(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)
	c.register("alice", "a@x.com", "secret1")

	c.post("/tasks/add", url.Values{"title": {"one"}})
	c.post("/tasks/add", url.Values{"title": {"two"}})
	task, err := app.tasks.List(context.Background(), app.userID(t, "a@x.com"))
	require.NoError(t, err)
	c.post("/tasks/status/"+idPath(task[0].ID), nil)

	assert.Contains(t, c.get("/dashboard").body, "1 pending · 1 completed · 2 total")
}

func TestStoreFailureShowsGenericError(t *testing.T) {
	app := newTestApp(t)
	c := app.newClient(t)
	c.register("alice", "a@x.com", "secret1")

	_, err := app.db.Exec(`DROP TABLE tasks`)
	require.NoError(t, err)

	res := c.get("/tasks")
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Contains(t, res.body, "Failed to load tasks")
	assert.NotContains(t, res.body, "no such table")

	res = c.post("/tasks/delete/1", nil)
	assert.Equal(t, "/tasks", res.location)
}

func TestNotFoundAndHealth(t *testing.T) {
	c := newTestApp(t).newClient(t)

	res := c.get("/nope")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Contains(t, res.body, "Page not found")

	res = c.get("/healthz")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body)

	res = c.get("/metrics")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "taskboard_http_requests_total")
}

func idPath(id int64) string {
	return strconv.FormatInt(id, 10)
}
