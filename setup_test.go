package sessionauth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	sa "github.com/panyam/sessionauth"
	"github.com/panyam/sessionauth/oauth2"
	gormstore "github.com/panyam/sessionauth/stores/gorm"
)

// newTestStore returns a store over a private in-memory SQLite database.
// A single connection keeps every query on the same database.
func newTestStore(t *testing.T) *gormstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := gormstore.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return gormstore.NewStore(db)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionConfig() sa.SessionConfig {
	cfg := sa.DefaultSessionConfig()
	cfg.CookieSecure = false
	return cfg
}

// fakeClock is a settable clock for session and token expiry tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// queuedJob is one call to fakeQueue.Enqueue
type queuedJob struct {
	Name    string
	Payload any
}

// fakeQueue records enqueued jobs instead of pushing them to Redis
type fakeQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, queuedJob{Name: name, Payload: payload})
	return name, nil
}

// lastVerificationCode returns the code of the latest verification email sent to email
func (q *fakeQueue) lastVerificationCode(email string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.jobs) - 1; i >= 0; i-- {
		if job, ok := q.jobs[i].Payload.(sa.VerificationEmailJob); ok && job.Email == email {
			return job.Code
		}
	}
	return ""
}

// lastResetToken returns the token of the latest reset email sent to email
func (q *fakeQueue) lastResetToken(email string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.jobs) - 1; i >= 0; i-- {
		if job, ok := q.jobs[i].Payload.(sa.PasswordResetEmailJob); ok && job.Email == email {
			return job.Token
		}
	}
	return ""
}

func (q *fakeQueue) count(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.Name == name {
			n++
		}
	}
	return n
}

// testEnv is a full app served over HTTP with a SQLite store and a fake queue
type testEnv struct {
	Store  *gormstore.Store
	Queue  *fakeQueue
	Clock  *fakeClock
	App    *sa.App
	Server *httptest.Server
}

func setupEnv(t *testing.T, config sa.SessionConfig, providers ...oauth2.Provider) *testEnv {
	t.Helper()
	store := newTestStore(t)
	queue := &fakeQueue{}
	clock := newFakeClock()
	app := sa.NewApp(store, queue, config, testLogger(), providers...)
	app.Sessions.Clock = clock.Now

	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return &testEnv{Store: store, Queue: queue, Clock: clock, App: app, Server: server}
}

// newClient returns an HTTP client with its own cookie jar that does not follow redirects
func (e *testEnv) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// createUser inserts a user with a password directly into the store
func createUser(t *testing.T, store sa.Store, email, password string, verified bool) *sa.User {
	t.Helper()
	hash, err := sa.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &sa.User{
		ID:            "user-" + email,
		Name:          "Test User",
		Email:         email,
		EmailVerified: verified,
		PasswordHash:  &hash,
		Role:          sa.RoleUser,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
