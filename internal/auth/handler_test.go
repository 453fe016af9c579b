package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockpile-ims/stockpile/internal/shared"
)

type fakeRepo struct {
	users    map[string]*User
	sessions map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*User{}, sessions: map[string]int64{}}
}

func (r *fakeRepo) addUser(id int64, email, password string, active bool) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	r.users[email] = &User{ID: id, Email: email, Name: "Test User", PasswordHash: string(hash), IsActive: active}
}

func (r *fakeRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id int64) (*User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	r.sessions[id] = userID
	return nil
}

func (r *fakeRepo) DeleteSession(_ context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

type fakePermissions struct {
	perms []string
}

func (p fakePermissions) EffectivePermissions(context.Context, int64) ([]string, error) {
	return p.perms, nil
}

type authFixture struct {
	repo     *fakeRepo
	sessions *shared.SessionManager
	handler  *Handler
	router   chi.Router
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newFakeRepo()
	sessions := shared.NewSessionManager(client, "stockpile_session", "test-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")
	handler := NewHandler(slog.Default(), NewService(repo), sessions, csrf, fakePermissions{perms: []string{shared.PermInventoryView}})

	router := chi.NewRouter()
	handler.MountRoutes(router)

	return &authFixture{repo: repo, sessions: sessions, handler: handler, router: router}
}

func (f *authFixture) request(t *testing.T, method, path, body string, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *authFixture) newSession(t *testing.T) *shared.Session {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sess
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(7, "admin@example.com", "hunter2secret", true)
	sess := f.newSession(t)

	rec := f.request(t, http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"hunter2secret"}`, sess)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "7", sess.User())

	var body struct {
		User      map[string]any `json:"user"`
		CSRFToken string         `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "admin@example.com", body.User["email"])
	require.NotEmpty(t, body.CSRFToken)
	require.Contains(t, f.repo.sessions, sess.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(7, "admin@example.com", "hunter2secret", true)
	sess := f.newSession(t)

	rec := f.request(t, http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"wrongpassword"}`, sess)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, sess.User())
}

func TestLoginInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(7, "admin@example.com", "hunter2secret", false)
	sess := f.newSession(t)

	rec := f.request(t, http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"hunter2secret"}`, sess)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.newSession(t)

	rec := f.request(t, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"short"}`, sess)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresSessionUser(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(7, "admin@example.com", "hunter2secret", true)

	rec := f.request(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	sess := f.newSession(t)
	sess.SetUser("7")
	rec = f.request(t, http.MethodGet, "/me", "", sess)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "admin@example.com", body["email"])
}

func TestMePermissions(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.newSession(t)
	sess.SetUser("7")

	rec := f.request(t, http.MethodGet, "/me/permissions", "", sess)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{shared.PermInventoryView}, body.Permissions)
}

func TestLogoutRemovesSession(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.addUser(7, "admin@example.com", "hunter2secret", true)
	sess := f.newSession(t)
	sess.SetUser("7")
	require.NoError(t, f.repo.CreateSession(context.Background(), sess.ID, 7, time.Now().Add(time.Hour), "", ""))

	rec := f.request(t, http.MethodPost, "/auth/logout", "", sess)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, f.repo.sessions, sess.ID)
}
