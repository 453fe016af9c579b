package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/shared"
)

// stackFixture runs the full middleware chain against stub handlers, the way
// a browser client sees it.
type stackFixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
}

func newStackFixture(t *testing.T) *stackFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &stackFixture{
		sessions: shared.NewSessionManager(client, "stockpile_session", "session-secret", time.Hour, false),
		csrf:     shared.NewCSRFManager("csrf-secret"),
	}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         slog.Default(),
		SessionManager: f.sessions,
		CSRFManager:    f.csrf,
	}) {
		r.Use(mw)
	}

	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		require.NotNil(t, sess)
		sess.SetUser("7")
		token, err := f.csrf.EnsureToken(r.Context(), sess)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": token})
	})
	r.Post("/api/inventory/stock-in", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	f.router = r
	return f
}

func (f *stackFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// login authenticates a fresh client and returns its session cookie and
// CSRF token.
func (f *stackFixture) login(t *testing.T) (*http.Cookie, string) {
	t.Helper()

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["csrf_token"])

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == f.sessions.CookieName() {
			return cookie, body["csrf_token"]
		}
	}
	t.Fatal("session cookie missing from login response")
	return nil, ""
}

func TestFreshClientCanLogin(t *testing.T) {
	f := newStackFixture(t)

	// No cookie, no token. Login must still reach its handler.
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookie, token := f.login(t)
	assert.NotEmpty(t, cookie.Value)
	assert.NotEmpty(t, token)
}

func TestMutationsRejectedWithoutToken(t *testing.T) {
	f := newStackFixture(t)
	cookie, _ := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/inventory/stock-in", nil)
	req.AddCookie(cookie)
	rec := f.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMutationsPassWithIssuedToken(t *testing.T) {
	f := newStackFixture(t)
	cookie, token := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/inventory/stock-in", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, token)
	rec := f.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMutationsRejectForeignToken(t *testing.T) {
	f := newStackFixture(t)
	cookie, _ := f.login(t)
	_, otherToken := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/inventory/stock-in", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, otherToken)
	rec := f.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
