package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/shared"
)

type staticPermissions struct {
	perms map[int64][]string
	err   error
}

func (s staticPermissions) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.perms[userID], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func requestWithUser(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID == "" {
		return req
	}
	sess := &shared.Session{}
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireAnyAllowsGrantedPermission(t *testing.T) {
	mw := Middleware{
		Service: staticPermissions{perms: map[int64][]string{5: {shared.PermInventoryView}}},
		Logger:  slog.Default(),
	}

	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermInventoryView, shared.PermReportsView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAnyRejectsMissingPermission(t *testing.T) {
	mw := Middleware{
		Service: staticPermissions{perms: map[int64][]string{5: {shared.PermInventoryView}}},
		Logger:  slog.Default(),
	}

	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermAuditView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyRejectsAnonymous(t *testing.T) {
	mw := Middleware{Service: staticPermissions{}, Logger: slog.Default()}

	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermInventoryView)(okHandler()).ServeHTTP(rec, requestWithUser(""))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnyIsCaseInsensitive(t *testing.T) {
	mw := Middleware{
		Service: staticPermissions{perms: map[int64][]string{5: {"INVENTORY.VIEW"}}},
		Logger:  slog.Default(),
	}

	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermInventoryView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAnyLookupFailure(t *testing.T) {
	mw := Middleware{
		Service: staticPermissions{err: errors.New("boom")},
		Logger:  slog.Default(),
	}

	rec := httptest.NewRecorder()
	mw.RequireAny(shared.PermInventoryView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := Middleware{
		Service: staticPermissions{perms: map[int64][]string{5: {shared.PermInventoryView, shared.PermReportsView}}},
		Logger:  slog.Default(),
	}

	rec := httptest.NewRecorder()
	mw.RequireAll(shared.PermInventoryView, shared.PermReportsView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mw.RequireAll(shared.PermInventoryView, shared.PermAuditView)(okHandler()).ServeHTTP(rec, requestWithUser("5"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
