package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/shared"
)

type roleGrant struct {
	userID int64
	roleID int64
}

type fakeRoleStore struct {
	roles  map[int64]Role
	perms  []Permission
	grants map[roleGrant]bool
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles:  make(map[int64]Role),
		grants: make(map[roleGrant]bool),
	}
}

func (f *fakeRoleStore) ListRoles(context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(f.roles))
	for _, role := range f.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

func (f *fakeRoleStore) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (f *fakeRoleStore) ListPermissions(context.Context) ([]Permission, error) {
	return f.perms, nil
}

func (f *fakeRoleStore) AssignRole(_ context.Context, userID, roleID int64) error {
	f.grants[roleGrant{userID, roleID}] = true
	return nil
}

func (f *fakeRoleStore) RemoveRole(_ context.Context, userID, roleID int64) error {
	delete(f.grants, roleGrant{userID, roleID})
	return nil
}

func newRoleRouter(store *fakeRoleStore) chi.Router {
	mw := Middleware{
		Service: staticPermissions{perms: map[int64][]string{
			1: {shared.PermRoleManage},
			2: {shared.PermInventoryView},
		}},
		Logger: slog.Default(),
	}
	h := NewHandler(slog.Default(), store, mw)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func roleRequest(method, target, body, userID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID == "" {
		return req
	}
	sess := &shared.Session{}
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRoleAdminRequiresManagePermission(t *testing.T) {
	r := newRoleRouter(newFakeRoleStore())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/", "", "2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/", "", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRolesAndPermissions(t *testing.T) {
	store := newFakeRoleStore()
	store.roles[5] = Role{ID: 5, Name: "approver"}
	store.perms = []Permission{{ID: 1, Name: shared.PermInventoryView}}
	r := newRoleRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/", "", "1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"approver"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/permissions", "", "1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), shared.PermInventoryView)
}

func TestGetRoleUnknownID(t *testing.T) {
	r := newRoleRouter(newFakeRoleStore())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/42", "", "1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodGet, "/nope", "", "1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignAndRemoveRole(t *testing.T) {
	store := newFakeRoleStore()
	store.roles[5] = Role{ID: 5, Name: "approver"}
	r := newRoleRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodPost, "/5/assign", `{"user_id":7}`, "1"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, store.grants[roleGrant{7, 5}])

	// unknown role is refused
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodPost, "/9/assign", `{"user_id":7}`, "1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// missing user id is refused
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodPost, "/5/assign", `{}`, "1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, roleRequest(http.MethodDelete, "/5/assign/7", "", "1"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, store.grants[roleGrant{7, 5}])
}
