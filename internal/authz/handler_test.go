package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, dir *mockDirectory, adminPermission string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	resolver := NewResolver(dir)
	checker := NewChecker(dir, resolver, nil, nil)
	service := NewService(dir, resolver, nil, nil, nil, logger)
	guard := Middleware{Checker: checker, Logger: logger}
	handler := NewHandler(logger, service, checker, guard, adminPermission)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckEndpoint(t *testing.T) {
	dir := newMockDirectory()
	require.NoError(t, dir.UpsertGrant(context.Background(), UserSubject(1), "posts.publish", true))
	router := newTestHandler(t, dir, "")

	rec := doJSON(t, router, http.MethodPost, "/check", map[string]any{
		"subject_type": "user",
		"subject_id":   1,
		"permission":   "posts.publish",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Granted)

	rec = doJSON(t, router, http.MethodPost, "/check", map[string]any{
		"subject_type": "user",
		"subject_id":   2,
		"permission":   "posts.publish",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Granted)
}

func TestCheckEndpointRejectsUnknownSubjectType(t *testing.T) {
	router := newTestHandler(t, newMockDirectory(), "")

	rec := doJSON(t, router, http.MethodPost, "/check", map[string]any{
		"subject_type": "group",
		"subject_id":   1,
		"permission":   "posts.publish",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleLifecycleOverHTTP(t *testing.T) {
	dir := newMockDirectory()
	router := newTestHandler(t, dir, "")

	rec := doJSON(t, router, http.MethodPost, "/roles", map[string]any{
		"name":     "editor",
		"priority": 5,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "editor", created.Name)

	rec = doJSON(t, router, http.MethodPost, "/roles", map[string]any{
		"name": "editor",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/roles/"+formatID(created.ID), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/roles/"+formatID(created.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetInheritanceRejectsCycleOverHTTP(t *testing.T) {
	dir := newMockDirectory()
	a := seedRole(t, dir, "a", 1)
	b := seedRole(t, dir, "b", 1)
	router := newTestHandler(t, dir, "")

	rec := doJSON(t, router, http.MethodPost, "/roles/"+formatID(a.ID)+"/inherits", map[string]any{
		"parent_id": b.ID,
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/roles/"+formatID(b.ID)+"/inherits", map[string]any{
		"parent_id": a.ID,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAssignGrantOverHTTP(t *testing.T) {
	dir := newMockDirectory()
	role := seedRole(t, dir, "editor", 5)
	router := newTestHandler(t, dir, "")

	rec := doJSON(t, router, http.MethodPost, "/subjects/role/"+formatID(role.ID)+"/grants", map[string]any{
		"key":     "posts.publish",
		"granted": true,
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	granted, found, err := dir.GetDirectGrant(context.Background(), RoleSubject(role.ID), "posts.publish")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, granted)

	// granted is mandatory so an explicit false never decays to allow.
	rec = doJSON(t, router, http.MethodPost, "/subjects/role/"+formatID(role.ID)+"/grants", map[string]any{
		"key": "posts.delete",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/subjects/role/"+formatID(role.ID)+"/grants/posts.publish", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/subjects/role/"+formatID(role.ID)+"/grants/posts.publish", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignRoleOverHTTP(t *testing.T) {
	dir := newMockDirectory()
	role := seedRole(t, dir, "editor", 5)
	router := newTestHandler(t, dir, "")

	rec := doJSON(t, router, http.MethodPost, "/users/7/roles", map[string]any{"role_id": role.ID}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/users/7/roles", map[string]any{"role_id": role.ID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/users/7/roles/"+formatID(role.ID), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/users/7/roles/"+formatID(role.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBodyRejected(t *testing.T) {
	router := newTestHandler(t, newMockDirectory(), "")

	req := httptest.NewRequest(http.MethodPost, "/roles", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActorHeaderReachesAuditTrail(t *testing.T) {
	dir := newMockDirectory()
	auditor := &captureAuditor{}
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	resolver := NewResolver(dir)
	checker := NewChecker(dir, resolver, nil, nil)
	service := NewService(dir, resolver, nil, auditor, nil, logger)
	handler := NewHandler(logger, service, checker, Middleware{Checker: checker, Logger: logger}, "")

	router := chi.NewRouter()
	handler.MountRoutes(router)

	rec := doJSON(t, router, http.MethodPost, "/roles", map[string]any{"name": "editor"}, map[string]string{ActorHeader: "42"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, int64(42), auditor.entries[0].ActorID)
	assert.Equal(t, "role.create", auditor.entries[0].Action)
}

func TestAdminPermissionGuardsMutations(t *testing.T) {
	dir := newMockDirectory()
	require.NoError(t, dir.UpsertGrant(context.Background(), UserSubject(1), "admin.authz", true))
	router := newTestHandler(t, dir, "admin.authz")

	// No actor header: denied.
	rec := doJSON(t, router, http.MethodPost, "/roles", map[string]any{"name": "editor"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// An actor without the permission: denied.
	rec = doJSON(t, router, http.MethodPost, "/roles", map[string]any{"name": "editor"}, map[string]string{ActorHeader: "2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The admin: admitted.
	rec = doJSON(t, router, http.MethodPost, "/roles", map[string]any{"name": "editor"}, map[string]string{ActorHeader: "1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// The check endpoint stays open either way.
	rec = doJSON(t, router, http.MethodPost, "/check", map[string]any{
		"subject_type": "user",
		"subject_id":   2,
		"permission":   "page.home",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
