package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-id/aegis/internal/shared"
)

func newTestGuard(t *testing.T, repo Repository) Guard {
	t.Helper()
	return NewGuard(newTestResolver(t, repo), NewCatalog(), slog.Default())
}

func guardedRouter(guard Guard, mw func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.With(mw).Get("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func doRequest(router http.Handler, principalID *uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if principalID != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *principalID))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGuardDeniesWithoutPrincipal(t *testing.T) {
	guard := newTestGuard(t, newFakeRepo())
	router := guardedRouter(guard, guard.Require(UsersView))

	rr := doRequest(router, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGuardAllowsHeldPermission(t *testing.T) {
	repo := newFakeRepo()
	principalID := uuid.New()
	repo.grant(principalID, UsersView)

	guard := newTestGuard(t, repo)
	router := guardedRouter(guard, guard.Require(UsersView))

	rr := doRequest(router, &principalID)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestGuardDenialNamesOnlyRequiredPermissions(t *testing.T) {
	repo := newFakeRepo()
	principalID := uuid.New()
	repo.grant(principalID, RolesView)

	guard := newTestGuard(t, repo)
	router := guardedRouter(guard, guard.Require(UsersDelete))

	rr := doRequest(router, &principalID)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), UsersDelete.Name())
	// The denial must not leak what the principal does hold.
	require.NotContains(t, rr.Body.String(), RolesView.Name())
}

func TestGuardRequireAny(t *testing.T) {
	repo := newFakeRepo()
	principalID := uuid.New()
	repo.grant(principalID, RolesView)

	guard := newTestGuard(t, repo)
	router := guardedRouter(guard, guard.RequireAny(UsersView, RolesView))

	rr := doRequest(router, &principalID)
	require.Equal(t, http.StatusOK, rr.Code)

	router = guardedRouter(guard, guard.RequireAny(UsersView, UsersDelete))
	rr = doRequest(router, &principalID)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "any of")
}

func TestGuardRequireAll(t *testing.T) {
	repo := newFakeRepo()
	principalID := uuid.New()
	repo.grant(principalID, UsersView, RolesView)

	guard := newTestGuard(t, repo)
	router := guardedRouter(guard, guard.RequireAll(UsersView, RolesView))

	rr := doRequest(router, &principalID)
	require.Equal(t, http.StatusOK, rr.Code)

	router = guardedRouter(guard, guard.RequireAll(UsersView, UsersDelete))
	rr = doRequest(router, &principalID)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "all of")
}

func TestGuardRepositoryFailureIsServerError(t *testing.T) {
	repo := newFakeRepo()
	repo.setErr(errors.New("connection refused"))
	principalID := uuid.New()

	guard := newTestGuard(t, repo)
	router := guardedRouter(guard, guard.Require(UsersView))

	rr := doRequest(router, &principalID)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGuardPanicsOnUnregisteredPermission(t *testing.T) {
	guard := newTestGuard(t, newFakeRepo())
	ghost := Definition{Resource: "ghosts", Action: "summon"}

	require.Panics(t, func() { guard.Require(ghost) })
	require.Panics(t, func() { guard.RequireAll(UsersView, ghost) })
	require.Panics(t, func() {
		_, _ = guard.Can(context.Background(), uuid.New(), ghost)
	})
}

func TestGuardPanicsOnEmptyRequirement(t *testing.T) {
	guard := newTestGuard(t, newFakeRepo())

	require.Panics(t, func() { guard.RequireAny() })
	require.Panics(t, func() { guard.RequireAll() })
}

func TestGuardCanQueriesWithoutDenying(t *testing.T) {
	repo := newFakeRepo()
	principalID := uuid.New()
	repo.grant(principalID, UsersView)

	guard := newTestGuard(t, repo)

	ok, err := guard.Can(context.Background(), principalID, UsersView)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = guard.Can(context.Background(), principalID, UsersDelete)
	require.NoError(t, err)
	require.False(t, ok)
}
