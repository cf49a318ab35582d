package rbac

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newPermissionsRouter(checker permissions.Checker) http.Handler {
	registry := permissions.NewRegistry(checker, nil, 4, time.Minute, permissions.Options{})
	h := NewPermissionsHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), registry, i18n.New("fr"))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func withIdentity(req *http.Request, identity *shared.Identity) (*http.Request, *shared.Session) {
	sess := &shared.Session{ID: "s1"}
	if identity != nil {
		sess.SetIdentity(*identity)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestShowPermissionsLoadsEveryModule(t *testing.T) {
	checker := &mapChecker{allowed: map[string]bool{"users.view": true, "groups.view": true}}
	router := newPermissionsRouter(checker)

	req, _ := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &shared.Identity{UserID: 4, Role: "Manager"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body permissionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.UserID)
	assert.False(t, body.Bypass)
	assert.True(t, body.Modules["users"]["view"])
	assert.False(t, body.Modules["users"]["delete"])
	assert.True(t, body.Modules["groups"]["view"])
	assert.Contains(t, body.Modules, "plan")
}

func TestShowPermissionsRejectsAnonymous(t *testing.T) {
	router := newPermissionsRouter(&mapChecker{})
	req, _ := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRedirectsWithFlash(t *testing.T) {
	checker := &mapChecker{allowed: map[string]bool{"users.view": true}}
	router := newPermissionsRouter(checker)

	form := url.Values{"return": {"/groups"}}
	req := httptest.NewRequest(http.MethodPost, "/refresh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withIdentity(req, &shared.Identity{UserID: 4, Role: "Manager"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/groups", rec.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Permissions mises à jour.", flash.Message)
	assert.Positive(t, checker.calls.Load())
}

func TestRefreshRejectsOffsiteReturn(t *testing.T) {
	router := newPermissionsRouter(&mapChecker{})
	form := url.Values{"return": {"https://evil.example/x"}}
	req := httptest.NewRequest(http.MethodPost, "/refresh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withIdentity(req, &shared.Identity{UserID: 4, Role: "Manager"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "/users", rec.Header().Get("Location"))
}

func TestCheckPermissionsAnswersArbitraryActions(t *testing.T) {
	checker := &mapChecker{allowed: map[string]bool{"plan.approve": true}}
	router := newPermissionsRouter(checker)

	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"module":"plan","actions":["approve","archive"," "]}`))
	req, _ = withIdentity(req, &shared.Identity{UserID: 4, Role: "Manager"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"module":"plan","allowed":{"approve":true,"archive":false}}`, rec.Body.String())
	assert.Equal(t, int32(2), checker.calls.Load())
}

func TestCheckPermissionsValidatesBody(t *testing.T) {
	router := newPermissionsRouter(&mapChecker{})
	for _, body := range []string{`{"module":"","actions":["view"]}`, `{"module":"users"}`, `{"module":"users","unknown":true}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(body))
		req, _ = withIdentity(req, &shared.Identity{UserID: 4, Role: "Manager"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
