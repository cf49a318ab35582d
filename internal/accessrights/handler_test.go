package accessrights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/apiclient"
	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAudit) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

type denyAll struct{}

func (denyAll) Check(context.Context, int64, string, string) (bool, error) { return false, nil }

type fakeAuthService struct {
	mu      sync.Mutex
	allowed map[string]bool
	updates int
}

func (f *fakeAuthService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/access-rights/group/"):
		_, _ = w.Write([]byte(`{"groupeId":3,"module":"users","accessRights":[` +
			`{"action":"view","allowed":` + boolJSON(f.allowed["view"]) + `},` +
			`{"action":"edit","allowed":` + boolJSON(f.allowed["edit"]) + `}]}`))
	case r.Method == http.MethodPut:
		f.updates++
		f.allowed = map[string]bool{"view": true, "edit": true}
		_, _ = w.Write([]byte(`{"groupeId":3,"module":"users","accessRights":[{"action":"view","allowed":true},{"action":"edit","allowed":true}]}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAuthService) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func newTestRouter(t *testing.T, identity shared.Identity, fake *fakeAuthService, rec *memoryAudit) (http.Handler, *shared.Session) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	registry := permissions.NewRegistry(denyAll{}, nil, 8, time.Minute, permissions.Options{})
	client := NewClient(apiclient.New(apiclient.Options{BaseURL: srv.URL}), "")
	h := NewHandler(testLogger(), client, registry, rec, nil, nil, i18n.New("fr"), rbac.Middleware{Registry: registry})

	sess := &shared.Session{ID: "sess-1"}
	sess.SetIdentity(identity)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/access-rights", h.MountRoutes)
	return r, sess
}

func postForm(handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSaveRightsUpdatesOnlyWhenChanged(t *testing.T) {
	fake := &fakeAuthService{allowed: map[string]bool{"view": true}}
	rec := &memoryAudit{}
	router, sess := newTestRouter(t, shared.Identity{UserID: 1, Role: shared.BypassRole}, fake, rec)

	resp := postForm(router, "/access-rights/groups/3", url.Values{"module": {"users"}, "allowed": {"view"}})
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Zero(t, fake.Updates())
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "info", flash.Kind)

	resp = postForm(router, "/access-rights/groups/3", url.Values{"module": {"users"}, "allowed": {"view", "edit"}})
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, "/access-rights/groups/3?module=users", resp.Header().Get("Location"))
	assert.Equal(t, 1, fake.Updates())
	flash = sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "access_rights.update", rec.entries[0].Action)
	assert.Equal(t, "3", rec.entries[0].EntityID)
}

func TestSaveRightsRequiresManagePermission(t *testing.T) {
	fake := &fakeAuthService{}
	router, _ := newTestRouter(t, shared.Identity{UserID: 2, Role: "Manager"}, fake, &memoryAudit{})

	resp := postForm(router, "/access-rights/groups/3", url.Values{"module": {"users"}, "allowed": {"view"}})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Zero(t, fake.Updates())
}
