package users

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/apiclient"
	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/datacache"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const usersJSON = `[
	{"id":1,"firstName":"Alice","lastName":"Admin","email":"alice@exemple.fr","role":"Admin","status":"Actif"},
	{"id":2,"firstName":"Marc","lastName":"Manager","email":"marc@exemple.fr","role":"Manager","status":"Actif"},
	{"id":3,"firstName":"Eve","lastName":"Martin","email":"eve@exemple.fr","role":"Employé","manager":"Marc Manager","managerId":2,"status":"Actif"},
	{"id":4,"firstName":"Nina","lastName":"Leroy","email":"nina@exemple.fr","role":"Manager","status":"Inactif"}
]`

type apiCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeUserAPI stands in for the remote user service.
type fakeUserAPI struct {
	mu         sync.Mutex
	listCalls  int
	calls      []apiCall
	status     int
	errMessage string
	failList   bool
}

func (f *fakeUserAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		f.listCalls++
		if f.failList {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(usersJSON))
		return
	}
	if r.Method == http.MethodGet && r.URL.Path == "/api/groupes" {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Admin"},{"id":2,"name":"Manager"},{"id":3,"name":"Employé"}]`))
		return
	}
	call := apiCall{Method: r.Method, Path: r.URL.Path}
	_ = json.NewDecoder(r.Body).Decode(&call.Body)
	f.calls = append(f.calls, call)
	if f.status >= 300 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"message":"` + f.errMessage + `"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeUserAPI) setStatus(status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.errMessage = message
}

func (f *fakeUserAPI) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeUserAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAudit) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memoryAudit) Entries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...)
}

type mutationCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *mutationCounter) ObserveMutation(field string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	key := field + ":ok"
	if err != nil {
		key = field + ":error"
	}
	m.outcomes[key]++
}

func (m *mutationCounter) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[key]
}

type fixture struct {
	api     *fakeUserAPI
	client  *apiclient.Client
	cache   *datacache.Cache
	service *Service
	audit   *memoryAudit
	metrics *mutationCounter
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultURLs() URLs {
	return URLs{
		List:          "/api/users",
		Create:        "/api/users",
		ChangeRole:    "/api/users/change-role",
		UpdateManager: "/api/users/update-manager",
		UpdateStatus:  "/api/users/update-status",
		Delete:        "/api/users",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := &fakeUserAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	cache := datacache.New(rdb, client, time.Minute, testLogger())
	rec := &memoryAudit{}
	metrics := &mutationCounter{}
	svc := NewService(ServiceConfig{
		API:     client,
		Cache:   cache,
		URLs:    defaultURLs(),
		Audit:   rec,
		Metrics: metrics,
		Logger:  testLogger(),
	})
	return &fixture{api: api, client: client, cache: cache, service: svc, audit: rec, metrics: metrics}
}

func actorContext(id int64, role string) context.Context {
	sess := &shared.Session{ID: "sess"}
	sess.SetIdentity(shared.Identity{UserID: id, Role: role})
	return shared.ContextWithSession(context.Background(), sess)
}

func TestListUsersIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.ListUsers(ctx)
	require.NoError(t, err)
	second, err := f.service.ListUsers(ctx)
	require.NoError(t, err)

	assert.Len(t, first, 4)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.api.ListCalls())
	assert.Equal(t, int64(2), first[2].ManagerRef())
}

func TestChangeRoleSendsPayloadAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := actorContext(9, "Manager")

	require.NoError(t, f.service.ChangeRole(ctx, 3, "Manager"))

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].Method)
	assert.Equal(t, "/api/users/change-role", calls[0].Path)
	assert.EqualValues(t, 3, calls[0].Body["id"])
	assert.Equal(t, "Manager", calls[0].Body["role"])

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "users.role", entries[0].Action)
	assert.Equal(t, int64(9), entries[0].ActorID)
	assert.Equal(t, "3", entries[0].EntityID)
	assert.Equal(t, 1, f.metrics.Count("role:ok"))
}

func TestChangeRoleRejectsProtectedRole(t *testing.T) {
	f := newFixture(t)
	err := f.service.ChangeRole(context.Background(), 3, RoleAdmin)
	assert.ErrorIs(t, err, ErrProtected)
	assert.Empty(t, f.api.Calls())
}

func TestChangeManagerPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.ChangeManager(ctx, 3, 4))
	require.NoError(t, f.service.ChangeManager(ctx, 3, 0))

	calls := f.api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/users/update-manager", calls[0].Path)
	assert.EqualValues(t, 3, calls[0].Body["userId"])
	assert.EqualValues(t, 4, calls[0].Body["managerId"])
	assert.Contains(t, calls[1].Body, "managerId")
	assert.Nil(t, calls[1].Body["managerId"])

	err := f.service.ChangeManager(ctx, 3, 3)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, f.api.Calls(), 2)
}

func TestChangeStatusValidatesValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.service.ChangeStatus(ctx, 3, "Archivé")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, f.api.Calls())
	assert.Equal(t, 1, f.metrics.Count("status:error"))

	require.NoError(t, f.service.ChangeStatus(ctx, 3, "Suspendu"))
	assert.Equal(t, "Suspendu", f.api.Calls()[0].Body["status"])
}

func TestDeleteSurfacesServerMessage(t *testing.T) {
	f := newFixture(t)
	f.api.setStatus(http.StatusConflict, "Utilisateur lié à des plans")

	err := f.service.Delete(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, "Utilisateur lié à des plans", apiclient.MessageOf(err))
	assert.Equal(t, http.StatusConflict, apiclient.StatusOf(err))

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodDelete, calls[0].Method)
	assert.Equal(t, "/api/users/3", calls[0].Path)
	assert.Empty(t, f.audit.Entries())
}

func TestCreateValidatesAndRevalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ListUsers(ctx)
	require.NoError(t, err)

	err = f.service.Create(ctx, CreateInput{FirstName: "Léa", LastName: "Petit", Email: "pas-un-email", Role: "Employé"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, f.api.Calls())

	err = f.service.Create(ctx, CreateInput{FirstName: "Léa", LastName: "Petit", Email: "lea@exemple.fr", Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrProtected)

	require.NoError(t, f.service.Create(ctx, CreateInput{FirstName: "Léa", LastName: "Petit", Email: "lea@exemple.fr", Role: "Employé"}))
	calls := f.api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "lea@exemple.fr", calls[0].Body["email"])
	assert.Equal(t, 2, f.api.ListCalls())
}

func TestMutationsOnSameRowAreSerialized(t *testing.T) {
	locks := newRowLocks()
	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(3)
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
	assert.Empty(t, locks.locks)
}

func TestErrorsAreNotAPIErrorsWhenValidationFails(t *testing.T) {
	f := newFixture(t)
	err := f.service.Delete(context.Background(), 0)
	var apiErr *apiclient.Error
	assert.False(t, errors.As(err, &apiErr))
	assert.ErrorIs(t, err, ErrInvalid)
}
