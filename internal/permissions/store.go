package permissions

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Options tune a Store.
type Options struct {
	// Concurrency caps simultaneous checks per resolution. Zero means one
	// in-flight check per action.
	Concurrency int
	Logger      *slog.Logger
	Recorder    Recorder
}

// Store is the per-session permission state. Reads are synchronous and
// served from memory; loads and refreshes resolve remotely and commit their
// results in one replacement.
type Store struct {
	identity shared.Identity
	checker  Checker
	catalog  Catalog
	limit    int
	logger   *slog.Logger
	recorder Recorder

	mu        sync.RWMutex
	perms     Map
	ticket    uint64
	committed map[string]uint64
	inflight  int
	closed    bool
}

// NewStore creates an empty store for identity.
func NewStore(identity shared.Identity, checker Checker, catalog Catalog, opts Options) *Store {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var recorder Recorder = nopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}
	return &Store{
		identity:  identity,
		checker:   checker,
		catalog:   catalog,
		limit:     opts.Concurrency,
		logger:    logger,
		recorder:  recorder,
		perms:     make(Map),
		committed: make(map[string]uint64),
	}
}

// Identity returns the actor the store resolves for.
func (s *Store) Identity() shared.Identity {
	return s.identity
}

// Catalog returns the module action catalog.
func (s *Store) Catalog() Catalog {
	return s.catalog
}

// HasPermission reports the cached decision. Unresolved entries are denied.
func (s *Store) HasPermission(module, action string) bool {
	if s.identity.Bypass() {
		return true
	}
	if s.identity.Anonymous() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms[module][action]
}

// Loaded reports whether module has been committed at least once.
func (s *Store) Loaded(module string) bool {
	if s.identity.Bypass() {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.perms[module]
	return ok
}

// Loading reports whether a load or refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Snapshot returns a copy of the resolved map.
func (s *Store) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms.Clone()
}

// Close disposes the store. Results that arrive afterwards are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// CheckPermission asks the authorization service for one decision without
// caching it. Failures are logged and reported as denied.
func (s *Store) CheckPermission(ctx context.Context, module, action string) bool {
	if s.identity.Bypass() {
		s.recorder.ObservePermissionCheck(module, action, OutcomeBypass)
		return true
	}
	if s.identity.Anonymous() {
		return false
	}
	allowed, err := s.checker.Check(ctx, s.identity.UserID, module, action)
	if err != nil {
		s.logger.Warn("permission check failed",
			slog.Int64("user_id", s.identity.UserID),
			slog.String("module", module),
			slog.String("action", action),
			slog.Any("error", err))
		s.recorder.ObservePermissionCheck(module, action, OutcomeFailed)
		return false
	}
	if allowed {
		s.recorder.ObservePermissionCheck(module, action, OutcomeAllowed)
	} else {
		s.recorder.ObservePermissionCheck(module, action, OutcomeDenied)
	}
	return allowed
}

// CheckMultiple resolves actions of module concurrently without caching.
func (s *Store) CheckMultiple(ctx context.Context, module string, actions []string) map[string]bool {
	if s.identity.Bypass() {
		out := make(map[string]bool, len(actions))
		for _, a := range actions {
			out[a] = true
		}
		return out
	}
	return s.resolve(ctx, Catalog{module: actions})[module]
}

// LoadModulePermissions resolves every catalog action of module at once and
// commits them as the module's new entry.
func (s *Store) LoadModulePermissions(ctx context.Context, module string) {
	if s.identity.Bypass() || s.identity.Anonymous() {
		return
	}
	actions, ok := s.catalog[module]
	if !ok {
		s.logger.Warn("permission load for unknown module", slog.String("module", module))
		return
	}
	ticket, ok := s.begin()
	if !ok {
		return
	}
	result := s.resolve(ctx, Catalog{module: actions})
	s.commit(ticket, result, false)
}

// RefreshPermissions resolves every catalog module and replaces the whole
// map once all results are in.
func (s *Store) RefreshPermissions(ctx context.Context) {
	if s.identity.Bypass() || s.identity.Anonymous() {
		return
	}
	ticket, ok := s.begin()
	if !ok {
		return
	}
	result := s.resolve(ctx, s.catalog)
	s.commit(ticket, result, true)
}

func (s *Store) begin() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	s.ticket++
	s.inflight++
	return s.ticket, true
}

// commit applies result unless the store was closed. A module entry is only
// replaced when no newer resolution has already been committed for it.
func (s *Store) commit(ticket uint64, result Map, replaceAll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.closed {
		s.logger.Debug("permission results discarded after close", slog.Int64("user_id", s.identity.UserID))
		return
	}
	next := s.perms.Clone()
	if replaceAll {
		next = make(Map, len(result))
		for module, actions := range s.perms {
			if _, keep := result[module]; !keep {
				continue
			}
			next[module] = actions
		}
	}
	for module, actions := range result {
		if s.committed[module] > ticket {
			continue
		}
		next[module] = actions
		s.committed[module] = ticket
	}
	s.perms = next
}

type check struct {
	module string
	action string
}

func (s *Store) resolve(ctx context.Context, modules Catalog) Map {
	var checks []check
	for module, actions := range modules {
		for _, action := range actions {
			checks = append(checks, check{module: module, action: action})
		}
	}
	decisions := make([]bool, len(checks))

	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, c := range checks {
		g.Go(func() error {
			decisions[i] = s.CheckPermission(ctx, c.module, c.action)
			return nil
		})
	}
	_ = g.Wait()

	out := make(Map, len(modules))
	for module := range modules {
		out[module] = make(map[string]bool, len(modules[module]))
	}
	for i, c := range checks {
		out[c.module][c.action] = decisions[i]
	}
	return out
}
