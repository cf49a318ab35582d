package permissions

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Registry keeps one Store per session in a bounded, expiring LRU.
type Registry struct {
	checker Checker
	opts    Options

	mu      sync.Mutex
	catalog Catalog
	stores  *lru.LRU[string, *Store]
}

// NewRegistry builds a Registry holding at most size stores for ttl each.
func NewRegistry(checker Checker, catalog Catalog, size int, ttl time.Duration, opts Options) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if size <= 0 {
		size = 1024
	}
	return &Registry{
		checker: checker,
		opts:    opts,
		catalog: catalog,
		stores: lru.NewLRU[string, *Store](size, func(_ string, s *Store) {
			s.Close()
		}, ttl),
	}
}

// For returns the store of sessionID, creating a new one when missing or when
// the session identity changed since it was built.
func (r *Registry) For(sessionID string, identity shared.Identity) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores.Get(sessionID); ok {
		if s.Identity() == identity {
			return s
		}
		s.Close()
	}
	s := NewStore(identity, r.checker, r.catalog, r.opts)
	r.stores.Add(sessionID, s)
	return s
}

// FromContext returns the store for the request session. Requests without a
// session get a throwaway anonymous store.
func (r *Registry) FromContext(ctx context.Context) *Store {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return NewStore(shared.Identity{}, r.checker, r.catalog, r.opts)
	}
	return r.For(sess.ID, sess.Identity())
}

// Forget closes and removes the store of sessionID.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores.Remove(sessionID)
}

// ExtendCatalog merges extra actions into the catalog used by stores built
// from now on.
func (r *Registry) ExtendCatalog(extra Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = r.catalog.Merge(extra)
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	return r.stores.Len()
}
