package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. Permissions
// are named "module.action" and resolved through the session store.
type Middleware struct {
	Registry *permissions.Registry
	Logger   *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.require("rbac require any", required, func(store *permissions.Store) bool {
		for _, p := range required {
			if store.HasPermission(p.module, p.action) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.require("rbac require all", required, func(store *permissions.Store) bool {
		for _, p := range required {
			if !store.HasPermission(p.module, p.action) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(name string, required []permission, allowed func(*permissions.Store) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if shared.IdentityFromContext(r.Context()).Anonymous() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			store := m.Registry.FromContext(r.Context())
			for _, module := range modulesOf(required) {
				if !store.Loaded(module) {
					store.LoadModulePermissions(r.Context(), module)
				}
			}
			if allowed(store) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug(name+" denied", slog.String("path", r.URL.Path))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

type permission struct {
	module string
	action string
}

func normalizePermissions(perms []string) []permission {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]permission, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		module, action, ok := strings.Cut(p, ".")
		if !ok || module == "" || action == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, permission{module: module, action: action})
	}
	return normalized
}

func modulesOf(perms []permission) []string {
	var modules []string
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.module]; ok {
			continue
		}
		seen[p.module] = struct{}{}
		modules = append(modules, p.module)
	}
	return modules
}
