// Package permissions resolves module/action permissions for the current
// actor against the remote authorization service and caches the results per
// session.
package permissions

import (
	"sort"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Map holds resolved decisions keyed by module then action. A missing entry
// means unresolved and is treated as denied.
type Map map[string]map[string]bool

// Clone returns a deep copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for module, actions := range m {
		inner := make(map[string]bool, len(actions))
		for action, allowed := range actions {
			inner[action] = allowed
		}
		out[module] = inner
	}
	return out
}

// Catalog lists the actions known for each module.
type Catalog map[string][]string

// DefaultCatalog returns the built-in module action catalog.
func DefaultCatalog() Catalog {
	return Catalog(shared.DefaultModuleActions())
}

// Modules returns the catalog modules in a stable order.
func (c Catalog) Modules() []string {
	modules := make([]string, 0, len(c))
	for module := range c {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// Merge returns a catalog with extra's actions appended to existing modules.
// Duplicate actions are dropped.
func (c Catalog) Merge(extra Catalog) Catalog {
	out := make(Catalog, len(c)+len(extra))
	for module, actions := range c {
		out[module] = append([]string(nil), actions...)
	}
	for module, actions := range extra {
		seen := make(map[string]struct{}, len(out[module]))
		for _, a := range out[module] {
			seen[a] = struct{}{}
		}
		for _, a := range actions {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out[module] = append(out[module], a)
		}
	}
	return out
}

// Outcome labels for check observations.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
	OutcomeBypass  = "bypass"
)

// Recorder observes permission check outcomes.
type Recorder interface {
	ObservePermissionCheck(module, action, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePermissionCheck(string, string, string) {}
