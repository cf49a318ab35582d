package groups

import (
	"cmp"
	"context"
	"slices"
)

// Cache serves the group collection.
type Cache interface {
	Get(ctx context.Context, url string, dest any) error
}

// Service reads groups through the data cache.
type Service struct {
	cache Cache
	url   string
}

// NewService builds Service instance.
func NewService(cache Cache, url string) *Service {
	return &Service{cache: cache, url: url}
}

// ListGroups returns the groups sorted by name.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := s.cache.Get(ctx, s.url, &groups); err != nil {
		return nil, err
	}
	slices.SortStableFunc(groups, func(a, b Group) int { return cmp.Compare(a.Name, b.Name) })
	return groups, nil
}

// GroupNames returns the distinct group names.
func (s *Service) GroupNames(ctx context.Context) ([]string, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.Name == "" || slices.Contains(names, g.Name) {
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

// Group returns the group with id.
func (s *Service) Group(ctx context.Context, id int64) (Group, bool, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return Group{}, false, err
	}
	for _, g := range groups {
		if g.ID == id {
			return g, true, nil
		}
	}
	return Group{}, false, nil
}
