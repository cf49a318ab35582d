package groups

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCache struct {
	payload string
	err     error
	urls    []string
}

func (c *stubCache) Get(_ context.Context, url string, dest any) error {
	c.urls = append(c.urls, url)
	if c.err != nil {
		return c.err
	}
	return json.Unmarshal([]byte(c.payload), dest)
}

func TestListGroupsSortsByName(t *testing.T) {
	cache := &stubCache{payload: `[{"id":2,"name":"Manager"},{"id":1,"name":"Admin"},{"id":3,"name":"Employé"}]`}
	svc := NewService(cache, "/api/groupes")

	groups, err := svc.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "Admin", groups[0].Name)
	assert.Equal(t, "Employé", groups[1].Name)
	assert.Equal(t, "Manager", groups[2].Name)
	assert.Equal(t, []string{"/api/groupes"}, cache.urls)
}

func TestGroupNamesSkipsDuplicatesAndBlanks(t *testing.T) {
	cache := &stubCache{payload: `[{"id":1,"name":"Admin"},{"id":2,"name":""},{"id":3,"name":"Admin"},{"id":4,"name":"RH"}]`}
	names, err := NewService(cache, "/api/groupes").GroupNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "RH"}, names)
}

func TestGroupLookup(t *testing.T) {
	cache := &stubCache{payload: `[{"id":7,"name":"RH","description":"Ressources humaines"}]`}
	svc := NewService(cache, "/api/groupes")

	g, ok, err := svc.Group(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ressources humaines", g.Description)

	_, ok, err = svc.Group(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListGroupsPropagatesCacheError(t *testing.T) {
	svc := NewService(&stubCache{err: errors.New("boom")}, "/api/groupes")
	_, err := svc.GroupNames(context.Background())
	assert.Error(t, err)
}
