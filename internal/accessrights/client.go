// Package accessrights edits the per-group access rights held by the
// authorization service.
package accessrights

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/permissions"
)

// Default endpoint paths of the authorization service.
const (
	DefaultBasePath = "/api/access-rights"
)

// ErrInvalid wraps request validation failures.
var ErrInvalid = errors.New("accessrights: invalid request")

// API performs JSON calls against the authorization service.
type API interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Right is the state of one action for a group.
type Right struct {
	ID          *int64 `json:"id,omitempty"`
	Action      string `json:"action"`
	Allowed     bool   `json:"allowed"`
	ActionLabel string `json:"actionLabel"`
}

// GroupRights lists the rights of a group inside one module.
type GroupRights struct {
	GroupID      int64   `json:"groupeId"`
	GroupName    string  `json:"groupeName"`
	Module       string  `json:"module"`
	AccessRights []Right `json:"accessRights"`
}

// Allowed returns the allowed flag per action.
func (g GroupRights) Allowed() map[string]bool {
	out := make(map[string]bool, len(g.AccessRights))
	for _, r := range g.AccessRights {
		out[r.Action] = r.Allowed
	}
	return out
}

// RightUpdate is the new state of one action.
type RightUpdate struct {
	Action  string `json:"action" validate:"required,max=64"`
	Allowed bool   `json:"allowed"`
}

// UpdateRequest replaces the rights of a group inside one module.
type UpdateRequest struct {
	GroupID      int64         `json:"groupeId" validate:"gt=0"`
	Module       string        `json:"module" validate:"required,max=64"`
	AccessRights []RightUpdate `json:"accessRights" validate:"required,min=1,dive"`
}

// Changed reports whether the request differs from current.
func (r UpdateRequest) Changed(current GroupRights) bool {
	allowed := current.Allowed()
	for _, u := range r.AccessRights {
		was, known := allowed[u.Action]
		if !known && u.Allowed {
			return true
		}
		if known && was != u.Allowed {
			return true
		}
	}
	return false
}

// ModuleActions maps module to action to display label.
type ModuleActions map[string]map[string]string

// Catalog converts the labels into a permission catalog.
func (m ModuleActions) Catalog() permissions.Catalog {
	out := make(permissions.Catalog, len(m))
	for module, actions := range m {
		names := make([]string, 0, len(actions))
		for action := range actions {
			names = append(names, action)
		}
		slices.Sort(names)
		out[module] = names
	}
	return out
}

// Client talks to the access-rights endpoints.
type Client struct {
	api      API
	base     string
	validate *validator.Validate
}

// NewClient builds a Client. An empty base uses DefaultBasePath.
func NewClient(api API, base string) *Client {
	if base == "" {
		base = DefaultBasePath
	}
	return &Client{api: api, base: base, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// GetGroupAccessRights returns the rights of groupID inside module.
func (c *Client) GetGroupAccessRights(ctx context.Context, groupID int64, module string) (GroupRights, error) {
	var out GroupRights
	path := c.base + "/group/" + strconv.FormatInt(groupID, 10) + "/module/" + url.PathEscape(module)
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return GroupRights{}, err
	}
	return out, nil
}

// UpdateAccessRights saves req and returns the stored rights.
func (c *Client) UpdateAccessRights(ctx context.Context, req UpdateRequest) (GroupRights, error) {
	if err := c.validate.Struct(req); err != nil {
		return GroupRights{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var out GroupRights
	if err := c.api.Do(ctx, http.MethodPut, c.base+"/update", req, &out); err != nil {
		return GroupRights{}, err
	}
	return out, nil
}

// ModuleActions lists every module and action known to the service.
func (c *Client) ModuleActions(ctx context.Context) (ModuleActions, error) {
	var out ModuleActions
	if err := c.api.Do(ctx, http.MethodGet, c.base+"/modules-actions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
