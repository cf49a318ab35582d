package permissions

import (
	"context"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/apiclient"
)

// DefaultCheckPath is the authorization service endpoint.
const DefaultCheckPath = "/api/access-rights/check-permission"

// Checker asks the authorization service for a single decision.
type Checker interface {
	Check(ctx context.Context, userID int64, module, action string) (bool, error)
}

type checkRequest struct {
	UserID int64  `json:"userId"`
	Module string `json:"module"`
	Action string `json:"action"`
}

type checkResponse struct {
	HasPermission bool   `json:"hasPermission"`
	Message       string `json:"message"`
}

// HTTPChecker calls the check-permission endpoint through the API client.
type HTTPChecker struct {
	client *apiclient.Client
	path   string
}

// NewHTTPChecker builds an HTTPChecker. An empty path uses DefaultCheckPath.
func NewHTTPChecker(client *apiclient.Client, path string) *HTTPChecker {
	if path == "" {
		path = DefaultCheckPath
	}
	return &HTTPChecker{client: client, path: path}
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, userID int64, module, action string) (bool, error) {
	var resp checkResponse
	err := c.client.Do(ctx, http.MethodPost, c.path, checkRequest{UserID: userID, Module: module, Action: action}, &resp)
	if err != nil {
		return false, err
	}
	return resp.HasPermission, nil
}
