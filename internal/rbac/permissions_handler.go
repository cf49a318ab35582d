package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionsHandler exposes the permission map of the current session.
type PermissionsHandler struct {
	logger   *slog.Logger
	registry *permissions.Registry
	tr       *i18n.Translator
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, registry *permissions.Registry, tr *i18n.Translator) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, registry: registry, tr: tr}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.showPermissions)
	r.Post("/refresh", h.refreshPermissions)
	r.Post("/check", h.checkPermissions)
}

type permissionsResponse struct {
	UserID  int64           `json:"userId"`
	Role    string          `json:"role"`
	Bypass  bool            `json:"bypass"`
	Loading bool            `json:"loading"`
	Modules permissions.Map `json:"modules"`
}

func (h *PermissionsHandler) showPermissions(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.Anonymous() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	store := h.registry.FromContext(r.Context())
	for _, module := range store.Catalog().Modules() {
		if !store.Loaded(module) {
			store.LoadModulePermissions(r.Context(), module)
		}
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		UserID:  identity.UserID,
		Role:    identity.Role,
		Bypass:  identity.Bypass(),
		Loading: store.Loading(),
		Modules: store.Snapshot(),
	})
}

func (h *PermissionsHandler) refreshPermissions(w http.ResponseWriter, r *http.Request) {
	if shared.IdentityFromContext(r.Context()).Anonymous() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	store := h.registry.FromContext(r.Context())
	store.RefreshPermissions(r.Context())
	h.logger.Info("permissions refreshed", slog.Int64("user_id", store.Identity().UserID))

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.JSON(w, http.StatusOK, store.Snapshot())
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: h.tr.T(i18n.PermissionsRefresh)})
	}
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

type checkRequest struct {
	Module  string   `json:"module"`
	Actions []string `json:"actions"`
}

type checkResponse struct {
	Module  string          `json:"module"`
	Allowed map[string]bool `json:"allowed"`
}

// checkPermissions asks the authorization service for arbitrary actions of
// one module without touching the session store.
func (h *PermissionsHandler) checkPermissions(w http.ResponseWriter, r *http.Request) {
	if shared.IdentityFromContext(r.Context()).Anonymous() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Module = strings.TrimSpace(req.Module)
	actions := make([]string, 0, len(req.Actions))
	for _, a := range req.Actions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	if req.Module == "" || len(actions) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: module and actions are required", httpx.ErrValidation))
		return
	}
	store := h.registry.FromContext(r.Context())
	httpx.JSON(w, http.StatusOK, checkResponse{
		Module:  req.Module,
		Allowed: store.CheckMultiple(r.Context(), req.Module, actions),
	})
}
