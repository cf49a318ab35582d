package groups

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/view"
)

// Handler manages group listing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	registry  *permissions.Registry
	templates *view.Engine
	csrf      *shared.CSRFManager
	tr        *i18n.Translator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *permissions.Registry, templates *view.Engine, csrf *shared.CSRFManager, tr *i18n.Translator) *Handler {
	return &Handler{logger: logger, service: service, registry: registry, templates: templates, csrf: csrf, tr: tr}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listGroups)
	r.Get("/{id}", h.showGroup)
}

// viewer loads the groups module and reports whether the session may view
// groups, rendering the denied page otherwise.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (*permissions.Store, bool) {
	store := h.registry.FromContext(r.Context())
	store.LoadModulePermissions(r.Context(), shared.ModuleGroups)
	if !store.HasPermission(shared.ModuleGroups, shared.ActionView) {
		h.render(w, r, "pages/errors/error.html", map[string]any{
			"Title":   h.tr.T(i18n.AccessDeniedTitle),
			"Message": h.tr.T(i18n.AccessDeniedGroups),
		}, http.StatusForbidden)
		return nil, false
	}
	return store, true
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	store, ok := h.viewer(w, r)
	if !ok {
		return
	}
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("list groups failed", slog.Any("error", err))
		h.render(w, r, "pages/errors/error.html", map[string]any{
			"Message": h.tr.T(i18n.LoadFailed),
			"Retry":   r.URL.RequestURI(),
		}, http.StatusBadGateway)
		return
	}
	h.render(w, r, "pages/groups/list.html", map[string]any{
		"Groups":            groups,
		"ManagePermissions": store.HasPermission(shared.ModuleGroups, shared.ActionManagePermissions),
	}, http.StatusOK)
}

func (h *Handler) showGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	store, ok := h.viewer(w, r)
	if !ok {
		return
	}
	group, found, err := h.service.Group(r.Context(), id)
	if err != nil {
		h.logger.Error("load group failed", slog.Int64("id", id), slog.Any("error", err))
		h.render(w, r, "pages/errors/error.html", map[string]any{
			"Message": h.tr.T(i18n.LoadFailed),
			"Retry":   r.URL.RequestURI(),
		}, http.StatusBadGateway)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "pages/groups/detail.html", map[string]any{
		"Group":             group,
		"ManagePermissions": store.HasPermission(shared.ModuleGroups, shared.ActionManagePermissions),
	}, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Groupes", Lang: h.tr.Lang(), CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
