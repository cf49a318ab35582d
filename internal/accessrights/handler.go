package accessrights

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/view"
)

// AuditRecorder receives saved access-rights changes.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Handler serves the access-rights editor of a group.
type Handler struct {
	logger    *slog.Logger
	client    *Client
	registry  *permissions.Registry
	audit     AuditRecorder
	templates *view.Engine
	csrf      *shared.CSRFManager
	tr        *i18n.Translator
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, client *Client, registry *permissions.Registry, audit AuditRecorder, templates *view.Engine, csrf *shared.CSRFManager, tr *i18n.Translator, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, client: client, registry: registry, audit: audit, templates: templates, csrf: csrf, tr: tr, rbac: rbac}
}

// MountRoutes registers access-rights routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ModuleGroups + "." + shared.ActionManagePermissions))
		r.Get("/groups/{id}", h.showEditor)
		r.Post("/groups/{id}", h.saveRights)
	})
}

func (h *Handler) showEditor(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	modules := h.modules(r.Context())
	module := r.URL.Query().Get("module")
	if !slices.Contains(modules, module) {
		module = shared.ModuleUsers
	}
	rights, err := h.client.GetGroupAccessRights(r.Context(), groupID, module)
	if err != nil {
		h.logger.Error("load access rights failed", slog.Int64("group_id", groupID), slog.String("module", module), slog.Any("error", err))
		h.render(w, r, "pages/errors/error.html", map[string]any{
			"Message": h.tr.T(i18n.LoadFailed),
			"Retry":   r.URL.RequestURI(),
		}, http.StatusBadGateway)
		return
	}
	h.render(w, r, "pages/accessrights/edit.html", map[string]any{
		"Rights":  rights,
		"GroupID": groupID,
		"Module":  module,
		"Modules": modules,
	}, http.StatusOK)
}

func (h *Handler) saveRights(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	module := r.PostFormValue("module")
	back := "/access-rights/groups/" + strconv.FormatInt(groupID, 10) + "?module=" + url.QueryEscape(module)

	current, err := h.client.GetGroupAccessRights(r.Context(), groupID, module)
	if err != nil {
		h.logger.Error("load access rights failed", slog.Int64("group_id", groupID), slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.LoadFailed))
		return
	}

	granted := r.PostForm["allowed"]
	req := UpdateRequest{GroupID: groupID, Module: module}
	for _, right := range current.AccessRights {
		req.AccessRights = append(req.AccessRights, RightUpdate{
			Action:  right.Action,
			Allowed: slices.Contains(granted, right.Action),
		})
	}
	if !req.Changed(current) {
		h.redirectWithFlash(w, r, back, "info", h.tr.T(i18n.AccessRightsNoop))
		return
	}

	saved, err := h.client.UpdateAccessRights(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalid):
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.AccessRightsInvalid))
		return
	case err != nil:
		h.logger.Error("save access rights failed", slog.Int64("group_id", groupID), slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.GenericError))
		return
	}

	h.registry.FromContext(r.Context()).RefreshPermissions(r.Context())
	if h.audit != nil {
		h.audit.Record(r.Context(), audit.Entry{
			ActorID:  shared.IdentityFromContext(r.Context()).UserID,
			Action:   "access_rights.update",
			Entity:   "group",
			EntityID: strconv.FormatInt(groupID, 10),
			Meta:     map[string]any{"module": module, "allowed": saved.Allowed()},
		})
	}
	h.redirectWithFlash(w, r, back, "success", h.tr.T(i18n.AccessRightsSaved))
}

// modules lists the editable modules, extending the permission catalog with
// whatever the authorization service knows about.
func (h *Handler) modules(ctx context.Context) []string {
	actions, err := h.client.ModuleActions(ctx)
	if err != nil {
		h.logger.Warn("load module actions failed", slog.Any("error", err))
		return permissions.DefaultCatalog().Modules()
	}
	catalog := actions.Catalog()
	h.registry.ExtendCatalog(catalog)
	return permissions.DefaultCatalog().Merge(catalog).Modules()
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Droits d'accès", Lang: h.tr.Lang(), CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
