package users

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/inline"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/rowactions"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/view"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// GroupSource lists the group names a user can be moved to.
type GroupSource interface {
	GroupNames(ctx context.Context) ([]string, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	boards    *Boards
	registry  *permissions.Registry
	groups    GroupSource
	templates *view.Engine
	csrf      *shared.CSRFManager
	tr        *i18n.Translator
	rbac      rbac.Middleware
	perPage   int
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, boards *Boards, registry *permissions.Registry, groups GroupSource, templates *view.Engine, csrf *shared.CSRFManager, tr *i18n.Translator, rbac rbac.Middleware, perPage int) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		boards:    boards,
		registry:  registry,
		groups:    groups,
		templates: templates,
		csrf:      csrf,
		tr:        tr,
		rbac:      rbac,
		perPage:   perPage,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/", h.listUsers)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export.csv", h.exportUsers)
	})
	r.Post("/create", h.requestCreate)
	r.Post("/import", h.requestImport)
	r.Post("/notice/dismiss", h.dismissNotice)
	r.Post("/info/dismiss", h.dismissInfo)
	r.Post("/delete/confirm", h.confirmDelete)
	r.Post("/delete/close", h.closeDelete)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.ModuleUsers + "." + shared.ActionCreate))
		gr.Get("/new", h.showCreateUserForm)
		gr.Post("/", h.createUser)
	})
	r.Get("/{id}", h.showUser)
	r.Post("/{id}/select", h.toggleSelection)
	r.Post("/{id}/actions/{action}", h.rowAction)
	r.Post("/{id}/cells/{field}/{op}", h.cellAction)
}

type formErrors map[string]string

// CellView is the type-erased rendering of an inline cell.
type CellView struct {
	Field       string
	RowID       int64
	State       string
	Value       string
	Label       string
	Options     []inline.Option[string]
	Confirm     string
	Interactive bool
	Locked      bool
	Protected   bool
	Fixed       string
	Muted       bool
	Failed      bool
}

func cellView[V comparable](id int64, v inline.View[V], confirm string, format func(V) string) CellView {
	cv := CellView{
		Field:       v.Field,
		RowID:       id,
		State:       v.State.String(),
		Value:       format(v.Current),
		Label:       v.Label,
		Interactive: v.Interactive,
		Locked:      v.Locked,
		Protected:   v.Protected,
		Fixed:       v.Fixed,
		Muted:       v.Muted,
		Failed:      v.Failed,
	}
	for _, opt := range v.Options {
		cv.Options = append(cv.Options, inline.Option[string]{Value: format(opt.Value), Label: opt.Label})
	}
	if v.Pending != nil {
		cv.Confirm = confirm
	}
	return cv
}

func formatString(s string) string { return s }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// rowView is one rendered table row.
type rowView struct {
	User       User
	Selected   bool
	Selectable bool
	Cells      []CellView
	Controls   []rowactions.Control
}

// session returns the permission store and board of the request. The users
// module is only loaded when the store has never resolved it.
func (h *Handler) session(r *http.Request) (*permissions.Store, *Board, Perms) {
	store := h.registry.FromContext(r.Context())
	if !store.Loaded(shared.ModuleUsers) {
		store.LoadModulePermissions(r.Context(), shared.ModuleUsers)
	}
	return store, h.boards.For(sessionKey(r)), PermsFrom(store)
}

// mount reloads the users module permissions on every list render.
func (h *Handler) mount(r *http.Request) (*permissions.Store, *Board, Perms) {
	store := h.registry.FromContext(r.Context())
	store.LoadModulePermissions(r.Context(), shared.ModuleUsers)
	return store, h.boards.For(sessionKey(r)), PermsFrom(store)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.mount(r)
	if !perms.View {
		h.renderDenied(w, r)
		return
	}

	all, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{
			"LoadError": h.tr.T(i18n.LoadFailed),
			"Perms":     perms,
			"Return":    r.URL.RequestURI(),
		}, http.StatusBadGateway)
		return
	}
	board.Sync(all, h.groupNames(r.Context()), perms)

	q := parseQuery(r, h.perPage)
	result := Apply(all, q)
	rows := make([]rowView, 0, len(result.Rows))
	for _, u := range result.Rows {
		rows = append(rows, h.rowView(board, u, perms))
	}

	dialog := board.Actions().Dialog()
	var confirmDelete string
	if dialog.Open {
		confirmDelete = h.tr.T(i18n.ConfirmDelete, dialog.Row.FullName())
	}

	h.render(w, r, "pages/users/list.html", map[string]any{
		"Rows":          rows,
		"Query":         q,
		"Params":        listParams(q),
		"Pagination":    result.Pagination,
		"Perms":         perms,
		"Notice":        board.Notice(),
		"Info":          board.Info(),
		"Dialog":        dialog,
		"ConfirmDelete": confirmDelete,
		"Return":        r.URL.RequestURI(),
		"Columns":       columnViews(q),
		"ExportHref":    "/users/export.csv" + encodeParams(listParams(q)),
	}, http.StatusOK)
}

func (h *Handler) rowView(board *Board, u User, perms Perms) rowView {
	rv := rowView{
		User:       u,
		Selected:   board.IsSelected(u.ID),
		Selectable: perms.Edit,
		Controls:   board.Actions().Controls(u),
	}
	if c, ok := board.RoleCell(u.ID); ok {
		v := c.View()
		rv.Cells = append(rv.Cells, cellView(u.ID, v, confirmText(h.tr, i18n.ConfirmRole, v.Pending), formatString))
	}
	if c, ok := board.ManagerCell(u.ID); ok {
		v := c.View()
		rv.Cells = append(rv.Cells, cellView(u.ID, v, confirmText(h.tr, i18n.ConfirmManager, v.Pending), formatID))
	}
	if c, ok := board.StatusCell(u.ID); ok {
		v := c.View()
		rv.Cells = append(rv.Cells, cellView(u.ID, v, confirmText(h.tr, i18n.ConfirmStatus, v.Pending), formatString))
	}
	return rv
}

func confirmText[V comparable](tr *i18n.Translator, key string, pending *inline.Option[V]) string {
	if pending == nil {
		return ""
	}
	return tr.T(key, pending.Label)
}

func (h *Handler) groupNames(ctx context.Context) []string {
	if h.groups == nil {
		return nil
	}
	names, err := h.groups.GroupNames(ctx)
	if err != nil {
		h.logger.Warn("load groups failed", slog.Any("error", err))
		return nil
	}
	return names
}

func (h *Handler) cellAction(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	if !perms.View {
		h.renderDenied(w, r)
		return
	}
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	field := chi.URLParam(r, "field")
	op := chi.URLParam(r, "op")
	back := shared.SafeReturn(r.FormValue("return"), "/users")

	var err error
	switch field {
	case "role":
		cell, found := board.RoleCell(id)
		if !found {
			http.NotFound(w, r)
			return
		}
		err = runCell(r, cell, op, r.FormValue("value"), func(s string) (string, error) { return s, nil })
	case "status":
		cell, found := board.StatusCell(id)
		if !found {
			http.NotFound(w, r)
			return
		}
		err = runCell(r, cell, op, r.FormValue("value"), func(s string) (string, error) { return s, nil })
	case "manager":
		cell, found := board.ManagerCell(id)
		if !found {
			http.NotFound(w, r)
			return
		}
		err = runCell(r, cell, op, r.FormValue("value"), func(s string) (int64, error) {
			return strconv.ParseInt(s, 10, 64)
		})
	default:
		http.NotFound(w, r)
		return
	}

	switch {
	case err == nil:
		http.Redirect(w, r, back, http.StatusSeeOther)
	case errors.Is(err, errUnknownOp):
		http.NotFound(w, r)
	case errors.Is(err, inline.ErrNoPending), errors.Is(err, inline.ErrNotInteractive), errors.Is(err, inline.ErrUnknownOption), errors.Is(err, ErrInvalid):
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.InlineUpdateFailed))
	case errors.Is(err, ErrProtected):
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.RoleProtected))
	default:
		h.logger.Error("inline update failed", slog.String("field", field), slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "danger", h.tr.T(i18n.InlineUpdateFailed))
	}
}

var errUnknownOp = errors.New("users: unknown cell operation")

func runCell[V comparable](r *http.Request, cell *inline.Cell[V], op, raw string, parse func(string) (V, error)) error {
	switch op {
	case "toggle":
		cell.Toggle()
	case "dismiss":
		cell.Dismiss()
	case "select":
		value, err := parse(raw)
		if err != nil {
			cell.Dismiss()
			return inline.ErrUnknownOption
		}
		if _, err := cell.Select(value); err != nil {
			return err
		}
	case "confirm":
		return cell.Confirm(r.Context())
	case "cancel":
		cell.Cancel()
	default:
		return errUnknownOp
	}
	return nil
}

func (h *Handler) toggleSelection(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	board.ToggleSelection(id, perms)
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

func (h *Handler) rowAction(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	if !perms.View {
		h.renderDenied(w, r)
		return
	}
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	row, ok := board.Row(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	back := shared.SafeReturn(r.FormValue("return"), "/users")
	actions := board.Actions()

	var outcome rowactions.Outcome
	switch rowactions.Action(chi.URLParam(r, "action")) {
	case rowactions.View:
		outcome = actions.View(r.Context(), row)
	case rowactions.Edit:
		outcome = actions.Edit(r.Context(), row)
	case rowactions.Delete:
		outcome = actions.RequestDelete(row)
	case rowactions.Cancel:
		outcome = actions.Cancel(r.Context(), row)
	default:
		http.NotFound(w, r)
		return
	}

	switch outcome.Kind {
	case rowactions.Navigate:
		http.Redirect(w, r, outcome.Location, http.StatusSeeOther)
	case rowactions.Info:
		board.SetInfo(outcome.Message)
		http.Redirect(w, r, back, http.StatusSeeOther)
	default:
		http.Redirect(w, r, back, http.StatusSeeOther)
	}
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	_, board, _ := h.session(r)
	back := shared.SafeReturn(r.FormValue("return"), "/users")
	outcome, err := board.Actions().ConfirmDelete(r.Context())
	if err != nil {
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if outcome.Kind == rowactions.Deleted {
		h.redirectWithFlash(w, r, back, "success", h.tr.T(i18n.Deleted))
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (h *Handler) closeDelete(w http.ResponseWriter, r *http.Request) {
	_, board, _ := h.session(r)
	board.Actions().CloseDelete()
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

func (h *Handler) requestCreate(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	if !perms.Create {
		board.SetNotice(h.tr.T(i18n.DenyCreate))
		http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/users/new", http.StatusSeeOther)
}

// requestImport only gates the import entry point; the import itself lives
// in another service.
func (h *Handler) requestImport(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	if !perms.Create {
		board.SetNotice(h.tr.T(i18n.DenyImport))
	}
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

func (h *Handler) dismissNotice(w http.ResponseWriter, r *http.Request) {
	_, board, _ := h.session(r)
	board.DismissNotice()
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

func (h *Handler) dismissInfo(w http.ResponseWriter, r *http.Request) {
	_, board, _ := h.session(r)
	board.DismissInfo()
	http.Redirect(w, r, shared.SafeReturn(r.FormValue("return"), "/users"), http.StatusSeeOther)
}

func (h *Handler) exportUsers(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	if !perms.Export {
		board.SetNotice(h.tr.T(i18n.DenyExport))
		http.Redirect(w, r, "/users", http.StatusSeeOther)
		return
	}
	all, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("export users failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users", "danger", h.tr.T(i18n.LoadFailed))
		return
	}
	q := parseQuery(r, h.perPage)
	rows := Sort(Filter(all, q.Search), q.Sort, q.Desc)
	if len(rows) == 0 {
		h.redirectWithFlash(w, r, "/users", "warning", h.tr.T(i18n.NoDataToExport))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="utilisateurs.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "firstName", "lastName", "email", "role", "manager", "status"})
	for _, u := range rows {
		_ = writer.Write([]string{
			strconv.FormatInt(u.ID, 10),
			u.FirstName,
			u.LastName,
			u.Email,
			u.Role,
			u.Manager,
			u.Status,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("write users csv", slog.Any("error", err))
	}
}

// showUser renders the details page, or the inline edit form with
// ?mode=edit. Missing permissions put a notice on the list instead.
func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	_, board, perms := h.session(r)
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	editing := r.URL.Query().Get("mode") == "edit"
	if (!editing && !perms.ViewDetails) || (editing && !perms.Edit) {
		if editing {
			board.SetInfo(h.tr.T(i18n.DenyAction))
		} else {
			board.SetNotice(h.tr.T(i18n.DenyDetails))
		}
		http.Redirect(w, r, "/users", http.StatusSeeOther)
		return
	}

	all, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("load user failed", slog.Int64("id", id), slog.Any("error", err))
		h.render(w, r, "pages/errors/error.html", map[string]any{"Message": h.tr.T(i18n.LoadFailed), "Retry": r.URL.RequestURI()}, http.StatusBadGateway)
		return
	}
	board.Sync(all, h.groupNames(r.Context()), perms)
	row, found := board.Row(id)
	if !found {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "pages/users/detail.html", map[string]any{
		"Row":     h.rowView(board, row, perms),
		"Editing": editing,
		"Return":  r.URL.RequestURI(),
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/users/form.html", map[string]any{
		"Errors": formErrors{},
		"Roles":  h.creatableRoles(r.Context()),
	}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in := CreateInput{
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Role:      strings.TrimSpace(r.PostFormValue("role")),
	}
	err := h.service.Create(r.Context(), in)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/users", "success", h.tr.T(i18n.UserCreated))
		return
	case errors.Is(err, ErrInvalid):
		h.render(w, r, "pages/users/form.html", map[string]any{
			"Errors": formErrors{"general": h.tr.T(i18n.UserFormInvalid)},
			"Form":   in,
			"Roles":  h.creatableRoles(r.Context()),
		}, http.StatusBadRequest)
	case errors.Is(err, ErrProtected):
		h.render(w, r, "pages/users/form.html", map[string]any{
			"Errors": formErrors{"role": h.tr.T(i18n.RoleProtected)},
			"Form":   in,
			"Roles":  h.creatableRoles(r.Context()),
		}, http.StatusBadRequest)
	default:
		h.logger.Error("create user failed", slog.Any("error", err))
		h.render(w, r, "pages/users/form.html", map[string]any{
			"Errors": formErrors{"general": h.tr.T(i18n.GenericError)},
			"Form":   in,
			"Roles":  h.creatableRoles(r.Context()),
		}, http.StatusBadGateway)
	}
}

func (h *Handler) creatableRoles(ctx context.Context) []string {
	var roles []string
	for _, g := range h.groupNames(ctx) {
		if !IsProtectedRole(g) {
			roles = append(roles, g)
		}
	}
	return roles
}

func (h *Handler) renderDenied(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/errors/error.html", map[string]any{
		"Title":   h.tr.T(i18n.AccessDeniedTitle),
		"Message": h.tr.T(i18n.AccessDeniedUsers),
	}, http.StatusForbidden)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Utilisateurs", Lang: h.tr.Lang(), CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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

func parseQuery(r *http.Request, perPage int) Query {
	values := r.URL.Query()
	page, _ := strconv.Atoi(values.Get("page"))
	sort := values.Get("sort")
	if _, ok := sortColumns[sort]; !ok {
		sort = ""
	}
	return Query{
		Search:  strings.TrimSpace(values.Get("q")),
		Sort:    sort,
		Desc:    values.Get("dir") == "desc",
		Page:    page,
		PerPage: perPage,
	}
}

func listParams(q Query) url.Values {
	values := url.Values{}
	if q.Search != "" {
		values.Set("q", q.Search)
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
		if q.Desc {
			values.Set("dir", "desc")
		}
	}
	return values
}

// columnView is a sortable header link.
type columnView struct {
	Key   string
	Href  string
	Arrow string
}

var listColumns = []string{SortFirstName, SortLastName, SortEmail, SortRole, SortManager, SortStatus}

// columnViews builds header links. Clicking the sorted column flips the
// direction; any other column sorts ascending.
func columnViews(q Query) []columnView {
	cols := make([]columnView, 0, len(listColumns))
	for _, key := range listColumns {
		next := Query{Search: q.Search, Sort: key}
		col := columnView{Key: key}
		if q.Sort == key {
			next.Desc = !q.Desc
			col.Arrow = " ↑"
			if q.Desc {
				col.Arrow = " ↓"
			}
		}
		col.Href = "/users" + encodeParams(listParams(next))
		cols = append(cols, col)
	}
	return cols
}

func encodeParams(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func sessionKey(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.ID
	}
	return ""
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
