package users

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/backoffice/internal/apiclient"
	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/inline"
	"github.com/odyssey-erp/backoffice/internal/rowactions"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Perms is the resolved users-module permission set of the actor.
type Perms struct {
	View        bool
	Create      bool
	Edit        bool
	Delete      bool
	Export      bool
	ViewDetails bool
}

// PermissionReader answers cached permission lookups.
type PermissionReader interface {
	HasPermission(module, action string) bool
}

// PermsFrom reads the users module from store.
func PermsFrom(store PermissionReader) Perms {
	has := func(action string) bool { return store.HasPermission(shared.ModuleUsers, action) }
	return Perms{
		View:        has(shared.ActionView),
		Create:      has(shared.ActionCreate),
		Edit:        has(shared.ActionEdit),
		Delete:      has(shared.ActionDelete),
		Export:      has(shared.ActionExport),
		ViewDetails: has(shared.ActionViewDetails),
	}
}

// Actions lists the row actions offered to the actor.
func (p Perms) Actions() []rowactions.Action {
	var actions []rowactions.Action
	if p.ViewDetails {
		actions = append(actions, rowactions.View)
	}
	if p.Edit {
		actions = append(actions, rowactions.Edit)
	}
	if p.Delete {
		actions = append(actions, rowactions.Delete)
	}
	return actions
}

// Disabled mirrors the permissions as a disabled map.
func (p Perms) Disabled() map[rowactions.Action]bool {
	return map[rowactions.Action]bool{
		rowactions.View:   !p.ViewDetails,
		rowactions.Edit:   !p.Edit,
		rowactions.Delete: !p.Delete,
	}
}

// Board is the per-session interactive state of the user list.
type Board struct {
	svc     *Service
	tr      *i18n.Translator
	logger  *slog.Logger
	actions *rowactions.Dispatcher[User]

	mu       sync.Mutex
	rows     map[int64]User
	roles    map[int64]*inline.Cell[string]
	managers map[int64]*inline.Cell[int64]
	statuses map[int64]*inline.Cell[string]
	notice   string
	info     string

	selMu    sync.Mutex
	selected map[int64]bool
}

// NewBoard builds an empty board.
func NewBoard(svc *Service, tr *i18n.Translator, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		svc:      svc,
		tr:       tr,
		logger:   logger,
		rows:     make(map[int64]User),
		roles:    make(map[int64]*inline.Cell[string]),
		managers: make(map[int64]*inline.Cell[int64]),
		statuses: make(map[int64]*inline.Cell[string]),
		selected: make(map[int64]bool),
	}
	b.actions = rowactions.New(rowactions.Config[User]{
		ID:               func(u User) int64 { return u.ID },
		RequireSelection: true,
		Selected:         func(u User) bool { return b.IsSelected(u.ID) },
		ViewPath:         func(u User) string { return "/users/" + strconv.FormatInt(u.ID, 10) },
		EditPath:         func(u User) string { return "/users/" + strconv.FormatInt(u.ID, 10) },
		EditQuery:        func(User) url.Values { return url.Values{"mode": {"edit"}} },
		Delete:           svc.Delete,
		OnDeleteSuccess:  func(_ context.Context, id int64) { b.setSelected(id, false) },
		Revalidate:       svc.Revalidate,
		DeleteMessage: func(err error) string {
			if msg := apiclient.MessageOf(err); msg != "" {
				return msg
			}
			return tr.T(i18n.DeleteFailed)
		},
		EditDeniedMessage: tr.T(i18n.DenyAction),
		Logger:            logger,
	})
	return b
}

// Sync aligns the cells with the latest collection and permission set. Cells
// of rows that disappeared are disposed.
func (b *Board) Sync(all []User, groups []string, perms Perms) {
	b.actions.Configure(perms.Actions(), perms.Disabled())

	roleOpts := RoleOptions(groups)
	statusOpts := StatusOptions()
	if !perms.Edit {
		roleOpts, statusOpts = nil, nil
	}
	noManager := b.tr.T(i18n.NoManager)

	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[int64]struct{}, len(all))
	for _, u := range all {
		seen[u.ID] = struct{}{}
		b.rows[u.ID] = u

		var managerOpts []inline.Option[int64]
		if perms.Edit {
			managerOpts = ManagerOptions(u, all, noManager)
		}
		fixed := ""
		if u.Role == RoleAdmin {
			fixed = b.tr.T(i18n.NotApplicable)
		}

		if cell, ok := b.roles[u.ID]; ok {
			cell.Update(u.Role, u.Role, roleOpts, !perms.Edit, "")
		} else {
			b.roles[u.ID] = b.roleCell(u, roleOpts, !perms.Edit)
		}
		if cell, ok := b.managers[u.ID]; ok {
			cell.Update(u.ManagerRef(), b.managerLabel(u), managerOpts, !perms.Edit, fixed)
		} else {
			b.managers[u.ID] = b.managerCell(u, managerOpts, !perms.Edit, fixed)
		}
		if cell, ok := b.statuses[u.ID]; ok {
			cell.Update(u.Status, u.Status, statusOpts, !perms.Edit, "")
		} else {
			b.statuses[u.ID] = b.statusCell(u, statusOpts, !perms.Edit)
		}
	}
	for id := range b.rows {
		if _, ok := seen[id]; ok {
			continue
		}
		b.disposeRow(id)
		b.setSelected(id, false)
	}
}

func (b *Board) roleCell(u User, opts []inline.Option[string], readOnly bool) *inline.Cell[string] {
	id := u.ID
	return inline.NewCell(inline.Config[string]{
		Field:        "role",
		Current:      u.Role,
		CurrentLabel: u.Role,
		Options:      opts,
		ReadOnly:     readOnly,
		Protected:    IsProtectedRole,
		Commit:       func(ctx context.Context, role string) error { return b.svc.ChangeRole(ctx, id, role) },
		Revalidate:   b.svc.Revalidate,
		Logger:       b.logger,
	})
}

func (b *Board) managerLabel(u User) string {
	if u.Manager == "" {
		return b.tr.T(i18n.ManagerUnset)
	}
	return u.Manager
}

func (b *Board) managerCell(u User, opts []inline.Option[int64], readOnly bool, fixed string) *inline.Cell[int64] {
	id := u.ID
	return inline.NewCell(inline.Config[int64]{
		Field:        "manager",
		Current:      u.ManagerRef(),
		CurrentLabel: b.managerLabel(u),
		Options:      opts,
		ReadOnly:     readOnly,
		Fixed:        fixed,
		Commit:       func(ctx context.Context, managerID int64) error { return b.svc.ChangeManager(ctx, id, managerID) },
		Revalidate:   b.svc.Revalidate,
		Logger:       b.logger,
	})
}

func (b *Board) statusCell(u User, opts []inline.Option[string], readOnly bool) *inline.Cell[string] {
	id := u.ID
	return inline.NewCell(inline.Config[string]{
		Field:        "status",
		Current:      u.Status,
		CurrentLabel: u.Status,
		Options:      opts,
		ReadOnly:     readOnly,
		Commit:       func(ctx context.Context, status string) error { return b.svc.ChangeStatus(ctx, id, status) },
		Revalidate:   b.svc.Revalidate,
		Logger:       b.logger,
	})
}

func (b *Board) disposeRow(id int64) {
	if c, ok := b.roles[id]; ok {
		c.Dispose()
	}
	if c, ok := b.managers[id]; ok {
		c.Dispose()
	}
	if c, ok := b.statuses[id]; ok {
		c.Dispose()
	}
	delete(b.roles, id)
	delete(b.managers, id)
	delete(b.statuses, id)
	delete(b.rows, id)
}

// Close disposes every cell.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.rows {
		b.disposeRow(id)
	}
}

// Row returns the last synced row.
func (b *Board) Row(id int64) (User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.rows[id]
	return u, ok
}

// RoleCell returns the role cell of id.
func (b *Board) RoleCell(id int64) (*inline.Cell[string], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.roles[id]
	return c, ok
}

// ManagerCell returns the manager cell of id.
func (b *Board) ManagerCell(id int64) (*inline.Cell[int64], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.managers[id]
	return c, ok
}

// StatusCell returns the status cell of id.
func (b *Board) StatusCell(id int64) (*inline.Cell[string], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.statuses[id]
	return c, ok
}

// Actions returns the row action dispatcher.
func (b *Board) Actions() *rowactions.Dispatcher[User] {
	return b.actions
}

// IsSelected reports whether the row is selected.
func (b *Board) IsSelected(id int64) bool {
	b.selMu.Lock()
	defer b.selMu.Unlock()
	return b.selected[id]
}

func (b *Board) setSelected(id int64, on bool) {
	b.selMu.Lock()
	defer b.selMu.Unlock()
	if on {
		b.selected[id] = true
		return
	}
	delete(b.selected, id)
}

// ToggleSelection flips the selection of a row. Selecting requires edit.
func (b *Board) ToggleSelection(id int64, perms Perms) bool {
	if !perms.Edit {
		return false
	}
	if _, ok := b.Row(id); !ok {
		return false
	}
	on := !b.IsSelected(id)
	b.setSelected(id, on)
	return on
}

// SetNotice shows a dismissible permission notice.
func (b *Board) SetNotice(msg string) {
	b.mu.Lock()
	b.notice = msg
	b.mu.Unlock()
}

// SetInfo opens the informational modal.
func (b *Board) SetInfo(msg string) {
	b.mu.Lock()
	b.info = msg
	b.mu.Unlock()
}

// Notice returns the pending notice.
func (b *Board) Notice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notice
}

// Info returns the informational modal message.
func (b *Board) Info() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// DismissNotice clears the notice.
func (b *Board) DismissNotice() { b.SetNotice("") }

// DismissInfo closes the informational modal.
func (b *Board) DismissInfo() { b.SetInfo("") }

// Boards keeps one Board per session.
type Boards struct {
	mu      sync.Mutex
	cache   *lru.LRU[string, *Board]
	factory func() *Board
}

// NewBoards builds a bounded, expiring board registry.
func NewBoards(size int, ttl time.Duration, factory func() *Board) *Boards {
	if size <= 0 {
		size = 1024
	}
	return &Boards{
		cache:   lru.NewLRU[string, *Board](size, func(_ string, b *Board) { b.Close() }, ttl),
		factory: factory,
	}
}

// For returns the board of sessionID, creating it on first use.
func (bs *Boards) For(sessionID string) *Board {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok := bs.cache.Get(sessionID); ok {
		return b
	}
	b := bs.factory()
	bs.cache.Add(sessionID, b)
	return b
}

// Forget drops the board of sessionID.
func (bs *Boards) Forget(sessionID string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.cache.Remove(sessionID)
}
