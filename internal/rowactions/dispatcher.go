// Package rowactions resolves and executes the per-row view, edit, delete and
// cancel controls of a list.
package rowactions

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
)

// Action names a row control.
type Action string

const (
	View   Action = "view"
	Edit   Action = "edit"
	Delete Action = "delete"
	Cancel Action = "cancel"
)

// ErrDeleteNotPending is returned when confirming with no open delete dialog.
var ErrDeleteNotPending = errors.New("rowactions: no pending delete")

// ErrDeleteInProgress is returned while a delete request is in flight.
var ErrDeleteInProgress = errors.New("rowactions: delete in progress")

// Kind tells the caller what to do with an Outcome.
type Kind int

const (
	// None means nothing happened.
	None Kind = iota
	// Navigate means redirect to Outcome.Location.
	Navigate
	// Handled means a custom handler ran.
	Handled
	// Info means show Outcome.Message in an informational modal.
	Info
	// ConfirmDelete means the delete dialog is now open.
	ConfirmDelete
	// Deleted means the row was deleted and the dialog closed.
	Deleted
	// DeleteFailed means the dialog stays open showing Outcome.Message.
	DeleteFailed
)

// Outcome is the result of dispatching an action.
type Outcome struct {
	Kind     Kind
	Location string
	Message  string
}

// Control is one rendered row control.
type Control struct {
	Action   Action
	Disabled bool
}

// Config wires a Dispatcher to a list.
type Config[R any] struct {
	ID      func(R) int64
	Actions []Action

	// Disabled state sources, consulted in this order.
	DisabledActions map[Action]bool
	ActionDisabled  func(row R, action Action) bool
	EditDisabled    func(row R) bool
	// RequireSelection disables edit, delete and cancel on unselected rows.
	RequireSelection bool
	Selected         func(row R) bool

	OnView    func(ctx context.Context, row R) error
	ViewPath  func(row R) string
	OnEdit    func(ctx context.Context, row R) error
	EditPath  func(row R) string
	EditQuery func(row R) url.Values
	OnCancel  func(ctx context.Context, row R) error

	Delete          func(ctx context.Context, id int64) error
	OnDeleteSuccess func(ctx context.Context, id int64)
	Revalidate      func(ctx context.Context) error
	// DeleteMessage extracts the message shown in the delete dialog.
	DeleteMessage func(err error) string

	// EditDeniedMessage is shown when edit is disabled by policy.
	EditDeniedMessage string
	Logger            *slog.Logger
}

// Dialog is the state of the delete confirmation.
type Dialog[R any] struct {
	Open  bool
	Row   R
	Error string
	Busy  bool
}

// Dispatcher routes row actions. It holds a single pending-delete slot.
type Dispatcher[R any] struct {
	cfg Config[R]

	mu       sync.Mutex
	actions  []Action
	disabled map[Action]bool
	pending  *R
	errMsg   string
	busy     bool
}

// New builds a Dispatcher.
func New[R any](cfg Config[R]) *Dispatcher[R] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DeleteMessage == nil {
		cfg.DeleteMessage = func(err error) string { return err.Error() }
	}
	return &Dispatcher[R]{cfg: cfg, actions: cfg.Actions, disabled: cfg.DisabledActions}
}

// Configure replaces the offered actions and the disabled map, typically
// after the actor's permissions were reloaded.
func (d *Dispatcher[R]) Configure(actions []Action, disabled map[Action]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append([]Action(nil), actions...)
	d.disabled = make(map[Action]bool, len(disabled))
	for a, v := range disabled {
		d.disabled[a] = v
	}
}

func (d *Dispatcher[R]) policy() ([]Action, map[Action]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actions, d.disabled
}

type reason int

const (
	enabled reason = iota
	byPolicy
	bySelection
)

func (d *Dispatcher[R]) offered(action Action) bool {
	actions, _ := d.policy()
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func (d *Dispatcher[R]) resolve(row R, action Action) reason {
	if _, disabled := d.policy(); disabled[action] {
		return byPolicy
	}
	if d.cfg.ActionDisabled != nil && d.cfg.ActionDisabled(row, action) {
		return byPolicy
	}
	if action == Edit && d.cfg.EditDisabled != nil && d.cfg.EditDisabled(row) {
		return byPolicy
	}
	if d.cfg.RequireSelection && action != View {
		if d.cfg.Selected == nil || !d.cfg.Selected(row) {
			return bySelection
		}
	}
	return enabled
}

// Disabled reports whether action is disabled for row.
func (d *Dispatcher[R]) Disabled(row R, action Action) bool {
	return d.resolve(row, action) != enabled
}

// Controls lists the offered actions of row with their disabled state.
func (d *Dispatcher[R]) Controls(row R) []Control {
	actions, _ := d.policy()
	controls := make([]Control, 0, len(actions))
	for _, action := range actions {
		controls = append(controls, Control{Action: action, Disabled: d.Disabled(row, action)})
	}
	return controls
}

// View runs the custom view handler or navigates to the view path. A
// disabled view does nothing and is only logged.
func (d *Dispatcher[R]) View(ctx context.Context, row R) Outcome {
	if !d.offered(View) || d.Disabled(row, View) {
		d.cfg.Logger.Debug("view action disabled", slog.Int64("id", d.cfg.ID(row)))
		return Outcome{}
	}
	if d.cfg.OnView != nil {
		if err := d.cfg.OnView(ctx, row); err != nil {
			d.cfg.Logger.Error("view action failed", slog.Int64("id", d.cfg.ID(row)), slog.Any("error", err))
		}
		return Outcome{Kind: Handled}
	}
	if d.cfg.ViewPath == nil {
		return Outcome{}
	}
	return Outcome{Kind: Navigate, Location: d.cfg.ViewPath(row)}
}

// Edit runs the custom edit handler or navigates to the edit path. When edit
// is disabled by policy the caller gets an informational message; a missing
// selection stays silent.
func (d *Dispatcher[R]) Edit(ctx context.Context, row R) Outcome {
	if !d.offered(Edit) {
		return Outcome{}
	}
	switch d.resolve(row, Edit) {
	case byPolicy:
		return Outcome{Kind: Info, Message: d.cfg.EditDeniedMessage}
	case bySelection:
		return Outcome{}
	}
	if d.cfg.OnEdit != nil {
		if err := d.cfg.OnEdit(ctx, row); err != nil {
			d.cfg.Logger.Error("edit action failed", slog.Int64("id", d.cfg.ID(row)), slog.Any("error", err))
		}
		return Outcome{Kind: Handled}
	}
	if d.cfg.EditPath == nil {
		return Outcome{}
	}
	location := d.cfg.EditPath(row)
	if d.cfg.EditQuery != nil {
		if q := d.cfg.EditQuery(row); len(q) > 0 {
			location += "?" + q.Encode()
		}
	}
	return Outcome{Kind: Navigate, Location: location}
}

// Cancel invokes the cancel callback when enabled.
func (d *Dispatcher[R]) Cancel(ctx context.Context, row R) Outcome {
	if !d.offered(Cancel) || d.Disabled(row, Cancel) || d.cfg.OnCancel == nil {
		return Outcome{}
	}
	if err := d.cfg.OnCancel(ctx, row); err != nil {
		d.cfg.Logger.Error("cancel action failed", slog.Int64("id", d.cfg.ID(row)), slog.Any("error", err))
	}
	return Outcome{Kind: Handled}
}

// RequestDelete opens the delete dialog for row, replacing any other row
// waiting for confirmation.
func (d *Dispatcher[R]) RequestDelete(row R) Outcome {
	if !d.offered(Delete) || d.Disabled(row, Delete) {
		return Outcome{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return Outcome{}
	}
	r := row
	d.pending = &r
	d.errMsg = ""
	return Outcome{Kind: ConfirmDelete}
}

// ConfirmDelete issues the delete of the pending row. On failure the dialog
// stays open with the server message. On success the success callback runs,
// the dialog closes and the collection is revalidated once.
func (d *Dispatcher[R]) ConfirmDelete(ctx context.Context) (Outcome, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return Outcome{}, ErrDeleteInProgress
	}
	if d.pending == nil {
		d.mu.Unlock()
		return Outcome{}, ErrDeleteNotPending
	}
	id := d.cfg.ID(*d.pending)
	d.busy = true
	d.errMsg = ""
	d.mu.Unlock()

	err := d.cfg.Delete(ctx, id)

	d.mu.Lock()
	d.busy = false
	if err != nil {
		msg := d.cfg.DeleteMessage(err)
		d.errMsg = msg
		d.mu.Unlock()
		d.cfg.Logger.Error("delete failed", slog.Int64("id", id), slog.Any("error", err))
		return Outcome{Kind: DeleteFailed, Message: msg}, nil
	}
	d.pending = nil
	d.mu.Unlock()

	if d.cfg.OnDeleteSuccess != nil {
		d.cfg.OnDeleteSuccess(ctx, id)
	}
	if d.cfg.Revalidate != nil {
		if rerr := d.cfg.Revalidate(ctx); rerr != nil {
			d.cfg.Logger.Warn("revalidate after delete failed", slog.Int64("id", id), slog.Any("error", rerr))
		}
	}
	return Outcome{Kind: Deleted}, nil
}

// CloseDelete closes the dialog unless a delete is in flight.
func (d *Dispatcher[R]) CloseDelete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return
	}
	d.pending = nil
	d.errMsg = ""
}

// Dialog returns the delete dialog state.
func (d *Dispatcher[R]) Dialog() Dialog[R] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return Dialog[R]{}
	}
	return Dialog[R]{Open: true, Row: *d.pending, Error: d.errMsg, Busy: d.busy}
}
