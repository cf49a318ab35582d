// Package inline implements the confirm-then-commit editing of a single
// categorical table cell.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State of a cell.
type State int

const (
	Idle State = iota
	MenuOpen
	PendingConfirmation
	Committing
)

func (s State) String() string {
	switch s {
	case MenuOpen:
		return "menu_open"
	case PendingConfirmation:
		return "pending_confirmation"
	case Committing:
		return "committing"
	default:
		return "idle"
	}
}

var (
	// ErrNoPending is returned when confirming without a pending selection.
	ErrNoPending = errors.New("inline: no pending selection")
	// ErrNotInteractive is returned when selecting on a cell that offers no menu.
	ErrNotInteractive = errors.New("inline: cell is not interactive")
	// ErrUnknownOption is returned when the selected value was not offered.
	ErrUnknownOption = errors.New("inline: value not offered")
)

// Option is one replacement value offered in the menu.
type Option[V comparable] struct {
	Value V
	Label string
}

// Config describes a cell. Commit performs the remote update; Revalidate
// refreshes the shared collection the cell belongs to.
type Config[V comparable] struct {
	Field        string
	Current      V
	CurrentLabel string
	Options      []Option[V]
	ReadOnly     bool
	// Protected marks values that can neither be edited nor chosen.
	Protected func(V) bool
	// Fixed replaces the cell with a non-interactive marker when set.
	Fixed      string
	Commit     func(ctx context.Context, value V) error
	Revalidate func(ctx context.Context) error
	Logger     *slog.Logger
}

// View is a snapshot used for rendering.
type View[V comparable] struct {
	Field       string
	State       State
	Current     V
	Label       string
	Options     []Option[V]
	Pending     *Option[V]
	Interactive bool
	Locked      bool
	Protected   bool
	Fixed       string
	Muted       bool
	Failed      bool
}

// Cell is the state machine of one table cell.
type Cell[V comparable] struct {
	mu       sync.Mutex
	cfg      Config[V]
	state    State
	pending  *Option[V]
	failed   bool
	disposed bool
}

// NewCell creates an idle cell.
func NewCell[V comparable](cfg Config[V]) *Cell[V] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cell[V]{cfg: cfg}
}

func (c *Cell[V]) protected(v V) bool {
	return c.cfg.Protected != nil && c.cfg.Protected(v)
}

func (c *Cell[V]) offered() []Option[V] {
	out := make([]Option[V], 0, len(c.cfg.Options))
	for _, opt := range c.cfg.Options {
		if c.protected(opt.Value) {
			continue
		}
		out = append(out, opt)
	}
	return out
}

func (c *Cell[V]) interactive() bool {
	if c.cfg.ReadOnly || c.cfg.Fixed != "" || c.protected(c.cfg.Current) {
		return false
	}
	return len(c.offered()) > 0
}

// Toggle opens or closes the menu. It reports whether the menu is open.
func (c *Cell[V]) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false
	}
	switch c.state {
	case Idle:
		if !c.interactive() {
			return false
		}
		c.failed = false
		c.state = MenuOpen
		return true
	case MenuOpen:
		c.state = Idle
	}
	return false
}

// Dismiss closes an open menu, as a click outside the cell does.
func (c *Cell[V]) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == MenuOpen {
		c.state = Idle
	}
}

// Select captures value as the pending mutation. It returns false without
// error when the selection is skipped because nothing would change.
func (c *Cell[V]) Select(value V) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false, ErrNotInteractive
	}
	if c.state != MenuOpen && c.state != PendingConfirmation {
		return false, ErrNotInteractive
	}
	if !c.interactive() || value == c.cfg.Current {
		c.state = Idle
		c.pending = nil
		return false, nil
	}
	for _, opt := range c.offered() {
		if opt.Value == value {
			picked := opt
			c.pending = &picked
			c.state = PendingConfirmation
			return true, nil
		}
	}
	c.state = Idle
	c.pending = nil
	return false, ErrUnknownOption
}

// Cancel discards the pending mutation.
func (c *Cell[V]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == PendingConfirmation {
		c.state = Idle
		c.pending = nil
	}
}

// Confirm commits the pending value. On success the bound collection is
// revalidated once; on failure it is not. The cell is idle afterwards either
// way.
func (c *Cell[V]) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != PendingConfirmation || c.pending == nil {
		c.mu.Unlock()
		return ErrNoPending
	}
	target := *c.pending
	c.state = Committing
	commit, revalidate, logger := c.cfg.Commit, c.cfg.Revalidate, c.cfg.Logger
	field := c.cfg.Field
	c.mu.Unlock()

	err := commit(ctx, target.Value)

	c.mu.Lock()
	c.pending = nil
	if !c.disposed {
		c.state = Idle
		c.failed = err != nil
	}
	c.mu.Unlock()

	if err != nil {
		logger.Error("inline update failed", slog.String("field", field), slog.Any("value", target.Value), slog.Any("error", err))
		return err
	}
	if revalidate != nil {
		if rerr := revalidate(ctx); rerr != nil {
			logger.Warn("inline revalidate failed", slog.String("field", field), slog.Any("error", rerr))
		}
	}
	return nil
}

// Update replaces the row-derived configuration, typically after the
// collection was revalidated. Pending and committing state is kept.
func (c *Cell[V]) Update(current V, label string, options []Option[V], readOnly bool, fixed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.cfg.Current = current
	c.cfg.CurrentLabel = label
	c.cfg.Options = options
	c.cfg.ReadOnly = readOnly
	c.cfg.Fixed = fixed
	if c.state == MenuOpen && !c.interactive() {
		c.state = Idle
	}
}

// Dispose detaches the cell. Local state is frozen; an in-flight commit still
// revalidates the shared collection.
func (c *Cell[V]) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
}

// State returns the current state.
func (c *Cell[V]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns a rendering snapshot.
func (c *Cell[V]) View() View[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View[V]{
		Field:       c.cfg.Field,
		State:       c.state,
		Current:     c.cfg.Current,
		Label:       c.cfg.CurrentLabel,
		Interactive: c.interactive(),
		Locked:      c.cfg.ReadOnly && c.cfg.Fixed == "",
		Protected:   c.protected(c.cfg.Current),
		Fixed:       c.cfg.Fixed,
		Muted:       c.state == Committing,
		Failed:      c.failed,
	}
	if c.state == MenuOpen {
		v.Options = c.offered()
	}
	if c.pending != nil {
		p := *c.pending
		v.Pending = &p
	}
	return v
}
