package inline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	commits     []string
	revalidates int
	err         error
}

func (r *recorder) commit(ctx context.Context, v string) error {
	r.commits = append(r.commits, v)
	return r.err
}

func (r *recorder) revalidate(ctx context.Context) error {
	r.revalidates++
	return nil
}

func roleCell(rec *recorder, current string, readOnly bool) *Cell[string] {
	return NewCell(Config[string]{
		Field:        "role",
		Current:      current,
		CurrentLabel: current,
		Options: []Option[string]{
			{Value: "Admin", Label: "Admin"},
			{Value: "Manager", Label: "Manager"},
			{Value: "Employe", Label: "Employé"},
		},
		ReadOnly:   readOnly,
		Protected:  func(v string) bool { return v == "Admin" },
		Commit:     rec.commit,
		Revalidate: rec.revalidate,
	})
}

func TestToggleOpensAndClosesMenu(t *testing.T) {
	cell := roleCell(&recorder{}, "Manager", false)

	require.True(t, cell.Toggle())
	view := cell.View()
	assert.Equal(t, MenuOpen, view.State)
	assert.Equal(t, []Option[string]{{Value: "Manager", Label: "Manager"}, {Value: "Employe", Label: "Employé"}}, view.Options)

	assert.False(t, cell.Toggle())
	assert.Equal(t, Idle, cell.State())

	cell.Toggle()
	cell.Dismiss()
	assert.Equal(t, Idle, cell.State())
}

func TestReadOnlyNeverOpensMenu(t *testing.T) {
	rec := &recorder{}
	cell := roleCell(rec, "Manager", true)

	assert.False(t, cell.Toggle())
	view := cell.View()
	assert.Equal(t, Idle, view.State)
	assert.True(t, view.Locked)
	assert.False(t, view.Interactive)
	assert.Empty(t, view.Options)

	_, err := cell.Select("Employe")
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.Empty(t, rec.commits)
}

func TestProtectedValueIsNeverEditable(t *testing.T) {
	for _, readOnly := range []bool{false, true} {
		cell := roleCell(&recorder{}, "Admin", readOnly)
		assert.False(t, cell.Toggle())
		assert.True(t, cell.View().Protected)
		assert.False(t, cell.View().Interactive)
	}
}

func TestSelectingCurrentValueSkipsConfirmation(t *testing.T) {
	rec := &recorder{}
	cell := roleCell(rec, "Manager", false)
	cell.Toggle()

	pending, err := cell.Select("Manager")
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, Idle, cell.State())
	assert.ErrorIs(t, cell.Confirm(context.Background()), ErrNoPending)
	assert.Empty(t, rec.commits)
}

func TestSelectingProtectedOrUnknownValueIsRejected(t *testing.T) {
	cell := roleCell(&recorder{}, "Manager", false)
	cell.Toggle()
	_, err := cell.Select("Admin")
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Equal(t, Idle, cell.State())

	cell.Toggle()
	_, err = cell.Select("Ghost")
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestSelectOverwritesPending(t *testing.T) {
	rec := &recorder{}
	cell := roleCell(rec, "Employe", false)
	cell.Toggle()
	ok, err := cell.Select("Manager")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Manager", cell.View().Pending.Value)

	cell.Cancel()
	assert.Equal(t, Idle, cell.State())
	assert.Nil(t, cell.View().Pending)
}

func TestConfirmSuccessRevalidatesOnce(t *testing.T) {
	rec := &recorder{}
	cell := roleCell(rec, "Employe", false)
	cell.Toggle()
	_, err := cell.Select("Manager")
	require.NoError(t, err)

	require.NoError(t, cell.Confirm(context.Background()))
	assert.Equal(t, []string{"Manager"}, rec.commits)
	assert.Equal(t, 1, rec.revalidates)

	view := cell.View()
	assert.Equal(t, Idle, view.State)
	assert.Nil(t, view.Pending)
	assert.Equal(t, "Employe", view.Current, "value only changes after the collection is reloaded")
}

func TestConfirmFailureSkipsRevalidation(t *testing.T) {
	rec := &recorder{err: errors.New("500")}
	cell := roleCell(rec, "Employe", false)
	cell.Toggle()
	_, _ = cell.Select("Manager")

	err := cell.Confirm(context.Background())
	require.Error(t, err)
	assert.Zero(t, rec.revalidates)

	view := cell.View()
	assert.Equal(t, Idle, view.State)
	assert.Nil(t, view.Pending)
	assert.True(t, view.Failed)

	cell.Toggle()
	assert.False(t, cell.View().Failed)
}

func TestCommitRunsInCommittingState(t *testing.T) {
	var seen State
	var cell *Cell[string]
	cell = NewCell(Config[string]{
		Current: "a",
		Options: []Option[string]{{Value: "b", Label: "B"}},
		Commit: func(ctx context.Context, v string) error {
			seen = cell.State()
			assert.True(t, cell.View().Muted)
			return nil
		},
	})
	cell.Toggle()
	_, _ = cell.Select("b")
	require.NoError(t, cell.Confirm(context.Background()))
	assert.Equal(t, Committing, seen)
}

func TestDisposedCellStillRevalidates(t *testing.T) {
	rec := &recorder{}
	var cell *Cell[string]
	cell = NewCell(Config[string]{
		Current: "a",
		Options: []Option[string]{{Value: "b", Label: "B"}},
		Commit: func(ctx context.Context, v string) error {
			cell.Dispose()
			return nil
		},
		Revalidate: rec.revalidate,
	})
	cell.Toggle()
	_, _ = cell.Select("b")
	require.NoError(t, cell.Confirm(context.Background()))
	assert.Equal(t, 1, rec.revalidates)
	assert.Equal(t, Committing, cell.State())
	assert.False(t, cell.Toggle())
}

func TestFixedMarkerIsNotInteractive(t *testing.T) {
	cell := NewCell(Config[int64]{
		Current: 0,
		Options: []Option[int64]{{Value: 3, Label: "Jeanne"}},
		Fixed:   "N/A",
	})
	assert.False(t, cell.Toggle())
	view := cell.View()
	assert.Equal(t, "N/A", view.Fixed)
	assert.False(t, view.Locked)
}

func TestUpdateClosesMenuWhenNoLongerEditable(t *testing.T) {
	cell := roleCell(&recorder{}, "Manager", false)
	cell.Toggle()
	cell.Update("Manager", "Manager", nil, true, "")
	assert.Equal(t, Idle, cell.State())
}
