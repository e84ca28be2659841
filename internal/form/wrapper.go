// Package form composes section tables into whole records. A Wrapper binds
// one table to its named section template; an Aggregator owns every wrapper
// of a record together with its scalar fields and flags.
package form

import (
	"errors"

	"lims-forms/internal/metadata"
	"lims-forms/internal/section"
)

var (
	ErrReadOnly       = errors.New("form is read-only")
	ErrUnknownSection = errors.New("unknown section")
	ErrUnknownField   = errors.New("unknown field")
	ErrUnknownFlag    = errors.New("unknown flag")
	ErrSessionEnded   = errors.New("edit session has ended")
	ErrDetached       = errors.New("section is not mounted")
)

// SectionListener receives full section snapshots from mounted wrappers.
type SectionListener interface {
	SectionChanged(name string, s section.Section)
}

// Wrapper mediates between a section table and its parent form.
type Wrapper struct {
	tpl      *metadata.SectionTemplate
	table    *section.Table
	listener SectionListener
	readOnly bool
}

// Mount resolves the section's columns from flags, loads initial data over
// the template and registers listener. A non-nil error means the initial
// data was unusable and the wrapper fell back to the defaults.
func Mount(tpl *metadata.SectionTemplate, flags metadata.Flags, initial *section.Section, listener SectionListener) (*Wrapper, error) {
	working, err := section.Initialize(tpl.Columns(flags), tpl.DefaultRows(flags), initial)
	return Adopt(tpl, working, listener), err
}

// Adopt binds tpl to s exactly as given. Unlike Mount it never falls back to
// the defaults, so the wrapper edits the same rows its parent holds.
func Adopt(tpl *metadata.SectionTemplate, s section.Section, listener SectionListener) *Wrapper {
	w := &Wrapper{tpl: tpl, listener: listener}
	w.table = section.NewTable(tpl.Cardinality, s, w.forward)
	return w
}

// Name returns the section name.
func (w *Wrapper) Name() string {
	return w.tpl.Name
}

// Template returns the section template the wrapper was mounted from.
func (w *Wrapper) Template() *metadata.SectionTemplate {
	return w.tpl
}

// Snapshot returns the wrapper's current section state.
func (w *Wrapper) Snapshot() section.Section {
	if w.table == nil {
		return section.Section{}
	}
	return w.table.Snapshot()
}

// ReadOnly reports whether mutations are disabled.
func (w *Wrapper) ReadOnly() bool {
	return w.readOnly
}

// SetReadOnly toggles read-only mode.
func (w *Wrapper) SetReadOnly(ro bool) {
	w.readOnly = ro
}

func (w *Wrapper) SetCellValue(rowID, accessorKey, value string) error {
	if err := w.mutable(); err != nil {
		return err
	}
	return w.table.SetCellValue(rowID, accessorKey, value)
}

func (w *Wrapper) AddRow(afterRowID string) (section.Row, error) {
	if err := w.mutable(); err != nil {
		return section.Row{}, err
	}
	return w.table.AddRow(afterRowID)
}

func (w *Wrapper) RemoveRow(rowID string) error {
	if err := w.mutable(); err != nil {
		return err
	}
	return w.table.RemoveRow(rowID)
}

// ApplyFlags re-resolves the column set for new flag values. Entered values
// are never altered and no row is removed; rows gain empty values for new
// columns. Returns true if the column set changed.
func (w *Wrapper) ApplyFlags(flags metadata.Flags) (bool, error) {
	if err := w.mutable(); err != nil {
		return false, err
	}
	return w.table.SetColumns(w.tpl.Columns(flags)), nil
}

// Detach drops the listener and the wrapper's copy of the section.
func (w *Wrapper) Detach() {
	w.listener = nil
	if w.table != nil {
		w.table.SetListener(nil)
		w.table = nil
	}
}

func (w *Wrapper) mutable() error {
	if w.table == nil {
		return ErrDetached
	}
	if w.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (w *Wrapper) forward(s section.Section) {
	if w.readOnly || w.listener == nil {
		return
	}
	w.listener.SectionChanged(w.tpl.Name, s)
}
