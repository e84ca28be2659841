package section

import (
	"fmt"

	"github.com/google/uuid"
)

// Listener receives the complete section state after every mutation.
type Listener func(Section)

// Initialize resolves the working column/row set of a section. Non-empty
// initial data replaces the defaults wholesale; a missing half (columns or
// data) falls back to the default for that half. When the resolved set is not
// shape-consistent the defaults are returned together with the shape error,
// so callers can report it without losing the form.
func Initialize(defaultColumns []Column, defaultRows []Row, initial *Section) (Section, error) {
	defaults := Section{Columns: cloneColumns(defaultColumns), Data: cloneRows(defaultRows)}
	if initial.IsEmpty() {
		return defaults, nil
	}

	working := Section{Columns: cloneColumns(initial.Columns), Data: cloneRows(initial.Data)}
	if len(working.Columns) == 0 {
		working.Columns = cloneColumns(defaultColumns)
	}
	if initial.Data == nil {
		working.Data = cloneRows(defaultRows)
	}

	if err := working.Validate(); err != nil {
		return defaults, err
	}
	return working, nil
}

// Table is the mutable grid of one section. It is not safe for concurrent
// use; callers serialize access per edit session.
type Table struct {
	cardinality Cardinality
	columns     []Column
	rows        []Row
	listener    Listener

	// NewRowID generates ids for rows added to open-ended sections.
	NewRowID func() string
}

// NewTable creates a table over a copy of s.
func NewTable(cardinality Cardinality, s Section, listener Listener) *Table {
	return &Table{
		cardinality: cardinality,
		columns:     cloneColumns(s.Columns),
		rows:        cloneRows(s.Data),
		listener:    listener,
		NewRowID:    uuid.NewString,
	}
}

// Cardinality returns whether rows may be added or removed.
func (t *Table) Cardinality() Cardinality {
	return t.cardinality
}

// SetListener replaces the change listener. A nil listener silences the table.
func (t *Table) SetListener(l Listener) {
	t.listener = l
}

// Snapshot returns a deep copy of the current state.
func (t *Table) Snapshot() Section {
	return Section{Columns: cloneColumns(t.columns), Data: cloneRows(t.rows)}
}

// Columns returns a copy of the current column set.
func (t *Table) Columns() []Column {
	return cloneColumns(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// SetCellValue updates one cell in place. An unknown row returns
// ErrRowNotFound and leaves every row untouched. Label columns are fixed
// text and reject edits with ErrColumnNotEditable.
func (t *Table) SetCellValue(rowID, accessorKey, value string) error {
	idx := t.indexOf(rowID)
	if idx < 0 {
		return fmt.Errorf("set %s.%s: %w", rowID, accessorKey, ErrRowNotFound)
	}
	col := FindColumn(t.columns, accessorKey)
	switch {
	case col != nil && !col.Editable():
		return fmt.Errorf("set %s.%s: %w", rowID, accessorKey, ErrColumnNotEditable)
	case col == nil:
		if _, ok := t.rows[idx].Cells[accessorKey]; !ok {
			return fmt.Errorf("set %s.%s: %w", rowID, accessorKey, ErrUnknownAccessor)
		}
	}
	t.rows[idx].Cells[accessorKey] = value
	t.notify()
	return nil
}

// AddRow inserts an empty row after afterRowID, or appends when afterRowID is
// empty. Fixed-cardinality sections reject it.
func (t *Table) AddRow(afterRowID string) (Row, error) {
	if t.cardinality != OpenEnded {
		return Row{}, ErrFixedCardinality
	}
	pos := len(t.rows)
	if afterRowID != "" {
		idx := t.indexOf(afterRowID)
		if idx < 0 {
			return Row{}, fmt.Errorf("add after %s: %w", afterRowID, ErrRowNotFound)
		}
		pos = idx + 1
	}

	row := NewRow(t.NewRowID(), AccessorKeys(t.columns))
	t.rows = append(t.rows, Row{})
	copy(t.rows[pos+1:], t.rows[pos:])
	t.rows[pos] = row
	t.notify()
	return row.Clone(), nil
}

// RemoveRow deletes a row. Fixed-cardinality sections reject it.
func (t *Table) RemoveRow(rowID string) error {
	if t.cardinality != OpenEnded {
		return ErrFixedCardinality
	}
	idx := t.indexOf(rowID)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", rowID, ErrRowNotFound)
	}
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
	t.notify()
	return nil
}

// SetColumns swaps the column set without touching entered values: rows gain
// an empty value for each new accessor and keep values of dropped columns.
// Returns false, and does not notify, when the set is unchanged.
func (t *Table) SetColumns(columns []Column) bool {
	if ColumnsEqual(t.columns, columns) {
		return false
	}
	t.columns = cloneColumns(columns)
	for i := range t.rows {
		for _, c := range t.columns {
			if _, ok := t.rows[i].Cells[c.AccessorKey]; !ok {
				t.rows[i].Cells[c.AccessorKey] = ""
			}
		}
	}
	t.notify()
	return true
}

func (t *Table) indexOf(rowID string) int {
	for i := range t.rows {
		if t.rows[i].ID == rowID {
			return i
		}
	}
	return -1
}

func (t *Table) notify() {
	if t.listener != nil {
		t.listener(t.Snapshot())
	}
}
