// Package section implements the editable grid behind every tabular block of
// a technical form: columns, rows of cell values, and the table model that
// mutates them and announces full snapshots to a single listener.
package section

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRowNotFound       = errors.New("row not found")
	ErrUnknownAccessor   = errors.New("unknown accessor key")
	ErrFixedCardinality  = errors.New("section has a fixed set of rows")
	ErrColumnNotEditable = errors.New("column is not editable")
)

// Cardinality says whether users may add or remove rows.
type Cardinality string

const (
	Fixed     Cardinality = "fixed"
	OpenEnded Cardinality = "open"
)

// Section is the serialized state of one grid.
type Section struct {
	Columns []Column `json:"columns"`
	Data    []Row    `json:"data"`
}

// IsEmpty returns true if neither half is present. A nil Data slice means
// absent; an empty one means every row was removed.
func (s *Section) IsEmpty() bool {
	return s == nil || (len(s.Columns) == 0 && s.Data == nil)
}

// Clone returns a deep copy.
func (s Section) Clone() Section {
	return Section{Columns: cloneColumns(s.Columns), Data: cloneRows(s.Data)}
}

// FindRow returns the index of the row with the given id, or -1.
func (s Section) FindRow(id string) int {
	for i := range s.Data {
		if s.Data[i].ID == id {
			return i
		}
	}
	return -1
}

// Records returns every row as a flat map, in order.
func (s Section) Records() []map[string]any {
	out := make([]map[string]any, len(s.Data))
	for i, r := range s.Data {
		out[i] = r.Map()
	}
	return out
}

// Problem is one shape inconsistency found by Validate.
type Problem struct {
	Row    string `json:"row,omitempty"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// ShapeError lists every inconsistency between a section's columns and rows.
type ShapeError struct {
	Problems []Problem
}

func (e *ShapeError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		switch {
		case p.Row != "" && p.Column != "":
			parts[i] = fmt.Sprintf("row %q column %q: %s", p.Row, p.Column, p.Reason)
		case p.Row != "":
			parts[i] = fmt.Sprintf("row %q: %s", p.Row, p.Reason)
		case p.Column != "":
			parts[i] = fmt.Sprintf("column %q: %s", p.Column, p.Reason)
		default:
			parts[i] = p.Reason
		}
	}
	return "invalid section shape: " + strings.Join(parts, "; ")
}

// Validate checks column ids and row ids are unique and non-empty, and that
// every row exposes a value for every column's accessor key.
func (s Section) Validate() error {
	var problems []Problem

	colIDs := make(map[string]bool, len(s.Columns))
	accessors := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.ID == "" {
			problems = append(problems, Problem{Reason: fmt.Sprintf("column %d has no id", i)})
		} else if colIDs[c.ID] {
			problems = append(problems, Problem{Column: c.ID, Reason: "duplicate column id"})
		}
		colIDs[c.ID] = true

		switch {
		case c.AccessorKey == "":
			problems = append(problems, Problem{Column: c.ID, Reason: "missing accessor key"})
		case c.AccessorKey == RowIDKey:
			problems = append(problems, Problem{Column: c.ID, Reason: "accessor key \"id\" is reserved"})
		case accessors[c.AccessorKey]:
			problems = append(problems, Problem{Column: c.ID, Reason: "duplicate accessor key"})
		}
		accessors[c.AccessorKey] = true
	}

	rowIDs := make(map[string]bool, len(s.Data))
	for i, r := range s.Data {
		if r.ID == "" {
			problems = append(problems, Problem{Reason: fmt.Sprintf("row %d has no id", i)})
		} else if rowIDs[r.ID] {
			problems = append(problems, Problem{Row: r.ID, Reason: "duplicate row id"})
		}
		rowIDs[r.ID] = true

		for _, c := range s.Columns {
			if c.AccessorKey == "" {
				continue
			}
			if _, ok := r.Cells[c.AccessorKey]; !ok {
				problems = append(problems, Problem{Row: r.ID, Column: c.ID, Reason: "no value for accessor " + c.AccessorKey})
			}
		}
	}

	if len(problems) > 0 {
		return &ShapeError{Problems: problems}
	}
	return nil
}
