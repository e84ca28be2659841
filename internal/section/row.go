package section

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// RowIDKey is the reserved JSON key carrying a row's identity.
const RowIDKey = "id"

// Row is one line of a section grid. Cells holds the row's values keyed by
// column accessor key. On the wire a row is a flat object:
//
//	{"id": "bm1", "label": "Material Spec.", "value": ""}
type Row struct {
	ID    string
	Cells map[string]string
}

// NewRow builds a row with an empty value for every accessor key.
func NewRow(id string, accessorKeys []string) Row {
	cells := make(map[string]string, len(accessorKeys))
	for _, k := range accessorKeys {
		cells[k] = ""
	}
	return Row{ID: id, Cells: cells}
}

// Value returns the cell value for key and whether the row exposes it.
func (r Row) Value(key string) (string, bool) {
	v, ok := r.Cells[key]
	return v, ok
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cells := make(map[string]string, len(r.Cells))
	for k, v := range r.Cells {
		cells[k] = v
	}
	return Row{ID: r.ID, Cells: cells}
}

// Map returns the row as a flat map including the id key.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Cells)+1)
	for k, v := range r.Cells {
		m[k] = v
	}
	m[RowIDKey] = r.ID
	return m
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON accepts any scalar cell values and stores them as strings.
// Nested values are kept as their JSON text so nothing is silently dropped.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("row must be a JSON object")
	}
	r.ID = ""
	r.Cells = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == RowIDKey {
			r.ID = cast.ToString(v)
			continue
		}
		r.Cells[k] = cellString(v)
	}
	return nil
}

func cellString(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
