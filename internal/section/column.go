package section

// ColumnType is the input kind a column renders as.
type ColumnType string

const (
	ColumnLabel    ColumnType = "label"
	ColumnInput    ColumnType = "input"
	ColumnSelect   ColumnType = "select"
	ColumnTextarea ColumnType = "textarea"
	ColumnNumber   ColumnType = "number"
	ColumnDate     ColumnType = "date"
)

type Column struct {
	ID          string     `json:"id"`
	Header      string     `json:"header"`
	AccessorKey string     `json:"accessorKey"`
	Type        ColumnType `json:"type"`
	Placeholder string     `json:"placeholder,omitempty"`
	Options     []string   `json:"options,omitempty"`
}

// Editable returns true if users can type into cells of this column.
func (c Column) Editable() bool {
	return c.Type != ColumnLabel
}

// AccessorKeys returns the accessor keys of the given columns, in order.
func AccessorKeys(columns []Column) []string {
	keys := make([]string, len(columns))
	for i, c := range columns {
		keys[i] = c.AccessorKey
	}
	return keys
}

// FindColumn returns a pointer to the column with the given accessor key, or nil.
func FindColumn(columns []Column, accessorKey string) *Column {
	for i := range columns {
		if columns[i].AccessorKey == accessorKey {
			return &columns[i]
		}
	}
	return nil
}

func cloneColumns(columns []Column) []Column {
	out := make([]Column, len(columns))
	for i, c := range columns {
		out[i] = c
		if c.Options != nil {
			out[i].Options = append([]string(nil), c.Options...)
		}
	}
	return out
}

// ColumnsEqual reports whether two column sets are identical, in order.
func ColumnsEqual(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].AccessorKey != b[i].AccessorKey ||
			a[i].Header != b[i].Header || a[i].Type != b[i].Type ||
			a[i].Placeholder != b[i].Placeholder || len(a[i].Options) != len(b[i].Options) {
			return false
		}
		for j := range a[i].Options {
			if a[i].Options[j] != b[i].Options[j] {
				return false
			}
		}
	}
	return true
}
