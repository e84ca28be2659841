package metadata

import (
	"fmt"

	"lims-forms/internal/section"
)

// FlagASMEEquivalent switches on the ASME-equivalent qualification columns.
const FlagASMEEquivalent = "asme_equivalent"

// Flags are the mode switches of a form, keyed by flag name.
type Flags map[string]bool

// ConditionalColumn is shown only while Flag is set. It is placed directly
// after the column whose accessor key is After, or at the end.
type ConditionalColumn struct {
	Flag   string         `json:"flag"`
	After  string         `json:"after,omitempty"`
	Column section.Column `json:"column"`
}

// SectionTemplate is the default shape of one named section.
type SectionTemplate struct {
	Name        string              `json:"name"`
	Title       string              `json:"title"`
	Cardinality section.Cardinality `json:"cardinality"`
	BaseColumns []section.Column    `json:"columns"`
	Conditional []ConditionalColumn `json:"conditional_columns,omitempty"`
	Rows        []section.Row       `json:"rows"`
}

// Columns returns the column set for the given flags. It has no side effects
// and is evaluated when a section is mounted.
func (t *SectionTemplate) Columns(flags Flags) []section.Column {
	cols := make([]section.Column, 0, len(t.BaseColumns)+len(t.Conditional))
	cols = append(cols, t.BaseColumns...)
	for _, cc := range t.Conditional {
		if !flags[cc.Flag] {
			continue
		}
		pos := len(cols)
		if cc.After != "" {
			for i, c := range cols {
				if c.AccessorKey == cc.After {
					pos = i + 1
					break
				}
			}
		}
		cols = append(cols, section.Column{})
		copy(cols[pos+1:], cols[pos:])
		cols[pos] = cc.Column
	}
	return cols
}

// DefaultRows returns the template rows padded with an empty value for every
// accessor of Columns(flags).
func (t *SectionTemplate) DefaultRows(flags Flags) []section.Row {
	keys := section.AccessorKeys(t.Columns(flags))
	rows := make([]section.Row, len(t.Rows))
	for i, r := range t.Rows {
		row := r.Clone()
		for _, k := range keys {
			if _, ok := row.Cells[k]; !ok {
				row.Cells[k] = ""
			}
		}
		rows[i] = row
	}
	return rows
}

// SameRows reports whether rows carry exactly the template's row ids, in
// template order.
func (t *SectionTemplate) SameRows(rows []section.Row) bool {
	if len(rows) != len(t.Rows) {
		return false
	}
	for i, r := range t.Rows {
		if rows[i].ID != r.ID {
			return false
		}
	}
	return true
}

// Default returns the untouched section for the given flags.
func (t *SectionTemplate) Default(flags Flags) section.Section {
	return section.Section{Columns: t.Columns(flags), Data: t.DefaultRows(flags)}
}

// Validate checks the template produces a consistent section under every
// combination of its flags.
func (t *SectionTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("section template has no name")
	}
	switch t.Cardinality {
	case section.Fixed, section.OpenEnded:
	default:
		return fmt.Errorf("section %s: unknown cardinality %q", t.Name, t.Cardinality)
	}

	var flagNames []string
	seen := map[string]bool{}
	for _, cc := range t.Conditional {
		if !seen[cc.Flag] {
			seen[cc.Flag] = true
			flagNames = append(flagNames, cc.Flag)
		}
	}
	for mask := 0; mask < 1<<len(flagNames); mask++ {
		flags := Flags{}
		for i, name := range flagNames {
			flags[name] = mask&(1<<i) != 0
		}
		def := t.Default(flags)
		if err := def.Validate(); err != nil {
			return fmt.Errorf("section %s: %w", t.Name, err)
		}
	}
	return nil
}

// paramSection builds a fixed list of labelled parameters with one input
// column, e.g. "Base Metals": columns bmLabel/bmValue and rows bm1..bmN.
func paramSection(name, title, prefix string, labels []string, conditional ...ConditionalColumn) *SectionTemplate {
	cols := []section.Column{
		{ID: prefix + "Label", Header: "Parameter", AccessorKey: "label", Type: section.ColumnLabel},
		{ID: prefix + "Value", Header: "Details", AccessorKey: "value", Type: section.ColumnInput, Placeholder: "Enter value"},
	}
	return labelledSection(name, title, prefix, section.Fixed, cols, labels, conditional...)
}

// labelledSection builds a section whose rows carry a fixed label and empty
// values for the remaining columns.
func labelledSection(name, title, prefix string, card section.Cardinality, cols []section.Column, labels []string, conditional ...ConditionalColumn) *SectionTemplate {
	keys := section.AccessorKeys(cols)
	rows := make([]section.Row, len(labels))
	for i, label := range labels {
		row := section.NewRow(fmt.Sprintf("%s%d", prefix, i+1), keys)
		row.Cells["label"] = label
		rows[i] = row
	}
	return &SectionTemplate{
		Name:        name,
		Title:       title,
		Cardinality: card,
		BaseColumns: cols,
		Conditional: conditional,
		Rows:        rows,
	}
}

// lineItemSection builds an open-ended section starting with n empty rows.
func lineItemSection(name, title, prefix string, cols []section.Column, n int) *SectionTemplate {
	keys := section.AccessorKeys(cols)
	rows := make([]section.Row, n)
	for i := range rows {
		rows[i] = section.NewRow(fmt.Sprintf("%s%d", prefix, i+1), keys)
	}
	return &SectionTemplate{
		Name:        name,
		Title:       title,
		Cardinality: section.OpenEnded,
		BaseColumns: cols,
		Rows:        rows,
	}
}

func input(id, header, key string) section.Column {
	return section.Column{ID: id, Header: header, AccessorKey: key, Type: section.ColumnInput}
}

func number(id, header, key string) section.Column {
	return section.Column{ID: id, Header: header, AccessorKey: key, Type: section.ColumnNumber}
}

func choice(id, header, key string, options ...string) section.Column {
	return section.Column{ID: id, Header: header, AccessorKey: key, Type: section.ColumnSelect, Options: options}
}
