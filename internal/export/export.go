// Package export shapes section tables into the document-export payload and
// renders that payload as an xlsx workbook. It can also read a workbook back
// into a section.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"lims-forms/internal/section"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrEmptyWorkbook = errors.New("workbook has no data")

// Column is one exported column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Payload is the table sent to a document exporter.
type Payload struct {
	Columns  []Column         `json:"columns"`
	Data     []map[string]any `json:"data"`
	FileName string           `json:"fileName"`
}

// FromSection builds the payload of a section. Row ids are not exported.
func FromSection(s section.Section, fileName string) Payload {
	p := Payload{
		Columns:  make([]Column, 0, len(s.Columns)),
		Data:     make([]map[string]any, 0, len(s.Data)),
		FileName: fileName,
	}
	for _, c := range s.Columns {
		label := c.Header
		if label == "" {
			label = c.AccessorKey
		}
		p.Columns = append(p.Columns, Column{Key: c.AccessorKey, Label: label})
	}
	for _, r := range s.Data {
		rec := make(map[string]any, len(s.Columns))
		for _, c := range s.Columns {
			v, _ := r.Value(c.AccessorKey)
			rec[c.AccessorKey] = v
		}
		p.Data = append(p.Data, rec)
	}
	return p
}

// XLSXName returns p.FileName with an .xlsx extension, or fallback.xlsx.
func XLSXName(p Payload, fallback string) string {
	name := p.FileName
	if name == "" {
		name = fallback
	}
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name + ".xlsx"
}

// Workbook renders the payload as a single-sheet workbook: a bold header row
// of labels followed by one row per record.
func Workbook(p Payload) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := sheetName(p.FileName)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(p.Columns))
	for i, c := range p.Columns {
		header[i] = c.Label
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, rec := range p.Data {
		row := make([]any, len(p.Columns))
		for j, c := range p.Columns {
			row[j] = rec[c.Key]
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if len(p.Columns) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("header style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(p.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			f.Close()
			return nil, fmt.Errorf("apply header style: %w", err)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(p.Columns))
		if err := f.SetColWidth(sheet, "A", lastCol, 24); err != nil {
			f.Close()
			return nil, fmt.Errorf("column width: %w", err)
		}
	}
	return f, nil
}

// Write renders the payload as xlsx into w.
func Write(w io.Writer, p Payload) error {
	f, err := Workbook(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Bytes renders the payload as xlsx.
func Bytes(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadSection reads the first sheet of an xlsx workbook into a section with
// the columns of current. Header cells are matched to columns by label or
// accessor key, case-insensitively; unmatched sheet columns are ignored.
// Rows keep the id of the current row at the same position, and new rows
// get fresh ids. Blank rows are skipped.
func ReadSection(r io.Reader, current section.Section) (section.Section, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return section.Section{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return section.Section{}, ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return section.Section{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return section.Section{}, ErrEmptyWorkbook
	}

	colFor := make(map[int]string)
	for i, h := range rows[0] {
		if c := matchColumn(current.Columns, h); c != nil {
			if _, dup := usedKey(colFor, c.AccessorKey); !dup {
				colFor[i] = c.AccessorKey
			}
		}
	}
	if len(colFor) == 0 {
		return section.Section{}, fmt.Errorf("%w: no header matches the section columns", ErrEmptyWorkbook)
	}

	keys := section.AccessorKeys(current.Columns)
	out := section.Section{
		Columns: append([]section.Column(nil), current.Columns...),
		Data:    make([]section.Row, 0, len(rows)-1),
	}
	for _, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		id := uuid.NewString()
		if n := len(out.Data); n < len(current.Data) {
			id = current.Data[n].ID
		}
		row := section.NewRow(id, keys)
		for i, v := range cells {
			if key, ok := colFor[i]; ok {
				row.Cells[key] = strings.TrimSpace(v)
			}
		}
		out.Data = append(out.Data, row)
	}
	return out, nil
}

func matchColumn(cols []section.Column, header string) *section.Column {
	h := normalizeHeader(header)
	if h == "" {
		return nil
	}
	for i := range cols {
		if normalizeHeader(cols[i].Header) == h || normalizeHeader(cols[i].AccessorKey) == h {
			return &cols[i]
		}
	}
	return nil
}

func usedKey(m map[int]string, key string) (int, bool) {
	for i, k := range m {
		if k == key {
			return i, true
		}
	}
	return 0, false
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sheetName derives a valid worksheet name from a file name.
func sheetName(fileName string) string {
	name := strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" || name == "." {
		return "Sheet1"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}
