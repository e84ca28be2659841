package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lims-forms/internal/section"
)

func tensile() section.Section {
	cols := []section.Column{
		{ID: "ttSpecimen", Header: "Specimen No.", AccessorKey: "specimen", Type: section.ColumnInput},
		{ID: "ttLoad", Header: "Load (kN)", AccessorKey: "load", Type: section.ColumnNumber},
	}
	keys := section.AccessorKeys(cols)
	r1 := section.NewRow("tt1", keys)
	r1.Cells["specimen"] = "T-1"
	r1.Cells["load"] = "212"
	r2 := section.NewRow("tt2", keys)
	r2.Cells["specimen"] = "T-2"
	return section.Section{Columns: cols, Data: []section.Row{r1, r2}}
}

func TestFromSection(t *testing.T) {
	p := FromSection(tensile(), "tensile")
	assert.Equal(t, []Column{{Key: "specimen", Label: "Specimen No."}, {Key: "load", Label: "Load (kN)"}}, p.Columns)
	require.Len(t, p.Data, 2)
	assert.Equal(t, map[string]any{"specimen": "T-1", "load": "212"}, p.Data[0])
	assert.Equal(t, "", p.Data[1]["load"])
	assert.Equal(t, "tensile", p.FileName)
}

func TestWorkbook_Layout(t *testing.T) {
	f, err := Workbook(FromSection(tensile(), "PQR-001/tensile.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	assert.Equal(t, "tensile", sheet)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Specimen No.", "Load (kN)"},
		{"T-1", "212"},
		{"T-2"},
	}, rows)
}

func TestReadSection_RoundTrip(t *testing.T) {
	src := tensile()
	data, err := Bytes(FromSection(src, "tensile"))
	require.NoError(t, err)

	got, err := ReadSection(bytes.NewReader(data), src)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	require.NoError(t, got.Validate())
}

func TestReadSection_MatchesHeadersAndAddsRows(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"LOAD", "Comment", "specimen"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"100", "x", "A"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"", "", ""}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"300", "", "B"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A5", &[]any{"400", "", "C"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	got, err := ReadSection(&buf, tensile())
	require.NoError(t, err)
	require.Len(t, got.Data, 3)
	assert.Equal(t, "tt1", got.Data[0].ID)
	assert.Equal(t, "tt2", got.Data[1].ID)
	assert.NotEmpty(t, got.Data[2].ID)
	assert.Equal(t, map[string]string{"specimen": "A", "load": "100"}, got.Data[0].Cells)
	assert.Equal(t, map[string]string{"specimen": "C", "load": "400"}, got.Data[2].Cells)
	require.NoError(t, got.Validate())
}

func TestReadSection_NoMatchingHeader(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"unrelated"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ReadSection(&buf, tensile())
	require.ErrorIs(t, err, ErrEmptyWorkbook)
}

func TestXLSXName(t *testing.T) {
	assert.Equal(t, "report.xlsx", XLSXName(Payload{FileName: "report.docx"}, "x"))
	assert.Equal(t, "fallback.xlsx", XLSXName(Payload{}, "fallback"))
}
