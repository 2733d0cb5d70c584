package imports

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"DebtPortfolioSaas/api/constants"
)

func TestParseSpreadsheetCSV(t *testing.T) {
	data := []byte("Name,Notes,Quote\na,\"b,c\",\"d\"\"e\"\n")
	sheet, err := ParseSpreadsheet(data, "text/csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Notes", "Quote"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "a", sheet.Rows[0]["Name"])
	assert.Equal(t, "b,c", sheet.Rows[0]["Notes"])
	assert.Equal(t, `d"e`, sheet.Rows[0]["Quote"])
}

func TestParseSpreadsheetSkipsEmptyRows(t *testing.T) {
	data := []byte("A,B\n,\n1,2\n  ,  \n3,4\n")
	sheet, err := ParseSpreadsheet(data, "csv")
	require.NoError(t, err)

	assert.Equal(t, 2, sheet.SkippedEmptyRows)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "1", sheet.Rows[0]["A"])
	assert.Equal(t, "4", sheet.Rows[1]["B"])
}

func TestParseSpreadsheetShortRowsPadded(t *testing.T) {
	data := []byte("A,B,C\n1,2\n")
	sheet, err := ParseSpreadsheet(data, ".csv")
	require.NoError(t, err)

	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "", sheet.Rows[0]["C"])
}

func TestParseSpreadsheetDuplicateHeaderFirstWins(t *testing.T) {
	data := []byte("A,A\nfirst,second\n")
	sheet, err := ParseSpreadsheet(data, "csv")
	require.NoError(t, err)

	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "first", sheet.Rows[0]["A"])
}

func TestParseSpreadsheetHeaderOnly(t *testing.T) {
	data := []byte("A,B\n")
	_, err := ParseSpreadsheet(data, "csv")
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, constants.ErrEmptySpreadsheet)
}

func TestParseSpreadsheetUnsupportedType(t *testing.T) {
	_, err := ParseSpreadsheet([]byte("whatever"), "application/pdf")
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, constants.ErrUnsupportedFile)
}

func TestParseSpreadsheetMalformedCSV(t *testing.T) {
	data := []byte("A,B\n\"unterminated\n")
	_, err := ParseSpreadsheet(data, "csv")
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseSpreadsheetXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &[]interface{}{"Account Number", "SSN"}))
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &[]interface{}{"ACC-1", "123456789"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	sheet, err := ParseSpreadsheet(buf.Bytes(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)

	assert.Equal(t, []string{"Account Number", "SSN"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "ACC-1", sheet.Rows[0]["Account Number"])
	assert.Equal(t, "123456789", sheet.Rows[0]["SSN"])
}

func TestNormalizeContentTypeVariants(t *testing.T) {
	assert.Equal(t, "csv", normalizeContentType("text/plain; charset=utf-8"))
	assert.Equal(t, "csv", normalizeContentType(".csv"))
	assert.Equal(t, "xlsx", normalizeContentType(".xlsx"))
	assert.Equal(t, "xls", normalizeContentType("application/vnd.ms-excel"))
	assert.Equal(t, "", normalizeContentType("image/png"))
}
