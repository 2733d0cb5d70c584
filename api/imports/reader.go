package imports

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"DebtPortfolioSaas/api/constants"
)

// SheetData is the parsed form of one uploaded spreadsheet: the header row,
// the data rows keyed by header, and how many fully-empty rows were dropped.
type SheetData struct {
	Headers          []string
	Rows             []map[string]string
	SkippedEmptyRows int
}

const xlsMaxRows = 65535

// ParseSpreadsheet decodes a raw upload into headers and row maps. The
// declared content type (or a bare file extension) selects the decoder.
// Blank cells become empty strings; rows with no populated cell at all are
// dropped silently and counted in SkippedEmptyRows.
func ParseSpreadsheet(data []byte, contentType string) (*SheetData, error) {
	var records [][]string
	var err error

	switch normalizeContentType(contentType) {
	case "csv":
		records, err = parseCSV(data)
	case "xlsx":
		records, err = parseXLSX(data)
	case "xls":
		records, err = parseXLS(data)
	default:
		return nil, &ParseError{Msg: constants.ErrUnsupportedFile + ": " + contentType}
	}
	if err != nil {
		return nil, err
	}
	return buildSheetData(records)
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	switch ct {
	case "text/csv", "application/csv", ".csv", "csv":
		return "csv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx", "xlsx":
		return "xlsx"
	case "application/vnd.ms-excel", ".xls", "xls":
		return "xls"
	}
	// Some browsers send csv as text/plain with a charset suffix
	if strings.HasPrefix(ct, "text/csv") || strings.HasPrefix(ct, "text/plain") {
		return "csv"
	}
	return ""
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Msg: "malformed csv: " + err.Error()}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Msg: "cannot open workbook: " + err.Error()}
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &ParseError{Msg: "workbook has no worksheet"}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Msg: "cannot read worksheet: " + err.Error()}
	}
	return rows, nil
}

func parseXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &ParseError{Msg: "cannot open legacy workbook: " + err.Error()}
	}
	if wb.NumSheets() == 0 {
		return nil, &ParseError{Msg: "workbook has no worksheet"}
	}
	return wb.ReadAllCells(xlsMaxRows), nil
}

// allEmptyRow returns true when every cell in the row is empty or whitespace
func allEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func buildSheetData(records [][]string) (*SheetData, error) {
	skipped := 0
	populated := make([][]string, 0, len(records))
	for _, rec := range records {
		if allEmptyRow(rec) {
			skipped++
			continue
		}
		populated = append(populated, rec)
	}
	if len(populated) < 2 {
		return nil, &ParseError{Msg: constants.ErrEmptySpreadsheet}
	}

	headers := make([]string, 0, len(populated[0]))
	for _, h := range populated[0] {
		headers = append(headers, strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(populated)-1)
	for _, rec := range populated[1:] {
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				// first occurrence of a duplicated header wins
				continue
			}
			val := ""
			if j < len(rec) {
				val = rec[j]
			}
			row[h] = val
		}
		rows = append(rows, row)
	}

	return &SheetData{Headers: headers, Rows: rows, SkippedEmptyRows: skipped}, nil
}
