// Package sheet reads user rosters from spreadsheet uploads.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unilib/apiserver/types"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")

// Parse decodes a roster, choosing the format from the file name.
func Parse(filename string, r io.Reader) ([]types.ImportRecord, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ParseXLSX(r)
	case ".csv":
		return ParseCSV(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ParseXLSX reads the first worksheet of an Excel workbook.
func ParseXLSX(r io.Reader) ([]types.ImportRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return fromRows(rows)
}

func ParseCSV(r io.Reader) ([]types.ImportRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

// fromRows maps rows to records using the header row.
// Blank rows are ignored; other rows are returned as-is for the caller to validate.
func fromRows(rows [][]string) ([]types.ImportRecord, error) {
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[normalizeHeader(name)] = i
	}
	emailCol, ok := columns["email"]
	if !ok {
		return nil, errors.New(`missing "email" column`)
	}
	firstCol, hasFirst := columns["firstname"]
	lastCol, hasLast := columns["lastname"]

	records := make([]types.ImportRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := types.ImportRecord{Email: strings.ToLower(cell(row, emailCol))}
		if hasFirst {
			rec.FirstName = cell(row, firstCol)
		}
		if hasLast {
			rec.LastName = cell(row, lastCol)
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
