package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxImportRows bounds a single menu import.
const MaxImportRows = 1000

var ErrEmptySheet = errors.New("spreadsheet has no menu rows")

// MenuRow is one line of a menu import sheet. Columns, in order:
// name, price, category, description, available (yes/no, optional).
type MenuRow struct {
	Line        int // 1-based row in the sheet
	Name        string
	Price       string
	Category    string
	Description string
	Available   *bool
}

// ParseMenuSheet reads the first sheet of an XLSX workbook. A header row is
// detected by a first cell of "name" or "item" and skipped; blank rows are ignored.
func ParseMenuSheet(r io.Reader) ([]MenuRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && isHeader(rows[0][0]) {
		start = 1
	}

	var out []MenuRow
	for i := start; i < len(rows); i++ {
		row := rows[i]
		name := cell(row, 0)
		if name == "" {
			continue
		}
		if len(out) == MaxImportRows {
			return nil, fmt.Errorf("too many rows: at most %d items per import", MaxImportRows)
		}
		mr := MenuRow{
			Line:        i + 1,
			Name:        name,
			Price:       cell(row, 1),
			Category:    cell(row, 2),
			Description: cell(row, 3),
		}
		if v := strings.ToLower(cell(row, 4)); v != "" {
			available := v == "yes" || v == "y" || v == "true" || v == "1"
			mr.Available = &available
		}
		out = append(out, mr)
	}
	if len(out) == 0 {
		return nil, ErrEmptySheet
	}
	return out, nil
}

func isHeader(first string) bool {
	v := strings.ToLower(strings.TrimSpace(first))
	return v == "name" || v == "item" || v == "item name"
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
