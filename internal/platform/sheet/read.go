package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxXLSRows bounds how far a legacy workbook is scanned.
const maxXLSRows = 100000

// maxXLSCols bounds the scan of rows that carry cells but no row record.
const maxXLSCols = 256

// ReadOptions controls which worksheet is loaded and where its header sits.
type ReadOptions struct {
	// Sheet names the worksheet to load. Empty means the first sheet.
	// Ignored for CSV.
	Sheet string
	// FirstSheetFallback reads the first sheet when Sheet is not in the
	// workbook, instead of failing with ErrSheetNotFound.
	FirstSheetFallback bool
	// HeaderRow is the zero-based row holding column names. Raw EMR
	// downloads carry five banner rows above the header.
	HeaderRow int
}

// Read loads the file at path into a Table, choosing the decoder by
// extension.
func Read(path string, opts ReadOptions) (*Table, error) {
	rows, err := readRows(path, opts)
	if err != nil {
		return nil, err
	}
	return NewTable(rows, opts.HeaderRow)
}

// Sheets lists the worksheet names of a workbook. CSV files report a single
// unnamed sheet.
func Sheets(path string) ([]string, error) {
	switch ext(path) {
	case ".csv":
		return []string{""}, nil
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return f.GetSheetList(), nil
	case ".xls":
		wb, err := xls.Open(path, "utf-8")
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, wb.NumSheets())
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil {
				names = append(names, s.Name)
			}
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func readRows(path string, opts ReadOptions) ([][]string, error) {
	switch ext(path) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readCSV(f)
	case ".xlsx", ".xlsm":
		return readXLSX(path, opts)
	case ".xls":
		return readXLS(path, opts)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func readXLSX(path string, opts ReadOptions) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := opts.Sheet
	if name != "" {
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			if !opts.FirstSheetFallback {
				return nil, fmt.Errorf("%q: %w", name, ErrSheetNotFound)
			}
			name = ""
		}
	}
	if name == "" {
		if name = f.GetSheetName(0); name == "" {
			return nil, ErrSheetNotFound
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

func readXLS(path string, opts ReadOptions) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ErrSheetNotFound
	}

	var ws *xls.WorkSheet
	if opts.Sheet == "" {
		ws = wb.GetSheet(0)
	} else {
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil && s.Name == opts.Sheet {
				ws = s
				break
			}
		}
		if ws == nil && opts.FirstSheetFallback {
			ws = wb.GetSheet(0)
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("%q: %w", opts.Sheet, ErrSheetNotFound)
	}

	last := int(ws.MaxRow)
	if last >= maxXLSRows {
		last = maxXLSRows - 1
	}
	rows := make([][]string, 0, last+1)
	for i := 0; i <= last; i++ {
		rows = append(rows, xlsCells(xlsRow(ws, i)))
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

// xlsRow returns nil for a row index the workbook holds nothing for.
// WorkSheet.Row panics on such rows, and exports skip blank rows freely.
func xlsRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

// xlsCells reads one row. LastCol is one past the last cell; it is zero
// when the row had cells but no row record, and then the row is scanned.
func xlsCells(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	width := row.LastCol()
	if width <= 0 {
		width = maxXLSCols
	}
	cells := make([]string, width)
	n := 0
	for c := row.FirstCol(); c < width; c++ {
		cells[c] = row.Col(c)
		if cells[c] != "" {
			n = c + 1
		}
	}
	if row.LastCol() <= 0 {
		cells = cells[:n]
	}
	return cells
}
