// Package sheet reads and writes the tabular files the agency EMR exports:
// CSV, Excel 2007+ workbooks (.xlsx) and legacy Excel 97 workbooks (.xls).
// Every format is loaded into the same in-memory Table of strings.
package sheet

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the spreadsheet layer.
var (
	ErrUnsupportedFormat = errors.New("unsupported file type; use .csv, .xlsx or .xls")
	ErrSheetNotFound     = errors.New("worksheet not found")
	ErrEmptySheet        = errors.New("worksheet is empty")
)

// Table is a header row plus data rows. Every row has exactly len(Header)
// cells once the table has been built by Read or NewTable.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable builds a Table from raw rows, treating rows[headerRow] as the
// header and everything after it as data. Rows before the header are
// discarded. Header names are trimmed and made unique with UniqueHeader,
// and all rows are padded to a common width.
func NewTable(rows [][]string, headerRow int) (*Table, error) {
	if headerRow < 0 {
		headerRow = 0
	}
	if len(rows) <= headerRow {
		return nil, ErrEmptySheet
	}

	header := make([]string, len(rows[headerRow]))
	for i, h := range rows[headerRow] {
		header[i] = strings.TrimSpace(h)
	}

	data := rows[headerRow+1:]
	width := len(header)
	for _, r := range data {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 0 {
		return nil, ErrEmptySheet
	}

	t := &Table{Header: UniqueHeader(pad(header, width)), Rows: make([][]string, 0, len(data))}
	for _, r := range data {
		t.Rows = append(t.Rows, pad(r, width))
	}
	return t, nil
}

// UniqueHeader names blank columns "Unnamed: <idx>" and suffixes repeated
// names ".1", ".2", ... so that no two columns share a name.
func UniqueHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	next := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for used[name] {
			next[h]++
			name = fmt.Sprintf("%s.%d", h, next[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the named column, or -1. Matching ignores
// surrounding whitespace but is otherwise exact, like the EMR's headers.
func (t *Table) Index(name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Missing returns the names from want that are not columns of t, in the
// order given.
func (t *Table) Missing(want ...string) []string {
	var missing []string
	for _, w := range want {
		if t.Index(w) < 0 {
			missing = append(missing, w)
		}
	}
	return missing
}

// Cell returns the trimmed cell at idx, or "" when idx is out of range.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Compact drops blank rows, then drops every column with no data left,
// whatever its header. Header names are made unique first, using their
// positions before any column is dropped.
func (t *Table) Compact() {
	var rows [][]string
	for _, r := range t.Rows {
		if !blankRow(r) {
			rows = append(rows, r)
		}
	}

	header := UniqueHeader(t.Header)
	keep := make([]int, 0, len(header))
	for c := range header {
		for _, r := range rows {
			if c < len(r) && strings.TrimSpace(r[c]) != "" {
				keep = append(keep, c)
				break
			}
		}
	}

	t.Header = project(header, keep)
	for i, r := range rows {
		rows[i] = project(r, keep)
	}
	t.Rows = rows
}

func blankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func project(row []string, cols []int) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c < len(row) {
			out[i] = row[c]
		}
	}
	return out
}

// Concat stacks tables on top of each other. The result's header is the
// union of all headers in first-seen order; cells a table does not have are
// left blank. Blank and repeated names within one table are told apart with
// UniqueHeader, so no cell is dropped.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := map[string]int{}
	headers := make([][]string, len(tables))
	for i, t := range tables {
		headers[i] = UniqueHeader(t.Header)
		for _, h := range headers[i] {
			if _, ok := pos[h]; ok {
				continue
			}
			pos[h] = len(out.Header)
			out.Header = append(out.Header, h)
		}
	}

	for i, t := range tables {
		for _, r := range t.Rows {
			row := make([]string, len(out.Header))
			for c, h := range headers[i] {
				if c < len(r) {
					row[pos[h]] = r[c]
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
