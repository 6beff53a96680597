// Package visit turns rows of an EMR Visit Report into typed visit records.
package visit

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// Normalized is the outcome of normalizing a table: the surviving records in
// input order and how many rows were dropped.
type Normalized struct {
	Records []Record
	Skipped int
}

// Load reads a visit report from disk. Any failure to produce a table is a
// MalformedInputError.
func Load(path string, opts sheet.ReadOptions) (*sheet.Table, error) {
	t, err := sheet.Read(path, opts)
	if err != nil {
		return nil, &MalformedInputError{Source: filepath.Base(path), Reason: "cannot read table", Err: err}
	}
	return t, nil
}

// Normalize converts table rows into visit records. Rows with a missing or
// unparsable required field are dropped and counted; they are not errors.
// A table lacking a required column is a MalformedInputError.
func Normalize(t *sheet.Table, cols Columns) (*Normalized, error) {
	if missing := t.Missing(cols.Required()...); len(missing) > 0 {
		return nil, &MalformedInputError{
			Reason: fmt.Sprintf("missing required column(s): %s; columns found: %s",
				strings.Join(missing, ", "), strings.Join(t.Header, ", ")),
		}
	}

	var (
		clinician  = t.Index(cols.Clinician)
		mrn        = t.Index(cols.PatientMRN)
		formStatus = t.Index(cols.FormStatus)
		formDate   = t.Index(cols.FormDate)
		timeIn     = t.Index(cols.TimeIn)
		timeOut    = t.Index(cols.TimeOut)
		dateOut    = t.Index(cols.DateOut)
		travel     = t.Index(cols.TravelTime)
	)

	out := &Normalized{Records: make([]Record, 0, len(t.Rows))}
	for i, row := range t.Rows {
		rec := Record{
			Row:           i,
			ClinicianID:   sheet.Cell(row, clinician),
			PatientMRN:    normalizeMRN(sheet.Cell(row, mrn)),
			FormStatus:    sheet.Cell(row, formStatus),
			TravelMinutes: sheet.ParseMinutes(sheet.Cell(row, travel)),
			Source:        row,
		}

		var ok [4]bool
		rec.FormDate, ok[0] = sheet.ParseDate(sheet.Cell(row, formDate))
		rec.DateOut, ok[1] = sheet.ParseDate(sheet.Cell(row, dateOut))
		rec.TimeIn, ok[2] = sheet.ParseClock(sheet.Cell(row, timeIn))
		rec.TimeOut, ok[3] = sheet.ParseClock(sheet.Cell(row, timeOut))

		if rec.ClinicianID == "" || rec.PatientMRN == "" || !ok[0] || !ok[1] || !ok[2] || !ok[3] {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// normalizeMRN renders integral MRNs without a fractional part so "12345"
// and "12345.0" identify the same patient.
func normalizeMRN(s string) string {
	if n, ok := sheet.ParseInteger(s); ok {
		return strconv.FormatInt(n, 10)
	}
	return s
}
