package visit

import (
	"fmt"
	"strings"
	"time"
)

// Columns maps the semantic visit fields onto the header names of a visit
// report. FormStatus and TravelTime are optional in the source.
type Columns struct {
	Clinician  string
	PatientMRN string
	FormStatus string
	FormDate   string
	TimeIn     string
	TimeOut    string
	DateOut    string
	TravelTime string
}

// DefaultColumns returns the header names used by the EMR's Visit Report
// export.
func DefaultColumns() Columns {
	return Columns{
		Clinician:  "User",
		PatientMRN: "MR#",
		FormStatus: "Form Status",
		FormDate:   "Form Date",
		TimeIn:     "Time In",
		TimeOut:    "Time Out",
		DateOut:    "Date Out",
		TravelTime: "Travel Time",
	}
}

// Required lists the columns a visit report must have.
func (c Columns) Required() []string {
	return []string{c.Clinician, c.PatientMRN, c.FormDate, c.TimeIn, c.TimeOut, c.DateOut}
}

// Record is one visit row that survived normalization.
type Record struct {
	// Row is the zero-based position of the source row among the table's
	// data rows.
	Row           int
	ClinicianID   string
	PatientMRN    string
	FormStatus    string
	FormDate      time.Time
	DateOut       time.Time
	TimeIn        time.Duration
	TimeOut       time.Duration
	TravelMinutes int
	// Source holds every cell of the original row, all columns.
	Source []string
}

// Start is the moment the clinician's visit effectively began: the clock-in
// on DateOut less the travel time that preceded it.
func (r Record) Start() time.Time {
	return r.DateOut.Add(r.TimeIn - time.Duration(r.TravelMinutes)*time.Minute)
}

// End is the clock-out on DateOut.
func (r Record) End() time.Time {
	return r.DateOut.Add(r.TimeOut)
}

// Key identifies the record by the content of its source row.
func (r Record) Key() string {
	return strings.Join(r.Source, "\x1f")
}

// MalformedInputError reports a source table that could not be turned into
// visit rows at all.
type MalformedInputError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed input"
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}
