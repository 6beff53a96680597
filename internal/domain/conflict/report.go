package conflict

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/visitaudit/internal/domain/visit"
	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// Default report location and worksheet, matching what coordinators expect
// to find next to the audited visit report.
const (
	DefaultOutputName  = "conflicting_visits_report.xlsx"
	DefaultOutputSheet = "Visit Time Conflicts"
)

const timestampLayout = "2006-01-02 15:04:05"

// Status tells a finished run with conflicts apart from a clean one.
type Status string

const (
	StatusConflictsFound Status = "conflicts_found"
	StatusNoConflicts    Status = "no_conflicts"
)

// Result describes one audit run.
type Result struct {
	RunID       uuid.UUID
	Input       string
	Output      string
	Mode        Mode
	RowsRead    int
	RowsSkipped int
	Groups      int
	Conflicts   []visit.Record
	Status      Status
	GeneratedAt time.Time
}

// Message is the human-readable status line for the run.
func (r *Result) Message() string {
	if r.Status == StatusNoConflicts {
		return "No conflicting visits found."
	}
	msg := fmt.Sprintf("%d conflicting visit(s) found across %d clinician-day group(s).", len(r.Conflicts), r.Groups)
	if r.Output != "" {
		msg += " Report saved to: " + r.Output
	}
	return msg
}

// ReportTable lays the flagged visits out with the source header followed by
// the computed Start and End columns. The table has a header even when there
// are no conflicts.
func ReportTable(header []string, conflicts []visit.Record) *sheet.Table {
	t := &sheet.Table{
		Header: append(append([]string{}, header...), "Start", "End"),
		Rows:   make([][]string, 0, len(conflicts)),
	}
	for _, r := range conflicts {
		row := make([]string, 0, len(header)+2)
		row = append(row, r.Source...)
		for len(row) < len(header) {
			row = append(row, "")
		}
		row = append(row, r.Start().Format(timestampLayout), r.End().Format(timestampLayout))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// DefaultOutputPath places name in the directory of the audited file.
func DefaultOutputPath(input, name string) string {
	if name == "" {
		name = DefaultOutputName
	}
	return filepath.Join(filepath.Dir(input), name)
}
