// Package visitcount tallies a patient's visits between Start of Care and
// Discharge, grouped by the clinician's user type (RN, LVN, PT, ...).
package visitcount

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/visitaudit/internal/domain/visit"
	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// InputDateLayout is the format coordinators type SOC and DC dates in.
// Parsing also accepts single-digit months and days.
const InputDateLayout = "01/02/2006"

const parseDateLayout = "1/2/2006"

// UnknownUserType labels visits whose user type cell is blank.
const UnknownUserType = "Unknown"

// Validation errors for count requests.
var (
	ErrInvalidMRN   = errors.New("MR# must be numeric (digits only)")
	ErrInvalidDate  = errors.New("date must be in mm/dd/yyyy format")
	ErrInvalidRange = errors.New("DC date must be the same as or after SOC date")
)

// Columns names the report columns the counter reads.
type Columns struct {
	PatientMRN string
	UserType   string
	VisitDate  string
}

// DefaultColumns counts by "Form Date"; "Day of Visit" is the usual
// alternative.
func DefaultColumns() Columns {
	return Columns{PatientMRN: "MR#", UserType: "User Type", VisitDate: "Form Date"}
}

// Request selects one patient's episode of care.
type Request struct {
	MRN int64
	SOC time.Time
	DC  time.Time
}

// ParseRequest validates raw user input. A blank dc defaults to today.
func ParseRequest(mrn, soc, dc string, today time.Time) (Request, error) {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" || strings.Trim(mrn, "0123456789") != "" {
		return Request{}, ErrInvalidMRN
	}
	n, ok := sheet.ParseInteger(mrn)
	if !ok {
		return Request{}, ErrInvalidMRN
	}

	socDate, err := time.Parse(parseDateLayout, strings.TrimSpace(soc))
	if err != nil {
		return Request{}, fmt.Errorf("SOC date %q: %w", soc, ErrInvalidDate)
	}

	dcDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if strings.TrimSpace(dc) != "" {
		dcDate, err = time.Parse(parseDateLayout, strings.TrimSpace(dc))
		if err != nil {
			return Request{}, fmt.Errorf("DC date %q: %w", dc, ErrInvalidDate)
		}
	}

	if dcDate.Before(socDate) {
		return Request{}, ErrInvalidRange
	}
	return Request{MRN: n, SOC: socDate, DC: dcDate}, nil
}

// TypeCount is the number of visits by one user type.
type TypeCount struct {
	UserType string
	Visits   int
}

// Result is the tally for one request.
type Result struct {
	Request Request
	Counts  []TypeCount
	Total   int
}

// Lines renders the result the way the coordinator reads it.
func (r *Result) Lines() []string {
	if r.Total == 0 {
		return []string{"No visits found for the specified MR# and date range."}
	}
	lines := []string{
		fmt.Sprintf("MR#: %d", r.Request.MRN),
		fmt.Sprintf("SOC: %s  DC: %s", r.Request.SOC.Format(InputDateLayout), r.Request.DC.Format(InputDateLayout)),
		"",
	}
	for _, c := range r.Counts {
		lines = append(lines, fmt.Sprintf("%s: %d", c.UserType, c.Visits))
	}
	lines = append(lines, "", fmt.Sprintf("Total visits: %d", r.Total))
	return lines
}

// Service counts visits in visit report tables.
type Service struct {
	cols   Columns
	logger zerolog.Logger
}

// NewService creates a new visit counter.
func NewService(cols Columns, logger zerolog.Logger) *Service {
	return &Service{cols: cols, logger: logger}
}

// Count tallies visits in t matching req. Rows whose MRN or date cannot be
// parsed are ignored. Both ends of the range are inclusive whole days.
func (s *Service) Count(t *sheet.Table, req Request) (*Result, error) {
	if missing := t.Missing(s.cols.PatientMRN, s.cols.UserType, s.cols.VisitDate); len(missing) > 0 {
		return nil, &visit.MalformedInputError{
			Reason: fmt.Sprintf("missing required column(s): %s; columns found: %s",
				strings.Join(missing, ", "), strings.Join(t.Header, ", ")),
		}
	}
	mrnIdx := t.Index(s.cols.PatientMRN)
	typeIdx := t.Index(s.cols.UserType)
	dateIdx := t.Index(s.cols.VisitDate)

	byType := map[string]int{}
	total := 0
	for _, row := range t.Rows {
		mrn, ok := sheet.ParseInteger(sheet.Cell(row, mrnIdx))
		if !ok || mrn != req.MRN {
			continue
		}
		date, ok := sheet.ParseDate(sheet.Cell(row, dateIdx))
		if !ok || date.Before(req.SOC) || date.After(req.DC) {
			continue
		}
		userType := sheet.Cell(row, typeIdx)
		if userType == "" {
			userType = UnknownUserType
		}
		byType[userType]++
		total++
	}

	res := &Result{Request: req, Total: total}
	for userType, n := range byType {
		res.Counts = append(res.Counts, TypeCount{UserType: userType, Visits: n})
	}
	sort.Slice(res.Counts, func(i, j int) bool {
		return res.Counts[i].UserType < res.Counts[j].UserType
	})

	s.logger.Info().
		Int64("mrn", req.MRN).
		Str("soc", req.SOC.Format(InputDateLayout)).
		Str("dc", req.DC.Format(InputDateLayout)).
		Int("total", total).
		Msg("visit count complete")
	return res, nil
}

// CountFile loads the visit report at path and counts it. Legacy .xls
// reports are always read from their first sheet.
func (s *Service) CountFile(path string, opts sheet.ReadOptions, req Request) (*Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		opts.Sheet = ""
	}
	t, err := visit.Load(path, opts)
	if err != nil {
		return nil, err
	}
	res, err := s.Count(t, req)
	var malformed *visit.MalformedInputError
	if errors.As(err, &malformed) && malformed.Source == "" {
		malformed.Source = filepath.Base(path)
	}
	return res, err
}
