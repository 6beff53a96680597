// Package consolidate tidies a folder of raw EMR downloads: every
// "Visit Report - " workbook is merged into one combined workbook, and every
// "Patient Dashboard" workbook is converted to .xlsx with its sheet renamed.
package consolidate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// Defaults matching the agency's folder conventions.
const (
	DefaultOutputName     = "Combined_Visit_Reports.xlsx"
	DefaultOutputSheet    = "Visit Reports"
	DefaultDashboardSheet = "Patient Dashboard - Active"
	DefaultMarker         = "Visit Report - "
	DefaultHeaderRow      = 5

	dashboardMarker      = "Patient Dashboard"
	dashboardPendingName = "Patient Dashboard - Pending"
	dashboardActiveName  = "Patient Dashboard - Active"
)

// ReadFunc loads a table from disk. sheet.Read is the production reader.
type ReadFunc func(path string, opts sheet.ReadOptions) (*sheet.Table, error)

// Options configures a consolidation run.
type Options struct {
	SourceDir      string
	DestDir        string
	DashboardDir   string
	OutputName     string
	OutputSheet    string
	DashboardSheet string
	Marker         string
	// HeaderRow is where the header sits in raw visit reports.
	HeaderRow int
	// DeleteSources removes merged visit reports once the combined workbook
	// is written.
	DeleteSources bool
	// CleanDest empties DestDir before writing.
	CleanDest bool
}

func (o *Options) setDefaults() {
	if o.OutputName == "" {
		o.OutputName = DefaultOutputName
	}
	if o.OutputSheet == "" {
		o.OutputSheet = DefaultOutputSheet
	}
	if o.DashboardSheet == "" {
		o.DashboardSheet = DefaultDashboardSheet
	}
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.DashboardDir == "" {
		o.DashboardDir = o.SourceDir
	}
}

// Failure records a file that could not be processed.
type Failure struct {
	File string
	Err  error
}

// Summary describes what a run did. Combined is empty when no visit report
// could be read.
type Summary struct {
	Combined     string
	Rows         int
	Columns      int
	VisitReports []string
	Dashboards   []string
	Failures     []Failure
}

// Empty reports whether no combined workbook was produced.
func (s *Summary) Empty() bool {
	return s.Combined == ""
}

// Message is the human-readable outcome of the run.
func (s *Summary) Message() string {
	if s.Empty() {
		return "No valid 'Visit Report - ' .xls files were found/read for concatenation."
	}
	return fmt.Sprintf("Combined Visit Reports created: %s (rows: %d, columns: %d)", s.Combined, s.Rows, s.Columns)
}

// Service consolidates download folders.
type Service struct {
	read   ReadFunc
	logger zerolog.Logger
}

// NewService creates a consolidation service. A nil read uses sheet.Read.
func NewService(read ReadFunc, logger zerolog.Logger) *Service {
	if read == nil {
		read = sheet.Read
	}
	return &Service{read: read, logger: logger}
}

// Run processes the .xls files in opts.SourceDir. Individual file failures
// are collected in the summary; only setup problems and a failed write of
// the combined workbook are returned as errors.
func (s *Service) Run(opts Options) (*Summary, error) {
	opts.setDefaults()
	if opts.SourceDir == "" || opts.DestDir == "" {
		return nil, fmt.Errorf("source and destination folders are required")
	}
	if opts.CleanDest && filepath.Clean(opts.SourceDir) == filepath.Clean(opts.DestDir) {
		return nil, fmt.Errorf("refusing to clean destination %s: it is also the source folder", opts.DestDir)
	}

	for _, dir := range []string{opts.DestDir, opts.DashboardDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create folder %s: %w", dir, err)
		}
	}
	if opts.CleanDest {
		if err := s.clean(opts.DestDir); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("list source folder: %w", err)
	}

	sum := &Summary{}
	var (
		tables  []*sheet.Table
		sources []string
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.ToLower(filepath.Ext(name)) != ".xls" {
			continue
		}
		path := filepath.Join(opts.SourceDir, name)

		switch {
		case strings.Contains(name, dashboardMarker):
			if err := s.convertDashboard(path, opts); err != nil {
				s.logger.Warn().Err(err).Str("file", name).Msg("dashboard conversion failed")
				sum.Failures = append(sum.Failures, Failure{File: name, Err: err})
				continue
			}
			sum.Dashboards = append(sum.Dashboards, name)

		case strings.Contains(name, opts.Marker):
			t, err := s.read(path, sheet.ReadOptions{HeaderRow: opts.HeaderRow})
			if err != nil {
				s.logger.Warn().Err(err).Str("file", name).Msg("skipped visit report")
				sum.Failures = append(sum.Failures, Failure{File: name, Err: err})
				continue
			}
			t.Compact()
			s.logger.Info().Str("file", name).Int("rows", t.Len()).Msg("read visit report")
			tables = append(tables, t)
			sources = append(sources, path)
			sum.VisitReports = append(sum.VisitReports, name)
		}
	}

	if len(tables) == 0 {
		s.logger.Info().Msg("no visit reports to concatenate")
		return sum, nil
	}

	combined := sheet.Concat(tables...)
	out := filepath.Join(opts.DestDir, opts.OutputName)
	if err := sheet.Write(out, combined, opts.OutputSheet); err != nil {
		return sum, fmt.Errorf("write combined visit reports: %w", err)
	}
	sum.Combined = out
	sum.Rows = combined.Len()
	sum.Columns = len(combined.Header)
	s.logger.Info().Str("output", out).Int("rows", sum.Rows).Int("columns", sum.Columns).Msg("combined visit reports written")

	if opts.DeleteSources {
		for _, path := range sources {
			if err := os.Remove(path); err != nil {
				sum.Failures = append(sum.Failures, Failure{File: filepath.Base(path), Err: err})
				continue
			}
			s.logger.Debug().Str("file", filepath.Base(path)).Msg("deleted visit report source")
		}
	}
	return sum, nil
}

// dashboardSheet picks the sheet to convert from the download's file name.
// Blank means the first sheet.
func dashboardSheet(name string) string {
	switch {
	case strings.Contains(name, "Pending"):
		return dashboardPendingName
	case strings.Contains(name, "Active"):
		return dashboardActiveName
	default:
		return ""
	}
}

// convertDashboard writes the dashboard as .xlsx, confirms the copy can be
// read back and only then removes the original.
func (s *Service) convertDashboard(path string, opts Options) error {
	name := filepath.Base(path)
	t, err := s.read(path, sheet.ReadOptions{Sheet: dashboardSheet(name)})
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	out := filepath.Join(opts.DashboardDir, strings.TrimSuffix(name, filepath.Ext(name))+".xlsx")
	if err := sheet.Write(out, t, opts.DashboardSheet); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if _, err := s.read(out, sheet.ReadOptions{Sheet: opts.DashboardSheet}); err != nil {
		return fmt.Errorf("read back %s: %w", filepath.Base(out), err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	s.logger.Info().Str("file", name).Str("output", out).Msg("converted patient dashboard")
	return nil
}

func (s *Service) clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list destination folder: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("failed to clear destination entry")
		}
	}
	return nil
}
