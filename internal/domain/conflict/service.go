package conflict

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/visitaudit/internal/domain/visit"
	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// Options configures an audit.
type Options struct {
	Columns visit.Columns
	// Sheet is the worksheet to audit. When it is not in the workbook the
	// first sheet is read instead, unless RequireSheet is set.
	Sheet        string
	RequireSheet bool
	HeaderRow    int
	OutputSheet  string
	Mode         Mode
	// Progress is cosmetic; it is told how many groups have been scanned.
	Progress func(done, total int)
}

// DefaultOptions audits the "Visit Report Data" sheet of an EMR export, or
// the first sheet of any other workbook, with the adjacent sweep.
func DefaultOptions() Options {
	return Options{
		Columns:     visit.DefaultColumns(),
		Sheet:       "Visit Report Data",
		OutputSheet: DefaultOutputSheet,
		Mode:        ModeAdjacent,
	}
}

// Service runs visit-time conflict audits.
type Service struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new audit service.
func NewService(opts Options, logger zerolog.Logger) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeAdjacent
	}
	if opts.OutputSheet == "" {
		opts.OutputSheet = DefaultOutputSheet
	}
	return &Service{opts: opts, logger: logger, now: time.Now}
}

// Evaluate audits an in-memory table without touching the filesystem.
func (s *Service) Evaluate(t *sheet.Table) (*Result, error) {
	res := &Result{
		RunID:       uuid.New(),
		Mode:        s.opts.Mode,
		RowsRead:    t.Len(),
		GeneratedAt: s.now(),
	}
	log := s.logger.With().Str("run_id", res.RunID.String()).Logger()

	norm, err := visit.Normalize(t, s.opts.Columns)
	if err != nil {
		return nil, err
	}
	res.RowsSkipped = norm.Skipped
	if norm.Skipped > 0 {
		log.Debug().Int("skipped", norm.Skipped).Msg("dropped rows with missing or unparsable fields")
	}

	res.Conflicts, res.Groups = Detect(norm.Records, s.opts.Mode, s.opts.Progress)
	res.Status = StatusConflictsFound
	if len(res.Conflicts) == 0 {
		res.Status = StatusNoConflicts
	}

	log.Info().
		Int("rows", res.RowsRead).
		Int("skipped", res.RowsSkipped).
		Int("groups", res.Groups).
		Int("conflicts", len(res.Conflicts)).
		Str("mode", string(res.Mode)).
		Msg("conflict scan complete")
	return res, nil
}

// Run audits the visit report at input and writes the conflict report to
// output. A blank output places the report next to the input. An unreadable
// input is a *visit.MalformedInputError; zero conflicts is not an error and
// still writes a header-only report.
func (s *Service) Run(input, output string) (*Result, error) {
	t, err := visit.Load(input, sheet.ReadOptions{
		Sheet:              s.opts.Sheet,
		FirstSheetFallback: !s.opts.RequireSheet,
		HeaderRow:          s.opts.HeaderRow,
	})
	if err != nil {
		return nil, err
	}

	res, err := s.Evaluate(t)
	if err != nil {
		var malformed *visit.MalformedInputError
		if errors.As(err, &malformed) && malformed.Source == "" {
			malformed.Source = filepath.Base(input)
		}
		return nil, err
	}
	res.Input = input

	if output == "" {
		output = DefaultOutputPath(input, "")
	}
	if err := sheet.Write(output, ReportTable(t.Header, res.Conflicts), s.opts.OutputSheet); err != nil {
		return nil, fmt.Errorf("write conflict report: %w", err)
	}
	res.Output = output

	s.logger.Info().
		Str("run_id", res.RunID.String()).
		Str("input", input).
		Str("output", output).
		Str("status", string(res.Status)).
		Msg("conflict report written")
	return res, nil
}
