package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/visitaudit/internal/config"
	"github.com/ehr/visitaudit/internal/domain/conflict"
	"github.com/ehr/visitaudit/internal/domain/consolidate"
	"github.com/ehr/visitaudit/internal/domain/visit"
	"github.com/ehr/visitaudit/internal/domain/visitcount"
	"github.com/ehr/visitaudit/internal/platform/sheet"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand shares: where to print and where the
// env file lives.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	envFile string
	now     func() time.Time
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, now: time.Now}

	rootCmd := &cobra.Command{
		Use:          "visit-audit",
		Short:        "Home-health visit report auditing",
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Optional env file with configuration overrides")

	rootCmd.AddCommand(conflictsCmd(a))
	rootCmd.AddCommand(countCmd(a))
	rootCmd.AddCommand(consolidateCmd(a))
	rootCmd.AddCommand(versionCmd(a))

	return rootCmd
}

// setup loads and validates configuration and builds the logger the way
// every subcommand needs it.
func (a *app) setup(quiet bool) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFile(a.envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	// Logger
	logger := zerolog.New(a.stderr).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr}).With().Timestamp().Logger()
	}
	logger = logger.Level(cfg.Level())
	if quiet {
		logger = logger.Level(zerolog.WarnLevel)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return nil, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func visitColumns(cfg *config.Config) visit.Columns {
	return visit.Columns{
		Clinician:  cfg.ColumnClinician,
		PatientMRN: cfg.ColumnMRN,
		FormStatus: cfg.ColumnFormStatus,
		FormDate:   cfg.ColumnFormDate,
		TimeIn:     cfg.ColumnTimeIn,
		TimeOut:    cfg.ColumnTimeOut,
		DateOut:    cfg.ColumnDateOut,
		TravelTime: cfg.ColumnTravelTime,
	}
}

func countColumns(cfg *config.Config) visitcount.Columns {
	return visitcount.Columns{
		PatientMRN: cfg.ColumnMRN,
		UserType:   cfg.ColumnUserType,
		VisitDate:  cfg.CountDateColumn,
	}
}

func conflictsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts <visit-report>",
		Short: "Flag overlapping visits by the same clinician on the same day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")
			cfg, logger, err := a.setup(quiet)
			if err != nil {
				return err
			}

			opts := conflict.DefaultOptions()
			opts.Columns = visitColumns(cfg)
			opts.Sheet = cfg.VisitSheet
			opts.OutputSheet = cfg.ConflictSheet
			if cmd.Flags().Changed("sheet") {
				opts.Sheet, _ = cmd.Flags().GetString("sheet")
				opts.RequireSheet = true
			}

			modeName := cfg.SweepMode
			if cmd.Flags().Changed("mode") {
				modeName, _ = cmd.Flags().GetString("mode")
			}
			if opts.Mode, err = conflict.ParseMode(modeName); err != nil {
				return err
			}

			if !quiet {
				opts.Progress = newProgressBar(a.stderr, "Scanning").Update
			}

			input := args[0]
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = conflict.DefaultOutputPath(input, cfg.ConflictOutput)
			}

			res, err := conflict.NewService(opts, logger).Run(input, output)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, res.Message())
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Report path (default: next to the input)")
	cmd.Flags().String("mode", "", "Sweep mode: adjacent or overlap (default from SWEEP_MODE)")
	cmd.Flags().String("sheet", "", "Worksheet to audit; it must exist when given (default from VISIT_SHEET, else the first sheet)")
	cmd.Flags().BoolP("quiet", "q", false, "Suppress progress and informational logs")
	return cmd
}

func countCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <visit-report>",
		Short: "Count a patient's visits between SOC and DC by user type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mrn, _ := cmd.Flags().GetString("mrn")
			soc, _ := cmd.Flags().GetString("soc")
			dc, _ := cmd.Flags().GetString("dc")
			if mrn == "" || soc == "" {
				return fmt.Errorf("--mrn and --soc are required")
			}

			cfg, logger, err := a.setup(false)
			if err != nil {
				return err
			}

			req, err := visitcount.ParseRequest(mrn, soc, dc, a.now())
			if err != nil {
				return err
			}

			readOpts := sheet.ReadOptions{Sheet: cfg.VisitSheet, FirstSheetFallback: true}
			if cmd.Flags().Changed("sheet") {
				readOpts.Sheet, _ = cmd.Flags().GetString("sheet")
				readOpts.FirstSheetFallback = false
			}

			res, err := visitcount.NewService(countColumns(cfg), logger).CountFile(args[0], readOpts, req)
			if err != nil {
				return err
			}
			for _, line := range res.Lines() {
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}
	cmd.Flags().String("mrn", "", "Patient MR# (digits only)")
	cmd.Flags().String("soc", "", "Start of Care date ("+visitcount.InputDateLayout+")")
	cmd.Flags().String("dc", "", "Discharge date (default: today)")
	cmd.Flags().String("sheet", "", "Worksheet to read (default from VISIT_SHEET)")
	return cmd
}

func consolidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge downloaded visit reports and convert patient dashboards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup(false)
			if err != nil {
				return err
			}

			opts := consolidate.Options{
				OutputName:     cfg.CombinedOutput,
				OutputSheet:    cfg.CombinedSheet,
				DashboardSheet: cfg.DashboardSheet,
				Marker:         cfg.VisitReportPrefix,
				HeaderRow:      cfg.DownloadHeaderRow,
			}
			opts.SourceDir, _ = cmd.Flags().GetString("source")
			opts.DestDir, _ = cmd.Flags().GetString("dest")
			opts.DashboardDir, _ = cmd.Flags().GetString("dashboard-dest")
			opts.DeleteSources, _ = cmd.Flags().GetBool("delete-sources")
			opts.CleanDest, _ = cmd.Flags().GetBool("clean")
			if cmd.Flags().Changed("output") {
				opts.OutputName, _ = cmd.Flags().GetString("output")
			}

			sum, err := consolidate.NewService(nil, logger).Run(opts)
			if err != nil {
				return err
			}
			for _, name := range sum.Dashboards {
				fmt.Fprintf(a.stdout, "Converted dashboard: %s\n", name)
			}
			for _, f := range sum.Failures {
				fmt.Fprintf(a.stdout, "Skipped %s: %v\n", f.File, f.Err)
			}
			fmt.Fprintln(a.stdout, sum.Message())
			return nil
		},
	}
	cmd.Flags().String("source", "", "Folder holding the raw .xls downloads")
	cmd.Flags().String("dest", "", "Folder for the combined visit report")
	cmd.Flags().String("dashboard-dest", "", "Folder for converted dashboards (default: source)")
	cmd.Flags().String("output", "", "Combined workbook name (default from COMBINED_OUTPUT)")
	cmd.Flags().Bool("delete-sources", false, "Delete merged visit reports after writing")
	cmd.Flags().Bool("clean", false, "Empty the destination folder first")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "visit-audit %s\n", version)
		},
	}
}
