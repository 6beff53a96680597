package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ehr/visitaudit/internal/config"
	"github.com/ehr/visitaudit/internal/domain/conflict"
	"github.com/ehr/visitaudit/internal/domain/consolidate"
	"github.com/ehr/visitaudit/internal/domain/visit"
	"github.com/ehr/visitaudit/internal/domain/visitcount"
	"github.com/ehr/visitaudit/internal/platform/sheet"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), ".env")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeVisitReport(t *testing.T, dir string, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(dir, "visits.xlsx")
	tbl := &sheet.Table{
		Header: []string{"User", "MR#", "Form Status", "Form Date", "Time In", "Time Out", "Date Out", "Travel Time", "User Type"},
		Rows:   rows,
	}
	if err := sheet.Write(path, tbl, "Visit Report Data"); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestConfigDefaultsMatchDomainDefaults(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatal(err)
	}
	if got := visitColumns(cfg); got != visit.DefaultColumns() {
		t.Errorf("visit columns = %+v, want %+v", got, visit.DefaultColumns())
	}
	if got := countColumns(cfg); got != visitcount.DefaultColumns() {
		t.Errorf("count columns = %+v, want %+v", got, visitcount.DefaultColumns())
	}

	opts := conflict.DefaultOptions()
	if mode, _ := conflict.ParseMode(cfg.SweepMode); mode != opts.Mode {
		t.Errorf("SWEEP_MODE = %q, want %q", cfg.SweepMode, opts.Mode)
	}
	if cfg.VisitSheet != opts.Sheet || cfg.ConflictSheet != conflict.DefaultOutputSheet || cfg.ConflictOutput != conflict.DefaultOutputName {
		t.Errorf("conflict defaults = %q %q %q", cfg.VisitSheet, cfg.ConflictSheet, cfg.ConflictOutput)
	}
	if cfg.VisitReportPrefix != consolidate.DefaultMarker || cfg.DownloadHeaderRow != consolidate.DefaultHeaderRow ||
		cfg.CombinedOutput != consolidate.DefaultOutputName || cfg.CombinedSheet != consolidate.DefaultOutputSheet ||
		cfg.DashboardSheet != consolidate.DefaultDashboardSheet {
		t.Errorf("consolidate defaults = %+v", cfg)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "visit-audit dev\n" {
		t.Errorf("got %q", out)
	}
}

func TestConflicts_WritesReport(t *testing.T) {
	dir := t.TempDir()
	input := writeVisitReport(t, dir,
		[]string{"J.Smith", "100", "Completed", "2025-01-10", "09:00:00", "10:00:00", "2025-01-10", "0", "RN"},
		[]string{"J.Smith", "101", "Completed", "2025-01-10", "09:30:00", "11:00:00", "2025-01-10", "0", "RN"},
		[]string{"J.Smith", "102", "Completed", "2025-01-10", "11:30:00", "12:00:00", "2025-01-10", "0", "RN"},
	)

	out, stderr, err := execute(t, "conflicts", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := filepath.Join(dir, "conflicting_visits_report.xlsx")
	if !strings.Contains(out, "2 conflicting visit(s)") || !strings.Contains(out, report) {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(stderr, "100%") {
		t.Errorf("expected progress bar on stderr, got %q", stderr)
	}

	got, err := sheet.Read(report, sheet.ReadOptions{Sheet: "Visit Time Conflicts"})
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if got.Len() != 2 {
		t.Errorf("report rows = %d, want 2", got.Len())
	}
}

func TestConflicts_QuietAndExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeVisitReport(t, dir,
		[]string{"J.Smith", "100", "Completed", "2025-01-10", "09:00:00", "10:00:00", "2025-01-10", "0", "RN"},
		[]string{"J.Smith", "101", "Completed", "2025-01-10", "10:30:00", "11:00:00", "2025-01-10", "0", "RN"},
	)
	output := filepath.Join(dir, "out", "report.csv")

	out, stderr, err := execute(t, "conflicts", input, "--quiet", "--output", output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "No conflicting visits found.\n" {
		t.Errorf("stdout = %q", out)
	}
	if stderr != "" {
		t.Errorf("expected silent stderr, got %q", stderr)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("expected report at %s: %v", output, err)
	}
	if !strings.HasPrefix(string(data), "User,MR#") {
		t.Errorf("report = %q", data)
	}
}

func TestConflicts_OverlapMode(t *testing.T) {
	dir := t.TempDir()
	input := writeVisitReport(t, dir,
		[]string{"J.Smith", "100", "Completed", "2025-01-10", "08:00:00", "12:00:00", "2025-01-10", "0", "RN"},
		[]string{"J.Smith", "101", "Completed", "2025-01-10", "09:00:00", "09:30:00", "2025-01-10", "0", "RN"},
		[]string{"J.Smith", "102", "Completed", "2025-01-10", "10:00:00", "10:30:00", "2025-01-10", "0", "RN"},
	)

	adjacent, _, err := execute(t, "conflicts", input, "-q")
	if err != nil {
		t.Fatal(err)
	}
	overlap, _, err := execute(t, "conflicts", input, "-q", "--mode", "overlap")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(adjacent, "2 conflicting") {
		t.Errorf("adjacent stdout = %q", adjacent)
	}
	if !strings.HasPrefix(overlap, "3 conflicting") {
		t.Errorf("overlap stdout = %q", overlap)
	}
}

func TestConflicts_Errors(t *testing.T) {
	dir := t.TempDir()
	input := writeVisitReport(t, dir)

	if _, _, err := execute(t, "conflicts", input, "--mode", "pairwise"); err == nil {
		t.Error("expected error for unknown mode")
	}

	_, stderr, err := execute(t, "conflicts", filepath.Join(dir, "absent.xlsx"), "-q")
	var malformed *visit.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("expected error on stderr, got %q", stderr)
	}

	if _, _, err := execute(t, "conflicts"); err == nil {
		t.Error("expected error without an input argument")
	}
}

func TestCount_PrintsTally(t *testing.T) {
	dir := t.TempDir()
	input := writeVisitReport(t, dir,
		[]string{"J.Smith", "100", "Completed", "01/05/2025", "09:00:00", "10:00:00", "01/05/2025", "0", "RN"},
		[]string{"A.Jones", "100", "Completed", "01/06/2025", "09:00:00", "10:00:00", "01/06/2025", "0", "PT"},
		[]string{"A.Jones", "200", "Completed", "01/06/2025", "09:00:00", "10:00:00", "01/06/2025", "0", "PT"},
	)

	out, _, err := execute(t, "count", input, "--mrn", "100", "--soc", "01/01/2025", "--dc", "01/31/2025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"MR#: 100", "PT: 1", "RN: 1", "Total visits: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestCount_RequiresFlags(t *testing.T) {
	input := writeVisitReport(t, t.TempDir())
	if _, _, err := execute(t, "count", input, "--soc", "01/01/2025"); err == nil {
		t.Error("expected error without --mrn")
	}
	if _, _, err := execute(t, "count", input, "--mrn", "A1", "--soc", "01/01/2025"); err == nil {
		t.Error("expected error for non-numeric MR#")
	}
}

func TestConsolidate_NoVisitReports(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	out, _, err := execute(t, "consolidate", "--source", src, "--dest", dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No valid 'Visit Report - ' .xls files") {
		t.Errorf("stdout = %q", out)
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConsolidateThenConflicts(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	copyFile(t, filepath.Join("..", "..", "internal", "platform", "sheet", "testdata", "visit_report.xls"),
		filepath.Join(src, "Visit Report - North.xls"))

	out, _, err := execute(t, "consolidate", "--source", src, "--dest", dest)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	combined := filepath.Join(dest, "Combined_Visit_Reports.xlsx")
	if !strings.Contains(out, combined) || !strings.Contains(out, "rows: 3, columns: 11") {
		t.Fatalf("consolidate stdout = %q", out)
	}

	out, _, err = execute(t, "conflicts", combined, "-q")
	if err != nil {
		t.Fatalf("conflicts on combined workbook: %v", err)
	}
	if !strings.HasPrefix(out, "2 conflicting visit(s)") {
		t.Errorf("conflicts stdout = %q", out)
	}

	report, err := sheet.Read(filepath.Join(dest, "conflicting_visits_report.xlsx"), sheet.ReadOptions{})
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	notes := report.Index("Unnamed: 8")
	if notes < 0 || report.Len() != 2 || report.Rows[1][notes] != "x" {
		t.Errorf("report = %q / %q", report.Header, report.Rows)
	}

	if _, _, err := execute(t, "conflicts", combined, "-q", "--sheet", "Visit Report Data"); err == nil {
		t.Error("expected an explicit missing sheet to fail")
	}
}

func TestConsolidate_RequiresFolders(t *testing.T) {
	if _, _, err := execute(t, "consolidate", "--source", t.TempDir()); err == nil {
		t.Error("expected error without --dest")
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressBar(&buf, "Scanning")
	p.Update(1, 4)
	p.Update(1, 4)
	p.Update(4, 4)

	got := buf.String()
	if strings.Count(got, "\r") != 2 {
		t.Errorf("expected two redraws, got %q", got)
	}
	if !strings.Contains(got, " 25% (1/4)") || !strings.HasSuffix(got, "100% (4/4)\n") {
		t.Errorf("got %q", got)
	}
}
