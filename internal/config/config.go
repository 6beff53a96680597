package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	SweepMode      string `mapstructure:"SWEEP_MODE"`
	VisitSheet     string `mapstructure:"VISIT_SHEET"`
	ConflictSheet  string `mapstructure:"CONFLICT_SHEET"`
	ConflictOutput string `mapstructure:"CONFLICT_OUTPUT"`

	ColumnClinician  string `mapstructure:"COLUMN_CLINICIAN"`
	ColumnMRN        string `mapstructure:"COLUMN_MRN"`
	ColumnFormStatus string `mapstructure:"COLUMN_FORM_STATUS"`
	ColumnFormDate   string `mapstructure:"COLUMN_FORM_DATE"`
	ColumnTimeIn     string `mapstructure:"COLUMN_TIME_IN"`
	ColumnTimeOut    string `mapstructure:"COLUMN_TIME_OUT"`
	ColumnDateOut    string `mapstructure:"COLUMN_DATE_OUT"`
	ColumnTravelTime string `mapstructure:"COLUMN_TRAVEL_TIME"`
	ColumnUserType   string `mapstructure:"COLUMN_USER_TYPE"`
	CountDateColumn  string `mapstructure:"COUNT_DATE_COLUMN"`

	VisitReportPrefix string `mapstructure:"VISIT_REPORT_PREFIX"`
	DownloadHeaderRow int    `mapstructure:"DOWNLOAD_HEADER_ROW"`
	CombinedOutput    string `mapstructure:"COMBINED_OUTPUT"`
	CombinedSheet     string `mapstructure:"COMBINED_SHEET"`
	DashboardSheet    string `mapstructure:"DASHBOARD_SHEET"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"SWEEP_MODE", "VISIT_SHEET", "CONFLICT_SHEET", "CONFLICT_OUTPUT",
	"COLUMN_CLINICIAN", "COLUMN_MRN", "COLUMN_FORM_STATUS", "COLUMN_FORM_DATE",
	"COLUMN_TIME_IN", "COLUMN_TIME_OUT", "COLUMN_DATE_OUT", "COLUMN_TRAVEL_TIME",
	"COLUMN_USER_TYPE", "COUNT_DATE_COLUMN",
	"VISIT_REPORT_PREFIX", "DOWNLOAD_HEADER_ROW", "COMBINED_OUTPUT", "COMBINED_SHEET", "DASHBOARD_SHEET",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SWEEP_MODE", "adjacent")
	v.SetDefault("VISIT_SHEET", "Visit Report Data")
	v.SetDefault("CONFLICT_SHEET", "Visit Time Conflicts")
	v.SetDefault("CONFLICT_OUTPUT", "conflicting_visits_report.xlsx")
	v.SetDefault("COLUMN_CLINICIAN", "User")
	v.SetDefault("COLUMN_MRN", "MR#")
	v.SetDefault("COLUMN_FORM_STATUS", "Form Status")
	v.SetDefault("COLUMN_FORM_DATE", "Form Date")
	v.SetDefault("COLUMN_TIME_IN", "Time In")
	v.SetDefault("COLUMN_TIME_OUT", "Time Out")
	v.SetDefault("COLUMN_DATE_OUT", "Date Out")
	v.SetDefault("COLUMN_TRAVEL_TIME", "Travel Time")
	v.SetDefault("COLUMN_USER_TYPE", "User Type")
	v.SetDefault("COUNT_DATE_COLUMN", "Form Date")
	v.SetDefault("VISIT_REPORT_PREFIX", "Visit Report - ")
	v.SetDefault("DOWNLOAD_HEADER_ROW", 5)
	v.SetDefault("COMBINED_OUTPUT", "Combined_Visit_Reports.xlsx")
	v.SetDefault("COMBINED_SHEET", "Visit Reports")
	v.SetDefault("DASHBOARD_SHEET", "Patient Dashboard - Active")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading the env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the column mapping is usable and the sweep mode is
// known.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.SweepMode)) {
	case "", "adjacent", "overlap":
	default:
		return fmt.Errorf("SWEEP_MODE must be \"adjacent\" or \"overlap\", got %q", c.SweepMode)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel))); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}

	required := []struct{ key, name string }{
		{"COLUMN_CLINICIAN", c.ColumnClinician},
		{"COLUMN_MRN", c.ColumnMRN},
		{"COLUMN_FORM_DATE", c.ColumnFormDate},
		{"COLUMN_TIME_IN", c.ColumnTimeIn},
		{"COLUMN_TIME_OUT", c.ColumnTimeOut},
		{"COLUMN_DATE_OUT", c.ColumnDateOut},
	}
	seen := map[string]string{}
	for _, r := range required {
		name := strings.TrimSpace(r.name)
		if name == "" {
			return fmt.Errorf("%s must not be empty", r.key)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s both map to column %q", other, r.key, name)
		}
		seen[name] = r.key
	}

	if c.DownloadHeaderRow < 0 {
		return fmt.Errorf("DOWNLOAD_HEADER_ROW must be zero or positive, got %d", c.DownloadHeaderRow)
	}
	return nil
}
