package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"redcapgrade/internal/redcap"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in
	// sync:
	// - CLI flags in internal/cli/grade.go (and applyFlagOverrides)
	// - koanf keys in the example config in internal/cli/root.go help text
	REDCap   REDCap   `koanf:"redcap"`
	Database Database `koanf:"database"`
	Output   Output   `koanf:"output"`
	Runtime  Runtime  `koanf:"runtime"`
}

type REDCap struct {
	// URL is the REDCap API endpoint, e.g. https://redcap.example.org/api/ (see --url).
	URL string `koanf:"url"`

	// MasterToken is the API token of the instructor's reference project
	// (see --master-token). Falls back to REDCAP_MASTER_TOKEN.
	MasterToken string `koanf:"master_token"`

	// StudentTokens are the API tokens of the projects to grade, one per
	// student (see --tokens). Comma-separated values are accepted.
	StudentTokens []string `koanf:"student_tokens"`

	// TokensFile adds student tokens from a file, one per line (see --tokens-file).
	TokensFile string `koanf:"tokens_file"`

	// RateLimit caps API requests per minute (see --rate-limit). 0 disables throttling.
	RateLimit int `koanf:"rate_limit"`

	// DuplicateTokens counts repeated student tokens dropped by Validate.
	DuplicateTokens int `koanf:"-"`
}

type Database struct {
	// Driver is the database/sql driver: mysql or sqlite (see --db-driver).
	Driver string `koanf:"driver"`

	// DSN is a full data source name; when empty one is built from the
	// host/name/user/password parts (mysql only).
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Table holds the data quality rules (see --dqr-table).
	Table string `koanf:"table"`
}

type Output struct {
	// Dir receives every artifact (see --out-dir).
	Dir string `koanf:"dir"`

	// Cohort prefixes the report file names: <cohort>_grades.csv and
	// <cohort>_dqr.csv (see --cohort).
	Cohort string `koanf:"cohort"`

	// ConsoleFormat controls stdout (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `koanf:"console_format"`

	// NoConsole suppresses stdout output (see --no-console).
	NoConsole bool `koanf:"no_console"`

	// SkipDictionaries disables the per-project dictionary downloads (see --skip-dictionaries).
	SkipDictionaries bool `koanf:"skip_dictionaries"`

	// MetricsFile writes Prometheus metrics in textfile format (see --metrics-file).
	MetricsFile string `koanf:"metrics_file"`
}

type Runtime struct {
	// Concurrency is how many students are graded at once (see --concurrency).
	// Must be >= 1.
	Concurrency int `koanf:"concurrency"`

	// Timeout bounds the whole run (see --timeout). Must be > 0.
	Timeout time.Duration `koanf:"timeout"`

	// Verbose logs every API call (see --verbose).
	Verbose bool `koanf:"verbose"`

	// LogFormat is console or json (see --log-format).
	LogFormat string `koanf:"log_format"`
}

func New() *Config {
	return &Config{
		REDCap: REDCap{
			RateLimit: 600,
		},
		Database: Database{
			Driver: "mysql",
			Table:  "redcap_data_quality_rules",
		},
		Output: Output{
			Dir:           "downloads",
			Cohort:        "mgh_2020",
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 1,
			Timeout:     30 * time.Minute,
			LogFormat:   "console",
		},
	}
}

// GradesPath is where the grade table is written.
func (c *Config) GradesPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Cohort+"_grades.csv")
}

// DQRPath is where the filtered quality rules are written.
func (c *Config) DQRPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Cohort+"_dqr.csv")
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	students := splitCommaList(c.REDCap.StudentTokens)
	c.REDCap.StudentTokens = redcap.DedupeTokens(students)
	c.REDCap.DuplicateTokens = len(students) - len(c.REDCap.StudentTokens)
	c.REDCap.MasterToken = strings.TrimSpace(c.REDCap.MasterToken)

	// REDCap validation
	apiURL, err := NormalizeAPIURL(c.REDCap.URL)
	if err != nil {
		return fmt.Errorf("invalid --url value: %w", err)
	}
	c.REDCap.URL = apiURL

	if c.REDCap.MasterToken == "" {
		return errors.New("a master token is required (--master-token or REDCAP_MASTER_TOKEN)")
	}
	if err := redcap.ValidateToken(c.REDCap.MasterToken); err != nil {
		return fmt.Errorf("invalid master token: %w", err)
	}
	if len(c.REDCap.StudentTokens) == 0 {
		return errors.New("at least one student token is required (--tokens or --tokens-file)")
	}
	for i, tok := range c.REDCap.StudentTokens {
		if err := redcap.ValidateToken(tok); err != nil {
			return fmt.Errorf("invalid student token #%d: %w", i+1, err)
		}
	}
	if c.REDCap.RateLimit < 0 {
		return errors.New("--rate-limit must be >= 0")
	}

	// Database validation
	c.Database.Driver = normalizeEnumValue(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported --db-driver: %s (must be one of: mysql, sqlite)", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" && c.Database.Host != "" {
		return errors.New("--db-driver sqlite needs --db-dsn")
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if strings.TrimSpace(c.Database.Table) == "" {
		c.Database.Table = "redcap_data_quality_rules"
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("--out-dir must not be empty")
	}
	c.Output.Cohort = strings.TrimSpace(c.Output.Cohort)
	if c.Output.Cohort == "" {
		return errors.New("--cohort must not be empty")
	}
	if strings.ContainsAny(c.Output.Cohort, `/\`) {
		return fmt.Errorf("--cohort must not contain path separators: %q", c.Output.Cohort)
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "console"
	}
	if c.Runtime.LogFormat != "console" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: console, json)", c.Runtime.LogFormat)
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeAPIURL accepts a REDCap base URL with or without the /api/
// suffix, e.g. https://redcap.example.org or https://redcap.example.org/api.
func NormalizeAPIURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("REDCap API URL is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%q", raw)
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, "/api") {
		path += "/api"
	}
	u.Path = path + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
