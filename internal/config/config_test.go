package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const (
	master  = "0123456789ABCDEF0123456789ABCDEF"
	studA   = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	studB   = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	testURL = "https://redcap.example.org/api/"
)

func validConfig() *Config {
	cfg := New()
	cfg.REDCap.URL = testURL
	cfg.REDCap.MasterToken = master
	cfg.REDCap.StudentTokens = []string{studA}
	return cfg
}

func TestValidate_NormalizesCommaDelimitedTokens(t *testing.T) {
	cfg := validConfig()
	cfg.REDCap.StudentTokens = []string{studA + ", " + studB, studA, ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{studA, studB}
	if !reflect.DeepEqual(cfg.REDCap.StudentTokens, want) {
		t.Fatalf("StudentTokens normalized mismatch: got %v want %v", cfg.REDCap.StudentTokens, want)
	}
	if cfg.REDCap.DuplicateTokens != 1 {
		t.Fatalf("DuplicateTokens = %d, want 1", cfg.REDCap.DuplicateTokens)
	}
}

func TestValidate_NormalizesURL(t *testing.T) {
	tests := map[string]string{
		"https://redcap.example.org/api/":     testURL,
		"https://redcap.example.org/api":      testURL,
		"https://redcap.example.org":          testURL,
		"redcap.example.org/":                 testURL,
		" https://redcap.example.org/api/?x ": testURL,
		"http://localhost:8080/redcap/":       "http://localhost:8080/redcap/api/",
	}
	for in, want := range tests {
		cfg := validConfig()
		cfg.REDCap.URL = in
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(%q) error: %v", in, err)
		}
		if cfg.REDCap.URL != want {
			t.Fatalf("URL %q normalized to %q, want %q", in, cfg.REDCap.URL, want)
		}
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Runtime.Concurrency != 1 {
		t.Fatalf("default concurrency = %d, want 1 (sequential)", cfg.Runtime.Concurrency)
	}
	if got := cfg.GradesPath(); got != filepath.Join("downloads", "mgh_2020_grades.csv") {
		t.Fatalf("GradesPath = %q", got)
	}
	if got := cfg.DQRPath(); got != filepath.Join("downloads", "mgh_2020_dqr.csv") {
		t.Fatalf("DQRPath = %q", got)
	}
	if cfg.Database.Table != "redcap_data_quality_rules" {
		t.Fatalf("Table = %q", cfg.Database.Table)
	}
}

func TestValidate_NormalizesEnums(t *testing.T) {
	cfg := validConfig()
	cfg.Output.ConsoleFormat = " NDJSON "
	cfg.Database.Driver = "SQLite"
	cfg.Database.DSN = "rules.db"
	cfg.Runtime.LogFormat = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Output.ConsoleFormat != "ndjson" || cfg.Database.Driver != "sqlite" || cfg.Runtime.LogFormat != "console" {
		t.Fatalf("enums not normalized: %+v %+v %+v", cfg.Output, cfg.Database, cfg.Runtime)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "missing url", mutate: func(c *Config) { c.REDCap.URL = "" }, want: "--url"},
		{name: "missing master", mutate: func(c *Config) { c.REDCap.MasterToken = "" }, want: "master token is required"},
		{name: "bad master", mutate: func(c *Config) { c.REDCap.MasterToken = "xyz" }, want: "invalid master token"},
		{name: "no students", mutate: func(c *Config) { c.REDCap.StudentTokens = []string{" , "} }, want: "student token is required"},
		{name: "bad student", mutate: func(c *Config) { c.REDCap.StudentTokens = []string{studA, "nope"} }, want: "student token #2"},
		{name: "negative rate", mutate: func(c *Config) { c.REDCap.RateLimit = -1 }, want: "--rate-limit"},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, want: "--db-driver"},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Host = "h" }, want: "--db-dsn"},
		{name: "port", mutate: func(c *Config) { c.Database.Port = 70000 }, want: "port"},
		{name: "console format", mutate: func(c *Config) { c.Output.ConsoleFormat = "xml" }, want: "--console-format"},
		{name: "empty console format", mutate: func(c *Config) { c.Output.ConsoleFormat = " " }, want: "--console-format"},
		{name: "out dir", mutate: func(c *Config) { c.Output.Dir = "" }, want: "--out-dir"},
		{name: "cohort", mutate: func(c *Config) { c.Output.Cohort = "" }, want: "--cohort"},
		{name: "cohort separators", mutate: func(c *Config) { c.Output.Cohort = "../x" }, want: "path separators"},
		{name: "concurrency", mutate: func(c *Config) { c.Runtime.Concurrency = 0 }, want: "--concurrency"},
		{name: "timeout", mutate: func(c *Config) { c.Runtime.Timeout = 0 }, want: "--timeout"},
		{name: "log format", mutate: func(c *Config) { c.Runtime.LogFormat = "xml" }, want: "--log-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
