package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"redcapgrade/internal/config"
	"redcapgrade/internal/engine"
	"redcapgrade/internal/fetcher"
	"redcapgrade/internal/flags"
	"redcapgrade/internal/logging"
	"redcapgrade/internal/metrics"
	"redcapgrade/internal/redcap"
)

const gradeLong = `Grade every student project and write the grade table.

For each student token the project's data dictionary is compared with the
master dictionary. completion_pct is the share of master fields present in the
student's dictionary. Records are counted by distinct record id. When a database
is configured, data quality rules are counted per project from
redcap_data_quality_rules; otherwise number_of_dqr is 0.

Authentication:
	The master token is taken from --master-token, then REDCAP_MASTER_TOKEN, then
	the config file. Student tokens come from --tokens and --tokens-file (one
	token per line, '#' starts a comment).

Output files (under --out-dir):
	<project_title>.csv       raw data dictionary of each student
	<cohort>_grades.csv       the grade table
	<cohort>_dqr.csv          quality rules of graded projects (needs a database)

	The grade table is only written when every student was graded.

Exit codes:
	0 = all students graded
	1 = run failed (REDCap, database or file error)
	3 = invalid configuration (nothing was graded)

Examples:
	export REDCAP_MASTER_TOKEN=<token>
	redcapgrade grade --url https://redcap.example.org --tokens-file students.txt \
		--db-host localhost --db-name redcap --db-user redcap

	# Machine-readable event stream
	redcapgrade grade --config grading.yaml --console-format ndjson
`

func newGradeCmd(opts *globalOptions) *cobra.Command {
	fv := opts.flagValues
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade student projects against the master project",
		Long:  gradeLong,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if code := runGrade(cmd, opts); code != engine.ExitOK {
				exit(code)
			}
		},
	}

	// MAINTAINER NOTE: every flag here needs a case in applyFlagOverrides.

	// REDCap
	cmd.Flags().StringVar(&fv.REDCap.URL, flags.FlagURL, "", "REDCap base or API URL, e.g. https://redcap.example.org")
	cmd.Flags().StringVar(&fv.REDCap.MasterToken, flags.FlagMasterToken, "", "API token of the master project (default: $REDCAP_MASTER_TOKEN)")
	cmd.Flags().StringSliceVar(&fv.REDCap.StudentTokens, flags.FlagTokens, nil, "Student API tokens (repeatable; comma-separated accepted)")
	cmd.Flags().StringVar(&fv.REDCap.TokensFile, flags.FlagTokensFile, "", "File with one student token per line")
	cmd.Flags().IntVar(&fv.REDCap.RateLimit, flags.FlagRateLimit, fv.REDCap.RateLimit, "Maximum API requests per minute (0 = unlimited)")

	// Database
	cmd.Flags().StringVar(&fv.Database.Driver, flags.FlagDBDriver, fv.Database.Driver, "Database driver: mysql|sqlite")
	cmd.Flags().StringVar(&fv.Database.DSN, flags.FlagDBDSN, "", "Database DSN (overrides host/name/user/password)")
	cmd.Flags().StringVar(&fv.Database.Host, flags.FlagDBHost, "", "Database host")
	cmd.Flags().IntVar(&fv.Database.Port, flags.FlagDBPort, 0, "Database port (default: driver default)")
	cmd.Flags().StringVar(&fv.Database.Name, flags.FlagDBName, "", "Database name")
	cmd.Flags().StringVar(&fv.Database.User, flags.FlagDBUser, "", "Database user")
	cmd.Flags().StringVar(&fv.Database.Password, flags.FlagDBPassword, "", "Database password (prefer REDCAPGRADE_DATABASE__PASSWORD)")
	cmd.Flags().StringVar(&fv.Database.Table, flags.FlagDQRTable, fv.Database.Table, "Data quality rules table")

	// Output
	cmd.Flags().StringVar(&fv.Output.Dir, flags.FlagOutDir, fv.Output.Dir, "Directory for all written files")
	cmd.Flags().StringVar(&fv.Output.Cohort, flags.FlagCohort, fv.Output.Cohort, "Cohort name used to prefix the report files")
	cmd.Flags().StringVar(&fv.Output.ConsoleFormat, flags.FlagConsoleFormat, fv.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	cmd.Flags().BoolVar(&fv.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output")
	cmd.Flags().BoolVar(&fv.Output.SkipDictionaries, flags.FlagSkipDictionaries, false, "Do not download student data dictionaries")
	cmd.Flags().StringVar(&fv.Output.MetricsFile, flags.FlagMetricsFile, "", "Write Prometheus metrics to this textfile")

	// Runtime
	cmd.Flags().IntVar(&fv.Runtime.Concurrency, flags.FlagConcurrency, fv.Runtime.Concurrency, "Students graded in parallel")
	cmd.Flags().DurationVar(&fv.Runtime.Timeout, flags.FlagTimeout, fv.Runtime.Timeout, "Global timeout")
	return cmd
}

func runGrade(cmd *cobra.Command, opts *globalOptions) int {
	cfg, err := resolveConfig(cmd, opts)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return engine.ExitConfig
	}

	logger, err := logging.New(cfg.Runtime.Verbose, cfg.Runtime.LogFormat)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return engine.ExitConfig
	}
	defer func() { _ = logger.Sync() }()

	client, err := redcap.NewClient(cmd.Context(), cfg.REDCap.URL, redcap.WithVerbose(cfg.Runtime.Verbose, logger))
	if err != nil {
		logger.Error("failed to create REDCap client", zap.Error(err))
		return engine.ExitConfig
	}
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget(cfg.REDCap.RateLimit, time.Minute))
	eng := engine.NewEngine(f, logger).WithMetrics(metrics.New())
	eng.Stdout = cmd.OutOrStdout()
	return eng.Run(cmd.Context(), cfg)
}

// resolveConfig layers defaults, config file and env, then explicit flags.
// The master token falls back to REDCAP_MASTER_TOKEN before the config
// file, and tokens from --tokens-file are appended to the student list.
func resolveConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, config.New())
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cmd.Flags(), opts.flagValues, cfg)

	var flagToken string
	if cmd.Flags().Changed(flags.FlagMasterToken) {
		flagToken = opts.flagValues.REDCap.MasterToken
	}
	token, _, err := redcap.ResolveMasterToken(flagToken)
	if err != nil {
		return nil, fmt.Errorf("invalid master token: %w", err)
	}
	if token != "" {
		cfg.REDCap.MasterToken = token
	}

	if cfg.REDCap.TokensFile != "" {
		tokens, err := redcap.LoadTokensFile(cfg.REDCap.TokensFile)
		if err != nil {
			return nil, err
		}
		cfg.REDCap.StudentTokens = append(cfg.REDCap.StudentTokens, tokens...)
	}
	return cfg, nil
}

// applyFlagOverrides copies the value of every explicitly set flag onto cfg.
// The master token is resolved separately.
func applyFlagOverrides(fs *pflag.FlagSet, from, cfg *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case flags.FlagVerbose:
			cfg.Runtime.Verbose = from.Runtime.Verbose
		case flags.FlagLogFormat:
			cfg.Runtime.LogFormat = from.Runtime.LogFormat

		case flags.FlagURL:
			cfg.REDCap.URL = from.REDCap.URL
		case flags.FlagTokens:
			cfg.REDCap.StudentTokens = append([]string(nil), from.REDCap.StudentTokens...)
		case flags.FlagTokensFile:
			cfg.REDCap.TokensFile = from.REDCap.TokensFile
		case flags.FlagRateLimit:
			cfg.REDCap.RateLimit = from.REDCap.RateLimit

		case flags.FlagDBDriver:
			cfg.Database.Driver = from.Database.Driver
		case flags.FlagDBDSN:
			cfg.Database.DSN = from.Database.DSN
		case flags.FlagDBHost:
			cfg.Database.Host = from.Database.Host
		case flags.FlagDBPort:
			cfg.Database.Port = from.Database.Port
		case flags.FlagDBName:
			cfg.Database.Name = from.Database.Name
		case flags.FlagDBUser:
			cfg.Database.User = from.Database.User
		case flags.FlagDBPassword:
			cfg.Database.Password = from.Database.Password
		case flags.FlagDQRTable:
			cfg.Database.Table = from.Database.Table

		case flags.FlagOutDir:
			cfg.Output.Dir = from.Output.Dir
		case flags.FlagCohort:
			cfg.Output.Cohort = from.Output.Cohort
		case flags.FlagConsoleFormat:
			cfg.Output.ConsoleFormat = from.Output.ConsoleFormat
		case flags.FlagNoConsole:
			cfg.Output.NoConsole = from.Output.NoConsole
		case flags.FlagSkipDictionaries:
			cfg.Output.SkipDictionaries = from.Output.SkipDictionaries
		case flags.FlagMetricsFile:
			cfg.Output.MetricsFile = from.Output.MetricsFile

		case flags.FlagConcurrency:
			cfg.Runtime.Concurrency = from.Runtime.Concurrency
		case flags.FlagTimeout:
			cfg.Runtime.Timeout = from.Runtime.Timeout
		}
	})
}
