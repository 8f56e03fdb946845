package flags

// Package flags defines canonical CLI flag names shared by the cobra wiring
// and the config-file override logic. IMPORTANT: These are flag *names*
// without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.REDCap.URL, flags.FlagURL, "", "...")
//	arg := "--" + flags.FlagURL
const (
	// Global
	FlagConfig    = "config"
	FlagVerbose   = "verbose"
	FlagLogFormat = "log-format"

	// REDCap
	FlagURL         = "url"
	FlagMasterToken = "master-token"
	FlagTokens      = "tokens"
	FlagTokensFile  = "tokens-file"
	FlagRateLimit   = "rate-limit"

	// Dictionary
	FlagToken = "token"
	FlagOut   = "out"

	// Database
	FlagDBDriver   = "db-driver"
	FlagDBDSN      = "db-dsn"
	FlagDBHost     = "db-host"
	FlagDBPort     = "db-port"
	FlagDBName     = "db-name"
	FlagDBUser     = "db-user"
	FlagDBPassword = "db-password"
	FlagDQRTable   = "dqr-table"

	// Output
	FlagOutDir           = "out-dir"
	FlagCohort           = "cohort"
	FlagConsoleFormat    = "console-format"
	FlagNoConsole        = "no-console"
	FlagSkipDictionaries = "skip-dictionaries"
	FlagMetricsFile      = "metrics-file"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
)
