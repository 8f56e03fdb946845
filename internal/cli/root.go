package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"redcapgrade/internal/config"
	"redcapgrade/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// exit is replaced in tests.
var exit = os.Exit

// globalOptions holds the values bound to CLI flags. A flag value only
// overrides the layered config when the flag was set explicitly.
type globalOptions struct {
	configPath string
	flagValues *config.Config
}

const rootLong = `redcapgrade grades student REDCap projects against an instructor's master project.

For every student API token it compares the project's data dictionary with the
master dictionary, counts records and data quality rules, and writes a grade
table plus the downloaded dictionaries.

Examples:
	# Grade two students
	redcapgrade grade --url https://redcap.example.org --master-token $MASTER \
		--tokens $ALICE,$BOB

	# Download a single data dictionary
	redcapgrade dictionary --url https://redcap.example.org --token $ALICE

	# Print build info
	redcapgrade version

Configuration:
	Settings are layered (lowest to highest precedence): built-in defaults, a YAML
	file (--config or REDCAPGRADE_CONFIG), REDCAPGRADE_* environment variables
	(use "__" between section and key) and explicit flags.

	redcap:
	  url: https://redcap.example.org/api/
	  master_token: ...
	  student_tokens: [...]
	  tokens_file: tokens.txt
	  rate_limit: 600
	database:
	  driver: mysql
	  host: localhost
	  port: 3306
	  name: redcap
	  user: redcap
	  password: ...       # or REDCAPGRADE_DATABASE__PASSWORD
	  table: redcap_data_quality_rules
	output:
	  dir: downloads
	  cohort: mgh_2020
	  console_format: text
	  metrics_file: ""
	runtime:
	  concurrency: 1
	  timeout: 30m

Output:
	Logs go to stderr. stdout carries only the grade table (see --console-format).`

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{flagValues: config.New()}

	root := &cobra.Command{
		Use:           "redcapgrade",
		Short:         "Grade student REDCap projects against a master data dictionary",
		Long:          rootLong,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.configPath, flags.FlagConfig, "", "YAML config file (default: $"+config.EnvConfigPath+")")
	root.PersistentFlags().BoolVar(&opts.flagValues.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (logs every REDCap API call)")
	root.PersistentFlags().StringVar(&opts.flagValues.Runtime.LogFormat, flags.FlagLogFormat, opts.flagValues.Runtime.LogFormat, "Log format: console|json (default: console)")

	root.AddCommand(newGradeCmd(opts))
	root.AddCommand(newDictionaryCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}
