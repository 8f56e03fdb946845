package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"redcapgrade/internal/config"
	"redcapgrade/internal/fetcher"
	"redcapgrade/internal/flags"
	"redcapgrade/internal/logging"
	"redcapgrade/internal/output"
	"redcapgrade/internal/redcap"
)

type dictionaryOptions struct {
	token string
	out   string
}

func newDictionaryCmd(opts *globalOptions) *cobra.Command {
	fv := opts.flagValues
	dopts := &dictionaryOptions{}
	cmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Download the data dictionary of one project as CSV",
		Long: `Download the data dictionary (metadata export) of one project as CSV.

Without --token the master token is used (--master-token resolution rules:
REDCAP_MASTER_TOKEN, then the config file).

Examples:
	# Save to <out-dir>/<project_title>.csv
	redcapgrade dictionary --url https://redcap.example.org --token <token>

	# Print to stdout
	redcapgrade dictionary --url https://redcap.example.org --token <token> --out -
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDictionary(cmd, opts, dopts)
		},
	}
	cmd.Flags().StringVar(&fv.REDCap.URL, flags.FlagURL, "", "REDCap base or API URL, e.g. https://redcap.example.org")
	cmd.Flags().StringVar(&dopts.token, flags.FlagToken, "", "API token of the project (default: master token)")
	cmd.Flags().StringVar(&dopts.out, flags.FlagOut, "", `Output file ("-" for stdout; default: <out-dir>/<project_title>.csv)`)
	cmd.Flags().StringVar(&fv.Output.Dir, flags.FlagOutDir, fv.Output.Dir, "Directory for the dictionary file")
	return cmd
}

func runDictionary(cmd *cobra.Command, opts *globalOptions, dopts *dictionaryOptions) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}
	apiURL, err := config.NormalizeAPIURL(cfg.REDCap.URL)
	if err != nil {
		return fmt.Errorf("invalid --url value: %w", err)
	}
	token := dopts.token
	if token == "" {
		token = cfg.REDCap.MasterToken
	}
	if token == "" {
		return errors.New("a token is required (--token, --master-token or REDCAP_MASTER_TOKEN)")
	}
	if err := redcap.ValidateToken(token); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Runtime.Verbose, cfg.Runtime.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, err := redcap.NewClient(cmd.Context(), apiURL, redcap.WithVerbose(cfg.Runtime.Verbose, logger))
	if err != nil {
		return err
	}
	f := fetcher.NewFetcher(client, fetcher.NewRequestBudget(cfg.REDCap.RateLimit, time.Minute))

	info, err := f.ProjectInfo(cmd.Context(), token)
	if err != nil {
		return err
	}
	data, err := f.MetadataCSV(cmd.Context(), token)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if dopts.out == "-" {
		_, err := w.Write(data)
		return err
	}
	path := dopts.out
	if path == "" {
		path = filepath.Join(cfg.Output.Dir, output.SanitizeFilename(info.ProjectTitle)+".csv")
	}
	if err := output.WriteFile(path, data); err != nil {
		return err
	}
	printSaved(w, info, path)
	return nil
}

func printSaved(w io.Writer, info redcap.ProjectInfo, path string) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s", info.ProjectTitle)
	fmt.Fprintf(w, " (project %d)\n", info.ProjectID)
	fmt.Fprintf(w, "saved: %s\n", path)
}
