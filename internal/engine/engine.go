// Package engine runs a grading pass: master dictionary, per-student
// evaluation, data quality rule join and output.
package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"redcapgrade/internal/config"
	"redcapgrade/internal/dqr"
	"redcapgrade/internal/fetcher"
	"redcapgrade/internal/grading"
	"redcapgrade/internal/metrics"
	"redcapgrade/internal/output"
	"redcapgrade/internal/redcap"
	"redcapgrade/internal/report"
)

// Exit code contract:
// 0 = every student graded and all artifacts written
// 1 = the run failed (API, database or file error)
// 3 = invalid configuration (the run did not start)
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 3
)

type Engine struct {
	Fetcher *fetcher.Fetcher
	Logger  *zap.Logger

	// Metrics is optional; when set it also observes every API request.
	Metrics *metrics.Collector

	// Stdout receives console output. Nil means os.Stdout.
	Stdout io.Writer

	newRunID func() string
}

func NewEngine(f *fetcher.Fetcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Fetcher: f, Logger: logger, newRunID: uuid.NewString}
}

// WithMetrics attaches a collector and registers it with the fetcher.
func (e *Engine) WithMetrics(c *metrics.Collector) *Engine {
	e.Metrics = c
	if c != nil && e.Fetcher != nil {
		e.Fetcher.SetObserver(c)
	}
	return e
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	cs, err := output.NewCSVSink(cfg.GradesPath())
	if err != nil {
		outMgr.Close()
		return nil, err
	}
	if err := outMgr.AddSink(cs); err != nil {
		outMgr.Close()
		return nil, err
	}

	return outMgr, nil
}

// Run grades every configured student and returns the process exit code.
// cfg must already be validated.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	started := time.Now()
	if e.Fetcher == nil {
		e.Logger.Error("engine has no fetcher")
		return ExitFailed
	}
	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	outMgr, err := setupOutputManager(cfg, e.Stdout)
	if err != nil {
		e.Logger.Error("failed to create output sinks", zap.Error(err))
		return ExitFailed
	}

	runID := e.newRunID()
	log := e.Logger.With(zap.String("run_id", runID))
	if n := cfg.REDCap.DuplicateTokens; n > 0 {
		log.Warn("duplicate student tokens ignored", zap.Int("dropped", n))
	}
	log.Info("grading started",
		zap.Int("students", len(cfg.REDCap.StudentTokens)),
		zap.Int("concurrency", cfg.Runtime.Concurrency),
	)
	_ = outMgr.Write(output.Event{Type: output.EventRunStarted, RunID: runID, Students: len(cfg.REDCap.StudentTokens)})

	rows, runErr := e.Grade(ctx, cfg)

	finished := output.Event{Type: output.EventRunFinished, RunID: runID}
	code := ExitOK
	if runErr != nil {
		code = ExitFailed
		finished.ExitCode = code
		finished.Error = runErr.Error()
		log.Error("grading failed", zap.Error(runErr))
	} else {
		for _, r := range rows {
			_ = outMgr.Write(r)
		}
		summary := report.Summarize(rows)
		finished.Summary = &summary
	}
	_ = outMgr.Write(finished)

	if err := outMgr.Close(); err != nil {
		log.Error("failed to write grade table", zap.Error(err))
		if runErr == nil {
			runErr = err
			code = ExitFailed
		}
	}
	if runErr == nil {
		log.Info("grading finished",
			zap.Int("students", len(rows)),
			zap.String("grades", cfg.GradesPath()),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	if e.Metrics != nil {
		e.Metrics.Finish(started, runErr)
		if cfg.Output.MetricsFile != "" {
			if err := e.Metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
				log.Warn("failed to write metrics textfile", zap.String("path", cfg.Output.MetricsFile), zap.Error(err))
			}
		}
	}
	return code
}

// Grade fetches the master dictionary once, evaluates every student against
// it and joins in data quality rule counts. Dictionary CSVs and the filtered
// rules table are written to the output directory along the way.
func (e *Engine) Grade(ctx context.Context, cfg *config.Config) ([]grading.Evaluation, error) {
	masterToken := cfg.REDCap.MasterToken
	master, err := e.Fetcher.FieldNames(ctx, masterToken)
	if err != nil {
		return nil, fmt.Errorf("master dictionary (%s): %w", redcap.MaskToken(masterToken), err)
	}
	if len(master) == 0 {
		return nil, fmt.Errorf("master dictionary (%s): %w", redcap.MaskToken(masterToken), grading.ErrEmptyMaster)
	}
	e.Logger.Info("master dictionary loaded", zap.Int("fields", len(master)))

	sched, err := NewScheduler(cfg.Runtime.Concurrency)
	if err != nil {
		return nil, err
	}
	rows, err := sched.Execute(ctx, cfg.REDCap.StudentTokens, func(ctx context.Context, token string) (grading.Evaluation, error) {
		row, err := grading.Evaluate(ctx, e.Fetcher.Source(token), master)
		if err != nil {
			return row, err
		}
		e.Logger.Info("student graded",
			zap.Int("project_id", row.ProjectID),
			zap.String("project_name", row.ProjectName),
			zap.Float64("completion_pct", row.CompletionPct),
			zap.Int("records", row.NumberOfRecords),
		)
		if fields, err := e.Fetcher.FieldNames(ctx, token); err == nil {
			if missing := grading.MissingFields(master, fields); len(missing) > 0 {
				e.Logger.Debug("master fields missing",
					zap.Int("project_id", row.ProjectID),
					zap.Strings("fields", missing),
				)
			}
		}
		if e.Metrics != nil {
			e.Metrics.ObserveEvaluation(row)
		}
		return row, nil
	})
	if err != nil {
		return nil, err
	}

	if !cfg.Output.SkipDictionaries {
		// Names are assigned in token order so reruns produce the same files.
		names := newDictionaryNames(reportStem(cfg.GradesPath()), reportStem(cfg.DQRPath()))
		paths := make([]string, len(rows))
		for i, row := range rows {
			paths[i] = filepath.Join(cfg.Output.Dir, names.next(row)+".csv")
		}
		err := sched.Each(ctx, len(rows), func(ctx context.Context, i int) error {
			return e.downloadDictionary(ctx, cfg.REDCap.StudentTokens[i], rows[i], paths[i])
		})
		if err != nil {
			return nil, err
		}
	}

	counts, err := e.qualityRuleCounts(ctx, cfg, report.ProjectIDs(rows))
	if err != nil {
		return nil, err
	}
	return report.Assemble(rows, counts), nil
}

func (e *Engine) downloadDictionary(ctx context.Context, token string, row grading.Evaluation, path string) error {
	data, err := e.Fetcher.MetadataCSV(ctx, token)
	if err != nil {
		return fmt.Errorf("download dictionary of %q: %w", row.ProjectName, err)
	}
	if err := output.WriteFile(path, data); err != nil {
		return fmt.Errorf("save dictionary of %q: %w", row.ProjectName, err)
	}
	e.Logger.Debug("dictionary saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// qualityRuleCounts loads the quality rule table, writes the rows of the
// evaluated projects to the DQR artifact and returns per-project counts.
// Without a configured database every count is zero.
func (e *Engine) qualityRuleCounts(ctx context.Context, cfg *config.Config, projectIDs []int) (map[int]int, error) {
	conn := dqr.Conn{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	}
	if !conn.Configured() {
		e.Logger.Warn("no database configured; data quality rule counts default to 0")
		return nil, nil
	}

	db, err := dqr.Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	table, err := dqr.Load(ctx, db, cfg.Database.Table)
	if err != nil {
		return nil, err
	}
	evaluated := table.Filter(projectIDs)
	if err := output.WriteCSV(cfg.DQRPath(), evaluated.Columns, evaluated.Rows); err != nil {
		return nil, fmt.Errorf("write quality rules: %w", err)
	}
	if e.Metrics != nil {
		e.Metrics.SetQualityRules(len(evaluated.Rows))
	}
	e.Logger.Info("data quality rules loaded",
		zap.Int("rows", len(table.Rows)),
		zap.Int("evaluated_rows", len(evaluated.Rows)),
		zap.Int("projects", len(table.ProjectIDs())),
		zap.String("path", cfg.DQRPath()),
	)
	return table.CountByProject(), nil
}

// dictionaryNames hands out file name stems for downloaded dictionaries.
// Names are compared case-insensitively. A taken name gets the project id
// appended, then a counter until it is free.
type dictionaryNames struct {
	used map[string]struct{}
}

// newDictionaryNames reserves the given stems, typically the report files.
func newDictionaryNames(reserved ...string) *dictionaryNames {
	n := &dictionaryNames{used: make(map[string]struct{})}
	for _, name := range reserved {
		n.used[strings.ToLower(name)] = struct{}{}
	}
	return n
}

func (n *dictionaryNames) next(row grading.Evaluation) string {
	base := output.SanitizeFilename(row.ProjectName)
	name := base
	if n.taken(name) {
		base = fmt.Sprintf("%s_%d", base, row.ProjectID)
		name = base
		for i := 2; n.taken(name); i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
	}
	n.used[strings.ToLower(name)] = struct{}{}
	return name
}

func (n *dictionaryNames) taken(name string) bool {
	_, ok := n.used[strings.ToLower(name)]
	return ok
}

func reportStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
