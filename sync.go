package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lukemcguire/linksync/config"
	"github.com/lukemcguire/linksync/crawler"
	"github.com/lukemcguire/linksync/linkstore"
	"github.com/lukemcguire/linksync/result"
	"github.com/lukemcguire/linksync/syncer"
	"github.com/lukemcguire/linksync/tui"
)

// ErrItemsFailed is returned by sync --fail-on-error when any item errored.
var ErrItemsFailed = errors.New("some items failed to sync")

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <id>...",
		Short: "Mirror the pages behind one or more links",
		Long: `Sync fetches the page of each link and the same-origin pages reachable from it
within the depth limit, and writes them under <syncroot>/<id>/<host>/<path>.

A single sync on a terminal shows a live progress view; use --plain for log
output instead. Several ids are synced in parallel (see --parallel).

Examples:
  # Mirror link 42 with the configured defaults
  linksync sync 42

  # Follow links two levels deep and keep a JSON report
  linksync sync --depth 2 --report-format json --report-file 42.json 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSyncCmd,
	}

	f := cmd.Flags()
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum link depth from the seed page (-1 for unlimited)")
	f.IntP("concurrency", "n", config.DefaultConcurrency, "Maximum fetches in flight per link")
	f.Duration("interval", config.DefaultInterval, "Minimum gap between fetch dispatches (0 disables)")
	f.DurationP("timeout", "t", config.DefaultRequestTimeout, "Timeout for each request")
	f.Duration("max-duration", 0, "Abort a sync after this long (0 for no limit)")
	f.String("user-agent", config.DefaultUserAgent, "User-Agent header for every request")
	f.Bool("insecure", true, "Skip TLS certificate verification")
	f.Bool("robots", true, "Honor robots.txt")
	f.Int("retries", 0, "Retries for transient fetch failures")
	f.Int64("max-body-bytes", 0, "Largest accepted response body (0 for no limit)")
	f.Bool("adaptive", false, "Widen the dispatch interval when the server slows down")
	f.Int64("memory-limit-mb", 0, "Soft heap limit that throttles admission (0 disables)")
	f.String("visited-store", crawler.VisitedMemory, "Visited set implementation: memory or bloom")
	f.IntP("parallel", "p", config.DefaultParallel, "Links synced at once")
	f.String("syncroot", "", "Directory mirrors are written under (overrides config and "+config.EnvSyncRoot+")")
	f.Bool("plain", false, "Disable the progress view and print logs")
	f.String("log-file", "", "Write logs to this file")
	f.String("report-format", "", "Write a per-item report: json or csv")
	f.StringP("report-file", "o", "", "Report destination (default stdout)")
	f.Bool("fail-on-error", false, "Exit non-zero when any item fails")

	return cmd
}

// syncOptions are the flags that shape output rather than crawling.
type syncOptions struct {
	plain        bool
	logFile      string
	reportFormat string
	reportFile   string
	failOnError  bool
}

func runSyncCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySyncFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	opts, err := readSyncOptions(cmd)
	if err != nil {
		return err
	}

	interactive := !opts.plain && len(args) == 1 && isTerminal(os.Stdout)
	logDest, closeLog, err := logOutput(opts.logFile, cmd.ErrOrStderr(), interactive)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := newLogger(logDest, getVerboseFlag(cmd))

	if cfg.Crawl.MemoryLimitMB > 0 {
		crawler.NewMemoryWatcher(cfg.Crawl.MemoryLimitMB).ApplySoftLimit()
		logger.Debug("soft memory limit applied",
			"limit", humanize.IBytes(uint64(cfg.Crawl.MemoryLimitMB)<<20))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &syncer.Syncer{
		Links:    linkstore.NewClient(cfg.API, logger),
		SyncRoot: cfg.SyncRoot,
		Config:   cfg,
		Logger:   logger,
	}

	var (
		reports []*result.Report
		failed  bool
		syncErr error
	)
	if interactive {
		var rep *result.Report
		rep, failed, syncErr = runInteractive(ctx, stop, s, args[0])
		reports = []*result.Report{rep}
	} else {
		reports, syncErr = s.SyncAll(ctx, args)
		for _, rep := range reports {
			if rep != nil {
				result.PrintReport(cmd.OutOrStdout(), rep)
			}
		}
		failed = anyFailed(reports)
	}

	if opts.reportFormat != "" {
		if err := writeReports(cmd.OutOrStdout(), opts, reports); err != nil {
			return err
		}
	}

	if syncErr != nil {
		return describeSyncError(syncErr)
	}
	if opts.failOnError && failed {
		return ErrItemsFailed
	}
	return nil
}

// applySyncFlags overrides config values with the flags the user set.
func applySyncFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}
	setDuration := func(name string, dst *config.Duration) {
		set(name, func() error {
			d, e := f.GetDuration(name)
			*dst = config.DurationFrom(d)
			return e
		})
	}

	c := &cfg.Crawl
	set("depth", func() (e error) { c.MaxDepth, e = f.GetInt("depth"); return })
	set("concurrency", func() (e error) { c.Concurrency, e = f.GetInt("concurrency"); return })
	setDuration("interval", &c.Interval)
	setDuration("timeout", &c.RequestTimeout)
	setDuration("max-duration", &c.MaxDuration)
	set("user-agent", func() (e error) { c.UserAgent, e = f.GetString("user-agent"); return })
	set("insecure", func() (e error) { c.InsecureSkipVerify, e = f.GetBool("insecure"); return })
	set("robots", func() (e error) { c.RespectRobots, e = f.GetBool("robots"); return })
	set("retries", func() (e error) { c.Retries, e = f.GetInt("retries"); return })
	set("max-body-bytes", func() (e error) { c.MaxBodyBytes, e = f.GetInt64("max-body-bytes"); return })
	set("adaptive", func() (e error) { c.AdaptivePacing, e = f.GetBool("adaptive"); return })
	set("memory-limit-mb", func() (e error) { c.MemoryLimitMB, e = f.GetInt64("memory-limit-mb"); return })
	set("visited-store", func() (e error) { c.VisitedStore, e = f.GetString("visited-store"); return })
	set("parallel", func() (e error) { cfg.Sync.Parallel, e = f.GetInt("parallel"); return })
	set("syncroot", func() (e error) { cfg.SyncRoot, e = f.GetString("syncroot"); return })
	return err
}

func readSyncOptions(cmd *cobra.Command) (syncOptions, error) {
	f := cmd.Flags()
	var opts syncOptions
	var err error
	if opts.plain, err = f.GetBool("plain"); err != nil {
		return opts, err
	}
	if opts.logFile, err = f.GetString("log-file"); err != nil {
		return opts, err
	}
	if opts.reportFormat, err = f.GetString("report-format"); err != nil {
		return opts, err
	}
	if opts.reportFile, err = f.GetString("report-file"); err != nil {
		return opts, err
	}
	if opts.failOnError, err = f.GetBool("fail-on-error"); err != nil {
		return opts, err
	}
	switch opts.reportFormat {
	case "", result.FormatJSON, result.FormatCSV:
	default:
		return opts, fmt.Errorf("unknown report format %q: use json or csv", opts.reportFormat)
	}
	return opts, nil
}

// runInteractive runs one sync behind the progress view and reports whether
// any item failed.
func runInteractive(ctx context.Context, cancel context.CancelFunc, s *syncer.Syncer, id string) (*result.Report, bool, error) {
	progressCh := make(chan crawler.Event, 100)
	model := tui.NewModel(ctx, cancel, "link "+id, progressRun(s, id, progressCh), progressCh)

	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, false, fmt.Errorf("run progress view: %w", err)
	}
	final := finalModel.(tui.Model)
	if err := final.Err(); err != nil {
		return nil, false, err
	}
	return final.GetReport(), final.HasFailures(), nil
}

// progressRun syncs id with its session events sent to progressCh, and
// closes progressCh once the sync returns.
func progressRun(s *syncer.Syncer, id string, progressCh chan crawler.Event) tui.RunFunc {
	s.Progress = progressCh
	return func(ctx context.Context) (*result.Report, error) {
		defer close(progressCh)
		return s.Sync(ctx, id)
	}
}

func writeReports(stdout io.Writer, opts syncOptions, reports []*result.Report) (err error) {
	w := stdout
	if opts.reportFile != "" {
		if dir := filepath.Dir(opts.reportFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create report directory: %w", err)
			}
		}
		f, err := os.Create(opts.reportFile)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		w = f
	}

	if len(reports) == 1 && reports[0] != nil {
		return result.Write(w, opts.reportFormat, reports[0])
	}
	return result.WriteAll(w, opts.reportFormat, reports)
}

func anyFailed(reports []*result.Report) bool {
	for _, rep := range reports {
		if rep != nil && rep.Stats.Errored > 0 {
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
