package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/billing-parser/internal/app"
	"github.com/joseph-ayodele/billing-parser/internal/async"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/ingest"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
	"github.com/joseph-ayodele/billing-parser/internal/report"
)

type batchOptions struct {
	dir       string
	out       string
	inmem     bool
	stepBound int
	verbose   bool
	watch     bool
	debounce  time.Duration
	template  string
	fromStr   string
	toStr     string
}

func newRootCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "billing-batch",
		Short: "Classify and extract billing documents from a directory",
		Long: `billing-batch walks a directory and runs the billing pipeline once per
group: files directly in the directory form one group and every immediate
sub-directory forms another. Results are exported to XLSX and summarized on
stdout.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "", "directory to process (required)")
	f.StringVar(&opts.out, "out", "", "output XLSX path (defaults to billing.xlsx next to --dir)")
	f.BoolVar(&opts.inmem, "inmem", false, "use an in-memory SQLite run store")
	f.IntVar(&opts.stepBound, "step-bound", 0, "per-run step bound (defaults to PIPELINE_STEP_BOUND)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "emit per-document classify/extract progress")
	f.BoolVar(&opts.watch, "watch", false, "keep running and process new files as they appear")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "coalesce file events in watch mode")
	f.StringVar(&opts.template, "report-template", "", "stick template file for the summary")
	f.StringVar(&opts.fromStr, "from", "", "export results created on or after YYYY-MM-DD")
	f.StringVar(&opts.toStr, "to", "", "export results created before YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", s, err)
	}
	return &t, nil
}

func runBatch(cmd *cobra.Command, opts *batchOptions) error {
	from, err := parseDate(opts.fromStr)
	if err != nil {
		return err
	}
	to, err := parseDate(opts.toStr)
	if err != nil {
		return err
	}
	if opts.out == "" {
		opts.out = filepath.Join(filepath.Dir(filepath.Clean(opts.dir)), "billing.xlsx")
	}
	tpl := ""
	if opts.template != "" {
		b, err := os.ReadFile(opts.template)
		if err != nil {
			return fmt.Errorf("read report template: %w", err)
		}
		tpl = string(b)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, common.LoadConfig(), opts.inmem, logger, nil)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Close()

	var verbose *bool
	if cmd.Flags().Changed("verbose") {
		verbose = &opts.verbose
	}
	newRequest := func(source string, files []entity.FileDescriptor) pipeline.Request {
		return pipeline.Request{Source: source, Files: files, StepBound: opts.stepBound, Verbose: verbose}
	}

	groups, _, stats, err := ingest.ScanDirectory(ctx, opts.dir, true, logger)
	if err != nil {
		return fmt.Errorf("scan %s: %w", opts.dir, err)
	}
	logger.Info("scan complete", "groups", stats.Groups, "matched", stats.Matched, "failed", stats.Failed)

	queue := a.NewQueue()
	var mu sync.Mutex
	entries := make([]report.Entry, len(groups))
	for i, g := range groups {
		i, name := i, g.Name
		err := queue.Enqueue(ctx, async.Job{
			Request: newRequest(name, g.Files),
			Done: func(out pipeline.Outcome, err error) {
				mu.Lock()
				entries[i] = report.Entry{Name: name, Outcome: out, Err: err}
				mu.Unlock()
			},
		})
		if err != nil {
			queue.Shutdown(context.Background())
			return fmt.Errorf("enqueue %s: %w", name, err)
		}
	}
	queue.Shutdown(ctx)

	summary, err := report.Render(opts.dir, entries, tpl)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), summary)

	if err := writeExport(ctx, a, opts.out, from, to); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", opts.out)

	if opts.watch {
		return watch(ctx, cmd, a, opts, newRequest)
	}
	return nil
}

func writeExport(ctx context.Context, a *app.App, out string, from, to *time.Time) error {
	b, err := a.Export.ResultsXLSX(ctx, from, to)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

// watch runs every new or changed file as its own single-file run until ctx ends.
func watch(ctx context.Context, cmd *cobra.Command, a *app.App, opts *batchOptions, newRequest func(string, []entity.FileDescriptor) pipeline.Request) error {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:    []string{opts.dir},
		Debounce: opts.debounce,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", opts.dir, err)
	}
	a.Logger.Info("watching for new files", "dir", opts.dir)

	queue := a.NewQueue()
	defer queue.Shutdown(context.Background())
	var outMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.Logger.Warn("watch error", "error", err)
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			fd, _, err := ingest.ReadFile(p)
			if err != nil {
				a.Logger.Warn("skipping unreadable file", "path", p, "error", err)
				continue
			}
			rel, _ := filepath.Rel(opts.dir, p)
			err = queue.Enqueue(ctx, async.Job{
				Request: newRequest(rel, []entity.FileDescriptor{fd}),
				Done: func(out pipeline.Outcome, err error) {
					line, rerr := report.Render(rel, []report.Entry{{Name: rel, Outcome: out, Err: err}}, "")
					if rerr != nil {
						a.Logger.Error("render report", "error", rerr)
						return
					}
					outMu.Lock()
					fmt.Fprint(cmd.OutOrStdout(), line)
					outMu.Unlock()
				},
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("enqueue", "path", p, "error", err)
			}
		}
	}
}
