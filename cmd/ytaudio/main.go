package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	httpAdapter "github.com/cwygoda/ytaudio/internal/adapter/http"
	"github.com/cwygoda/ytaudio/internal/adapter/processor"
	"github.com/cwygoda/ytaudio/internal/adapter/sqlite"
	"github.com/cwygoda/ytaudio/internal/app"
	"github.com/cwygoda/ytaudio/internal/batch"
	"github.com/cwygoda/ytaudio/internal/config"
	"github.com/cwygoda/ytaudio/internal/domain"
	"github.com/cwygoda/ytaudio/internal/logging"
	"github.com/cwygoda/ytaudio/internal/ui"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitAborted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "history" {
		return runHistory(args[1:])
	}

	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	urls := cfg.URLs
	if cfg.BatchFile != "" {
		fromFile, err := batch.ParseBatchFile(cfg.BatchFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitUsage
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "error: no URLs given (pass URLs or -f FILE)")
		return exitUsage
	}

	useTUI := !cfg.NoTUI && logging.IsTerminal(os.Stdout) && logging.IsTerminal(os.Stdin)
	var logOut io.Writer = os.Stderr
	deferred := logging.NewDeferred(os.Stderr)
	if useTUI {
		logOut = deferred
	}
	defer deferred.Flush()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Writer: logOut, NoColor: useTUI})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	slog.SetDefault(logger)

	converter := processor.NewFFmpeg(cfg.FFmpegPath, logger)
	if err := converter.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	registry := processor.NewRegistry(processor.NewYTDLP(cfg.YTDLPPath, logger))
	for _, fc := range cfg.Fetchers {
		f, err := processor.NewCommandFetcher(fc, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: fetcher %s: %v\n", fc.Name, err)
			return exitUsage
		}
		if err := registry.Register(f); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitUsage
		}
	}
	logger.Debug("fetchers registered", "order", registry.Names())

	var history domain.HistoryRepository
	if !cfg.NoHistory {
		repo, err := sqlite.New(cfg.HistoryDB)
		if err != nil {
			logger.Warn("history disabled", "db", cfg.HistoryDB, "err", err)
		} else {
			defer repo.Close()
			history = repo
		}
	}

	application := app.New(registry, converter, history, app.Options{
		OutputDir:      cfg.OutputDir,
		Format:         cfg.Format,
		Workers:        cfg.Workers,
		Retries:        cfg.Retries,
		Retry:          cfg.RetryConfig(),
		Bitrate:        cfg.Bitrate(),
		EmbedMetadata:  !cfg.NoMetadata,
		SkipDownloaded: cfg.SkipDownloaded,
	}, logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-sigCtx.Done():
			// Restore default handling so a second signal terminates immediately.
			stop()
			logger.Warn("interrupt received, finishing active downloads (interrupt again to abort)")
		case <-finished:
		}
	}()

	if cfg.Listen != "" {
		srv := httpAdapter.NewServer(application, cfg.Listen, httpAdapter.Options{
			Cancel: cancel,
			Secret: cfg.Secret,
			Logger: logger,
		})
		go func() {
			logger.Info("http server listening", "addr", srv.Addr(), "port", srv.Port())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "err", err)
			}
		}()
	}

	plan := application.Plan(ctx, urls)

	updates := make(chan domain.ProgressUpdate, cfg.Workers)
	display := make(chan error, 1)
	go func() {
		if useTUI {
			display <- ui.Run(updates, cancel, len(plan.URLs), min(cfg.Workers, max(len(plan.URLs), 1)), os.Stdout)
			return
		}
		ui.LogUpdates(logger, updates)
		display <- nil
	}()

	batchDone := make(chan batchOutcome, 1)
	go func() {
		res, err := application.Run(ctx, plan, updates)
		close(updates)
		batchDone <- batchOutcome{res: res, err: err}
	}()

	out, derr := awaitBatch(batchDone, display)
	if errors.Is(derr, ui.ErrAborted) {
		deferred.Flush()
		return exitAborted
	} else if derr != nil {
		logger.Warn("display error", "err", derr)
	}
	deferred.Flush()

	res, err := out.res, out.err
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	printResult(os.Stdout, res)

	if res.HasFailures() || res.Cancelled > 0 {
		return exitFailed
	}
	return exitOK
}

type batchOutcome struct {
	res *batch.Result
	err error
}

// awaitBatch waits for the batch and its display. An aborted display
// returns immediately without waiting for jobs still in flight.
func awaitBatch(batchDone <-chan batchOutcome, display <-chan error) (batchOutcome, error) {
	select {
	case derr := <-display:
		if errors.Is(derr, ui.ErrAborted) {
			return batchOutcome{}, derr
		}
		return <-batchDone, derr
	case out := <-batchDone:
		return out, <-display
	}
}

func exitCode(err error) int {
	var ce *domain.ConfigError
	var ve *domain.ValidationError
	if errors.As(err, &ce) || errors.As(err, &ve) || errors.Is(err, domain.ErrInvalidURL) {
		return exitUsage
	}
	return exitFailed
}

func printResult(w io.Writer, res *batch.Result) {
	fmt.Fprintf(w, "\nDone: %d succeeded, %d failed, %d cancelled, %d skipped\n",
		res.Successful, res.Failed, res.Cancelled, res.Skipped)
	for _, p := range res.OutputPaths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	for _, j := range res.FailedJobs {
		fmt.Fprintf(w, "  FAILED %s: %s\n", j.URL, j.Error)
	}
}

func runHistory(args []string) int {
	base, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	fs := flag.NewFlagSet("ytaudio history", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "Number of runs to show")
	dbPath := fs.String("history-db", base.HistoryDB, "SQLite history database path")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	repo, err := sqlite.New(config.ExpandPath(*dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open history: %v\n", err)
		return exitFailed
	}
	defer repo.Close()

	runs, err := repo.RecentRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return exitOK
	}

	printRuns(os.Stdout, runs)
	return exitOK
}

func printRuns(w io.Writer, runs []domain.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tTOTAL\tOK\tFAILED\tCANCELLED\tSKIPPED\tID")
	for _, r := range runs {
		duration := "running"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			humanize.Time(r.StartedAt), duration,
			r.Total, r.Successful, r.Failed, r.Cancelled, r.Skipped, r.ID)
	}
	tw.Flush()
}
