package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yungbote/rankset/internal/app"
	"github.com/yungbote/rankset/internal/platform/logger"
	"github.com/yungbote/rankset/internal/services"
)

type nameList []string

func (l *nameList) String() string { return strings.Join(*l, ",") }
func (l *nameList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

type options struct {
	models      nameList
	typologies  nameList
	dryRun      bool
	concurrency int
	continueErr bool
	purge       bool
	verbosity   int
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.Var(&o.models, "model", "entity type to refresh (repeatable, default all)")
	fs.Var(&o.typologies, "typology", "typology to refresh (repeatable, default all)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "report what would be refreshed without writing")
	fs.BoolVar(&o.dryRun, "simulate", false, "alias of -dry-run")
	fs.IntVar(&o.concurrency, "concurrency", 1, "typologies refreshed in parallel")
	fs.BoolVar(&o.continueErr, "continue", false, "keep going after a failed typology")
	fs.BoolVar(&o.purge, "purge", false, "remove unusable leftovers of aborted refreshes instead of refreshing")
	fs.IntVar(&o.verbosity, "v", 1, "0 quiet, 1 progress, 2 progress and debug logs")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.concurrency < 1 {
		return o, fmt.Errorf("-concurrency must be at least 1")
	}
	if o.verbosity < 0 || o.verbosity > 2 {
		return o, fmt.Errorf("-v must be 0, 1 or 2")
	}
	return o, nil
}

func (o options) request(progress io.Writer) services.RefreshRequest {
	if o.verbosity == 0 {
		progress = nil
	}
	return services.RefreshRequest{
		Models:          o.models,
		Typologies:      o.typologies,
		DryRun:          o.dryRun,
		ContinueOnError: o.continueErr,
		Purge:           o.purge,
		Concurrency:     o.concurrency,
		Progress:        progress,
	}
}

func logLevel(verbosity int) string {
	if verbosity >= 2 {
		return "debug"
	}
	return "warn"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rankset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "rankset: %v\n", err)
		return 1
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	if err := log.SetLevel(logLevel(opts.verbosity)); err != nil {
		fmt.Fprintf(stderr, "set log level: %v\n", err)
		return 1
	}

	application, err := app.NewWithLogger(log)
	if err != nil {
		fmt.Fprintf(stderr, "init app: %v\n", err)
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := application.Refresh.Run(ctx, opts.request(stdout))
	if err := application.PushMetrics(ctx, report.RunID.String()); err != nil {
		log.Warn("metrics push failed", "error", err)
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "rankset: %v\n", runErr)
		return 1
	}
	if opts.verbosity > 0 {
		fmt.Fprintf(stdout, "Done: %d typologies, run %s\n", len(report.Results), report.RunID)
	}
	return 0
}
