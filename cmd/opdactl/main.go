// opdactl ingests hyperparameter trial results and reports tuning
// curves for them, either on the command line or over http.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opda-dev/opda/internal/config"
	"github.com/opda-dev/opda/internal/fetch"
	"github.com/opda-dev/opda/internal/ingest"
	"github.com/opda-dev/opda/internal/logging"
	"github.com/opda-dev/opda/internal/report"
	"github.com/opda-dev/opda/internal/server"
	"github.com/opda-dev/opda/internal/store"
	"github.com/opda-dev/opda/internal/study"
)

const usage = `usage: opdactl <command> [flags]

commands:
  init      write a starter config or study definition
  ingest    scan result files into the store
  watch     ingest result files as they appear
  fetch     pull remote result files for studies, then ingest them
  studies   list stored studies
  analyze   print the tuning-curve report for a study
  serve     run the http api
`

func main() {
	logging.ConfigureRuntime()

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "opdactl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("a command is required")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "studies":
		return runStudies(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "serve":
		return runServe(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	kind := fs.String("kind", "service", "template kind: service or study")
	out := fs.String("out", "opda.toml", "output path")
	overwrite := fs.Bool("overwrite", false, "replace an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return config.WriteTemplate(*out, *kind, *overwrite)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	globs := cfg.Ingest.Globs
	if fs.NArg() > 0 {
		globs = fs.Args()
	}
	if len(globs) == 0 {
		return errors.New("no globs configured and none given")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	total, err := ingest.NewIngestor(st, cfg.Ingest.DefaultGoal).IngestGlobs(globs)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d trials\n", total)
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ingestor := ingest.NewIngestor(st, cfg.Ingest.DefaultGoal)
	watcher, err := ingest.NewWatcher(ingestor, cfg.Ingest.WatchDirs, cfg.Ingest.Debounce())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	spoolDir := fs.String("spool", "spool", "directory to pull result files into")
	timeout := fs.Duration("timeout", 30*time.Second, "ssh dial timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one study definition yaml is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	defs, err := study.LoadAll(fs.Args())
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Remote == nil {
			return fmt.Errorf("study %q has no remote", def.Name)
		}
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, def := range defs {
		fetcher, err := fetch.ForRemote(def.Remote, *spoolDir, *timeout)
		if err != nil {
			return err
		}
		pulled, err := fetcher.Pull(def.Remote.Dir)
		if err != nil {
			return err
		}
		log.Info().Str("study", def.Name).Int("files", len(pulled)).Msg("pulled result files")

		ingestor := ingest.NewIngestor(st, def.Direction)
		total := 0
		for _, path := range pulled {
			count, err := ingestor.IngestFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("skipping pulled file")
				continue
			}
			total += count
		}
		fmt.Printf("%s: ingested %d trials from %d files\n", def.Name, total, len(pulled))
	}
	return nil
}

func runStudies(args []string) error {
	fs := flag.NewFlagSet("studies", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	studies, err := st.ListStudies()
	if err != nil {
		return err
	}
	for _, s := range studies {
		count, err := st.CountTrials(s.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %-20s %-8s %d trials\n", s.ID, s.Name, s.Direction, count)
	}
	return nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	prefsPath := fs.String("prefs", "", "analysis preferences toml (optional)")
	name := fs.String("study", "", "study name or id (required)")
	quantile := fs.Float64("quantile", 0, "tuning-curve quantile, overrides preferences")
	confidence := fs.Float64("confidence", 0, "band confidence, overrides preferences")
	maxTrials := fs.Int("max-trials", 0, "largest search budget, overrides preferences")
	threshold := fs.Float64("threshold", 0, "also report P(score beats threshold)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	thresholdSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			thresholdSet = true
		}
	})
	if *name == "" {
		return errors.New("-study is required")
	}

	settings, err := loadAnalysisPrefs(*prefsPath)
	if err != nil {
		return err
	}
	if *quantile != 0 {
		settings.Quantile = *quantile
	}
	if *confidence != 0 {
		settings.Confidence = *confidence
	}
	if *maxTrials != 0 {
		settings.MaxTrials = *maxTrials
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	target, err := st.GetStudyByName(*name)
	if errors.Is(err, store.ErrStudyNotFound) {
		target, err = st.GetStudy(*name)
	}
	if err != nil {
		return err
	}

	analyzer := report.NewAnalyzer(st)
	rep, err := analyzer.Analyze(target.ID, settings)
	if err != nil {
		return err
	}
	if err := report.RenderText(os.Stdout, rep); err != nil {
		return err
	}

	if thresholdSet {
		estimate, lo, hi, err := analyzer.ThresholdProbability(target.ID, *threshold, settings.Confidence)
		if err != nil {
			return err
		}
		fmt.Printf("\nP(score beats %g) = %.3f  [%.3f, %.3f] at %.0f%% confidence\n",
			*threshold, estimate, lo, hi, settings.Confidence*100)
	}
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "opda.toml", "service config path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := server.New(cfg.Service, st)

	// Keep the ingest watcher running alongside the api when watch
	// dirs are configured.
	if len(cfg.Ingest.WatchDirs) > 0 {
		ingestor := ingest.NewIngestor(st, cfg.Ingest.DefaultGoal)
		watcher, err := ingest.NewWatcher(ingestor, cfg.Ingest.WatchDirs, cfg.Ingest.Debounce())
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("ingest watcher stopped")
			}
		}()
	}

	return svc.Run(ctx)
}
