package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/app"
	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/config"
	"github.com/ibeckermayer/renewbot/internal/diagnostics"
	"github.com/ibeckermayer/renewbot/internal/logging"
	"github.com/ibeckermayer/renewbot/internal/notifier"
	"github.com/ibeckermayer/renewbot/internal/scheduler"
	"github.com/ibeckermayer/renewbot/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.toml (default: user config dir)")
	once := flag.Bool("once", false, "run the pipeline once and exit, even if a schedule is configured")
	flag.Parse()

	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "renewbot: %v\n", err)
		return 2
	}
	cfg.ApplyEnv(os.LookupEnv)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "renewbot: %v\n", err)
		return 2
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration check failed", zap.Error(err))
		return 2
	}

	deps, cleanup, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", zap.Error(err))
		return 2
	}
	defer cleanup()

	a, err := app.New(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to initialise", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runTimeout := time.Duration(cfg.Schedule.RunTimeout) * time.Minute

	if *once || !cfg.Schedule.Enabled {
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}
		report := a.Run(ctx)
		if report.Outcome.IsFailure() {
			return 1
		}
		return 0
	}

	sched, err := scheduler.New(cfg.Schedule.Timezone, runTimeout, logger)
	if err != nil {
		logger.Error("failed to create scheduler", zap.Error(err))
		return 2
	}
	if err := sched.Schedule("renew", cfg.Schedule.Cron, a.Job); err != nil {
		logger.Error("failed to schedule run", zap.Error(err))
		return 2
	}
	sched.Start()
	for _, j := range sched.ListJobs() {
		logger.Info("next run", zap.String("job", j.Name), zap.Time("at", j.NextRun))
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for a running job to finish")
	<-sched.Stop().Done()
	return 0
}

// buildDeps wires the browser, notifier, history store and diagnostics
// recorder from the configuration.
func buildDeps(cfg *config.Config, logger *zap.Logger) (app.Deps, func(), error) {
	cleanup := func() {}

	n, err := notifier.NewFromConfig(cfg.Notify, logger)
	if err != nil {
		return app.Deps{}, cleanup, err
	}

	obs := browser.LogObserver{Host: cfg.Host(), Logger: logger.Named("browser")}
	deps := app.Deps{
		Launch:   app.ChromeLauncher(app.BrowserOptions(cfg.Browser), obs, logger),
		Notifier: n,
	}

	if cfg.Diagnostics.Enabled {
		dir, err := cfg.DiagnosticsDir()
		if err != nil {
			return app.Deps{}, cleanup, err
		}
		deps.Recorders = func(runID string) diagnostics.Recorder {
			return diagnostics.NewFileRecorder(dir, runID, cfg.Diagnostics.HTMLLimit, logger)
		}
	}

	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err != nil {
			return app.Deps{}, cleanup, err
		}
		s, err := store.New(path)
		if err != nil {
			// History is best effort.
			logger.Warn("run history unavailable", zap.String("path", path), zap.Error(err))
		} else {
			deps.History = s
			cleanup = func() { s.Close() }
		}
	}

	return deps, cleanup, nil
}
