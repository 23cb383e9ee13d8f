package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/procstream/cmd"
	"github.com/smazurov/procstream/internal/api"
	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/smazurov/procstream/internal/metrics"
	"github.com/smazurov/procstream/internal/process"
	"github.com/smazurov/procstream/internal/systemd"
	"github.com/smazurov/procstream/internal/version"
)

// shutdownTimeout bounds how long open connections may delay shutdown.
const shutdownTimeout = 5 * time.Second

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"procstream.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Jobs settings
	JobsFile         string `help:"Job definitions file" default:"jobs.toml" toml:"jobs.file" env:"JOBS_FILE"`
	JobsWatch        bool   `help:"Autostart jobs added to the jobs file while running" default:"true" toml:"jobs.watch" env:"JOBS_WATCH"`
	JobsHistoryLines int    `help:"Output lines kept per job" default:"100" toml:"jobs.history_lines" env:"JOBS_HISTORY_LINES"`

	// Process settings
	ProcessShell        string `help:"Host shell invocation for shell mode, e.g. \"/bin/bash -c\"" default:"" toml:"process.shell" env:"PROCESS_SHELL"`
	ProcessMaxLineBytes int    `help:"Longest accepted output line in bytes" default:"1048576" toml:"process.max_line_bytes" env:"PROCESS_MAX_LINE_BYTES"`

	// Observability settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Auth settings, disabled while the username is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess string `help:"Process runner logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingJobs    string `help:"Jobs logging level" default:"info" toml:"logging.jobs" env:"LOGGING_JOBS"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Explicit flags win over the file and the environment
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"process": opts.LoggingProcess,
				"jobs":    opts.LoggingJobs,
				"api":     opts.LoggingAPI,
				"config":  opts.LoggingConfig,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info("procstream starting", "version", version.String())

		// Create event bus for in-process event handling
		eventBus := events.New()

		var unsubscribeMetrics func()
		if opts.MetricsEnabled {
			unsubscribeMetrics = metrics.Subscribe(eventBus)
		}

		runner := process.NewRunner(&process.RunnerOptions{
			Name:         "serve",
			Observer:     events.NewProcessObserver(eventBus, "serve"),
			Shell:        strings.Fields(opts.ProcessShell),
			MaxLineBytes: opts.ProcessMaxLineBytes,
		})

		manager := jobs.NewManager(&jobs.ManagerOptions{
			Runner:       runner,
			Bus:          eventBus,
			HistoryLines: opts.JobsHistoryLines,
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Jobs:         manager,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		var watcher *config.Watcher[config.JobsFile]
		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			ctx := context.Background()

			jobsFile, loadErr := config.LoadJobs(opts.JobsFile)
			switch {
			case loadErr == nil:
				started := cmd.StartAutostartJobs(ctx, manager, jobsFile, false, logger)
				logger.Info("Loaded jobs file", "file", opts.JobsFile, "jobs", len(jobsFile.Jobs), "autostarted", started)
			case errors.Is(loadErr, os.ErrNotExist):
				logger.Info("No jobs file, starting without jobs", "file", opts.JobsFile)
			default:
				logger.Warn("Failed to load jobs file", "file", opts.JobsFile, "error", loadErr)
			}

			if opts.JobsWatch {
				watcher = config.NewConfigWatcher(opts.JobsFile, config.LoadJobs, logging.GetLogger("config"))
				watcher.OnReload(func(file config.JobsFile) {
					if started := cmd.StartAutostartJobs(ctx, manager, file, true, logger); started > 0 {
						logger.Info("Started jobs added to jobs file", "count", started)
					}
				})
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch jobs file, reload disabled", "error", startErr)
					watcher = nil
				}
			}

			go systemd.RunWatchdog(watchdogCtx, logger)
			if _, notifyErr := systemd.Status("serving on %s", opts.Port); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			}
			if _, notifyErr := systemd.Ready(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			}

			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = systemd.Stopping()
			stopWatchdog()

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if watcher != nil {
				_ = watcher.Stop()
			}

			// Kill running pipelines after the API stops accepting new jobs
			manager.StopAll()

			if unsubscribeMetrics != nil {
				unsubscribeMetrics()
			}
		})
	})

	cli.Root().Use = "procstream"
	cli.Root().Short = "Run process pipelines and stream their output"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreateJobsCmd())

	// Run the CLI
	cli.Run()
}
