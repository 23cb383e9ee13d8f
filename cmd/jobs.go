package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/smazurov/procstream/internal/process"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// CreateJobsCmd creates the jobs command.
func CreateJobsCmd() *cobra.Command {
	var watch bool
	var logJSON bool
	var historyLines int

	cmd := &cobra.Command{
		Use:   "jobs [jobs-file]",
		Short: "Run the jobs of a jobs file",
		Long: `Runs every job defined in a jobs file (jobs.toml by default) and prints a summary. ` +
			`Blocking jobs run one after another, non-blocking jobs run alongside them. ` +
			`With --watch the jobs run again each time the file changes, until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(c *cobra.Command, args []string) {
			path := "jobs.toml"
			if len(args) == 1 {
				path = args[0]
			}

			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.SetOutput(os.Stderr)
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("jobs").With("file", path)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := jobs.NewManager(&jobs.ManagerOptions{
				Runner:       process.NewRunner(&process.RunnerOptions{Name: "jobs"}),
				HistoryLines: historyLines,
				Logger:       logger,
			})

			code := runJobsFile(ctx, c.OutOrStdout(), manager, path, watch, logger)
			manager.StopAll()
			if code != 0 {
				os.Exit(code)
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Run the jobs again whenever the file changes")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.Flags().IntVar(&historyLines, "history-lines", jobs.DefaultHistoryLines, "Output lines kept per job")

	return cmd
}

// runJobsFile runs the jobs in path once, or on every change when watch is
// set, and returns the process exit code.
func runJobsFile(ctx context.Context, w io.Writer, m *jobs.Manager, path string, watch bool, logger *slog.Logger) int {
	file, err := config.LoadJobs(path)
	if err != nil {
		logger.Error("Failed to load jobs", "error", err)
		return 1
	}

	infos, err := runJobs(ctx, m, file.Jobs, logger)
	if err != nil {
		logger.Error("Jobs interrupted", "error", err)
		return 1
	}
	if err := printSummary(w, infos); err != nil {
		logger.Error("Failed to write summary", "error", err)
	}
	if !watch {
		if anyFailed(infos) {
			return 1
		}
		return 0
	}

	watcher := config.NewConfigWatcher(path, config.LoadJobs, logger)
	watcher.OnReload(func(file config.JobsFile) {
		logger.Info("Jobs file changed, running jobs again", "jobs", len(file.Jobs))
		infos, err := runJobs(ctx, m, file.Jobs, logger)
		if err != nil {
			logger.Warn("Jobs interrupted", "error", err)
			return
		}
		if err := printSummary(w, infos); err != nil {
			logger.Error("Failed to write summary", "error", err)
		}
	})
	if err := watcher.Start(); err != nil {
		logger.Error("Failed to watch jobs file", "error", err)
		return 1
	}
	defer func() { _ = watcher.Stop() }()

	<-ctx.Done()
	return 0
}

// runJobs starts specs in order and waits for every one of them. A blocking
// spec finishes before the next spec starts; non-blocking specs run side by
// side. Specs whose id is still running are skipped. A spec that cannot be
// started is reported as failed.
func runJobs(ctx context.Context, m *jobs.Manager, specs []config.JobSpec, logger *slog.Logger) ([]jobs.Info, error) {
	infos := make([]jobs.Info, 0, len(specs))
	var pending []int

	for _, spec := range specs {
		info, err := m.Start(ctx, spec)
		switch {
		case errors.Is(err, jobs.ErrJobRunning):
			logger.Warn("Job still running, skipped", "job_id", spec.ID)
			continue
		case err != nil:
			info = &jobs.Info{ID: spec.ID, State: jobs.StateFailed, Spec: spec, Error: err.Error()}
		case info.State.Active():
			pending = append(pending, len(infos))
		}
		infos = append(infos, *info)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range pending {
		g.Go(func() error {
			info, err := m.Wait(gctx, infos[i].ID)
			if err != nil {
				return err
			}
			infos[i] = *info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// printSummary writes one row per job.
func printSummary(w io.Writer, infos []jobs.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATE\tLINES\tEXIT\tDETAIL")
	for _, info := range infos {
		detail := info.Error
		if detail == "" && len(info.Matched) > 0 {
			detail = "matched: " + info.Matched[0]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", info.ID, info.State, info.Lines, info.ShouldExit, detail)
	}
	return tw.Flush()
}

func anyFailed(infos []jobs.Info) bool {
	for _, info := range infos {
		if info.State == jobs.StateFailed {
			return true
		}
	}
	return false
}
