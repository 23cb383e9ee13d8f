package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/jobs"
)

// StartAutostartJobs starts every job of file marked autostart and returns
// how many were started. Jobs always run in the background here so a blocking
// definition cannot hold up the caller. With onlyNew set, jobs the manager
// already knows and jobs without an id are left alone.
func StartAutostartJobs(ctx context.Context, m *jobs.Manager, file config.JobsFile, onlyNew bool, logger *slog.Logger) int {
	started := 0
	for _, spec := range file.Jobs {
		if !spec.Autostart {
			continue
		}
		if onlyNew {
			if spec.ID == "" {
				continue
			}
			if _, err := m.Status(spec.ID); !errors.Is(err, jobs.ErrJobNotFound) {
				continue
			}
		}

		spec.NonBlocking = true
		if _, err := m.Start(ctx, spec); err != nil {
			logger.Warn("Failed to autostart job", "job_id", spec.ID, "error", err)
			continue
		}
		started++
	}
	return started
}
