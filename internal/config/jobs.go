package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// JobSpec describes one named run of a pipeline.
type JobSpec struct {
	ID          string     `toml:"id" json:"id,omitempty" doc:"Job identifier, generated when empty"`
	Shell       bool       `toml:"shell" json:"shell,omitempty" doc:"Run every segment through the host shell"`
	Pipeline    [][]string `toml:"pipeline" json:"pipeline" doc:"Pipeline segments, each a program and its arguments"`
	NonBlocking bool       `toml:"non_blocking" json:"non_blocking,omitempty" doc:"Run on a background goroutine"`
	ExitOn      string     `toml:"exit_on,omitempty" json:"exit_on,omitempty" doc:"Regular expression; the first matching line requests exit"`
	MaxLines    int        `toml:"max_lines,omitempty" json:"max_lines,omitempty" minimum:"0" doc:"Request exit after this many lines, 0 for no limit"`
	Autostart   bool       `toml:"autostart" json:"autostart,omitempty" doc:"Start when the server starts"`
}

// JobsFile is the top-level structure of a jobs file.
type JobsFile struct {
	Jobs []JobSpec `toml:"jobs"`
}

// ErrDuplicateJob is returned when two jobs in one file share an id.
var ErrDuplicateJob = errors.New("duplicate job id")

// Validate checks fields that can be rejected before anything runs.
// Pipeline problems are left to the runner, which reports them as a start error.
func (s JobSpec) Validate() error {
	if s.MaxLines < 0 {
		return fmt.Errorf("job %q: max_lines must not be negative", s.ID)
	}
	if s.ExitOn != "" {
		if _, err := regexp.Compile(s.ExitOn); err != nil {
			return fmt.Errorf("job %q: exit_on: %w", s.ID, err)
		}
	}
	return nil
}

// ParseJobs decodes and validates a jobs document.
func ParseJobs(data []byte) (JobsFile, error) {
	var file JobsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return JobsFile{}, fmt.Errorf("failed to parse jobs: %w", err)
	}

	seen := make(map[string]bool, len(file.Jobs))
	for _, job := range file.Jobs {
		if err := job.Validate(); err != nil {
			return JobsFile{}, err
		}
		if job.ID == "" {
			continue
		}
		if seen[job.ID] {
			return JobsFile{}, fmt.Errorf("%w: %q", ErrDuplicateJob, job.ID)
		}
		seen[job.ID] = true
	}
	return file, nil
}

// LoadJobs reads a jobs file. It matches the loader signature of NewConfigWatcher.
func LoadJobs(path string) (JobsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobsFile{}, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return ParseJobs(data)
}
