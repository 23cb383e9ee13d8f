// Package jobs runs named pipelines on top of the process runner and keeps
// their state, recent output and final result for inspection.
package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/smazurov/procstream/internal/process"
)

// Manager errors.
var (
	ErrJobRunning    = errors.New("job already running")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job not running")
)

// job tracks one submitted pipeline.
type job struct {
	spec       config.JobSpec
	policy     *ExitPolicy
	state      State
	pids       []int
	lines      uint64
	recent     *Ring[string]
	matched    []string
	startedAt  time.Time
	finishedAt time.Time
	result     *process.Result
	errText    string
	cancel     context.CancelFunc
	killed     bool
	done       chan struct{}
}

// Manager runs jobs by id. It is safe for concurrent use.
type Manager struct {
	opts    ManagerOptions
	runner  *process.Runner
	jobs    map[string]*job
	mu      sync.RWMutex
	logger  *slog.Logger
	history int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a job manager.
func NewManager(opts *ManagerOptions) *Manager {
	if opts == nil {
		opts = &ManagerOptions{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("jobs")
	}
	runner := opts.Runner
	if runner == nil {
		runner = process.NewRunner(&process.RunnerOptions{Name: "jobs"})
	}
	history := opts.HistoryLines
	if history == 0 {
		history = DefaultHistoryLines
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:    *opts,
		runner:  runner,
		jobs:    make(map[string]*job),
		logger:  logger,
		history: history,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start submits spec. An empty id is replaced by a generated one. A blocking
// spec runs on the caller's goroutine and Start returns once it finished; a
// non-blocking spec returns as soon as it is submitted.
func (m *Manager) Start(ctx context.Context, spec config.JobSpec) (*Info, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	policy, err := NewExitPolicy(spec.ExitOn, spec.MaxLines)
	if err != nil {
		return nil, err
	}

	j := &job{
		spec:      spec,
		state:     StateStarting,
		recent:    NewRing[string](m.history),
		startedAt: time.Now(),
		done:      make(chan struct{}),
		policy:    policy,
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("job %q: manager stopped", spec.ID)
	}
	oldState := State("")
	if prev, exists := m.jobs[spec.ID]; exists {
		if prev.state.Active() {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrJobRunning, spec.ID)
		}
		oldState = prev.state
	}
	runCtx, cancel := context.WithCancel(m.ctx)
	j.cancel = cancel
	m.jobs[spec.ID] = j
	m.wg.Add(1)
	m.mu.Unlock()

	m.notifyStateChange(spec.ID, oldState, StateStarting)
	m.logger.Info("Starting job", "job_id", spec.ID, "stages", len(spec.Pipeline), "non_blocking", spec.NonBlocking)

	req := &process.Request{
		ID:          spec.ID,
		UseShell:    spec.Shell,
		Pipeline:    spec.Pipeline,
		NonBlocking: spec.NonBlocking,
		Callback:    m.callback(j),
	}

	if !spec.NonBlocking {
		defer m.wg.Done()
		// The caller's context bounds a blocking run as well.
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		m.finish(j, m.runner.StartContext(runCtx, req), nil)
		return m.Status(spec.ID)
	}

	placeholder := m.runner.StartContext(runCtx, req)
	go func() {
		defer m.wg.Done()
		res, err := placeholder.Handle.Join()
		m.finish(j, res, err)
	}()
	return m.Status(spec.ID)
}

// callback records a job's output and applies its exit rules.
func (m *Manager) callback(j *job) process.Callback {
	return process.CallbackFunc(func(ev process.Event, data *process.Data) process.Update {
		switch ev {
		case process.EventStarted:
			m.mu.Lock()
			j.pids = slices.Clone(data.PIDs)
			old := j.state
			if old == StateStarting {
				j.state = StateRunning
			}
			m.mu.Unlock()
			if old == StateStarting {
				m.notifyStateChange(j.spec.ID, old, StateRunning)
			}

		case process.EventIOData:
			j.recent.Write(data.Line)
			m.mu.Lock()
			j.lines = data.LineNumber
			m.mu.Unlock()

			update := j.policy.Check(data.Line, data.LineNumber)
			if update.Exit {
				m.logger.Info("Job exit rule hit", "job_id", j.spec.ID, "line", data.LineNumber)
			}
			return update
		}
		return process.Continue()
	})
}

// finish records the final result of j.
func (m *Manager) finish(j *job, res *process.Result, joinErr error) {
	j.cancel()

	m.mu.Lock()
	old := j.state
	j.finishedAt = time.Now()
	j.result = res
	switch {
	case joinErr != nil:
		j.state = StateFailed
		j.errText = joinErr.Error()
	case res.Err != nil:
		j.state = StateFailed
		j.errText = res.Err.Error()
	case j.killed:
		j.state = StateStopped
	default:
		j.state = StateSucceeded
	}
	if res != nil {
		j.matched = res.DataStrings
		j.lines = res.Lines
	}
	newState := j.state
	finished := events.JobFinishedEvent{
		JobID:     j.spec.ID,
		Success:   newState != StateFailed,
		Error:     j.errText,
		Lines:     j.lines,
		Duration:  j.finishedAt.Sub(j.startedAt).Seconds(),
		Timestamp: j.finishedAt.Format(time.RFC3339Nano),
	}
	if res != nil {
		finished.ShouldExit = res.ShouldExit
	}
	close(j.done)
	m.mu.Unlock()

	m.notifyStateChange(j.spec.ID, old, newState)
	if m.opts.Bus != nil {
		m.opts.Bus.Publish(finished)
	}

	if newState == StateFailed {
		m.logger.Warn("Job failed", "job_id", j.spec.ID, "error", finished.Error)
	} else {
		m.logger.Info("Job finished", "job_id", j.spec.ID, "state", newState, "lines", finished.Lines)
	}
}

// Kill terminates a job's pipeline.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	j, exists := m.jobs[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !j.state.Active() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotRunning, id)
	}
	old := j.state
	j.state = StateStopping
	j.killed = true
	m.mu.Unlock()

	if old != StateStopping {
		m.notifyStateChange(id, old, StateStopping)
	}
	m.logger.Info("Killing job", "job_id", id)
	j.cancel()
	return nil
}

// Wait blocks until job id finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*Info, error) {
	m.mu.RLock()
	j, exists := m.jobs[id]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	select {
	case <-j.done:
		return m.Status(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns a snapshot of job id.
func (m *Manager) Status(id string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, exists := m.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.info(), nil
}

// List returns snapshots of all known jobs, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.jobs))
	for _, j := range m.jobs {
		infos = append(infos, *j.info())
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return infos
}

// Remove forgets a finished job.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	j, exists := m.jobs[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.state.Active() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	delete(m.jobs, id)
	old := j.state
	m.mu.Unlock()

	m.notifyStateChange(id, old, "")
	return nil
}

// StopAll kills every running job and waits for all of them to finish.
// The manager accepts no new jobs afterwards.
func (m *Manager) StopAll() {
	m.logger.Info("Stopping all jobs")

	type transition struct {
		id  string
		old State
	}
	var stopping []transition

	m.mu.Lock()
	for id, j := range m.jobs {
		if !j.state.Active() {
			continue
		}
		j.killed = true
		if j.state != StateStopping {
			stopping = append(stopping, transition{id, j.state})
			j.state = StateStopping
		}
	}
	m.cancel()
	m.mu.Unlock()

	for _, t := range stopping {
		m.notifyStateChange(t.id, t.old, StateStopping)
	}
	m.wg.Wait()
	m.logger.Info("All jobs stopped")
}

func (m *Manager) notifyStateChange(id string, oldState, newState State) {
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(id, oldState, newState)
	}
	if m.opts.Bus != nil {
		m.opts.Bus.Publish(events.JobStateChangedEvent{
			JobID:     id,
			OldState:  string(oldState),
			NewState:  string(newState),
			Timestamp: time.Now().Format(time.RFC3339Nano),
		})
	}
}

// info snapshots j. Callers must hold the manager lock.
func (j *job) info() *Info {
	info := &Info{
		ID:        j.spec.ID,
		State:     j.state,
		Spec:      j.spec,
		PIDs:      slices.Clone(j.pids),
		Lines:     j.lines,
		Recent:    j.recent.ReadAll(),
		Matched:   slices.Clone(j.matched),
		StartedAt: j.startedAt,
		Error:     j.errText,
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		info.FinishedAt = &finished
	}
	if j.result != nil {
		info.ShouldExit = j.result.ShouldExit
	}
	return info
}
