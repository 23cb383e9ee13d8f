package process

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/smazurov/procstream/internal/logging"
)

// DefaultMaxLineBytes bounds the size of a single output line.
const DefaultMaxLineBytes = 1024 * 1024

// Observer receives every event of every request a Runner drives, after the
// request's own callback. Observers are called from the driving goroutine
// and must not block for long.
type Observer interface {
	Observe(ev Event, data *Data)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event, data *Data)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event, data *Data) {
	f(ev, data)
}

// RunnerOptions configures a Runner. The zero value is usable.
type RunnerOptions struct {
	// Name identifies the runner in Starting events and logs.
	Name string

	// Logger for runner operations. If nil, uses the "process" module logger.
	Logger *slog.Logger

	// Observer is notified of every event (optional).
	Observer Observer

	// Shell is the host shell invocation used in shell mode; the script is
	// appended as the last argument. Defaults to /bin/sh -c (cmd /C on Windows).
	Shell []string

	// MaxLineBytes is the longest output line accepted. Defaults to
	// DefaultMaxLineBytes.
	MaxLineBytes int
}

// Runner starts requests. It holds no per-request state and is safe for
// concurrent use.
type Runner struct {
	name         string
	logger       *slog.Logger
	observer     Observer
	shell        []string
	maxLineBytes int
}

// NewRunner creates a runner.
func NewRunner(opts *RunnerOptions) *Runner {
	if opts == nil {
		opts = &RunnerOptions{}
	}

	r := &Runner{
		name:         opts.Name,
		logger:       opts.Logger,
		observer:     opts.Observer,
		shell:        slices.Clone(opts.Shell),
		maxLineBytes: opts.MaxLineBytes,
	}
	if r.name == "" {
		r.name = "default"
	}
	if r.logger == nil {
		r.logger = logging.GetLogger("process")
	}
	if len(r.shell) == 0 {
		r.shell = defaultShell()
	}
	if r.maxLineBytes <= 0 {
		r.maxLineBytes = DefaultMaxLineBytes
	}
	return r
}

// Start runs req. In blocking mode it returns once the terminal event has
// been delivered, with the final Result. In non-blocking mode it returns
// immediately; the returned Result only carries the Handle to join.
func (r *Runner) Start(req *Request) *Result {
	return r.StartContext(context.Background(), req)
}

// StartContext is Start with a context. When ctx ends while the pipeline is
// running, the run is terminated as if its kill capability had been used.
func (r *Runner) StartContext(ctx context.Context, req *Request) *Result {
	if req == nil {
		req = &Request{}
	}

	if !req.NonBlocking {
		return r.newDriver(ctx, req, nil, "blocking").run()
	}

	h := newHandle()
	d := r.newDriver(ctx, req, h, "non-blocking")
	go func() {
		defer close(h.done)
		defer func() {
			if v := recover(); v != nil {
				r.logger.Error("Process goroutine panicked", "request_id", req.ID, "panic", v)
				h.err = &JoinError{Value: v, Stack: debug.Stack()}
			}
		}()
		h.result = d.run()
	}()
	return &Result{Handle: h}
}

var defaultRunner = sync.OnceValue(func() *Runner {
	return NewRunner(nil)
})

// Start runs req with the default runner.
func Start(req *Request) *Result {
	return defaultRunner().Start(req)
}

// StartContext runs req with the default runner, bounded by ctx.
func StartContext(ctx context.Context, req *Request) *Result {
	return defaultRunner().StartContext(ctx, req)
}
