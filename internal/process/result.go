package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for the process package.
var (
	// ErrNoArguments is returned when the pipeline or one of its segments is empty.
	ErrNoArguments = errors.New("Command line - arguments are unavailable")

	// ErrNotStarted is returned when killing a run that has not spawned yet.
	ErrNotStarted = errors.New("process not started")
)

// Result accumulates the outcome of a run.
type Result struct {
	// Handle is set only in non-blocking mode; join it for the final Result.
	Handle *Handle

	// ShouldExit is set once termination was requested and never reverts.
	ShouldExit bool

	// Success reports a run that spawned, was read to the end (or
	// terminated on request) and whose stages exited cleanly.
	Success bool

	// Err holds the failure detail when Success is false.
	Err error

	// Payload slots populated from callback updates, last write wins.
	DataStrings []string
	DataBool    *bool
	DataNum     *int64
	DataDecimal *float64

	// Lines is the number of IOData events delivered.
	Lines uint64

	// PIDs are the child process ids reported at Started.
	PIDs []int
}

// apply merges a callback update.
func (r *Result) apply(u Update) {
	if u.Exit {
		r.ShouldExit = true
	}
	if u.Strings != nil {
		r.DataStrings = u.Strings
	}
	if u.Bool != nil {
		r.DataBool = u.Bool
	}
	if u.Num != nil {
		r.DataNum = u.Num
	}
	if u.Decimal != nil {
		r.DataDecimal = u.Decimal
	}
}

func (r *Result) fail(err error) {
	r.Success = false
	r.Err = err
}

// outcome describes the result for the Exited event.
func (r *Result) outcome() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return "success"
}

// JoinError reports a non-blocking run whose goroutine panicked.
type JoinError struct {
	Value any
	Stack []byte
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("process goroutine panicked: %v", e.Value)
}

// Handle is a joinable reference to a non-blocking run.
type Handle struct {
	done   chan struct{}
	result *Result
	err    error

	mu   sync.Mutex
	kill *killSwitch
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done returns a channel that is closed once the run has delivered its
// terminal event.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Join blocks until the run finishes and returns its final Result. Join may
// be called any number of times and always returns the same values. A
// *JoinError is returned if the run's goroutine panicked.
func (h *Handle) Join() (*Result, error) {
	<-h.done
	return h.result, h.err
}

// JoinContext is Join bounded by ctx. The run keeps going if ctx ends first.
func (h *Handle) JoinContext(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Kill terminates the run. It returns ErrNotStarted until the pipeline has
// spawned and is a no-op once the run has exited.
func (h *Handle) Kill() error {
	h.mu.Lock()
	k := h.kill
	h.mu.Unlock()
	if k == nil {
		return ErrNotStarted
	}
	return k.kill()
}

func (h *Handle) attach(k *killSwitch) {
	h.mu.Lock()
	h.kill = k
	h.mu.Unlock()
}
