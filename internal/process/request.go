package process

import "slices"

// Request describes one run: a pipeline of command segments and how to run it.
// A Request is not modified by the runner and may be reused.
type Request struct {
	// ID is a caller-chosen correlation identifier carried by every event.
	ID string

	// UseShell runs each segment through the host shell instead of executing
	// the first token directly.
	UseShell bool

	// Pipeline holds the stages in order. Each stage is a program followed by
	// its arguments; stage i's stdout feeds stage i+1's stdin.
	Pipeline [][]string

	// NonBlocking makes Start return immediately with a joinable Handle.
	NonBlocking bool

	// Callback receives every event. It may be shared between requests, in
	// which case it must synchronise its own state.
	Callback Callback
}

// Callback observes a run and decides its fate line by line.
type Callback interface {
	// OnEvent is called once per event. The returned Update is merged into
	// the run's Result for IOData events and ignored otherwise.
	OnEvent(ev Event, data *Data) Update
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(ev Event, data *Data) Update

// OnEvent implements Callback.
func (f CallbackFunc) OnEvent(ev Event, data *Data) Update {
	return f(ev, data)
}

// Data is the per-event snapshot handed to the callback.
type Data struct {
	// RequestID is the originating request's correlation identifier.
	RequestID string

	// Request is the originating request.
	Request *Request

	// PIDs are the child process ids of every stage, from Started onwards.
	PIDs []int

	// Line is the output line for IOData. For other events it carries
	// descriptive text (the error for StartError, the triggering line for
	// ExitRequested, the outcome for Exited).
	Line string

	// LineNumber is the 1-based line sequence number, valid for IOData only.
	LineNumber uint64

	kill *killSwitch
}

// Kill terminates every stage of the run's pipeline and unblocks the output
// reader. It is safe to call from inside the callback and from any other
// goroutine, any number of times. It returns ErrNotStarted before Started.
func (d *Data) Kill() error {
	if d == nil || d.kill == nil {
		return ErrNotStarted
	}
	return d.kill.kill()
}

// Update is a callback's decision for one IOData event. Nil payload fields
// leave the corresponding Result slot untouched.
type Update struct {
	Exit    bool
	Strings []string
	Bool    *bool
	Num     *int64
	Decimal *float64
}

// Continue lets the run proceed without touching the result.
func Continue() Update {
	return Update{}
}

// Exit requests early termination of the run.
func Exit() Update {
	return Update{Exit: true}
}

// WithStrings sets the string-list payload.
func (u Update) WithStrings(s ...string) Update {
	u.Strings = slices.Clone(s)
	if u.Strings == nil {
		u.Strings = []string{}
	}
	return u
}

// WithBool sets the boolean payload.
func (u Update) WithBool(b bool) Update {
	u.Bool = &b
	return u
}

// WithNum sets the numeric payload.
func (u Update) WithNum(n int64) Update {
	u.Num = &n
	return u
}

// WithDecimal sets the decimal payload.
func (u Update) WithDecimal(f float64) Update {
	u.Decimal = &f
	return u
}
