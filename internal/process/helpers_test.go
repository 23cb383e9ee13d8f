package process

import (
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner() *Runner {
	return NewRunner(&RunnerOptions{Name: "test", Logger: testLogger()})
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests rely on a POSIX shell")
	}
}

// loopCommand prints "tick" forever.
var loopCommand = []string{"sh", "-c", "while :; do echo tick; sleep 0.01; done"}

// recorded is one event seen by a recorder.
type recorded struct {
	event      Event
	requestID  string
	line       string
	lineNumber uint64
	pids       []int
}

// recorder is a Callback that keeps every event and delegates decisions.
type recorder struct {
	mu      sync.Mutex
	events  []recorded
	started chan struct{}
	once    sync.Once
	decide  func(ev Event, data *Data) Update
}

func newRecorder(decide func(ev Event, data *Data) Update) *recorder {
	return &recorder{started: make(chan struct{}), decide: decide}
}

func (r *recorder) OnEvent(ev Event, data *Data) Update {
	r.mu.Lock()
	r.events = append(r.events, recorded{
		event:      ev,
		requestID:  data.RequestID,
		line:       data.Line,
		lineNumber: data.LineNumber,
		pids:       slices.Clone(data.PIDs),
	})
	r.mu.Unlock()

	if ev == EventStarted {
		r.once.Do(func() { close(r.started) })
	}
	if r.decide != nil {
		return r.decide(ev, data)
	}
	return Continue()
}

func (r *recorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) kinds() []Event {
	events := r.snapshot()
	kinds := make([]Event, len(events))
	for i, e := range events {
		kinds[i] = e.event
	}
	return kinds
}

func (r *recorder) lines() []string {
	var lines []string
	for _, e := range r.snapshot() {
		if e.event == EventIOData {
			lines = append(lines, e.line)
		}
	}
	return lines
}

// waitStarted fails the test if the Started event does not arrive in time.
func (r *recorder) waitStarted(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for Started event")
	}
}

// checkSequence verifies that events follow
// Starting, (StartError | (Started, IOData*, (IOEof | ExitRequested), Exited))
// and that IOData line numbers run 1, 2, 3, ...
func checkSequence(t *testing.T, events []recorded) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	if events[0].event != EventStarting {
		t.Fatalf("first event = %v, want Starting", events[0].event)
	}

	id := events[0].requestID
	for _, e := range events {
		if e.requestID != id {
			t.Fatalf("request id changed from %q to %q", id, e.requestID)
		}
	}

	rest := events[1:]
	if len(rest) == 1 && rest[0].event == EventStartError {
		return
	}
	if len(rest) < 3 || rest[0].event != EventStarted {
		t.Fatalf("unexpected event sequence: %v", kindsOf(events))
	}

	var want uint64 = 1
	i := 1
	for ; i < len(rest) && rest[i].event == EventIOData; i++ {
		if rest[i].lineNumber != want {
			t.Fatalf("IOData line number = %d, want %d", rest[i].lineNumber, want)
		}
		want++
	}

	if i != len(rest)-2 {
		t.Fatalf("unexpected event sequence: %v", kindsOf(events))
	}
	if end := rest[i].event; end != EventIOEof && end != EventExitRequested {
		t.Fatalf("event after IOData = %v, want IOEof or ExitRequested", end)
	}
	if last := rest[i+1].event; last != EventExited {
		t.Fatalf("last event = %v, want Exited", last)
	}
}

func kindsOf(events []recorded) []Event {
	kinds := make([]Event, len(events))
	for i, e := range events {
		kinds[i] = e.event
	}
	return kinds
}

// joinWithin joins h, failing the test on timeout.
func joinWithin(t *testing.T, h *Handle, timeout time.Duration) (*Result, error) {
	t.Helper()
	select {
	case <-h.Done():
		return h.Join()
	case <-time.After(timeout):
		t.Fatal("timeout waiting for run to finish")
		return nil, nil
	}
}
