package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/process"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, opts *ManagerOptions) *Manager {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("job tests rely on a POSIX shell")
	}
	if opts == nil {
		opts = &ManagerOptions{}
	}
	opts.Logger = testLogger()
	if opts.Runner == nil {
		opts.Runner = process.NewRunner(&process.RunnerOptions{Name: "jobs-test", Logger: testLogger()})
	}
	m := NewManager(opts)
	t.Cleanup(m.StopAll)
	return m
}

func waitJob(t *testing.T, m *Manager, id string) *Info {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%q) = %v", id, err)
	}
	return info
}

func waitState(t *testing.T, m *Manager, id string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := m.Status(id)
		if err == nil && info.State == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %q never reached %s", id, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

var loopPipeline = [][]string{{"sh", "-c", "i=0; while :; do i=$((i+1)); echo line $i; sleep 0.01; done"}}

func TestManagerNonBlockingJob(t *testing.T) {
	m := newTestManager(t, nil)

	info, err := m.Start(context.Background(), config.JobSpec{
		ID:          "listing",
		Shell:       true,
		Pipeline:    [][]string{{"printf", `'b\na\n'`}, {"sort"}},
		NonBlocking: true,
	})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if info.ID != "listing" {
		t.Errorf("info id = %q", info.ID)
	}

	final := waitJob(t, m, "listing")
	if final.State != StateSucceeded {
		t.Fatalf("state = %s, error %q", final.State, final.Error)
	}
	if !slices.Equal(final.Recent, []string{"a", "b"}) {
		t.Errorf("Recent = %q", final.Recent)
	}
	if final.Lines != 2 || len(final.PIDs) != 2 || final.FinishedAt == nil {
		t.Errorf("final info = %+v", final)
	}
}

func TestManagerBlockingJob(t *testing.T) {
	m := newTestManager(t, nil)

	info, err := m.Start(context.Background(), config.JobSpec{
		ID:       "blocking",
		Pipeline: [][]string{{"echo", "done"}},
	})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if info.State != StateSucceeded || info.Lines != 1 {
		t.Errorf("blocking Start should return the finished job, got %+v", info)
	}
}

func TestManagerGeneratesID(t *testing.T) {
	m := newTestManager(t, nil)

	info, err := m.Start(context.Background(), config.JobSpec{Pipeline: [][]string{{"true"}}})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if _, err := uuid.Parse(info.ID); err != nil {
		t.Errorf("generated id %q is not a uuid: %v", info.ID, err)
	}
}

func TestManagerExitOn(t *testing.T) {
	m := newTestManager(t, nil)

	if _, err := m.Start(context.Background(), config.JobSpec{
		ID:          "watch",
		Pipeline:    loopPipeline,
		NonBlocking: true,
		ExitOn:      `line 3$`,
	}); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	final := waitJob(t, m, "watch")
	if final.State != StateSucceeded || !final.ShouldExit {
		t.Errorf("state=%s should_exit=%v error=%q", final.State, final.ShouldExit, final.Error)
	}
	if !slices.Equal(final.Matched, []string{"line 3"}) {
		t.Errorf("Matched = %q", final.Matched)
	}
	if final.Lines != 3 {
		t.Errorf("Lines = %d, want 3", final.Lines)
	}
}

func TestManagerMaxLines(t *testing.T) {
	m := newTestManager(t, nil)

	info, err := m.Start(context.Background(), config.JobSpec{ID: "head", Pipeline: loopPipeline, MaxLines: 5})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if info.Lines != 5 || !info.ShouldExit || info.State != StateSucceeded {
		t.Errorf("info = %+v", info)
	}
	if len(info.Recent) != 5 || info.Recent[4] != "line 5" {
		t.Errorf("Recent = %q", info.Recent)
	}
}

func TestManagerKill(t *testing.T) {
	m := newTestManager(t, nil)

	if _, err := m.Start(context.Background(), config.JobSpec{ID: "loop", Pipeline: loopPipeline, NonBlocking: true}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitState(t, m, "loop", StateRunning)

	if _, err := m.Start(context.Background(), config.JobSpec{ID: "loop", Pipeline: loopPipeline, NonBlocking: true}); !errors.Is(err, ErrJobRunning) {
		t.Errorf("second Start() = %v, want ErrJobRunning", err)
	}
	if err := m.Remove("loop"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("Remove() on a running job = %v, want ErrJobRunning", err)
	}

	if err := m.Kill("loop"); err != nil {
		t.Fatalf("Kill() = %v", err)
	}
	final := waitJob(t, m, "loop")
	if final.State != StateStopped || !final.ShouldExit {
		t.Errorf("state=%s should_exit=%v error=%q", final.State, final.ShouldExit, final.Error)
	}

	if err := m.Kill("loop"); !errors.Is(err, ErrJobNotRunning) {
		t.Errorf("Kill() after finish = %v, want ErrJobNotRunning", err)
	}
	if err := m.Kill("absent"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Kill() unknown = %v, want ErrJobNotFound", err)
	}
}

func TestManagerFailedJob(t *testing.T) {
	m := newTestManager(t, nil)

	info, err := m.Start(context.Background(), config.JobSpec{ID: "fail", Pipeline: [][]string{{"sh", "-c", "echo oops; exit 2"}}})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if info.State != StateFailed || info.Error == "" {
		t.Errorf("info = %+v", info)
	}

	empty, err := m.Start(context.Background(), config.JobSpec{ID: "empty"})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if empty.State != StateFailed || empty.Error != process.ErrNoArguments.Error() {
		t.Errorf("empty pipeline info = %+v", empty)
	}
}

func TestManagerRestartFinishedJob(t *testing.T) {
	m := newTestManager(t, nil)
	spec := config.JobSpec{ID: "again", Pipeline: [][]string{{"echo", "x"}}}

	for range 2 {
		info, err := m.Start(context.Background(), spec)
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
		if info.State != StateSucceeded {
			t.Errorf("state = %s", info.State)
		}
	}
	if n := len(m.List()); n != 1 {
		t.Errorf("List() has %d jobs, want 1", n)
	}
}

func TestManagerRemoveAndList(t *testing.T) {
	m := newTestManager(t, nil)

	for _, id := range []string{"first", "second"} {
		if _, err := m.Start(context.Background(), config.JobSpec{ID: id, Pipeline: [][]string{{"true"}}}); err != nil {
			t.Fatalf("Start(%s) = %v", id, err)
		}
	}

	list := m.List()
	if len(list) != 2 || list[0].ID != "first" || list[1].ID != "second" {
		t.Fatalf("List() = %+v", list)
	}

	if err := m.Remove("first"); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if _, err := m.Status("first"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Status() after Remove = %v, want ErrJobNotFound", err)
	}
	if err := m.Remove("first"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second Remove() = %v, want ErrJobNotFound", err)
	}
}

func TestManagerInvalidSpec(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.Start(context.Background(), config.JobSpec{ID: "bad", ExitOn: "("}); err == nil {
		t.Error("expected an error for an invalid exit_on")
	}
	if _, err := m.Status("bad"); !errors.Is(err, ErrJobNotFound) {
		t.Error("a rejected spec should not be recorded")
	}
}

func TestManagerHistoryBound(t *testing.T) {
	m := newTestManager(t, &ManagerOptions{HistoryLines: 2})

	info, err := m.Start(context.Background(), config.JobSpec{
		ID:       "history",
		Pipeline: [][]string{{"sh", "-c", "echo 1; echo 2; echo 3"}},
	})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !slices.Equal(info.Recent, []string{"2", "3"}) {
		t.Errorf("Recent = %q, want [2 3]", info.Recent)
	}
}

func TestManagerStateChangesAndBus(t *testing.T) {
	bus := events.New()
	finished := make(chan events.JobFinishedEvent, 1)
	unsub := bus.Subscribe(func(e events.JobFinishedEvent) { finished <- e })
	defer unsub()

	var mu sync.Mutex
	var transitions []State
	m := newTestManager(t, &ManagerOptions{
		Bus: bus,
		OnStateChange: func(_ string, _, newState State) {
			mu.Lock()
			transitions = append(transitions, newState)
			mu.Unlock()
		},
	})

	if _, err := m.Start(context.Background(), config.JobSpec{ID: "observed", Pipeline: [][]string{{"echo", "hi"}}}); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := m.Remove("observed"); err != nil {
		t.Fatalf("Remove() = %v", err)
	}

	mu.Lock()
	want := []State{StateStarting, StateRunning, StateSucceeded, ""}
	if !slices.Equal(transitions, want) {
		t.Errorf("transitions = %q, want %q", transitions, want)
	}
	mu.Unlock()

	select {
	case e := <-finished:
		if e.JobID != "observed" || !e.Success || e.Lines != 1 {
			t.Errorf("finished event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no JobFinishedEvent published")
	}
}

func TestManagerStopAll(t *testing.T) {
	m := newTestManager(t, nil)

	for _, id := range []string{"a", "b"} {
		if _, err := m.Start(context.Background(), config.JobSpec{ID: id, Pipeline: loopPipeline, NonBlocking: true}); err != nil {
			t.Fatalf("Start(%s) = %v", id, err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopAll did not return")
	}

	for _, info := range m.List() {
		if info.State != StateStopped {
			t.Errorf("job %s state = %s, want stopped", info.ID, info.State)
		}
	}
	if _, err := m.Start(context.Background(), config.JobSpec{ID: "late", Pipeline: [][]string{{"true"}}}); err == nil {
		t.Error("Start after StopAll should fail")
	}
}

func TestManagerBlockingJobHonoursContext(t *testing.T) {
	m := newTestManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	info, err := m.Start(ctx, config.JobSpec{ID: "bounded", Pipeline: loopPipeline})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("context did not end the blocking job")
	}
	if !info.ShouldExit || info.State != StateSucceeded {
		t.Errorf("info = %+v", info)
	}
}
