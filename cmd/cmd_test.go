package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/process"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager() *jobs.Manager {
	return jobs.NewManager(&jobs.ManagerOptions{
		Runner: process.NewRunner(&process.RunnerOptions{Name: "test", Logger: testLogger()}),
		Logger: testLogger(),
	})
}

func TestSplitPipeline(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want [][]string
	}{
		{"single", []string{"ls", "-la"}, [][]string{{"ls", "-la"}}},
		{"two stages", []string{"ls", "|", "sort", "-r"}, [][]string{{"ls"}, {"sort", "-r"}}},
		{"trailing pipe", []string{"ls", "|"}, [][]string{{"ls"}, {}}},
		{"embedded bar is an argument", []string{"echo", "a|b"}, [][]string{{"echo", "a|b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitPipeline(tt.args)
			if !slices.EqualFunc(got, tt.want, func(a, b []string) bool { return slices.Equal(a, b) }) {
				t.Errorf("splitPipeline(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunPipelineText(t *testing.T) {
	skipOnWindows(t)

	var out bytes.Buffer
	res, err := runPipeline(context.Background(), &out, runOptions{ID: "text"},
		[][]string{{"printf", `b\na\n`}, {"sort"}})
	if err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if !res.Success || res.Lines != 2 {
		t.Fatalf("expected success with 2 lines, got lines=%d err=%v", res.Lines, res.Err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 event lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "Starting") || !strings.HasPrefix(lines[5], "Exited") {
		t.Errorf("unexpected first/last lines: %q / %q", lines[0], lines[5])
	}
	if !strings.HasSuffix(lines[2], "1  a") || !strings.HasSuffix(lines[3], "2  b") {
		t.Errorf("unexpected data lines: %q %q", lines[2], lines[3])
	}
}

func TestRunPipelineJSONAsync(t *testing.T) {
	skipOnWindows(t)

	var out bytes.Buffer
	res, err := runPipeline(context.Background(), &out, runOptions{ID: "json", JSON: true, Async: true},
		[][]string{{"echo", "hello"}})
	if err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}

	var kinds []string
	dec := json.NewDecoder(&out)
	for dec.More() {
		var ev events.ProcessEvent
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.RequestID != "json" || ev.Runner != "run" {
			t.Errorf("unexpected event identity: %+v", ev)
		}
		if ev.Kind == "IOData" && ev.Line != "hello" {
			t.Errorf("IOData line = %q", ev.Line)
		}
		kinds = append(kinds, ev.Kind)
	}
	want := []string{"Starting", "Started", "IOData", "IOEof", "Exited"}
	if !slices.Equal(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestRunPipelineExitOn(t *testing.T) {
	skipOnWindows(t)

	var out bytes.Buffer
	res, err := runPipeline(context.Background(), &out, runOptions{ExitOn: "^tick"},
		[][]string{{"sh", "-c", "while :; do echo tick; sleep 0.01; done"}})
	if err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if !res.ShouldExit || !res.Success {
		t.Errorf("expected requested exit and success, got exit=%v err=%v", res.ShouldExit, res.Err)
	}
	if !slices.Equal(res.DataStrings, []string{"tick"}) {
		t.Errorf("DataStrings = %v", res.DataStrings)
	}
	if !strings.Contains(out.String(), "ExitRequested") {
		t.Errorf("missing ExitRequested in output:\n%s", out.String())
	}
}

func TestRunPipelineErrors(t *testing.T) {
	var out bytes.Buffer
	if _, err := runPipeline(context.Background(), &out, runOptions{ExitOn: "("}, [][]string{{"true"}}); err == nil {
		t.Error("expected error for invalid exit pattern")
	}

	res, err := runPipeline(context.Background(), &out, runOptions{}, [][]string{{"echo"}, {}})
	if err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if res.Success || !errors.Is(res.Err, process.ErrNoArguments) {
		t.Errorf("expected ErrNoArguments, got %v", res.Err)
	}
	if !strings.Contains(out.String(), "StartError") {
		t.Errorf("missing StartError in output:\n%s", out.String())
	}
}

func TestRunJobs(t *testing.T) {
	skipOnWindows(t)

	m := newTestManager()
	defer m.StopAll()

	specs := []config.JobSpec{
		{ID: "first", Pipeline: [][]string{{"echo", "one"}}},
		{ID: "background", NonBlocking: true, Pipeline: [][]string{{"sh", "-c", "sleep 0.1; echo two"}}},
		{ID: "broken", Pipeline: [][]string{{"sh", "-c", "exit 3"}}},
		{ID: "bad", ExitOn: "(", Pipeline: [][]string{{"true"}}},
	}

	infos, err := runJobs(context.Background(), m, specs, testLogger())
	if err != nil {
		t.Fatalf("runJobs() error = %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("got %d infos, want 4", len(infos))
	}

	wantStates := []jobs.State{jobs.StateSucceeded, jobs.StateSucceeded, jobs.StateFailed, jobs.StateFailed}
	for i, info := range infos {
		if info.ID != specs[i].ID || info.State != wantStates[i] {
			t.Errorf("job %d: id=%q state=%q, want %q %q", i, info.ID, info.State, specs[i].ID, wantStates[i])
		}
	}
	if infos[1].Lines != 1 {
		t.Errorf("background job lines = %d, want 1", infos[1].Lines)
	}
	if !anyFailed(infos) {
		t.Error("anyFailed should report the failed jobs")
	}

	var out bytes.Buffer
	if err := printSummary(&out, infos); err != nil {
		t.Fatalf("printSummary() error = %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 5 {
		t.Errorf("summary has %d lines, want 5:\n%s", got, out.String())
	}
}

func TestRunJobsFile(t *testing.T) {
	skipOnWindows(t)

	path := filepath.Join(t.TempDir(), "jobs.toml")
	content := `
[[jobs]]
id = "ok"
pipeline = [["echo", "hi"]]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestManager()
	defer m.StopAll()

	var out bytes.Buffer
	if code := runJobsFile(context.Background(), &out, m, path, false, testLogger()); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "succeeded") {
		t.Errorf("summary missing job state:\n%s", out.String())
	}

	if code := runJobsFile(context.Background(), &out, m, filepath.Join(t.TempDir(), "missing.toml"), false, testLogger()); code != 1 {
		t.Errorf("exit code for missing file = %d, want 1", code)
	}
}

func TestStartAutostartJobs(t *testing.T) {
	skipOnWindows(t)

	m := newTestManager()
	defer m.StopAll()

	file := config.JobsFile{Jobs: []config.JobSpec{
		{ID: "auto", Autostart: true, Pipeline: [][]string{{"echo", "a"}}},
		{ID: "manual", Pipeline: [][]string{{"echo", "b"}}},
		{Autostart: true, Pipeline: [][]string{{"echo", "c"}}},
	}}

	if n := StartAutostartJobs(context.Background(), m, file, false, testLogger()); n != 2 {
		t.Fatalf("started %d jobs, want 2", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := m.Wait(ctx, "auto")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if info.State != jobs.StateSucceeded || !info.Spec.NonBlocking {
		t.Errorf("auto job: state=%q non_blocking=%v", info.State, info.Spec.NonBlocking)
	}
	if _, err := m.Status("manual"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("manual job should not start, got %v", err)
	}

	file.Jobs = append(file.Jobs, config.JobSpec{ID: "later", Autostart: true, Pipeline: [][]string{{"echo", "d"}}})
	if n := StartAutostartJobs(context.Background(), m, file, true, testLogger()); n != 1 {
		t.Errorf("reload started %d jobs, want 1", n)
	}
}
