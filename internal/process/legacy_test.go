package process

import (
	"errors"
	"testing"
)

func TestRunProcess(t *testing.T) {
	skipOnWindows(t)

	var lines []string
	err := RunProcess("legacy", true, [][]string{{"echo", "one;", "echo", "two"}}, func(ev Event, data *Data) bool {
		if ev == EventIOData {
			lines = append(lines, data.Line)
		}
		return true
	})

	if err != nil {
		t.Fatalf("RunProcess() = %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %q, want [one two]", lines)
	}
}

func TestRunProcessStopsOnFalse(t *testing.T) {
	skipOnWindows(t)

	var events []Event
	err := RunProcess("legacy-stop", false, [][]string{loopCommand}, func(ev Event, _ *Data) bool {
		events = append(events, ev)
		return ev != EventIOData
	})

	if err != nil {
		t.Fatalf("RunProcess() = %v", err)
	}
	want := []Event{EventStarting, EventStarted, EventIOData, EventExitRequested, EventExited}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestRunProcessWithoutArguments(t *testing.T) {
	if err := RunProcess("legacy-empty", true, [][]string{{}}, nil); !errors.Is(err, ErrNoArguments) {
		t.Errorf("RunProcess() = %v, want ErrNoArguments", err)
	}
}
