package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// graph is a spawned pipeline. Every stage writes stderr, and the last stage
// writes stdout, into one pipe whose read end is output.
type graph struct {
	stages    []*exec.Cmd
	output    *os.File
	closeOnce sync.Once
}

// buildCommands turns pipeline segments into unstarted commands.
func buildCommands(shell []string, useShell bool, segments [][]string) ([]*exec.Cmd, error) {
	if len(segments) == 0 {
		return nil, ErrNoArguments
	}

	cmds := make([]*exec.Cmd, 0, len(segments))
	for _, segment := range segments {
		if len(segment) == 0 {
			return nil, ErrNoArguments
		}

		var cmd *exec.Cmd
		if useShell {
			script := strings.Join(segment, " ")
			if strings.TrimSpace(script) == "" {
				return nil, ErrNoArguments
			}
			args := make([]string, 0, len(shell))
			args = append(args, shell[1:]...)
			args = append(args, script)
			cmd = exec.Command(shell[0], args...)
		} else {
			if segment[0] == "" {
				return nil, ErrNoArguments
			}
			cmd = exec.Command(segment[0], segment[1:]...)
		}

		configureCmdSysProcAttr(cmd)
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// startGraph wires and starts the commands. On failure every stage already
// started is killed and reaped and every pipe is closed.
func startGraph(cmds []*exec.Cmd) (*graph, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	g := &graph{stages: cmds, output: outR}
	parentEnds := []*os.File{outW}

	fail := func(started int, err error) (*graph, error) {
		g.abort(started)
		closeFiles(parentEnds)
		g.closeOutput()
		return nil, err
	}

	var stdin *os.File
	for i, cmd := range cmds {
		if stdin != nil {
			cmd.Stdin = stdin
		}
		cmd.Stderr = outW

		if i == len(cmds)-1 {
			cmd.Stdout = outW
		} else {
			r, w, pipeErr := os.Pipe()
			if pipeErr != nil {
				return fail(i, fmt.Errorf("create pipe for stage %d: %w", i, pipeErr))
			}
			parentEnds = append(parentEnds, r, w)
			cmd.Stdout = w
			stdin = r
		}

		if startErr := cmd.Start(); startErr != nil {
			return fail(i, fmt.Errorf("start stage %d: %w", i, startErr))
		}
	}

	// Children hold their own copies; the parent's write ends must close so
	// that the output reaches EOF once every stage exits.
	closeFiles(parentEnds)
	return g, nil
}

// pids returns the process id of every stage.
func (g *graph) pids() []int {
	pids := make([]int, 0, len(g.stages))
	for _, cmd := range g.stages {
		if cmd.Process != nil {
			pids = append(pids, cmd.Process.Pid)
		}
	}
	return pids
}

// terminate kills every stage and closes the output so a blocked read returns.
func (g *graph) terminate() error {
	var firstErr error
	for i, cmd := range g.stages {
		if cmd.Process == nil {
			continue
		}
		if err := killStage(cmd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kill stage %d: %w", i, err)
		}
	}
	g.closeOutput()
	return firstErr
}

// wait reaps every stage and returns their exit errors by stage index.
func (g *graph) wait() []error {
	errs := make([]error, len(g.stages))
	for i, cmd := range g.stages {
		errs[i] = cmd.Wait()
	}
	g.closeOutput()
	return errs
}

// abort kills and reaps the first n stages of a partially started graph.
func (g *graph) abort(n int) {
	for _, cmd := range g.stages[:n] {
		_ = killStage(cmd)
		_ = cmd.Wait()
	}
}

func (g *graph) closeOutput() {
	g.closeOnce.Do(func() {
		_ = g.output.Close()
	})
}

// stageError picks the error reported for the pipeline. Later stages take
// precedence, the way a shell reports the status of the last command.
func stageError(errs []error) error {
	for i := len(errs) - 1; i >= 0; i-- {
		if errs[i] != nil {
			return fmt.Errorf("stage %d: %w", i, errs[i])
		}
	}
	return nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
