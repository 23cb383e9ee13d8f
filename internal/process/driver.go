package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

const killRequestedText = "kill requested"

// driver owns one request's life-cycle. It is used by a single goroutine.
type driver struct {
	runner *Runner
	ctx    context.Context
	req    *Request
	handle *Handle
	mode   string
	logger *slog.Logger

	result *Result
	kill   *killSwitch
	pids   []int
	line   uint64
}

func (r *Runner) newDriver(ctx context.Context, req *Request, handle *Handle, mode string) *driver {
	return &driver{
		runner: r,
		ctx:    ctx,
		req:    req,
		handle: handle,
		mode:   mode,
		logger: r.logger.With("request_id", req.ID),
		result: &Result{},
	}
}

// run drives the request from Starting to its terminal event and returns
// the finalized result.
func (d *driver) run() *Result {
	d.emit(EventStarting, fmt.Sprintf("runner=%s mode=%s", d.runner.name, d.mode), 0)

	cmds, err := buildCommands(d.runner.shell, d.req.UseShell, d.req.Pipeline)
	if err != nil {
		return d.startFailed(err)
	}

	g, err := startGraph(cmds)
	if err != nil {
		return d.startFailed(err)
	}

	d.kill = newKillSwitch(g)
	if d.handle != nil {
		d.handle.attach(d.kill)
	}

	// A panicking callback must not leave the pipeline running.
	completed := false
	defer func() {
		if !completed {
			_ = d.kill.kill()
			g.wait()
			d.kill.finish()
		}
	}()

	stop := context.AfterFunc(d.ctx, func() {
		d.logger.Info("Context done, killing process", "error", d.ctx.Err())
		_ = d.kill.kill()
	})
	defer stop()

	d.pids = g.pids()
	d.result.PIDs = slices.Clone(d.pids)
	d.logger.Info("Process started", "pids", d.pids, "stages", len(cmds))
	d.emit(EventStarted, "", 0)

	trigger, exitRequested, readErr := d.readLines(g.output)

	if exitRequested {
		d.result.ShouldExit = true
		d.emit(EventExitRequested, trigger, 0)
		if killErr := d.kill.kill(); killErr != nil {
			d.logger.Warn("Failed to kill process", "error", killErr)
		}
	} else {
		d.emit(EventIOEof, "", 0)
	}

	stageErrs := g.wait()
	d.kill.finish()
	completed = true

	d.result.Success = true
	switch {
	case readErr != nil:
		d.result.fail(readErr)
	case !d.result.ShouldExit:
		if err := stageError(stageErrs); err != nil {
			d.result.fail(err)
		}
	}

	d.logger.Info("Process exited", "success", d.result.Success, "lines", d.result.Lines, "exit_requested", d.result.ShouldExit)
	d.emit(EventExited, d.result.outcome(), 0)
	return d.result
}

// readLines delivers IOData events until the output ends or an exit is
// requested. It returns the text for ExitRequested, whether exit was
// requested and any read error other than the one caused by termination.
func (d *driver) readLines(r io.Reader) (string, bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, d.runner.maxLineBytes)), d.runner.maxLineBytes)

	for scanner.Scan() {
		if d.kill.isRequested() {
			return killRequestedText, true, nil
		}

		d.line++
		line := scanner.Text()
		update := d.emit(EventIOData, line, d.line)
		d.result.apply(update)
		d.result.Lines = d.line

		if d.result.ShouldExit || d.kill.isRequested() {
			return line, true, nil
		}
	}

	if d.kill.isRequested() {
		// The closed output surfaces as a read error; it is the end of stream.
		return killRequestedText, true, nil
	}

	if err := scanner.Err(); err != nil {
		d.logger.Warn("Error reading output", "error", err, "line", d.line)
		// Keep the stages from blocking on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return "", false, fmt.Errorf("read output: %w", err)
	}
	return "", false, nil
}

func (d *driver) startFailed(err error) *Result {
	d.logger.Error("Failed to start process", "error", err, "pipeline", d.req.Pipeline)
	d.result.fail(err)
	d.emit(EventStartError, err.Error(), 0)
	return d.result
}

// emit delivers an event to the callback and the runner's observer.
func (d *driver) emit(ev Event, line string, lineNumber uint64) Update {
	data := &Data{
		RequestID:  d.req.ID,
		Request:    d.req,
		PIDs:       slices.Clone(d.pids),
		Line:       line,
		LineNumber: lineNumber,
		kill:       d.kill,
	}

	var update Update
	if d.req.Callback != nil {
		update = d.req.Callback.OnEvent(ev, data)
	}

	if d.runner.observer != nil {
		d.runner.observer.Observe(ev, data)
	}

	if ev == EventIOData {
		d.logger.Debug("Output", "line_number", lineNumber, "line", line)
	} else {
		d.logger.Debug("Event", "event", ev.String(), "detail", line)
	}
	return update
}
