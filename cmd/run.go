package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/smazurov/procstream/internal/process"
	"github.com/spf13/cobra"
)

// pipeSeparator splits pipeline segments on the command line.
const pipeSeparator = "|"

// runOptions holds the flags of the run command.
type runOptions struct {
	ID           string
	Shell        bool
	Async        bool
	ExitOn       string
	MaxLines     int
	MaxLineBytes int
	JSON         bool
	LogJSON      bool
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] -- program [args...] [| program [args...]]...",
		Short: "Run a pipeline and print its events",
		Long: `Runs a pipeline of programs, each stage's stdout feeding the next stage's stdin, ` +
			`and prints every life-cycle event together with the output of the last stage. ` +
			`Separate stages with a quoted "|" argument. Exits non-zero when the run fails.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(c *cobra.Command, args []string) {
			loggingConfig := logging.Config{Level: "warn", Format: "text"}
			if opts.LogJSON {
				loggingConfig.Format = "json"
			}
			// stdout carries the event stream.
			logging.SetOutput(os.Stderr)
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("run")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runPipeline(ctx, c.OutOrStdout(), opts, splitPipeline(args))
			if err != nil {
				logger.Error("Run failed", "error", err)
				os.Exit(1)
			}
			if !res.Success {
				logger.Error("Pipeline failed", "error", res.Err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "Request id, generated when empty")
	cmd.Flags().BoolVar(&opts.Shell, "shell", false, "Run every stage through the host shell")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "Run on a background goroutine and join it")
	cmd.Flags().StringVar(&opts.ExitOn, "exit-on", "", "Terminate when an output line matches this regular expression")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", 0, "Terminate after this many output lines")
	cmd.Flags().IntVar(&opts.MaxLineBytes, "max-line-bytes", process.DefaultMaxLineBytes, "Longest accepted output line")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print events as JSON lines")
	cmd.Flags().BoolVar(&opts.LogJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// splitPipeline groups args into segments separated by "|" tokens.
// Empty segments are kept so the runner can reject them.
func splitPipeline(args []string) [][]string {
	segments := [][]string{{}}
	for _, arg := range args {
		if arg == pipeSeparator {
			segments = append(segments, []string{})
			continue
		}
		last := len(segments) - 1
		segments[last] = append(segments[last], arg)
	}
	return segments
}

// runPipeline runs pipeline to completion and writes each event to w.
// The returned error covers only the run command's own failures; the
// pipeline's outcome is in the Result.
func runPipeline(ctx context.Context, w io.Writer, opts runOptions, pipeline [][]string) (*process.Result, error) {
	policy, err := jobs.NewExitPolicy(opts.ExitOn, opts.MaxLines)
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	printer := newEventPrinter(w, opts.JSON)
	runner := process.NewRunner(&process.RunnerOptions{
		Name:         "run",
		Logger:       logging.GetLogger("process"),
		MaxLineBytes: opts.MaxLineBytes,
	})

	res := runner.StartContext(ctx, &process.Request{
		ID:          opts.ID,
		UseShell:    opts.Shell,
		Pipeline:    pipeline,
		NonBlocking: opts.Async,
		Callback: process.CallbackFunc(func(ev process.Event, data *process.Data) process.Update {
			printer.print(ev, data)
			if ev == process.EventIOData {
				return policy.Check(data.Line, data.LineNumber)
			}
			return process.Continue()
		}),
	})

	if opts.Async {
		res, err = res.Handle.Join()
		if err != nil {
			return nil, fmt.Errorf("pipeline goroutine: %w", err)
		}
	}
	return res, printer.err
}

// eventPrinter renders events as text or JSON lines.
type eventPrinter struct {
	w   io.Writer
	enc *json.Encoder
	err error
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	p := &eventPrinter{w: w}
	if asJSON {
		p.enc = json.NewEncoder(w)
	}
	return p
}

// print writes one event. The first write error is kept and later events
// are dropped.
func (p *eventPrinter) print(ev process.Event, data *process.Data) {
	if p.err != nil {
		return
	}

	if p.enc != nil {
		p.err = p.enc.Encode(events.ProcessEvent{
			Runner:     "run",
			RequestID:  data.RequestID,
			Kind:       ev.String(),
			Line:       data.Line,
			LineNumber: data.LineNumber,
			PIDs:       slices.Clone(data.PIDs),
			Timestamp:  time.Now().Format(time.RFC3339Nano),
		})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-13s", ev.String())
	switch ev {
	case process.EventIOData:
		fmt.Fprintf(&b, " %6d  %s", data.LineNumber, data.Line)
	case process.EventStarted:
		fmt.Fprintf(&b, " pids=%v", data.PIDs)
	default:
		if data.Line != "" {
			b.WriteString(" " + data.Line)
		}
	}
	b.WriteString("\n")
	_, p.err = io.WriteString(p.w, b.String())
}
