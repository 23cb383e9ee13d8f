// Package process runs external commands and pipelines and streams their
// combined output, one line at a time, through a caller-supplied Callback.
//
// A run is described by a Request and reported through a fixed sequence of
// life-cycle events:
//
//	Starting, (StartError | (Started, IOData*, (IOEof | ExitRequested), Exited))
//
// Exactly one terminal event (StartError or Exited) is delivered per request.
// The callback sees every event together with a Data snapshot and returns an
// Update for IOData events. Updates are merged into the run's Result: payload
// slots are last-write-wins and the exit flag is sticky. Requesting exit, or
// calling Data.Kill, terminates every stage of the pipeline and stops reading.
//
// Two call styles share one driver:
//   - Blocking: Start runs on the caller's goroutine and returns the final Result.
//   - Non-blocking: Start returns immediately with a placeholder Result whose
//     Handle can be joined for the real one.
//
// Example:
//
//	res := process.Start(&process.Request{
//	    ID:       "listing",
//	    UseShell: true,
//	    Pipeline: [][]string{{"ls", "-la"}, {"sort"}},
//	    Callback: process.CallbackFunc(func(ev process.Event, d *process.Data) process.Update {
//	        if ev == process.EventIOData && strings.Contains(d.Line, "core") {
//	            return process.Exit().WithNum(int64(d.LineNumber))
//	        }
//	        return process.Continue()
//	    }),
//	})
//	if res.Err != nil {
//	    log.Printf("listing failed: %v", res.Err)
//	}
//
// Full process-group termination is only guaranteed on unix systems, where
// each stage runs in its own process group. On Windows only the direct child
// of each stage is killed.
package process
