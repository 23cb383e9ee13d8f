package process

// RunProcess runs cmdLine on the caller's goroutine with the default runner.
// fn sees every event; returning false from an IOData event requests exit.
// A nil fn only runs the pipeline. The returned error is the run's failure
// detail, nil on success.
//
// RunProcess is a thin veneer over Start for callers that only need
// callback side effects.
func RunProcess(id string, useShell bool, cmdLine [][]string, fn func(ev Event, data *Data) bool) error {
	req := &Request{
		ID:       id,
		UseShell: useShell,
		Pipeline: cmdLine,
	}
	if fn != nil {
		req.Callback = CallbackFunc(func(ev Event, data *Data) Update {
			if !fn(ev, data) {
				return Exit()
			}
			return Continue()
		})
	}
	return Start(req).Err
}
