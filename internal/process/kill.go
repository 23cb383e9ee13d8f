package process

import (
	"sync"
	"sync/atomic"
)

// killSwitch is the termination capability shared by every Data snapshot and
// the Handle of one run. Pulling it never calls back into the driver: the
// read loop notices the flag, or sees its output closed.
type killSwitch struct {
	graph     *graph
	requested atomic.Bool

	mu       sync.Mutex
	fired    bool
	finished bool
	err      error
}

func newKillSwitch(g *graph) *killSwitch {
	return &killSwitch{graph: g}
}

// kill terminates the graph once; later calls return the first call's error.
func (k *killSwitch) kill() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.finished {
		return nil
	}
	k.requested.Store(true)
	if !k.fired {
		k.fired = true
		k.err = k.graph.terminate()
	}
	return k.err
}

// isRequested reports whether termination was asked for.
func (k *killSwitch) isRequested() bool {
	return k.requested.Load()
}

// finish marks the graph as reaped; kill becomes a no-op.
func (k *killSwitch) finish() {
	k.mu.Lock()
	k.finished = true
	k.mu.Unlock()
}
