// Package metrics exposes Prometheus metrics for process runs and jobs,
// fed from the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/procstream/internal/events"
)

// Outcome label values.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeStartError = "start_error"
)

var (
	processRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procstream",
		Subsystem: "process",
		Name:      "runs_total",
		Help:      "Finished process requests by outcome",
	}, []string{"runner", "outcome"})

	processRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procstream",
		Subsystem: "process",
		Name:      "running",
		Help:      "Process graphs currently running",
	}, []string{"runner"})

	processLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procstream",
		Subsystem: "process",
		Name:      "lines_total",
		Help:      "Output lines delivered to callbacks",
	}, []string{"runner"})

	processExitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procstream",
		Subsystem: "process",
		Name:      "exit_requests_total",
		Help:      "Runs ended by a termination request",
	}, []string{"runner"})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procstream",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Finished jobs by outcome",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "procstream",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job run duration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	jobStates = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procstream",
		Subsystem: "jobs",
		Name:      "state",
		Help:      "Known jobs per state",
	}, []string{"state"})
)

// Handler returns the Prometheus HTTP handler for all promauto metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Subscribe feeds the metrics from bus and returns a function that stops it.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(RecordProcessEvent),
		bus.Subscribe(RecordJobStateChange),
		bus.Subscribe(RecordJobFinished),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// RecordProcessEvent updates the process metrics for one event.
func RecordProcessEvent(e events.ProcessEvent) {
	switch e.Kind {
	case "Started":
		processRunning.WithLabelValues(e.Runner).Inc()
	case "IOData":
		processLines.WithLabelValues(e.Runner).Inc()
	case "ExitRequested":
		processExitRequests.WithLabelValues(e.Runner).Inc()
	case "StartError":
		processRuns.WithLabelValues(e.Runner, OutcomeStartError).Inc()
	case "Exited":
		processRunning.WithLabelValues(e.Runner).Dec()
		outcome := OutcomeFailure
		if e.Line == OutcomeSuccess {
			outcome = OutcomeSuccess
		}
		processRuns.WithLabelValues(e.Runner, outcome).Inc()
	}
}

// RecordJobStateChange moves one job between state gauges.
func RecordJobStateChange(e events.JobStateChangedEvent) {
	if e.OldState != "" {
		jobStates.WithLabelValues(e.OldState).Dec()
	}
	if e.NewState != "" {
		jobStates.WithLabelValues(e.NewState).Inc()
	}
}

// RecordJobFinished counts a finished job.
func RecordJobFinished(e events.JobFinishedEvent) {
	outcome := OutcomeFailure
	if e.Success {
		outcome = OutcomeSuccess
	}
	jobRuns.WithLabelValues(outcome).Inc()
	jobDuration.Observe(e.Duration)
}
