// Package shutdown runs cleanup handlers in ordered phases when the process
// is asked to stop.
//
// Lower phases run first. Handlers sharing a phase run concurrently, and a
// failing handler does not stop later phases. The shared context bounds the
// whole sequence; phases that have not started when it expires are skipped.
//
//	coord := shutdown.New(shutdown.WithLogger(logger))
//	coord.Register("metrics-server", shutdown.PhaseListeners, srv.Shutdown)
//	coord.Register("registry", shutdown.PhaseAgents, reg.Shutdown)
//	coord.Register("telemetry", shutdown.PhaseTelemetry, provider.Shutdown)
//
//	// Blocks until SIGINT or SIGTERM.
//	if err := coord.WaitForSignal(ctx); err != nil {
//	    log.Fatal(err)
//	}
package shutdown

import (
	"context"
	"time"
)

// Standard phases.
const (
	// PhaseListeners stops servers so no new work arrives.
	PhaseListeners = 10

	// PhaseAgents shuts down the registry and its agents.
	PhaseAgents = 20

	// PhaseTelemetry flushes exporters once everything else has logged.
	PhaseTelemetry = 30
)

// DefaultTimeout bounds a shutdown started by a signal.
const DefaultTimeout = 30 * time.Second

// Handler releases one component's resources. It should return promptly
// once ctx is done.
type Handler func(ctx context.Context) error

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a complete shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Skipped names handlers whose phase never started.
	Skipped []string

	Err error
}

// Failed reports whether any handler failed or was skipped.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that returned an error.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

type registration struct {
	name    string
	phase   int
	handler Handler
}
