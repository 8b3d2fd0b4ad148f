// Package heartbeat runs keyed periodic tasks.
//
// # Overview
//
// A [Scheduler] owns one goroutine per scheduled key. Each goroutine ticks at
// its own interval and calls the task with a context that is cancelled when
// the key is cancelled or the scheduler stops. The registry uses it to poll
// agent health.
//
// # Usage
//
//	s := heartbeat.NewScheduler(heartbeat.WithLogger(logger))
//	s.Schedule("agent-1", 30*time.Second, func(ctx context.Context) error {
//	    return probe(ctx)
//	})
//	...
//	s.Cancel("agent-1") // returns after the goroutine has exited
//	s.Stop()
//
// # Guarantees
//
//   - Cancel and Stop wait for the task goroutine to exit, so Active drops
//     to zero once every key is cancelled.
//   - A task that panics or returns an error is logged and reported to the
//     error hook; the next tick still runs.
//   - A tick that arrives while the previous run is still going is dropped.
//
// Cancel must not be called from inside the task it cancels.
package heartbeat
