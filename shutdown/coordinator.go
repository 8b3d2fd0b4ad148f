package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
)

// Coordinator collects handlers and runs them once.
type Coordinator struct {
	timeout time.Duration
	logger  *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once   sync.Once
	done   chan struct{}
	result *Result
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the deadline used by ShutdownWithTimeout and WaitForSignal.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a coordinator with no handlers.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("shutdown")
	return c
}

// Register adds a handler to phase. Handlers registered after shutdown has
// started are ignored.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: h})
}

// Shutdown runs every handler. Only the first call does any work; later
// calls wait for it and return the same error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.result = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.result.Err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// WaitForSignal blocks until one of sigs arrives or ctx is done, then shuts
// down. With no sigs it waits for SIGINT and SIGTERM.
func (c *Coordinator) WaitForSignal(ctx context.Context, sigs ...os.Signal) error {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sctx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	select {
	case <-sctx.Done():
	case <-c.done:
		return c.result.Err
	}
	c.logger.Info("shutdown_requested", map[string]interface{}{
		"reason": context.Cause(sctx).Error(),
	})
	return c.ShutdownWithTimeout()
}

// Done is closed once shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown outcome, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	res := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	var errs []error

	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		group := handlers[i:j]
		phase := handlers[i].phase

		if ctx.Err() != nil {
			for _, r := range handlers[i:] {
				res.Skipped = append(res.Skipped, r.name)
			}
			errs = append(errs, errors.Timeout("shutdown deadline passed before all phases ran",
				errors.WithMetadata("phase", strconv.Itoa(phase)),
				errors.WithCause(ctx.Err())))
			break
		}

		for _, hr := range c.runPhase(ctx, group) {
			res.Results = append(res.Results, hr)
			if hr.Err != nil {
				errs = append(errs, errors.Wrap(hr.Err, "shutdown handler "+hr.Name+" failed",
					errors.WithMetadata("handler", hr.Name)))
			}
		}
		i = j
	}

	res.TotalDuration = time.Since(start)
	res.Err = errors.Join(errs...)

	fields := map[string]interface{}{
		"handlers":    len(res.Results),
		"skipped":     len(res.Skipped),
		"duration_ms": res.TotalDuration.Milliseconds(),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		c.logger.Warn("shutdown_complete", fields)
	} else {
		c.logger.Info("shutdown_complete", fields)
	}
	return res
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var g errgroup.Group
	for i, r := range group {
		g.Go(func() error {
			started := time.Now()
			err := invoke(ctx, r.handler)
			results[i] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(started),
				Err:      err,
			}
			if err != nil {
				c.logger.Error("shutdown_handler_failed", map[string]interface{}{
					"handler": r.name,
					"phase":   r.phase,
					"error":   err.Error(),
				})
			} else {
				c.logger.Debug("shutdown_handler_done", map[string]interface{}{
					"handler":     r.name,
					"phase":       r.phase,
					"duration_ms": results[i].Duration.Milliseconds(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func invoke(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return h(ctx)
}
