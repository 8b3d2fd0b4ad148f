package heartbeat

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
)

// Task is the work run on every tick.
type Task func(ctx context.Context) error

// TaskStatus describes one scheduled key.
type TaskStatus struct {
	Key       string        `json:"key"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler runs keyed periodic tasks.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*scheduled
	stopped bool

	active  atomic.Int64
	logger  *logging.Logger
	onError func(key string, err error)
}

type scheduled struct {
	key      string
	interval time.Duration
	task     Task
	cancel   context.CancelFunc
	doneCh   chan struct{}

	mu       sync.Mutex
	runs     int64
	failures int64
	lastRun  time.Time
	lastErr  error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithErrorHook is called after every failed run, from the task goroutine.
func WithErrorHook(fn func(key string, err error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]*scheduled),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("heartbeat")
	return s
}

// Schedule starts running task every interval under key. The first run
// happens one interval after scheduling.
func (s *Scheduler) Schedule(key string, interval time.Duration, task Task) error {
	if key == "" {
		return errors.Validation("schedule key is required")
	}
	if interval <= 0 {
		return errors.Validation("schedule interval must be positive", errors.WithMetadata("key", key))
	}
	if task == nil {
		return errors.Validation("schedule task is required", errors.WithMetadata("key", key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.Unavailable("scheduler is stopped")
	}
	if _, exists := s.tasks[key]; exists {
		return errors.AlreadyExists("task already scheduled: "+key, errors.WithMetadata("key", key))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &scheduled{
		key:      key,
		interval: interval,
		task:     task,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}
	s.tasks[key] = t

	s.active.Add(1)
	go s.run(ctx, t)
	return nil
}

func (s *Scheduler) run(ctx context.Context, t *scheduled) {
	defer close(t.doneCh)
	defer s.active.Add(-1)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, t *scheduled) {
	err := s.invoke(ctx, t.task)

	t.mu.Lock()
	t.runs++
	t.lastRun = time.Now()
	t.lastErr = err
	if err != nil {
		t.failures++
	}
	t.mu.Unlock()

	if err == nil || ctx.Err() != nil {
		return
	}
	s.logger.Warn("scheduled_task_failed", map[string]interface{}{
		"key":   t.key,
		"error": err.Error(),
	})
	if s.onError != nil {
		s.onError(t.key, err)
	}
}

func (s *Scheduler) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return task(ctx)
}

// Cancel stops the task under key and waits for its goroutine to exit.
// It reports whether the key was scheduled.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if ok {
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.doneCh
	return true
}

// Scheduled reports whether key has a live task.
func (s *Scheduler) Scheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Keys returns the scheduled keys in sorted order.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Status returns run counters for key.
func (s *Scheduler) Status(key string) (TaskStatus, bool) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return TaskStatus{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := TaskStatus{
		Key:      t.key,
		Interval: t.interval,
		Runs:     t.runs,
		Failures: t.failures,
		LastRun:  t.lastRun,
	}
	if t.lastErr != nil {
		st.LastError = t.lastErr.Error()
	}
	return st, true
}

// Active returns the number of task goroutines still running.
func (s *Scheduler) Active() int {
	return int(s.active.Load())
}

// Stop cancels every task, waits for them to exit and rejects further
// scheduling. Calling Stop again is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := s.tasks
	s.tasks = make(map[string]*scheduled)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.doneCh
	}
}
