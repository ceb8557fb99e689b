// Package scheduler runs periodic background tasks (the library-cache
// expiry sweep) on a fixed tick, independent of any single request.
// The Server Orchestrator stops it during shutdown alongside discovery and
// the HTTP adapter.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/judgehost/judgehost/internal/telemetry"
)

// Task is a named periodic unit of work. A task that returns an error is
// logged and retried on the next tick; it never stops the scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Tasks, each on its own ticker, until Stop is
// called.
type Scheduler struct {
	tasks  []Task
	logger telemetry.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	started bool
}

// New constructs a Scheduler over tasks. Tasks with a non-positive interval
// are dropped.
func New(logger telemetry.Logger, tasks ...Task) *Scheduler {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	var filtered []Task
	for _, t := range tasks {
		if t.Interval > 0 && t.Run != nil {
			filtered = append(filtered, t)
		}
	}
	return &Scheduler{tasks: filtered, logger: logger}
}

// Start launches one goroutine per task. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	var wg sync.WaitGroup
	s.stopped = make(chan struct{})
	for _, t := range s.tasks {
		wg.Add(1)
		go s.runTask(runCtx, &wg, t)
	}
	go func() {
		wg.Wait()
		close(s.stopped)
	}()
}

func (s *Scheduler) runTask(ctx context.Context, wg *sync.WaitGroup, t Task) {
	defer wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Run(ctx); err != nil {
				s.logger.Warn(ctx, "scheduled task failed", "task", t.Name, "error", err.Error())
			}
		}
	}
}

// Stop cancels every task and waits for them to return. Calling Stop before
// Start, or more than once, is a no-op.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	stopped := s.stopped
	s.started = false
	s.mu.Unlock()

	cancel()
	select {
	case <-stopped:
	case <-ctx.Done():
	}
}
