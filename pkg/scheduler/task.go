package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/logging"
)

// TaskFunc is one run of a periodic task. Its context carries the task's
// cancellation; errors are logged and never stop the task.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes a periodic task.
type TaskConfig struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration // zero means first run after one Interval
	RunOnStart   bool          // run once immediately, before any delay
}

// Task runs a TaskFunc on a fixed interval until its context is cancelled.
// Runs never overlap: a tick that arrives while a run is in progress is
// coalesced into the next one.
type Task struct {
	config TaskConfig
	fn     TaskFunc
	clock  Clock
	logger logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runs    int
}

func NewTask(config TaskConfig, fn TaskFunc, clock Clock, logger logging.Logger) *Task {
	if clock == nil {
		clock = RealClock()
	}
	return &Task{
		config: config,
		fn:     fn,
		clock:  clock,
		logger: logger,
	}
}

func (t *Task) Name() string {
	return t.config.Name
}

// Start launches the task loop. It is a no-op when already running.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	if t.config.Interval <= 0 {
		t.logger.Errorf("Periodic task not started, task: %s, invalid interval: %v", t.config.Name, t.config.Interval)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(loopCtx, t.done)

	t.logger.Infof("Periodic task started, task: %s, interval: %v, initial delay: %v",
		t.config.Name, t.config.Interval, t.config.InitialDelay)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	cancel()
	<-done

	t.logger.Infof("Periodic task stopped, task: %s", t.config.Name)
}

// Runs returns how many times the task body has completed.
func (t *Task) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if t.config.RunOnStart {
		t.runOnce(ctx)
	}

	if t.config.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(t.config.InitialDelay):
			t.runOnce(ctx)
		}
	}

	ticker := t.clock.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *Task) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorf("Periodic task panicked, task: %s, panic: %v", t.config.Name, fmt.Sprint(r))
		}
		t.mu.Lock()
		t.runs++
		t.mu.Unlock()
	}()

	if err := t.fn(ctx); err != nil {
		t.logger.Warnf("Periodic task run failed, task: %s, error: %v", t.config.Name, err)
	}
}
