// Package queue runs tasks in submission order under a concurrency ceiling.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency runs one task at a time for the whole worker
const DefaultConcurrency = 1

// Task is one unit of work. The context is cancelled by CancelActive.
type Task = func(ctx context.Context) error

type job struct {
	id       string
	name     string
	task     Task
	enqueued time.Time
}

// Queue is a FIFO task queue. Tasks are dispatched in the order they were added
// and at most concurrency of them run at once.
type Queue struct {
	sem    *semaphore.Weighted
	logger hclog.Logger

	mu      sync.Mutex
	changed *sync.Cond
	pending []*job
	active  map[string]context.CancelFunc
	running bool
	wake    chan struct{}
}

// New creates a stopped queue; call Start to begin dispatching
func New(concurrency int, logger hclog.Logger) *Queue {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	q := &Queue{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger.Named("queue"),
		active: make(map[string]context.CancelFunc),
		wake:   make(chan struct{}, 1),
	}
	q.changed = sync.NewCond(&q.mu)
	return q
}

// Add appends a task and returns its id
func (q *Queue) Add(name string, task Task) string {
	j := &job{id: uuid.NewString(), name: name, task: task, enqueued: time.Now()}

	q.mu.Lock()
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Debug("task queued", "id", j.id, "name", name, "depth", depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return j.id
}

// Clear drops every task that has not started and returns how many were dropped.
// Running tasks are not affected.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.pending)
	q.pending = nil
	q.changed.Broadcast()
	q.mu.Unlock()

	if n > 0 {
		q.logger.Info("queue flushed", "dropped", n)
	}
	return n
}

// Size is the number of tasks waiting to start
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active is the number of running tasks
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// CancelActive cancels the context of every running task and returns how many were signalled
func (q *Queue) CancelActive() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cancel := range q.active {
		cancel()
	}
	return len(q.active)
}

// Start dispatches tasks until ctx is done. Tasks already running when ctx ends
// are left to finish; use Wait to block until they have.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.dispatch(ctx)
}

// Wait blocks until no task is running and, while the queue is dispatching, none is pending
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.active) > 0 || (q.running && len(q.pending) > 0) {
		q.changed.Wait()
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	defer func() {
		q.mu.Lock()
		q.running = false
		q.changed.Broadcast()
		q.mu.Unlock()
		q.logger.Debug("dispatcher stopped")
	}()

	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return
		}
		j, taskCtx, ok := q.next(ctx)
		if !ok {
			q.sem.Release(1)
			return
		}
		go q.execute(taskCtx, j)
	}
}

// next pops the oldest pending task and marks it active, waiting for one if needed
func (q *Queue) next(ctx context.Context) (*job, context.Context, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]

			// running tasks outlive the dispatcher; only CancelActive stops them
			taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			q.active[j.id] = cancel
			q.mu.Unlock()
			return j, taskCtx, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-q.wake:
		}
	}
}

func (q *Queue) execute(ctx context.Context, j *job) {
	logger := q.logger.With("id", j.id, "name", j.name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}

		q.mu.Lock()
		if cancel, ok := q.active[j.id]; ok {
			cancel()
			delete(q.active, j.id)
		}
		q.changed.Broadcast()
		q.mu.Unlock()
		q.sem.Release(1)
	}()

	logger.Info("task started", "waited", start.Sub(j.enqueued).Round(time.Millisecond))
	if err := j.task(ctx); err != nil {
		logger.Warn("task failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	logger.Info("task completed", "duration", time.Since(start).Round(time.Millisecond))
}
