// Package jobs is a small in-process task runner used by the sync pipeline.
// Tasks carry their own timeout, retry schedule, and give-up hook; a fixed pool
// of workers drains a buffered queue. Delayed submission backs the dispatch
// stagger and retry backoff.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the buffered queue cannot accept another task.
var ErrQueueFull = errors.New("job queue is full")

// ErrQueueStopped is returned when submitting after Stop.
var ErrQueueStopped = errors.New("job queue is stopped")

// Task is one unit of background work.
type Task struct {
	// Name identifies the task in logs.
	Name string
	// Run does the work. The context carries the task timeout.
	Run func(ctx context.Context) error
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration
	// MaxAttempts caps total attempts including the first. Zero or one means
	// no retries.
	MaxAttempts int
	// Backoff gives the delay before retry N+1; the last entry repeats when
	// attempts outnumber entries.
	Backoff []time.Duration
	// OnGiveUp fires once, after the final attempt fails.
	OnGiveUp func(err error)

	attempt int
}

// Queue runs tasks on a fixed pool of workers.
type Queue struct {
	tasks   chan *Task
	wg      sync.WaitGroup
	log     *zap.Logger
	workers int

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	started bool
	stopped bool
}

// NewQueue creates a queue with the given worker count and buffer size.
func NewQueue(workers, buffer int, log *zap.Logger) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 512
	}
	return &Queue{
		tasks:   make(chan *Task, buffer),
		log:     log,
		workers: workers,
		timers:  map[*time.Timer]struct{}{},
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.started = true
	q.log.Info("job queue started", zap.Int("workers", q.workers))
}

// Stop cancels pending delayed tasks, drains the queue, and waits for
// in-flight tasks to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	// Closing under the lock keeps Submit from racing a send onto a closed
	// channel.
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("job queue stopped")
}

// Submit enqueues a task without blocking.
func (q *Queue) Submit(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAfter enqueues a task once the delay elapses. Delayed tasks that have
// not fired by Stop time are dropped.
func (q *Queue) SubmitAfter(task *Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Submit(task)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		stopped := q.stopped
		q.mu.Unlock()
		if stopped {
			return
		}
		if err := q.Submit(task); err != nil {
			q.log.Warn("dropping delayed task",
				zap.String("task", task.Name), zap.Error(err))
			if task.OnGiveUp != nil {
				task.OnGiveUp(err)
			}
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.runTask(task)
	}
	q.log.Debug("worker stopped", zap.Int("worker", id))
}

func (q *Queue) runTask(task *Task) {
	task.attempt++
	err := q.attempt(task)
	if err == nil {
		return
	}

	if task.attempt < task.MaxAttempts {
		delay := backoffFor(task.Backoff, task.attempt)
		q.log.Warn("task failed, retrying",
			zap.String("task", task.Name),
			zap.Int("attempt", task.attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if rerr := q.SubmitAfter(task, delay); rerr == nil {
			return
		}
		// Could not requeue; fall through to give up.
	}

	q.log.Error("task permanently failed",
		zap.String("task", task.Name),
		zap.Int("attempts", task.attempt),
		zap.Error(err))
	if task.OnGiveUp != nil {
		task.OnGiveUp(err)
	}
}

// attempt runs the task once with its timeout, converting panics to errors so
// a bad message cannot take down a worker.
func (q *Queue) attempt(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()

	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	return task.Run(ctx)
}

// backoffFor returns the delay before the next attempt after failedAttempts
// failures. The schedule's last entry repeats.
func backoffFor(schedule []time.Duration, failedAttempts int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	idx := failedAttempts - 1
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
