// Package inmemory provides an in-process implementation of the queue
// contract: a delay heap fronted by a bounded worker pool. It delivers
// at least once, redelivers failed tasks with exponential backoff, and
// honors visibility delays without parking worker goroutines.
package inmemory

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmerch/catalog-sync/internal/queue"
)

const (
	defaultWorkers  = 4
	retryBaseDelay  = 1 * time.Second
	maxWaitInterval = 30 * time.Second
)

// scheduled is a heap entry: a task plus the instant it becomes visible.
type scheduled struct {
	task      *queue.Task
	visibleAt time.Time
}

// delayHeap orders tasks by visibility time.
type delayHeap []*scheduled

func (h delayHeap) Len() int            { return len(h) }
func (h delayHeap) Less(i, j int) bool  { return h[i].visibleAt.Before(h[j].visibleAt) }
func (h delayHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)         { *h = append(*h, x.(*scheduled)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// Queue is the in-memory queue implementation.
type Queue struct {
	mu       sync.Mutex
	heap     delayHeap
	handlers map[string]queue.Handler
	inflight int
	wake     chan struct{}

	workers    int
	deadLetter queue.DeadLetterFunc
}

var _ queue.Queue = (*Queue)(nil)

// Option configures the queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent task consumers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithDeadLetter installs a callback for tasks whose attempt budget is
// exhausted.
func WithDeadLetter(fn queue.DeadLetterFunc) Option {
	return func(q *Queue) {
		q.deadLetter = fn
	}
}

// New creates an in-memory queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		handlers: make(map[string]queue.Handler),
		wake:     make(chan struct{}, 1),
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register installs the handler for a task kind.
func (q *Queue) Register(kind string, handler queue.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

// Enqueue schedules a task after the visibility delay.
func (q *Queue) Enqueue(_ context.Context, task *queue.Task, visibilityDelay time.Duration) error {
	if task.Kind == "" {
		return fmt.Errorf("task kind is required")
	}
	if visibilityDelay < 0 {
		visibilityDelay = 0
	}

	q.mu.Lock()
	heap.Push(&q.heap, &scheduled{task: task, visibleAt: time.Now().Add(visibilityDelay)})
	q.mu.Unlock()

	q.notify()
	return nil
}

// Depth reports tasks waiting or currently being handled.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap) + q.inflight
}

// Start runs the consumer workers until the context is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			q.consume(groupCtx)
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		return fmt.Errorf("queue workers stopped: %w", err)
	}
	return nil
}

// consume is one worker loop: pop the next visible task, dispatch it,
// and sleep until the earliest visibility time otherwise.
func (q *Queue) consume(ctx context.Context) {
	for {
		entry, wait := q.next()
		if entry != nil {
			q.dispatch(ctx, entry.task)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops a visible task or returns how long to wait for one.
func (q *Queue) next() (*scheduled, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, maxWaitInterval
	}
	head := q.heap[0]
	now := time.Now()
	if head.visibleAt.After(now) {
		wait := head.visibleAt.Sub(now)
		if wait > maxWaitInterval {
			wait = maxWaitInterval
		}
		return nil, wait
	}

	heap.Pop(&q.heap)
	q.inflight++
	return head, 0
}

// dispatch runs the handler and requeues on failure while attempts remain.
func (q *Queue) dispatch(ctx context.Context, task *queue.Task) {
	defer func() {
		q.mu.Lock()
		q.inflight--
		q.mu.Unlock()
		q.notify()
	}()

	q.mu.Lock()
	handler, ok := q.handlers[task.Kind]
	q.mu.Unlock()
	if !ok {
		slog.Error("No handler registered for task kind", "kind", task.Kind, "task_id", task.ID)
		return
	}

	task.Attempt++
	err := handler(ctx, task)
	if err == nil {
		return
	}

	if task.MaxAttempts > 0 && task.Attempt < task.MaxAttempts {
		delay := retryBaseDelay << (task.Attempt - 1)
		slog.Warn("Task failed, requeueing",
			"kind", task.Kind,
			"task_id", task.ID,
			"attempt", task.Attempt,
			"retry_delay", delay,
			"error", err)

		q.mu.Lock()
		heap.Push(&q.heap, &scheduled{task: task, visibleAt: time.Now().Add(delay)})
		q.mu.Unlock()
		return
	}

	slog.Error("Task attempts exhausted",
		"kind", task.Kind,
		"task_id", task.ID,
		"attempt", task.Attempt,
		"error", err)
	if q.deadLetter != nil {
		q.deadLetter(task, err)
	}
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
