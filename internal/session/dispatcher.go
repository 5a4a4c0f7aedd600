package session

import (
	"context"
	"errors"
	"sync"
)

// Dispatcher runs sink deliveries in the caller's delivery context. Tasks
// dispatched from one goroutine must run in the order they were dispatched.
type Dispatcher interface {
	Dispatch(task func())
}

type inline struct{}

func (inline) Dispatch(task func()) { task() }

// Inline runs each task on the session goroutine.
var Inline Dispatcher = inline{}

// Barrier returns a channel that is closed once every task dispatched to d
// before the call has run. On a closed Queue the channel never closes.
func Barrier(d Dispatcher) <-chan struct{} {
	ch := make(chan struct{})
	if d == nil || d == Inline {
		close(ch)
		return ch
	}
	d.Dispatch(func() { close(ch) })
	return ch
}

// ErrQueueClosed is returned by Run once Close has been called.
var ErrQueueClosed = errors.New("session: dispatch queue closed")

// Queue is a serial, unbounded FIFO executor. A single goroutine calling Run
// plays the role of a UI thread: every task runs there, one at a time.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

// NewQueue returns an empty queue. Call Run to start draining it.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Dispatch appends task. It never blocks. Tasks dispatched after Close are
// discarded.
func (q *Queue) Dispatch(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Run executes tasks until ctx is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed && ctx.Err() == nil {
			q.cond.Wait()
		}
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return err
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Close stops accepting tasks; Run returns after draining what is queued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
