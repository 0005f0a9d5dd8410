package shader

import (
	"runtime"
	"sync"
	"time"
)

// TaskQueue runs posted functions one at a time on a dedicated OS thread,
// which is where a secondary GL context can be made current.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewTaskQueue starts the worker. start runs first on the worker thread and
// stop runs last.
func NewTaskQueue(start, stop func()) *TaskQueue {
	q := &TaskQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run(start, stop)
	return q
}

func (q *TaskQueue) run(start, stop func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(q.done)
	if start != nil {
		start()
	}
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			break
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		task()
	}
	if stop != nil {
		stop()
	}
}

// Post enqueues fn. It returns false once the queue is closed.
func (q *TaskQueue) Post(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

// Close runs the remaining tasks and stops the worker.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

// resultQueue carries finished compiles from workers to the render thread.
type resultQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []compileResult
}

func newResultQueue() *resultQueue {
	q := &resultQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *resultQueue) push(r compileResult) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *resultQueue) drain() []compileResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// wait blocks until a result arrives or d passes.
func (q *resultQueue) wait(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		return
	}
	t := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	q.cond.Wait()
	t.Stop()
}
