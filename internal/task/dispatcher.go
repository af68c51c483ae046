package task

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime"
	"sync"
)

// Worker runs one task to completion (or until it observes cancellation
// between safe points), producing a Completion. Concrete work (fetch,
// decode, build) is supplied by the tile manager via Step; Dispatcher
// only owns scheduling.
type Step func(ctx context.Context, t *Task) Completion

// Completion is the message a worker sends back to the tile manager
// after running one step of a task. Workers communicate results only
// through Completion messages — the priority queue and task set are
// touched only from the render thread.
type Completion struct {
	Task  *Task
	State State
	Err   error
}

// priorityQueue is a container/heap of tasks ordered by descending
// Priority (: "enqueue at priority = -distance_to_view_center",
// i.e. nearer tiles, which have a larger [less negative] priority value,
// run first).
type priorityQueue []*Task

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].Priority > pq[j].Priority
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].heapIndex, pq[j].heapIndex = i, j
}
func (pq *priorityQueue) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*pq)
	*pq = append(*pq, t)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*pq = old[:n-1]
	return t
}

// Dispatcher is a fixed pool of N worker goroutines (N =
// min(runtime.NumCPU(), 4) by default) that pull tasks from a shared
// priority queue (a heap, not a flat channel, so tasks can be
// reprioritized as the view moves).
type Dispatcher struct {
	step       Step
	logger     *slog.Logger
	completion chan Completion

	mu     sync.Mutex
	cond   *sync.Cond
	pq     priorityQueue
	closed bool

	workers int
	wg      sync.WaitGroup
}

// NewDispatcher starts a Dispatcher with workers worker goroutines
// (clamped to at least 1; pass 0 to use min(NumCPU, 4)).
func NewDispatcher(workers int, step Step, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 4 {
			workers = 4
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		step:       step,
		logger:     logger,
		completion: make(chan Completion, workers*4),
		workers:    workers,
	}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Completions returns the channel the render thread drains to install
// finished work.
func (d *Dispatcher) Completions() <-chan Completion { return d.completion }

// Enqueue adds t to the priority queue, or re-priorities it if already
// queued (not yet picked up by a worker).
func (d *Dispatcher) Enqueue(t *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t.heapIndex >= 0 {
		heap.Fix(&d.pq, t.heapIndex)
	} else {
		heap.Push(&d.pq, t)
	}
	d.cond.Signal()
}

// Close stops accepting new work and waits for in-flight workers to
// finish their current step. Queued-but-not-started tasks are left
// untouched (the manager is expected to have canceled them already).
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	close(d.completion)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.logger.With("worker_id", id)
	for {
		t := d.dequeue()
		if t == nil {
			log.Debug("task worker stopping")
			return
		}
		if t.Canceled() {
			continue
		}
		c := d.step(t.Context(), t)
		d.completion <- c
	}
}

func (d *Dispatcher) dequeue() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pq.Len() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.pq.Len() == 0 {
		return nil
	}
	return heap.Pop(&d.pq).(*Task)
}
