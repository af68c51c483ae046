package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tangram-go/tangramcore/internal/model"
)

func TestTaskTerminalTransitionsAreOneWay(t *testing.T) {
	tk := NewTask(model.NewTileID(1, 0, 0), 1, 0, 0)
	tk.AdvanceTo(StateLoading)
	tk.AdvanceTo(StateReady)
	if tk.State() != StateReady {
		t.Fatalf("state = %v, want Ready", tk.State())
	}
	if tk.AdvanceTo(StateFailed) {
		t.Error("transition out of a terminal state should be refused")
	}
	if tk.State() != StateReady {
		t.Errorf("state changed after refused transition: %v", tk.State())
	}
}

func TestTaskCancelPropagatesToSubTasks(t *testing.T) {
	parent := NewTask(model.NewTileID(1, 0, 0), 1, 0, 0)
	child := NewTask(model.NewTileID(1, 0, 0), 2, 0, 0)
	parent.SubTasks = []*Task{child}

	parent.Cancel()
	if !child.Canceled() {
		t.Error("canceling the parent should cancel its sub-tasks")
	}
	if parent.State() != StateCanceled || child.State() != StateCanceled {
		t.Error("both parent and child should be in Canceled state")
	}
}

func TestTaskCancelCancelsContext(t *testing.T) {
	tk := NewTask(model.NewTileID(1, 0, 0), 1, 0, 0)
	select {
	case <-tk.Context().Done():
		t.Fatal("context should not be done before Cancel")
	default:
	}

	tk.Cancel()

	select {
	case <-tk.Context().Done():
	default:
		t.Error("canceling the task should cancel its context")
	}
}

func TestDispatcherPassesTaskContextToStep(t *testing.T) {
	gotCanceled := make(chan bool, 1)
	step := func(ctx context.Context, tk *Task) Completion {
		<-ctx.Done()
		gotCanceled <- true
		return Completion{Task: tk, State: StateCanceled}
	}

	d := NewDispatcher(1, step, nil)
	defer d.Close()

	tk := NewTask(model.NewTileID(1, 0, 0), 1, 0, 0)
	d.Enqueue(tk)
	// Cancel after the worker has likely picked up the task; the step
	// blocks on ctx.Done(), so this also proves the dispatcher propagates
	// the task's own context rather than context.Background().
	time.Sleep(10 * time.Millisecond)
	tk.Cancel()

	select {
	case <-gotCanceled:
	case <-time.After(time.Second):
		t.Fatal("expected the task's context to be canceled inside Step")
	}
}

func TestDispatcherRunsHigherPriorityFirst(t *testing.T) {
	var mu sync.Mutex
	var order []float64

	step := func(ctx context.Context, tk *Task) Completion {
		mu.Lock()
		order = append(order, tk.Priority)
		mu.Unlock()
		return Completion{Task: tk, State: StateReady}
	}

	d := NewDispatcher(1, step, nil) // single worker to make ordering deterministic
	defer d.Close()

	low := NewTask(model.NewTileID(1, 0, 0), 1, 0, -10)
	high := NewTask(model.NewTileID(1, 1, 1), 1, 0, 5)
	mid := NewTask(model.NewTileID(1, 2, 2), 1, 0, 0)

	d.Enqueue(low)
	d.Enqueue(high)
	d.Enqueue(mid)

	for i := 0; i < 3; i++ {
		<-d.Completions()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 5 {
		t.Fatalf("expected the highest-priority task to run first, got order %v", order)
	}
}

func TestDispatcherSkipsCanceledTasks(t *testing.T) {
	ran := make(chan struct{}, 1)
	step := func(ctx context.Context, tk *Task) Completion {
		ran <- struct{}{}
		return Completion{Task: tk, State: StateReady}
	}

	d := NewDispatcher(1, step, nil)
	defer d.Close()

	canceled := NewTask(model.NewTileID(1, 0, 0), 1, 0, 0)
	canceled.Cancel()
	d.Enqueue(canceled)

	normal := NewTask(model.NewTileID(1, 1, 1), 1, 0, 0)
	d.Enqueue(normal)

	select {
	case <-d.Completions():
	case <-time.After(time.Second):
		t.Fatal("expected the non-canceled task to complete")
	}

	select {
	case <-ran:
	default:
		t.Fatal("expected the normal task's step to have run")
	}
	select {
	case <-ran:
		t.Fatal("the canceled task's step should never have run")
	default:
	}
}
