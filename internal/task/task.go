// Package task implements the tile task state machine and the
// priority-queue worker dispatcher: New → Loading →
// Loaded → Parsing → Parsed → Building → Ready | Canceled | Failed,
// with one-way terminal transitions and synchronous cancellation.
package task

import (
	"context"
	"sync/atomic"

	"github.com/tangram-go/tangramcore/internal/model"
)

// State is one node of the task state machine.
type State uint8

const (
	StateNew State = iota
	StateLoading
	StateLoaded
	StateParsing
	StateParsed
	StateBuilding
	StateReady
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateParsing:
		return "parsing"
	case StateParsed:
		return "parsed"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the task's one-way terminal
// states.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateCanceled || s == StateFailed
}

// PayloadKind discriminates Task.Payload's tagged union: an explicit
// variant tag in place of a reinterpret_cast between task subclasses.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadRawBytes
	PayloadParsedTile
)

// Payload carries whatever the task has produced so far: raw fetched
// bytes once Loaded, or a parsed TileData once Parsed.
type Payload struct {
	Kind  PayloadKind
	Bytes []byte
	Tile  model.TileData
}

// Task is the per-tile unit of work the dispatcher schedules. It is
// owned by the tile manager while in-flight and shared (read-only,
// except for the cancel flag and priority) with workers.
type Task struct {
	TileID     model.TileID
	SourceID   model.TileSourceID
	Generation int64
	Priority   float64 // higher runs first; typically -distance_to_view_center

	SubTasks []*Task

	// RasterSourceIndex identifies which of the parent Source's
	// registered raster sources this task fetches from; -1 for a tile's
	// own primary (non-raster) task.
	RasterSourceIndex int

	state   atomic.Uint32
	cancel  atomic.Bool
	Payload Payload
	Err     error

	// ctx is canceled by Cancel, so a worker blocked inside
	// DataProvider.Fetch (or any other ctx-aware call in Step) unblocks
	// as soon as the task is canceled instead of running to completion.
	ctx       context.Context
	cancelCtx context.CancelFunc

	// heapIndex is maintained by the dispatcher's priority queue.
	heapIndex int
}

// NewTask creates a task in state New for the given tile, generation,
// and priority.
func NewTask(tileID model.TileID, sourceID model.TileSourceID, generation int64, priority float64) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		TileID:            tileID,
		SourceID:          sourceID,
		Generation:        generation,
		Priority:          priority,
		RasterSourceIndex: -1,
		ctx:               ctx,
		cancelCtx:         cancel,
		heapIndex:         -1,
	}
}

// Context returns the task's own context, canceled when Cancel is
// called. Step implementations should pass this (not a fresh
// background context) into any blocking, ctx-aware call.
func (t *Task) Context() context.Context { return t.ctx }

// State loads the task's current state.
func (t *Task) State() State { return State(t.state.Load()) }

// transition moves the task to next, refusing to leave a terminal
// state (one-way terminal transitions,).
func (t *Task) transition(next State) bool {
	for {
		cur := State(t.state.Load())
		if cur.IsTerminal() {
			return false
		}
		if t.state.CompareAndSwap(uint32(cur), uint32(next)) {
			return true
		}
	}
}

// Cancel marks the task and all its sub-tasks canceled. Workers observe
// the flag at safe points (between layers in the decoder, between
// features in the builder) rather than being preempted.
func (t *Task) Cancel() {
	t.cancel.Store(true)
	t.cancelCtx()
	t.transition(StateCanceled)
	for _, sub := range t.SubTasks {
		sub.Cancel()
	}
}

// Canceled reports whether Cancel has been called on this task.
func (t *Task) Canceled() bool { return t.cancel.Load() }

// Fail transitions the task to Failed with the given cause, unless it
// is already in a terminal state.
func (t *Task) Fail(err error) {
	if t.transition(StateFailed) {
		t.Err = err
	}
}

// AdvanceTo moves the task forward in the state machine. Returns false
// (without altering state) if the task is already terminal — the
// caller should treat this as "discard this completion", matching
// generation-mismatch/cancel-during-flight handling.
func (t *Task) AdvanceTo(next State) bool {
	return t.transition(next)
}
