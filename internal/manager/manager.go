package manager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tangram-go/tangramcore/internal/external"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/source"
	"github.com/tangram-go/tangramcore/internal/task"
)

// managedTile is the manager's bookkeeping for one tile id: its task (if
// any work is outstanding), whether it is currently wanted by the view,
// and how many other tiles are relying on it as a proxy.
type managedTile struct {
	task          *task.Task
	wanted        bool
	proxyRefCount int
	readyTileData model.TileData
	hasReadyData  bool

	// pendingSubTasks counts the tile's raster sub-tasks not yet parsed.
	// The parent task is held at StateParsed (re-enqueued for Building
	// only once this reaches zero) so every raster layer is attached to
	// its TileData before the tile is built and published.
	pendingSubTasks int
	subRasters      []model.Layer
}

// TileManager is the render-thread control loop: it owns
// the tile set, the task dispatcher, and proxy accounting. Every method
// on TileManager must be called from a single goroutine (the "render
// thread") — workers only ever talk back via Completions.
type TileManager struct {
	src        *source.Source
	build      Builder
	renderer   external.Renderer
	dispatcher *task.Dispatcher
	logger     *slog.Logger

	mu    sync.Mutex // guards tiles; Update/DrainCompletions both run on the render thread but tests may call concurrently
	tiles map[model.TileID]*managedTile

	// subTaskParents routes a raster sub-task's completion back to its
	// parent tile's bookkeeping; sub-tasks are never themselves keyed
	// into tiles (they have no managedTile of their own).
	subTaskParents map[*task.Task]*managedTile
}

// Builder turns a task's parsed TileData into styled vertex/index buffers,
// ready for external.Renderer.UploadTile. It is supplied by the caller
// (internal/manager/builder.go's DefaultBuilder in production) so this
// package stays independent of internal/rule and internal/geom's
// concrete wiring.
type Builder interface {
	Build(ctx context.Context, t *task.Task, tile model.TileData) (styleName string, vertexData, indexData []byte, err error)
}

// New constructs a TileManager backed by src for fetch and decode, build
// for style+mesh, and workers worker goroutines.
func New(src *source.Source, build Builder, renderer external.Renderer, workers int, logger *slog.Logger) *TileManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &TileManager{
		src:            src,
		build:          build,
		renderer:       renderer,
		logger:         logger,
		tiles:          make(map[model.TileID]*managedTile),
		subTaskParents: make(map[*task.Task]*managedTile),
	}
	m.dispatcher = task.NewDispatcher(workers, m.step, logger)
	return m
}

// Close stops the dispatcher's worker pool.
func (m *TileManager) Close() { m.dispatcher.Close() }

// Update runs one control-loop frame: compute the
// wanted set, create/enqueue tasks for newly-wanted tiles, mark
// no-longer-wanted tiles for eviction, and run proxy accounting. It does
// not drain completions — call DrainCompletions separately (typically
// right after Update) so callers can bound how long a frame blocks.
func (m *TileManager) Update(v View) {
	wanted := VisibleSet(v)
	wantedSet := make(map[model.TileID]bool, len(wanted))

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range wanted {
		wantedSet[id] = true
		mt, ok := m.tiles[id]
		if !ok {
			t := m.src.CreateTask(id)
			t.Priority = priorityFor(v, id)
			mt = &managedTile{task: t, wanted: true, pendingSubTasks: len(t.SubTasks)}
			m.tiles[id] = mt
			m.dispatcher.Enqueue(t)
			for _, sub := range t.SubTasks {
				sub.Priority = t.Priority
				m.subTaskParents[sub] = mt
				m.dispatcher.Enqueue(sub)
			}
		} else {
			mt.wanted = true
			if mt.task != nil {
				mt.task.Priority = priorityFor(v, id)
				m.dispatcher.Enqueue(mt.task)
			}
		}
	}

	for id, mt := range m.tiles {
		if wantedSet[id] {
			continue
		}
		mt.wanted = false
	}

	m.accountProxiesLocked()
	m.evictLocked()
}

// accountProxiesLocked implements: while a tile is
// not yet Ready, its nearest ancestor and any existing descendants are
// retained as proxies so something draws in its place.
func (m *TileManager) accountProxiesLocked() {
	for _, mt := range m.tiles {
		mt.proxyRefCount = 0
	}
	for id, mt := range m.tiles {
		if mt.task == nil || mt.task.State() == task.StateReady {
			continue
		}
		for z := int(id.Z) - 1; z >= 0; z-- {
			anc := id.AncestorAt(uint32(z))
			if ancMt, ok := m.tiles[anc]; ok && ancMt.hasReadyData {
				ancMt.proxyRefCount++
				break
			}
		}
		for other, otherMt := range m.tiles {
			if other.Z > id.Z && other.AncestorAt(id.Z).Equal(id) && otherMt.hasReadyData {
				otherMt.proxyRefCount++
			}
		}
	}
}

// evictLocked drops tiles that are neither wanted nor serving as a
// proxy, asking the renderer to release any uploaded buffers.
func (m *TileManager) evictLocked() {
	for id, mt := range m.tiles {
		if mt.wanted || mt.proxyRefCount > 0 {
			continue
		}
		if mt.task != nil {
			m.src.Cancel(id)
			for _, sub := range mt.task.SubTasks {
				delete(m.subTaskParents, sub)
			}
		}
		if mt.hasReadyData {
			m.renderer.EvictTile(id)
		}
		delete(m.tiles, id)
	}
}

// DrainCompletions implements: install every
// finished task whose generation still matches the source's current
// one, uploading its buffers via the renderer. It is non-blocking — it
// drains whatever is already available on the dispatcher's channel.
func (m *TileManager) DrainCompletions() {
	for {
		select {
		case c, ok := <-m.dispatcher.Completions():
			if !ok {
				return
			}
			m.installCompletion(c)
		default:
			return
		}
	}
}

func (m *TileManager) installCompletion(c task.Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parent, ok := m.subTaskParents[c.Task]; ok {
		m.installSubTaskCompletion(parent, c)
		return
	}

	mt, ok := m.tiles[c.Task.TileID]
	if !ok || mt.task != c.Task {
		return // tile was evicted or superseded before this completion arrived
	}
	if c.Task.Generation != m.src.Generation() {
		m.logger.Debug("discarding stale-generation completion", "tile", c.Task.TileID)
		return
	}
	if c.Err != nil {
		m.logger.Warn("tile task failed", "tile", c.Task.TileID, "error", c.Err)
		return
	}

	if c.State == task.StateParsed {
		if mt.pendingSubTasks > 0 {
			// Hold here; maybeResumeParse re-enqueues once every raster
			// sub-task has attached its layer.
			return
		}
		m.attachSubRastersLocked(mt)
		m.dispatcher.Enqueue(c.Task)
		return
	}
	if c.State != task.StateReady {
		// Intermediate completion (e.g. Loaded): re-enqueue for the next stage.
		m.dispatcher.Enqueue(c.Task)
		return
	}

	mt.hasReadyData = true
	if c.Task.Payload.Kind == task.PayloadParsedTile {
		mt.readyTileData = c.Task.Payload.Tile
	}
}

// installSubTaskCompletion drives one raster sub-task through its own
// Loading/Parsing steps and, once it reaches Parsed, folds its decoded
// raster layer into the parent's pending set — never advancing the
// sub-task past Parsed (it has no Building stage of its own).
func (m *TileManager) installSubTaskCompletion(parent *managedTile, c task.Completion) {
	if c.Err != nil {
		m.logger.Warn("raster sub-task failed", "tile", c.Task.TileID, "error", c.Err)
		parent.pendingSubTasks--
		m.maybeResumeParseLocked(parent)
		return
	}
	if c.State != task.StateParsed {
		m.dispatcher.Enqueue(c.Task)
		return
	}
	if c.Task.Payload.Kind == task.PayloadParsedTile {
		parent.subRasters = append(parent.subRasters, c.Task.Payload.Tile.Layers...)
	}
	parent.pendingSubTasks--
	m.maybeResumeParseLocked(parent)
}

// maybeResumeParseLocked re-enqueues the parent task for Building once
// every raster sub-task has finished and the parent has itself already
// reached Parsed (it may still be Loading/Parsing, in which case
// installCompletion's own StateParsed branch will find pendingSubTasks
// already at zero and proceed immediately).
func (m *TileManager) maybeResumeParseLocked(parent *managedTile) {
	if parent.pendingSubTasks > 0 || parent.task.State() != task.StateParsed {
		return
	}
	m.attachSubRastersLocked(parent)
	m.dispatcher.Enqueue(parent.task)
}

// attachSubRastersLocked merges every collected raster sub-task layer
// into the parent's parsed TileData so DefaultBuilder sees the raster
// overlay's synthetic feature alongside the tile's own vector layers.
func (m *TileManager) attachSubRastersLocked(mt *managedTile) {
	if len(mt.subRasters) == 0 {
		return
	}
	mt.task.Payload.Tile.Layers = append(mt.task.Payload.Tile.Layers, mt.subRasters...)
	mt.subRasters = nil
}

// step is the task.Step the dispatcher runs on worker goroutines: it
// advances a task through Loading -> Parsing -> Building -> Ready by
// delegating to the source (fetch/decode) and the Builder (style/mesh),
// uploading finished buffers via the renderer from the worker itself
// (UploadTile implementations must be safe to call off the render
// thread; only restricts the tile set/queue/proxy counters
// to the render thread).
func (m *TileManager) step(ctx context.Context, t *task.Task) task.Completion {
	switch t.State() {
	case task.StateNew, task.StateLoading:
		raw, err := m.src.Load(ctx, t)
		if err != nil {
			t.Fail(err)
			return task.Completion{Task: t, State: task.StateFailed, Err: err}
		}
		t.Payload = task.Payload{Kind: task.PayloadRawBytes, Bytes: raw}
		return task.Completion{Task: t, State: t.State()}

	case task.StateLoaded, task.StateParsing:
		td, err := m.src.Parse(ctx, t, t.Payload.Bytes)
		if err != nil {
			t.Fail(err)
			return task.Completion{Task: t, State: task.StateFailed, Err: err}
		}
		t.Payload = task.Payload{Kind: task.PayloadParsedTile, Tile: td}
		return task.Completion{Task: t, State: t.State()}

	case task.StateParsed, task.StateBuilding:
		if !t.AdvanceTo(task.StateBuilding) {
			return task.Completion{Task: t, State: t.State()}
		}
		styleName, vtx, idx, err := m.build.Build(ctx, t, t.Payload.Tile)
		if err != nil {
			t.Fail(err)
			return task.Completion{Task: t, State: task.StateFailed, Err: err}
		}
		m.renderer.UploadTile(t.TileID, styleName, vtx, idx)
		if !t.AdvanceTo(task.StateReady) {
			return task.Completion{Task: t, State: t.State()}
		}
		return task.Completion{Task: t, State: task.StateReady}

	default:
		return task.Completion{Task: t, State: t.State()}
	}
}
