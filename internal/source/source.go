// Package source implements TileSource: per-source fetch/cache/cancel
// orchestration with raster sub-task fan-out, generalized from a single
// OSM-specific data source to any external.DataProvider.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tangram-go/tangramcore/internal/decode"
	"github.com/tangram-go/tangramcore/internal/external"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/task"
)

// errCanceledOrTerminal is returned by Load/Parse when a task transition
// is refused because the task already reached a terminal state (Ready,
// Canceled, Failed) — the caller should discard the step's result
// silently rather than surface it.
var errCanceledOrTerminal = errors.New("source: task already terminal or canceled")

// RasterSource describes one registered raster overlay source a tile
// may fan out sub-tasks to: its own max zoom (beyond which the nearest
// ancestor tile is requested) and its own provider/media type.
type RasterSource struct {
	MaxZoom  uint32
	Provider external.DataProvider
	Media    decode.MediaType
}

// Config configures a Source.
type Config struct {
	Media       decode.MediaType
	Provider    external.DataProvider
	CacheSize   int // raw-byte LRU capacity; 0 defaults to 256
	RasterSubs  []RasterSource
	Logger      *slog.Logger
}

// cacheEntry stamps a cached byte buffer with the generation it was
// fetched under, so a stale hit (from before a Clear()) is not reused.
type cacheEntry struct {
	data       []byte
	generation int64
}

// cacheKey distinguishes a raster sub-task's bytes from the primary
// task's own bytes at the same TileID — a raster source whose MaxZoom
// is at or above the requested zoom fetches the *same* tile id as the
// primary task, so the raw-byte cache must not collapse the two.
type cacheKey struct {
	tile  model.TileID
	index int // matches Task.RasterSourceIndex: -1 = primary
}

// Source is one tile data source: a media type, a DataProvider, a raw-
// byte LRU cache, and a generation counter that Clear bumps to
// invalidate in-flight tasks without tearing down the cache itself.
type Source struct {
	ID       model.TileSourceID
	media    decode.MediaType
	provider external.DataProvider
	rasters  []RasterSource
	logger   *slog.Logger

	cache      *lru.Cache[cacheKey, cacheEntry]
	generation atomic.Int64

	mu    sync.Mutex
	tasks map[model.TileID]*task.Task
}

// New constructs a Source with a freshly assigned TileSourceID.
func New(cfg Config) *Source {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[cacheKey, cacheEntry](size)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		ID:       model.NextTileSourceID(),
		media:    cfg.Media,
		provider: cfg.Provider,
		rasters:  cfg.RasterSubs,
		logger:   logger,
		cache:    cache,
		tasks:    make(map[model.TileID]*task.Task),
	}
}

// Generation returns the source's current generation stamp.
func (s *Source) Generation() int64 { return s.generation.Load() }

// CreateTask builds a Task for tile, attaching one sub-task per
// registered raster source at the appropriate parent/child zoom — a
// raster source beyond its max zoom yields a sub-task for its nearest
// ancestor id.
func (s *Source) CreateTask(tile model.TileID) *task.Task {
	gen := s.generation.Load()
	priority := 0.0
	t := task.NewTask(tile, s.ID, gen, priority)

	for i, rs := range s.rasters {
		target := tile
		if tile.Z > rs.MaxZoom {
			target = tile.AncestorAt(rs.MaxZoom)
		}
		sub := task.NewTask(target, s.ID, gen, priority)
		sub.RasterSourceIndex = i
		t.SubTasks = append(t.SubTasks, sub)
	}

	s.mu.Lock()
	s.tasks[tile] = t
	s.mu.Unlock()
	return t
}

// providerFor returns the DataProvider and MediaType t should fetch and
// decode with: the source's own for a primary task, or the matching
// registered RasterSource's for a raster sub-task.
func (s *Source) providerFor(t *task.Task) (external.DataProvider, decode.MediaType) {
	if t.RasterSourceIndex >= 0 && t.RasterSourceIndex < len(s.rasters) {
		rs := s.rasters[t.RasterSourceIndex]
		return rs.Provider, rs.Media
	}
	return s.provider, s.media
}

// Load fetches tile's raw bytes, short-circuiting the network with a
// fresh cache hit under the task's generation. On completion the bytes
// are stamped into the raw-data cache under the source's *current*
// generation (not the task's — a stale task should not poison the
// cache with data from an invalidated fetch cycle).
func (s *Source) Load(ctx context.Context, t *task.Task) ([]byte, error) {
	if !t.AdvanceTo(task.StateLoading) {
		return nil, errCanceledOrTerminal
	}

	key := cacheKey{tile: t.TileID, index: t.RasterSourceIndex}
	if entry, ok := s.cache.Get(key); ok && entry.generation == t.Generation {
		if !t.AdvanceTo(task.StateLoaded) {
			return nil, errCanceledOrTerminal
		}
		return entry.data, nil
	}

	provider, _ := s.providerFor(t)
	data, err := provider.Fetch(ctx, t.TileID)
	if err != nil {
		return nil, err
	}
	if t.Canceled() {
		return nil, errCanceledOrTerminal
	}

	s.cache.Add(key, cacheEntry{data: data, generation: s.generation.Load()})
	if !t.AdvanceTo(task.StateLoaded) {
		return nil, errCanceledOrTerminal
	}
	return data, nil
}

// Parse runs the decoder matching the source's media type over raw,
// checking cancellation between the decoder's own layer-boundary
// checks via ctx. A parse failure surfaces as a DecodeError and the
// task is dropped.
func (s *Source) Parse(ctx context.Context, t *task.Task, raw []byte) (model.TileData, error) {
	if !t.AdvanceTo(task.StateParsing) {
		return model.TileData{}, errCanceledOrTerminal
	}
	_, media := s.providerFor(t)
	dec := decode.For(media)
	if dec == nil {
		return model.TileData{}, fmt.Errorf("source: no decoder registered for media type %v", media)
	}
	td, err := dec.Decode(ctx, raw, t.TileID)
	if err != nil {
		return model.TileData{}, err
	}
	for li := range td.Layers {
		for fi := range td.Layers[li].Features {
			td.Layers[li].Features[fi].SourceID = s.ID
		}
	}
	if !t.AdvanceTo(task.StateParsed) {
		return model.TileData{}, errCanceledOrTerminal
	}
	return td, nil
}

// Cancel marks the task for tile (and its sub-tasks) canceled and
// removes it from the source's bookkeeping.
func (s *Source) Cancel(tile model.TileID) {
	s.mu.Lock()
	t, ok := s.tasks[tile]
	delete(s.tasks, tile)
	s.mu.Unlock()
	if ok {
		t.Cancel()
	}
}

// Clear bumps the source generation, invalidating every in-flight task:
// completions stamped with an older generation are discarded by the
// caller (tile manager) without surfacing to the builder. The raw-byte
// cache itself is kept — entries are simply no longer considered fresh
// since their stored generation won't match.
func (s *Source) Clear() {
	s.generation.Add(1)
}

// NearestAncestorFor returns the tile id a raster source at maxZoom
// should be requested at for the given display tile — the over-zoom
// rule for raster sub-tasks whose source can't serve every zoom level.
func NearestAncestorFor(tile model.TileID, maxZoom uint32) model.TileID {
	if tile.Z <= maxZoom {
		return tile
	}
	return tile.AncestorAt(maxZoom)
}
