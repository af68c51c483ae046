package manager

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/tangram-go/tangramcore/internal/decode"
	"github.com/tangram-go/tangramcore/internal/expr"
	"github.com/tangram-go/tangramcore/internal/geom"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/rule"
	"github.com/tangram-go/tangramcore/internal/task"
)

// pixelsPerMeterAtZoom is a coarse approximation used to resolve
// WidthValue.IsMeter widths to pixel half-widths; a real deployment
// would derive this from the view's projection, but the geometry
// builder only needs a per-zoom scalar to stay self-contained here.
func pixelsPerMeterAtZoom(zoom float64) float32 {
	return float32(1 << uint(zoom+8))
}

// workerState is the thread-local scratch space each build step needs:
// one Engine and one Matcher per worker goroutine, never shared.
type workerState struct {
	engine  *expr.Engine
	matcher *rule.Matcher
}

// DefaultBuilder implements manager.Builder: it decodes nothing itself
// (that already happened in Source.Parse) and instead runs rule
// matching and geometry construction over an already-parsed TileData,
// following the same decode-then-style-then-rasterize staging as a
// tile-generation pipeline, just swapping the final stage for mesh
// building instead of pixel rasterization.
type DefaultBuilder struct {
	Scene *model.SceneLayer
	Media decode.MediaType

	pool sync.Pool // *workerState
}

// NewDefaultBuilder returns a Builder that styles tiles against scene.
func NewDefaultBuilder(scene *model.SceneLayer) *DefaultBuilder {
	b := &DefaultBuilder{Scene: scene}
	b.pool.New = func() any {
		return &workerState{engine: expr.NewEngine(nil), matcher: rule.NewMatcher()}
	}
	return b
}

// Build runs the rule matcher over every feature in every layer of
// tile, builds a mesh per matched draw rule via internal/geom, and
// serializes the combined mesh into a flat vertex/index byte buffer the
// Renderer can upload directly.
func (b *DefaultBuilder) Build(ctx context.Context, t *task.Task, tile model.TileData) (string, []byte, []byte, error) {
	ws := b.pool.Get().(*workerState)
	defer b.pool.Put(ws)

	var combined geom.Mesh
	styleName := ""

	zoom := float64(t.TileID.StyleZoom)
	for li := range tile.Layers {
		if t.Canceled() {
			return "", nil, nil, context.Canceled
		}
		layer := &tile.Layers[li]
		for fi := range layer.Features {
			if fi%64 == 0 && t.Canceled() {
				return "", nil, nil, context.Canceled
			}
			feature := &layer.Features[fi]
			evalCtx := &expr.Context{
				Zoom:     zoom,
				Geometry: expr.GeometryKindOf(feature.GeometryType),
				Engine:   ws.engine,
			}
			ws.engine.SetFeature(feature, evalCtx)

			if b.Scene == nil {
				continue
			}
			rules := ws.matcher.Match(b.Scene, feature, evalCtx)
			for _, r := range rules {
				if styleName == "" {
					styleName = r.StyleName
				}
				m := b.buildFeatureMesh(feature, &r, zoom)
				appendMesh(&combined, m)
			}
		}
	}

	vtx, idx := serializeMesh(combined)
	return styleName, vtx, idx, nil
}

// buildFeatureMesh dispatches a matched draw rule's feature geometry to
// the stroke or extrusion builder
func (b *DefaultBuilder) buildFeatureMesh(f *model.Feature, r *model.DrawRule, zoom float64) geom.Mesh {
	switch f.GeometryType {
	case model.GeometryLines:
		style := strokeStyleFor(r, zoom)
		var out geom.Mesh
		for _, line := range f.Lines {
			appendMesh(&out, geom.BuildPolyline(line, style))
		}
		return out
	case model.GeometryPolygons:
		extrude := extrudeStyleFor(r)
		var out geom.Mesh
		for _, poly := range f.Polygons {
			appendMesh(&out, geom.BuildPolygon(poly, extrude))
		}
		return out
	case model.GeometryRaster:
		if len(f.RasterData) == 0 {
			return geom.Mesh{}
		}
		return geom.BuildRasterQuad()
	default:
		return geom.Mesh{}
	}
}

func strokeStyleFor(r *model.DrawRule, zoom float64) geom.StrokeStyle {
	style := geom.StrokeStyle{HalfWidth: 1, Cap: geom.CapButt, Join: geom.JoinMiter, MiterLimit: 4}

	if slot := r.Slots[model.StyleParamWidth]; slot.Active && slot.Param.Kind == model.StyleValueWidth {
		w := slot.Param.Width
		if w.IsMeter {
			style.HalfWidth = w.Value * pixelsPerMeterAtZoom(zoom) / 2
		} else {
			style.HalfWidth = w.Value / 2
		}
	}
	if slot := r.Slots[model.StyleParamCap]; slot.Active && slot.Param.Kind == model.StyleValueString {
		switch slot.Param.Str {
		case "square":
			style.Cap = geom.CapSquare
		case "round":
			style.Cap = geom.CapRound
		default:
			style.Cap = geom.CapButt
		}
	}
	if slot := r.Slots[model.StyleParamJoin]; slot.Active && slot.Param.Kind == model.StyleValueString {
		switch slot.Param.Str {
		case "bevel":
			style.Join = geom.JoinBevel
		case "round":
			style.Join = geom.JoinRound
		default:
			style.Join = geom.JoinMiter
		}
	}
	return style
}

func extrudeStyleFor(r *model.DrawRule) geom.ExtrudeStyle {
	slot := r.Slots[model.StyleParamExtrude]
	if !slot.Active || slot.Param.Kind != model.StyleValueVec2 {
		return geom.ExtrudeStyle{}
	}
	lo, hi := slot.Param.Vec2[0], slot.Param.Vec2[1]
	if math.IsNaN(float64(lo)) {
		return geom.ExtrudeStyle{} // "use feature default" — no per-feature height available here, so skip
	}
	return geom.ExtrudeStyle{Extrude: true, MinHeight: lo, Height: hi}
}

func appendMesh(dst *geom.Mesh, src geom.Mesh) {
	base := uint16(len(dst.Vertices))
	dst.Vertices = append(dst.Vertices, src.Vertices...)
	for _, idx := range src.Indices {
		dst.Indices = append(dst.Indices, idx+base)
	}
}

// serializeMesh flattens a Mesh into little-endian vertex/index buffers:
// each vertex as (x, y f32, normal.x, normal.y f32, u f32), each index
// as a uint16 — a layout a GPU upload can consume directly without
// further marshaling.
func serializeMesh(m geom.Mesh) (vertexData, indexData []byte) {
	vertexData = make([]byte, len(m.Vertices)*20)
	for i, v := range m.Vertices {
		off := i * 20
		binary.LittleEndian.PutUint32(vertexData[off:], math.Float32bits(v.Position.X))
		binary.LittleEndian.PutUint32(vertexData[off+4:], math.Float32bits(v.Position.Y))
		binary.LittleEndian.PutUint32(vertexData[off+8:], math.Float32bits(v.Normal[0]))
		binary.LittleEndian.PutUint32(vertexData[off+12:], math.Float32bits(v.Normal[1]))
		binary.LittleEndian.PutUint32(vertexData[off+16:], math.Float32bits(v.U))
	}
	indexData = make([]byte, len(m.Indices)*2)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint16(indexData[i*2:], idx)
	}
	return vertexData, indexData
}
