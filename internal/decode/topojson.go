package decode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tangram-go/tangramcore/internal/model"
)

// TopoJSONDecoder is a single-pass parser: it extracts the topology's
// arcs and transform, then for each object resolves arc references into
// Lines by walking delta-encoded indices.
type TopoJSONDecoder struct{}

type topoDoc struct {
	Type      string                    `json:"type"`
	Transform *topoTransform            `json:"transform"`
	Arcs      [][][2]float64            `json:"arcs"`
	Objects   map[string]topoGeomOrColl `json:"objects"`
}

type topoTransform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

type topoGeomOrColl struct {
	Type        string            `json:"type"`
	Geometries  []topoGeomOrColl  `json:"geometries"`
	Arcs        json.RawMessage   `json:"arcs"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Properties  map[string]any    `json:"properties"`
}

func (d TopoJSONDecoder) Decode(ctx context.Context, data []byte, tile model.TileID) (model.TileData, error) {
	var doc topoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
	}
	if doc.Type != "Topology" {
		return model.TileData{}, model.NewError(model.ErrorKindDecode, tile,
			fmt.Errorf("topojson: unsupported top-level type %q", doc.Type))
	}

	arcs := decodeAllArcs(doc.Arcs, doc.Transform)

	var layers []model.Layer
	for name, obj := range doc.Objects {
		if err := ctx.Err(); err != nil {
			return model.TileData{}, err
		}
		layer := model.Layer{Name: name}
		geoms := flattenGeometries(obj)
		for _, g := range geoms {
			f, err := decodeTopoGeometry(g, arcs)
			if err != nil {
				return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
			}
			layer.Features = append(layer.Features, f)
		}
		layers = append(layers, layer)
	}
	return model.TileData{Layers: layers}, nil
}

func flattenGeometries(obj topoGeomOrColl) []topoGeomOrColl {
	if obj.Type == "GeometryCollection" {
		var out []topoGeomOrColl
		for _, g := range obj.Geometries {
			out = append(out, flattenGeometries(g)...)
		}
		return out
	}
	return []topoGeomOrColl{obj}
}

// decodeAllArcs decodes every arc's delta-encoded integer coordinates
// into absolute (lon, lat) points via the topology's quantization
// transform: lon = i*scale.x + translate.x, accumulated across the arc.
func decodeAllArcs(raw [][][2]float64, transform *topoTransform) [][][2]float64 {
	sx, sy, tx, ty := 1.0, 1.0, 0.0, 0.0
	if transform != nil {
		sx, sy = transform.Scale[0], transform.Scale[1]
		tx, ty = transform.Translate[0], transform.Translate[1]
	}
	out := make([][][2]float64, len(raw))
	for i, arc := range raw {
		pts := make([][2]float64, len(arc))
		var ax, ay float64
		for j, d := range arc {
			ax += d[0]
			ay += d[1]
			pts[j] = [2]float64{ax*sx + tx, ay*sy + ty}
		}
		out[i] = pts
	}
	return out
}

// resolveArc returns the decoded point sequence for a signed arc index:
// non-negative indices are used as-is; negative indices name the arc
// at (^idx) (bitwise complement, i.e. -idx-1) reversed, per the
// TopoJSON arc-reference convention.
func resolveArc(idx int, arcs [][][2]float64) ([][2]float64, error) {
	i := idx
	reverse := false
	if i < 0 {
		i = ^i
		reverse = true
	}
	if i < 0 || i >= len(arcs) {
		return nil, fmt.Errorf("topojson: arc index %d out of range", idx)
	}
	pts := arcs[i]
	if !reverse {
		return pts, nil
	}
	rev := make([][2]float64, len(pts))
	for j, p := range pts {
		rev[len(pts)-1-j] = p
	}
	return rev, nil
}

// stitchArcs concatenates a sequence of arc indices into one Line,
// dropping each subsequent arc's first point since it duplicates the
// previous arc's last point (the shared topology junction).
func stitchArcs(indices []int, arcs [][][2]float64) (model.Line, error) {
	var line model.Line
	for i, idx := range indices {
		pts, err := resolveArc(idx, arcs)
		if err != nil {
			return nil, err
		}
		start := 0
		if i > 0 && len(pts) > 0 {
			start = 1
		}
		for _, p := range pts[start:] {
			line = append(line, model.Point{X: float32(p[0]), Y: float32(p[1])})
		}
	}
	return line, nil
}

func decodeTopoGeometry(g topoGeomOrColl, arcs [][][2]float64) (model.Feature, error) {
	var builder model.PropertiesBuilder
	for k, v := range g.Properties {
		builder.Add(k, jsonValueToModel(v))
	}
	f := model.Feature{Props: builder.Build()}

	switch g.Type {
	case "Point":
		var c [2]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPoints
		f.Points = []model.Point{{X: float32(c[0]), Y: float32(c[1])}}
	case "MultiPoint":
		var cs [][2]float64
		if err := json.Unmarshal(g.Coordinates, &cs); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPoints
		for _, c := range cs {
			f.Points = append(f.Points, model.Point{X: float32(c[0]), Y: float32(c[1])})
		}
	case "LineString":
		var idx []int
		if err := json.Unmarshal(g.Arcs, &idx); err != nil {
			return f, err
		}
		line, err := stitchArcs(idx, arcs)
		if err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryLines
		f.Lines = []model.Line{line}
	case "MultiLineString":
		var idxs [][]int
		if err := json.Unmarshal(g.Arcs, &idxs); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryLines
		for _, idx := range idxs {
			line, err := stitchArcs(idx, arcs)
			if err != nil {
				return f, err
			}
			f.Lines = append(f.Lines, line)
		}
	case "Polygon":
		var rings [][]int
		if err := json.Unmarshal(g.Arcs, &rings); err != nil {
			return f, err
		}
		lines, err := stitchRings(rings, arcs)
		if err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPolygons
		f.Polygons = []model.Polygon{{Rings: lines}}
	case "MultiPolygon":
		var polys [][][]int
		if err := json.Unmarshal(g.Arcs, &polys); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPolygons
		for _, rings := range polys {
			lines, err := stitchRings(rings, arcs)
			if err != nil {
				return f, err
			}
			f.Polygons = append(f.Polygons, model.Polygon{Rings: lines})
		}
	default:
		return f, fmt.Errorf("topojson: unsupported geometry type %q", g.Type)
	}
	return f, nil
}

func stitchRings(rings [][]int, arcs [][][2]float64) ([]model.Line, error) {
	out := make([]model.Line, len(rings))
	for i, ring := range rings {
		line, err := stitchArcs(ring, arcs)
		if err != nil {
			return nil, err
		}
		out[i] = line
	}
	return out, nil
}
