package decode

import (
	"context"
	"fmt"

	"github.com/tangram-go/tangramcore/internal/model"
)

// Geometry command ids, per the Mapbox Vector Tile spec's command
// integer encoding: (id & 0x7) | (count << 3).
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

const defaultMVTExtent = 4096

// mvtGeomType mirrors the Tile.GeomType enum.
type mvtGeomType uint32

const (
	mvtUnknown    mvtGeomType = 0
	mvtPoint      mvtGeomType = 1
	mvtLineString mvtGeomType = 2
	mvtPolygon    mvtGeomType = 3
)

// MVTDecoder decodes Mapbox Vector Tiles: a length-delimited varint
// protobuf stream, decoded field-by-field rather than through a
// generated or reflective protobuf library .
type MVTDecoder struct {
	// Extent overrides the default 4096 normalization extent; zero means
	// use the layer's own declared extent (falling back to 4096).
	Extent uint32
}

func (d MVTDecoder) Decode(ctx context.Context, data []byte, tile model.TileID) (model.TileData, error) {
	r := newPbfReader(data)
	var out model.TileData

	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return out, model.NewError(model.ErrorKindDecode, tile, err)
		}
		if field != 3 || wt != wireLengthDelimited {
			if err := r.skip(wt); err != nil {
				return out, model.NewError(model.ErrorKindDecode, tile, err)
			}
			continue
		}
		raw, err := r.bytesField()
		if err != nil {
			return out, model.NewError(model.ErrorKindDecode, tile, err)
		}
		if err := ctx.Err(); err != nil {
			return model.TileData{}, err
		}
		layer, err := decodeMVTLayer(raw, d.Extent)
		if err != nil {
			return out, model.NewError(model.ErrorKindDecode, tile, err)
		}
		out.Layers = append(out.Layers, layer)
	}
	return out, nil
}

func decodeMVTLayer(data []byte, extentOverride uint32) (model.Layer, error) {
	r := newPbfReader(data)
	layer := model.Layer{}
	var keys []string
	var values []model.Value
	var rawFeatures [][]byte
	extent := uint32(defaultMVTExtent)

	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return layer, err
		}
		switch {
		case field == 1 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return layer, err
			}
			layer.Name = string(b)
		case field == 2 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return layer, err
			}
			rawFeatures = append(rawFeatures, b)
		case field == 3 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return layer, err
			}
			keys = append(keys, string(b))
		case field == 4 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return layer, err
			}
			v, err := decodeMVTValue(b)
			if err != nil {
				return layer, err
			}
			values = append(values, v)
		case field == 5 && wt == wireVarint:
			n, err := r.varint()
			if err != nil {
				return layer, err
			}
			extent = uint32(n)
		default:
			if err := r.skip(wt); err != nil {
				return layer, err
			}
		}
	}

	if extentOverride != 0 {
		extent = extentOverride
	}
	if extent == 0 {
		extent = defaultMVTExtent
	}

	layer.Features = make([]model.Feature, 0, len(rawFeatures))
	for _, fb := range rawFeatures {
		f, err := decodeMVTFeature(fb, keys, values, extent)
		if err != nil {
			return layer, err
		}
		layer.Features = append(layer.Features, f)
	}
	return layer, nil
}

func decodeMVTValue(data []byte) (model.Value, error) {
	r := newPbfReader(data)
	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return model.None(), err
		}
		switch {
		case field == 1 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return model.None(), err
			}
			return model.String(string(b)), nil
		case field == 2 && wt == wireFixed32:
			f, err := r.float()
			if err != nil {
				return model.None(), err
			}
			return model.Number(float64(f)), nil
		case field == 3 && wt == wireFixed64:
			f, err := r.double()
			if err != nil {
				return model.None(), err
			}
			return model.Number(f), nil
		case field == 4 && wt == wireVarint: // int_value: plain two's-complement varint
			u, err := r.varint()
			if err != nil {
				return model.None(), err
			}
			return model.Number(float64(int64(u))), nil
		case field == 5 && wt == wireVarint: // uint_value
			u, err := r.varint()
			if err != nil {
				return model.None(), err
			}
			return model.Number(float64(u)), nil
		case field == 6 && wt == wireVarint: // sint_value: zigzag
			s, err := r.svarint()
			if err != nil {
				return model.None(), err
			}
			return model.Number(float64(s)), nil
		case field == 7 && wt == wireVarint: // bool_value
			u, err := r.varint()
			if err != nil {
				return model.None(), err
			}
			return model.Bool(u != 0), nil
		default:
			if err := r.skip(wt); err != nil {
				return model.None(), err
			}
		}
	}
	return model.None(), nil
}

func decodeMVTFeature(data []byte, keys []string, values []model.Value, extent uint32) (model.Feature, error) {
	r := newPbfReader(data)
	var tagIdx []uint64
	var geomType mvtGeomType
	var geomCmds []uint32

	for !r.done() {
		field, wt, err := r.tag()
		if err != nil {
			return model.Feature{}, err
		}
		switch {
		case field == 1 && wt == wireVarint:
			if _, err = r.varint(); err != nil {
				return model.Feature{}, err
			}
		case field == 2 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return model.Feature{}, err
			}
			tagIdx, err = decodePackedVarints(b)
			if err != nil {
				return model.Feature{}, err
			}
		case field == 3 && wt == wireVarint:
			n, err := r.varint()
			if err != nil {
				return model.Feature{}, err
			}
			geomType = mvtGeomType(n)
		case field == 4 && wt == wireLengthDelimited:
			b, err := r.bytesField()
			if err != nil {
				return model.Feature{}, err
			}
			u64, err := decodePackedVarints(b)
			if err != nil {
				return model.Feature{}, err
			}
			geomCmds = make([]uint32, len(u64))
			for i, v := range u64 {
				geomCmds[i] = uint32(v)
			}
		default:
			if err := r.skip(wt); err != nil {
				return model.Feature{}, err
			}
		}
	}

	var builder model.PropertiesBuilder
	for i := 0; i+1 < len(tagIdx); i += 2 {
		ki, vi := tagIdx[i], tagIdx[i+1]
		if int(ki) >= len(keys) || int(vi) >= len(values) {
			continue
		}
		builder.Add(keys[ki], values[vi])
	}

	f := model.Feature{Props: builder.Build()}
	if err := decodeMVTGeometry(&f, geomType, geomCmds, extent); err != nil {
		return model.Feature{}, err
	}
	return f, nil
}

// decodePackedVarints reads a packed-repeated varint field's payload
// (already length-delimited) as a sequence of plain varints.
func decodePackedVarints(data []byte) ([]uint64, error) {
	r := newPbfReader(data)
	var out []uint64
	for !r.done() {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeMVTGeometry replays the command stream into Points/Lines/
// Polygons: moveTo/lineTo/closePath commands with zigzag-delta-encoded
// relative coordinates, normalized into the unit square by the layer's
// extent. Polygon ring winding (outer vs. hole) is inferred from signed
// area rather than trusted from the wire, since real-world MVT
// producers are inconsistent about it.
func decodeMVTGeometry(f *model.Feature, gt mvtGeomType, cmds []uint32, extent uint32) error {
	scale := float32(1.0 / float64(extent))
	var cx, cy int32
	i := 0

	readPoint := func() (model.Point, error) {
		if i+1 >= len(cmds) {
			return model.Point{}, fmt.Errorf("decode: truncated geometry coordinates")
		}
		dx := zigzagDecode32(cmds[i])
		dy := zigzagDecode32(cmds[i+1])
		i += 2
		cx += dx
		cy += dy
		return model.Point{X: float32(cx) * scale, Y: float32(cy) * scale}, nil
	}

	switch gt {
	case mvtPoint:
		f.GeometryType = model.GeometryPoints
		for i < len(cmds) {
			id, count := splitCommand(cmds[i])
			i++
			if id != cmdMoveTo {
				return fmt.Errorf("decode: point geometry expects moveTo, got cmd %d", id)
			}
			for k := uint32(0); k < count; k++ {
				p, err := readPoint()
				if err != nil {
					return err
				}
				f.Points = append(f.Points, p)
			}
		}
	case mvtLineString:
		f.GeometryType = model.GeometryLines
		for i < len(cmds) {
			id, count := splitCommand(cmds[i])
			i++
			if id != cmdMoveTo || count != 1 {
				return fmt.Errorf("decode: line geometry expects moveTo(1), got cmd %d count %d", id, count)
			}
			start, err := readPoint()
			if err != nil {
				return err
			}
			line := model.Line{start}
			if i >= len(cmds) {
				break
			}
			id, count = splitCommand(cmds[i])
			if id != cmdLineTo {
				return fmt.Errorf("decode: line geometry expects lineTo after moveTo, got cmd %d", id)
			}
			i++
			for k := uint32(0); k < count; k++ {
				p, err := readPoint()
				if err != nil {
					return err
				}
				line = append(line, p)
			}
			f.Lines = append(f.Lines, line)
		}
	case mvtPolygon:
		f.GeometryType = model.GeometryPolygons
		var outer, holes []model.Line
		for i < len(cmds) {
			id, count := splitCommand(cmds[i])
			i++
			if id != cmdMoveTo || count != 1 {
				return fmt.Errorf("decode: polygon geometry expects moveTo(1), got cmd %d count %d", id, count)
			}
			start, err := readPoint()
			if err != nil {
				return err
			}
			ring := model.Line{start}
			if i >= len(cmds) {
				break
			}
			id, count = splitCommand(cmds[i])
			if id != cmdLineTo {
				return fmt.Errorf("decode: polygon ring expects lineTo after moveTo, got cmd %d", id)
			}
			i++
			for k := uint32(0); k < count; k++ {
				p, err := readPoint()
				if err != nil {
					return err
				}
				ring = append(ring, p)
			}
			if i < len(cmds) {
				id, _ = splitCommand(cmds[i])
				if id == cmdClosePath {
					i++
				}
			}
			switch area := signedArea(ring); {
			case area > 0:
				outer = append(outer, ring)
			case area < 0:
				holes = append(holes, ring)
			default:
				// Zero-area ring: degenerate, drop it entirely.
			}
		}
		assignRingsToPolygons(f, outer, holes)
	default:
		f.GeometryType = model.GeometryUnknown
	}
	return nil
}

// assignRingsToPolygons makes one polygon per outer ring and assigns
// each hole to the outer ring chosen by nearestEnclosingRing, so that
// the pairing does not depend on encoding order. Outer vs. hole is
// decided by the caller from signed area, not from an on-wire flag.
func assignRingsToPolygons(f *model.Feature, outer, holes []model.Line) {
	if len(outer) == 0 {
		if len(holes) > 0 {
			f.Polygons = []model.Polygon{{Rings: holes}}
		}
		return
	}
	polys := make([]model.Polygon, len(outer))
	for i, o := range outer {
		polys[i] = model.Polygon{Rings: []model.Line{o}}
	}
	for _, h := range holes {
		owner := nearestEnclosingRing(polys, h)
		polys[owner].Rings = append(polys[owner].Rings, h)
	}
	f.Polygons = polys
}

// nearestEnclosingRing picks the outer ring whose centroid is closest
// to the hole's centroid — a cheap, order-independent heuristic for
// multi-polygon features where holes don't immediately follow their
// owning outer ring in encoding order.
func nearestEnclosingRing(polys []model.Polygon, hole model.Line) int {
	hx, hy := centroid(hole)
	best, bestDist := 0, float32(-1)
	for i, p := range polys {
		ox, oy := centroid(p.Rings[0])
		d := (ox-hx)*(ox-hx) + (oy-hy)*(oy-hy)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func centroid(ring model.Line) (float32, float32) {
	var sx, sy float32
	for _, p := range ring {
		sx += p.X
		sy += p.Y
	}
	n := float32(len(ring))
	if n == 0 {
		return 0, 0
	}
	return sx / n, sy / n
}

func signedArea(ring model.Line) float32 {
	var area float32
	for i := range ring {
		j := (i + 1) % len(ring)
		area += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return area / 2
}

func splitCommand(cmd uint32) (id int, count uint32) {
	return int(cmd & 0x7), cmd >> 3
}

func zigzagDecode32(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}
