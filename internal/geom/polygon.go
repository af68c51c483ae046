package geom

import (
	"github.com/flywave/go-earcut"
	"github.com/tangram-go/tangramcore/internal/model"
)

// ExtrudeStyle resolves a polygon's "extrude" and "height"/"min_height"
// style parameters into wall geometry.
type ExtrudeStyle struct {
	Extrude   bool
	MinHeight float32
	Height    float32
}

// BuildPolygon triangulates a polygon's floor (and, if extruded, ceiling
// and walls) into a Mesh. Ear-clipping is delegated to go-earcut; the
// floor/ceiling/wall assembly around it is built here since earcut only
// triangulates flat 2D rings.
func BuildPolygon(poly model.Polygon, extrude ExtrudeStyle) Mesh {
	if len(poly.Rings) == 0 || len(poly.Rings[0]) < 3 {
		return Mesh{}
	}

	data, holeIndices := flattenRings(poly.Rings)
	triIndices := earcut.Earcut(data, holeIndices, 2)

	var m Mesh
	z := extrude.MinHeight
	floorStart := addFlatRingVertices(&m, poly.Rings, z)
	for i := 0; i+2 < len(triIndices); i += 3 {
		m.Indices = append(m.Indices,
			floorStart+uint16(triIndices[i]),
			floorStart+uint16(triIndices[i+2]),
			floorStart+uint16(triIndices[i+1]),
		)
	}

	if !extrude.Extrude {
		return m
	}

	ceilZ := extrude.Height
	if ceilZ <= z {
		ceilZ = z
	}
	ceilStart := addFlatRingVertices(&m, poly.Rings, ceilZ)
	for i := 0; i+2 < len(triIndices); i += 3 {
		m.Indices = append(m.Indices,
			ceilStart+uint16(triIndices[i]),
			ceilStart+uint16(triIndices[i+1]),
			ceilStart+uint16(triIndices[i+2]),
		)
	}

	for _, ring := range poly.Rings {
		buildWall(&m, ring, z, ceilZ)
	}

	return m
}

// flattenRings packs every ring's (x,y) pairs into earcut's flat input
// format and records each hole ring's starting index.
func flattenRings(rings []model.Line) ([]float64, []int) {
	var data []float64
	var holeIndices []int
	for i, ring := range rings {
		if i > 0 {
			holeIndices = append(holeIndices, len(data)/2)
		}
		for _, p := range ring {
			data = append(data, float64(p.X), float64(p.Y))
		}
	}
	return data, holeIndices
}

// addFlatRingVertices adds every ring vertex at the given z, in the same
// order flattenRings used, and returns the base index.
func addFlatRingVertices(m *Mesh, rings []model.Line, z float32) uint16 {
	base := uint16(len(m.Vertices))
	for _, ring := range rings {
		for _, p := range ring {
			m.Vertices = append(m.Vertices, Vertex{
				Position: model.Point{X: p.X, Y: p.Y, Z: z},
				Normal:   [2]float32{0, 0},
			})
		}
	}
	return base
}

// buildWall extrudes one ring into vertical wall quads between minZ and
// maxZ, with outward-facing normals computed per edge.
func buildWall(m *Mesh, ring model.Line, minZ, maxZ float32) {
	n := len(ring)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		p0 := ring[i]
		p1 := ring[(i+1)%n]
		edge := vec2Sub(p1, p0)
		outward := vec2Normalize(vec2Perp(edge))

		bl := addVertex(m, model.Point{X: p0.X, Y: p0.Y, Z: minZ}, outward, 0)
		br := addVertex(m, model.Point{X: p1.X, Y: p1.Y, Z: minZ}, outward, 0)
		tl := addVertex(m, model.Point{X: p0.X, Y: p0.Y, Z: maxZ}, outward, 0)
		tr := addVertex(m, model.Point{X: p1.X, Y: p1.Y, Z: maxZ}, outward, 0)

		addTri(m, bl, br, tr)
		addTri(m, bl, tr, tl)
	}
}
