// Package geom builds GPU-ready triangle meshes from decoded feature
// geometry: polyline extrusion (stroking) and polygon
// tessellation/extrusion.
package geom

import (
	"math"

	"github.com/tangram-go/tangramcore/internal/model"
)

// LineCap mirrors the cap styles a "cap" style parameter can name.
type LineCap uint8

const (
	CapButt LineCap = iota
	CapSquare
	CapRound
)

// LineJoin mirrors the join styles a "join" style parameter can name.
type LineJoin uint8

const (
	JoinMiter LineJoin = iota
	JoinBevel
	JoinRound
)

// StrokeStyle is the resolved polyline extrusion configuration for one
// draw rule: width, cap, join, and a miter-limit fallback-to-bevel
// threshold.
type StrokeStyle struct {
	HalfWidth  float32
	Cap        LineCap
	Join       LineJoin
	MiterLimit float32 // default 4.0, matching SVG/common convention
}

// Vertex is one packed mesh vertex: position, the extrusion normal
// (unit vector scaled in the vertex shader by half-width), and a UV
// coordinate along the line used for dashing/texturing.
type Vertex struct {
	Position model.Point
	Normal   [2]float32
	U        float32 // distance along the line, in local units
}

// Mesh is a GPU-ready triangle list: a flat vertex buffer and a 16-bit
// index buffer, the packed layout uploaded directly to the GPU.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint16
}

func vec2Sub(a, b model.Point) [2]float32           { return [2]float32{a.X - b.X, a.Y - b.Y} }
func vec2Length(v [2]float32) float32               { return float32(math.Hypot(float64(v[0]), float64(v[1]))) }
func vec2Scale(v [2]float32, s float32) [2]float32  { return [2]float32{v[0] * s, v[1] * s} }
func vec2Perp(v [2]float32) [2]float32              { return [2]float32{-v[1], v[0]} }
func vec2Add(a, b [2]float32) [2]float32            { return [2]float32{a[0] + b[0], a[1] + b[1]} }
func vec2Dot(a, b [2]float32) float32               { return a[0]*b[0] + a[1]*b[1] }
func vec2Cross(a, b [2]float32) float32             { return a[0]*b[1] - a[1]*b[0] }

func vec2Normalize(v [2]float32) [2]float32 {
	l := vec2Length(v)
	if l < 1e-7 {
		return [2]float32{0, 0}
	}
	return vec2Scale(v, 1/l)
}

// capRoundSegments is the tessellation resolution of a round cap's
// semicircular fan; joinRoundSegments is the (typically finer-grained-
// unnecessary, so smaller) resolution of a round join's wedge fan.
const (
	capRoundSegments  = 8
	joinRoundSegments = 6
)

// BuildPolyline extrudes a single line into a triangle mesh, applying
// caps at the endpoints and joins at interior vertices.
//
// Every point contributes exactly one left and one right body vertex,
// shared between its adjacent segments, for a baseline of 2n vertices.
// A feasible miter join relocates that shared pair to the intersection
// of both segments' offset edges — zero extra geometry. A join that
// isn't a miter (or whose miter would exceed the style's miter limit)
// keeps the shared vertex on the corner's concave (inner) side only;
// the convex (outer) side splits into the two segments' own raw offset
// points, bridged by a fill triangle (bevel) or a small fan (round).
// Degenerate (zero-length, single-point) lines produce an empty mesh.
func BuildPolyline(line model.Line, style StrokeStyle) Mesh {
	pts := dedupCollinearClosePoints(line)
	n := len(pts)
	if n < 2 {
		return Mesh{}
	}

	tangents := make([][2]float32, n-1)
	dist := make([]float32, n)
	for i := 0; i < n-1; i++ {
		seg := vec2Sub(pts[i+1], pts[i])
		tangents[i] = vec2Normalize(seg)
		dist[i+1] = dist[i] + vec2Length(seg)
	}

	var m Mesh

	// leftEnd/rightEnd hold the vertex used by the segment ending at a
	// point; leftStart/rightStart hold the vertex used by the segment
	// starting there. They coincide except at a split (non-miter) join.
	leftEnd := make([]uint16, n)
	rightEnd := make([]uint16, n)
	leftStart := make([]uint16, n)
	rightStart := make([]uint16, n)
	split := make([]bool, n)
	innerIsLeft := make([]bool, n)

	normal0 := vec2Scale(vec2Perp(tangents[0]), style.HalfWidth)
	leftStart[0] = addVertex(&m, pts[0], normal0, dist[0])
	rightStart[0] = addVertex(&m, pts[0], vec2Scale(normal0, -1), dist[0])
	leftEnd[0], rightEnd[0] = leftStart[0], rightStart[0]

	normalLast := vec2Scale(vec2Perp(tangents[n-2]), style.HalfWidth)
	leftEnd[n-1] = addVertex(&m, pts[n-1], normalLast, dist[n-1])
	rightEnd[n-1] = addVertex(&m, pts[n-1], vec2Scale(normalLast, -1), dist[n-1])
	leftStart[n-1], rightStart[n-1] = leftEnd[n-1], rightEnd[n-1]

	for i := 1; i < n-1; i++ {
		split[i], innerIsLeft[i] = placeJointVertices(&m, pts[i], dist[i], tangents[i-1], tangents[i], style,
			leftEnd, rightEnd, leftStart, rightStart, i)
	}

	for i := 0; i < n-1; i++ {
		addQuad(&m, leftStart[i], rightStart[i], leftEnd[i+1], rightEnd[i+1])
	}

	for i := 1; i < n-1; i++ {
		if !split[i] {
			continue // fully mitered: the shared vertex already seals the corner
		}
		fillJoinGap(&m, style.Join, innerIsLeft[i], leftEnd[i], rightEnd[i], leftStart[i], rightStart[i])
	}

	if style.Cap != CapButt {
		addCap(&m, pts[0], tangents[0], style, leftStart[0], rightStart[0], -1)
		addCap(&m, pts[n-1], tangents[n-2], style, leftEnd[n-1], rightEnd[n-1], 1)
	}

	return m
}

// placeJointVertices decides and materializes the vertex (or vertex
// pair) at an interior point. It returns split=false when the corner
// was fully mitered (leftEnd==leftStart and rightEnd==rightStart), or
// split=true with innerIsLeft identifying which side stayed shared.
func placeJointVertices(m *Mesh, p model.Point, u float32, prevTan, tan [2]float32, style StrokeStyle,
	leftEnd, rightEnd, leftStart, rightStart []uint16, i int) (split bool, innerIsLeft bool) {

	prevNorm := vec2Scale(vec2Perp(prevTan), style.HalfWidth)
	norm := vec2Scale(vec2Perp(tan), style.HalfWidth)

	cross := vec2Cross(prevTan, tan)
	dot := vec2Dot(prevTan, tan)
	hypot := float32(math.Hypot(float64(cross), float64(dot)))
	limitSq := style.MiterLimit * style.MiterLimit
	miterFeasible := hypot == 0 || 2*hypot < (hypot+dot)*limitSq

	if style.Join == JoinMiter && miterFeasible {
		left := miterPoint(p, prevTan, tan, prevNorm, norm)
		right := miterPoint(p, prevTan, tan, vec2Scale(prevNorm, -1), vec2Scale(norm, -1))
		leftEnd[i] = addVertex(m, left, [2]float32{}, u)
		rightEnd[i] = addVertex(m, right, [2]float32{}, u)
		leftStart[i], rightStart[i] = leftEnd[i], rightEnd[i]
		return false, false
	}

	innerIsLeft = cross > 0
	if innerIsLeft {
		inner := miterPoint(p, prevTan, tan, prevNorm, norm)
		leftEnd[i] = addVertex(m, inner, [2]float32{}, u)
		leftStart[i] = leftEnd[i]
		rightEnd[i] = addVertex(m, p, vec2Scale(prevNorm, -1), u)
		rightStart[i] = addVertex(m, p, vec2Scale(norm, -1), u)
	} else {
		inner := miterPoint(p, prevTan, tan, vec2Scale(prevNorm, -1), vec2Scale(norm, -1))
		rightEnd[i] = addVertex(m, inner, [2]float32{}, u)
		rightStart[i] = rightEnd[i]
		leftEnd[i] = addVertex(m, p, prevNorm, u)
		leftStart[i] = addVertex(m, p, norm, u)
	}
	return true, innerIsLeft
}

// miterPoint returns the intersection of the line through p+prevOffset
// parallel to prevTan and the line through p+offset parallel to tan —
// the point where both segments' same-side offset edges meet, via the
// standard cross-product line-intersection formula. Collinear segments
// (cross == 0) have no well-defined intersection; the next segment's
// own offset point is returned instead.
func miterPoint(p model.Point, prevTan, tan [2]float32, prevOffset, offset [2]float32) model.Point {
	fpLast := vec2Add([2]float32{p.X, p.Y}, prevOffset)
	fpThis := vec2Add([2]float32{p.X, p.Y}, offset)
	cross := vec2Cross(prevTan, tan)
	if cross == 0 {
		return model.Point{X: fpThis[0], Y: fpThis[1], Z: p.Z}
	}
	h := vec2Cross(prevTan, vec2Sub(model.Point{X: fpThis[0], Y: fpThis[1]}, model.Point{X: fpLast[0], Y: fpLast[1]})) / cross
	miterPt := vec2Add(fpThis, vec2Scale(tan, -h))
	return model.Point{X: miterPt[0], Y: miterPt[1], Z: p.Z}
}

// dedupCollinearClosePoints drops consecutive duplicate points so
// zero-length segments never produce degenerate (zero-area) quads.
func dedupCollinearClosePoints(line model.Line) []model.Point {
	out := make([]model.Point, 0, len(line))
	for _, p := range line {
		if n := len(out); n > 0 {
			d := vec2Sub(p, out[n-1])
			if vec2Length(d) < 1e-6 {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func addVertex(m *Mesh, p model.Point, normal [2]float32, u float32) uint16 {
	idx := uint16(len(m.Vertices))
	m.Vertices = append(m.Vertices, Vertex{Position: p, Normal: normal, U: u})
	return idx
}

func addQuad(m *Mesh, leftA, rightA, leftB, rightB uint16) {
	m.Indices = append(m.Indices,
		leftA, rightA, leftB,
		rightA, rightB, leftB,
	)
}

func addTri(m *Mesh, a, b, c uint16) {
	m.Indices = append(m.Indices, a, b, c)
}

// fillJoinGap bridges a split join's convex (outer) side: a single
// triangle for a bevel (or a miter that exceeded its limit), or a
// small fan for a round join.
func fillJoinGap(m *Mesh, join LineJoin, innerIsLeft bool, leftEndV, rightEndV, leftStartV, rightStartV uint16) {
	var inner, prevOuter, nextOuter uint16
	if innerIsLeft {
		inner, prevOuter, nextOuter = leftEndV, rightEndV, rightStartV
	} else {
		inner, prevOuter, nextOuter = rightEndV, leftEndV, leftStartV
	}

	if join == JoinRound {
		fanBetween(m, m.Vertices[prevOuter].Position, prevOuter, nextOuter, joinRoundSegments)
		return
	}
	addTri(m, inner, prevOuter, nextOuter)
}

// fanBetween fills the wedge between two already-placed offset
// vertices with a triangle fan pivoting at center, reusing fromVert and
// toVert as the fan's own boundary points. Adds 1 (hub) + (segments-1)
// interior vertices and segments triangles.
func fanBetween(m *Mesh, center model.Point, fromVert, toVert uint16, segments int) {
	from := m.Vertices[fromVert].Normal
	to := m.Vertices[toVert].Normal
	radius := vec2Length(from)

	hub := addVertex(m, center, [2]float32{}, 0)
	prev := fromVert
	for i := 1; i < segments; i++ {
		t := float32(i) / float32(segments)
		dir := vec2Normalize([2]float32{
			from[0] + (to[0]-from[0])*t,
			from[1] + (to[1]-from[1])*t,
		})
		cur := addVertex(m, center, vec2Scale(dir, radius), 0)
		addTri(m, hub, prev, cur)
		prev = cur
	}
	addTri(m, hub, prev, toVert)
}

// addCap extends the line past p in the dirSign*tangent outward
// direction. A square cap reuses the body's own bodyLeft/bodyRight
// endpoint vertices as the near edge of its extension quad (two extra
// vertices); a round cap fans a fresh, body-independent semicircle of
// capRoundSegments segments (capRoundSegments+2 vertices). Butt caps
// emit no geometry.
func addCap(m *Mesh, p model.Point, tangent [2]float32, style StrokeStyle, bodyLeft, bodyRight uint16, dirSign float32) {
	outward := vec2Scale(tangent, dirSign)
	norm := vec2Scale(vec2Perp(tangent), style.HalfWidth)

	switch style.Cap {
	case CapSquare:
		ext := vec2Scale(outward, style.HalfWidth)
		extended := model.Point{X: p.X + ext[0], Y: p.Y + ext[1], Z: p.Z}
		leftExt := addVertex(m, extended, norm, 0)
		rightExt := addVertex(m, extended, vec2Scale(norm, -1), 0)
		addQuad(m, bodyLeft, bodyRight, leftExt, rightExt)
	case CapRound:
		fanOut(m, p, norm, outward, vec2Scale(norm, -1), style.HalfWidth, capRoundSegments)
	}
}

// fanOut emits a triangle fan tracing the arc from direction `from` to
// `to` (unit-scaled offset vectors from center) sweeping through
// `outward`, using angle interpolation so the path is well-defined even
// when from and to are exactly opposite (a round cap's 180° sweep).
// Produces segments+2 vertices (hub, start boundary, segments further
// boundary points) and segments triangles.
func fanOut(m *Mesh, center model.Point, from, outward, to [2]float32, radius float32, segments int) {
	startAngle := math.Atan2(float64(from[1]), float64(from[0]))
	midAngle := unwrapNear(math.Atan2(float64(outward[1]), float64(outward[0])), startAngle)
	endAngle := unwrapNear(math.Atan2(float64(to[1]), float64(to[0])), midAngle)

	hub := addVertex(m, center, [2]float32{}, 0)
	prev := addVertex(m, center, vec2Scale(from, radius), 0)
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		angle := startAngle + (endAngle-startAngle)*t
		dir := [2]float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
		cur := addVertex(m, center, vec2Scale(dir, radius), 0)
		addTri(m, hub, prev, cur)
		prev = cur
	}
}

// unwrapNear shifts angle by multiples of 2π so it lies within π of ref,
// keeping a sequence of arc angles monotonic instead of wrapping.
func unwrapNear(angle, ref float64) float64 {
	for angle-ref > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle-ref < -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}
