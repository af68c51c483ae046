package geom

import (
	"testing"

	"github.com/tangram-go/tangramcore/internal/model"
)

func straightLine() model.Line {
	return model.Line{{X: 0, Y: 0}, {X: 10, Y: 0}}
}

func TestBuildPolylineStraightSegmentIsOneQuad(t *testing.T) {
	mesh := BuildPolyline(straightLine(), StrokeStyle{HalfWidth: 1, Cap: CapButt, Join: JoinMiter, MiterLimit: 4})
	if len(mesh.Vertices) != 4 {
		t.Errorf("vertex count = %d, want 4 (one quad, butt caps)", len(mesh.Vertices))
	}
	if len(mesh.Indices) != 6 {
		t.Errorf("index count = %d, want 6 (two triangles)", len(mesh.Indices))
	}
}

func TestBuildPolylineSquareCapAddsExtension(t *testing.T) {
	mesh := BuildPolyline(straightLine(), StrokeStyle{HalfWidth: 1, Cap: CapSquare, Join: JoinMiter, MiterLimit: 4})
	if len(mesh.Vertices) <= 4 {
		t.Errorf("square-capped line should add more geometry than a butt-capped one, got %d vertices", len(mesh.Vertices))
	}
}

func TestBuildPolylineDegenerateIsEmpty(t *testing.T) {
	mesh := BuildPolyline(model.Line{{X: 5, Y: 5}}, StrokeStyle{HalfWidth: 1})
	if len(mesh.Vertices) != 0 || len(mesh.Indices) != 0 {
		t.Error("single-point line should produce no geometry")
	}
	mesh = BuildPolyline(model.Line{}, StrokeStyle{HalfWidth: 1})
	if len(mesh.Vertices) != 0 {
		t.Error("empty line should produce no geometry")
	}
}

func TestBuildPolylineMiterJoinSharesCornerVertex(t *testing.T) {
	bent := model.Line{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	mesh := BuildPolyline(bent, StrokeStyle{HalfWidth: 1, Cap: CapButt, Join: JoinMiter, MiterLimit: 4})
	// 2n vertices (n=3): a feasible miter relocates the shared corner
	// vertex to the miter tip instead of allocating a new one.
	if len(mesh.Vertices) != 6 {
		t.Errorf("vertex count = %d, want 6 (2n, miter join adds no extra vertex)", len(mesh.Vertices))
	}
	if len(mesh.Indices) != 12 {
		t.Errorf("index count = %d, want 12 (two quads, no join fill)", len(mesh.Indices))
	}
}

func TestBuildPolylineBevelJoinAddsOneVertex(t *testing.T) {
	bent := model.Line{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	mesh := BuildPolyline(bent, StrokeStyle{HalfWidth: 1, Cap: CapButt, Join: JoinBevel, MiterLimit: 4})
	// 2n + 1: the corner's convex side splits into two vertices instead
	// of staying shared, a single extra vertex over the miter baseline.
	if len(mesh.Vertices) != 7 {
		t.Errorf("vertex count = %d, want 7 (2n + 1 for the bevel's split outer vertex)", len(mesh.Vertices))
	}
	if len(mesh.Indices) != 15 {
		t.Errorf("index count = %d, want 15 (two quads + one fill triangle)", len(mesh.Indices))
	}
}

func TestBuildPolylineRoundCapVertexCount(t *testing.T) {
	// Scenario: a 3-point line, cap=round (8 corners), join=miter.
	// Expected: 2*3 + 2*(8+2) + 0 = 26 vertices; 2*(3-1)*3 + 2*8*3 = 60 indices.
	bent := model.Line{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	mesh := BuildPolyline(bent, StrokeStyle{HalfWidth: 1, Cap: CapRound, Join: JoinMiter, MiterLimit: 4})
	if len(mesh.Vertices) != 26 {
		t.Errorf("vertex count = %d, want 26", len(mesh.Vertices))
	}
	if len(mesh.Indices) != 60 {
		t.Errorf("index count = %d, want 60", len(mesh.Indices))
	}
}

func TestDashPatternOnAt(t *testing.T) {
	d := &DashPattern{Lengths: []float32{5, 3}}
	if !d.OnAt(0) {
		t.Error("u=0 should be on (start of first on-segment)")
	}
	if d.OnAt(6) {
		t.Error("u=6 should be off (within the 3-unit gap after the first 5-unit dash)")
	}
	if !d.OnAt(9) {
		t.Error("u=9 should be on again (second cycle's dash)")
	}
}

func TestDashPatternSolidWhenNil(t *testing.T) {
	var d *DashPattern
	if d.IsDashed() {
		t.Error("nil pattern should not be dashed")
	}
	if !d.OnAt(100) {
		t.Error("non-dashed pattern should report every point as on")
	}
}
