package decode

import (
	"context"
	"testing"

	"github.com/tangram-go/tangramcore/internal/model"
)

func TestTopoJSONDecodeLineStringWithSharedArc(t *testing.T) {
	// Two arcs: arc 0 is a shared boundary, arc 1 continues it. A
	// MultiLineString-like object references [0, 1] to test stitching,
	// and a reversed reference [~0] (-1) to test negative-index reversal.
	// Arc positions are delta-encoded: arc 0 decodes to
	// (0,0),(1,0),(1,1) and arc 1 to (1,1),(2,2).
	data := []byte(`{
		"type": "Topology",
		"transform": {"scale": [1, 1], "translate": [0, 0]},
		"arcs": [
			[[0, 0], [1, 0], [0, 1]],
			[[1, 1], [1, 1]]
		],
		"objects": {
			"roads": {
				"type": "GeometryCollection",
				"geometries": [
					{"type": "LineString", "properties": {"name": "forward"}, "arcs": [0, 1]},
					{"type": "LineString", "properties": {"name": "reversed"}, "arcs": [-1]}
				]
			}
		}
	}`)

	dec := TopoJSONDecoder{}
	td, err := dec.Decode(context.Background(), data, model.NewTileID(0, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(td.Layers) != 1 || len(td.Layers[0].Features) != 2 {
		t.Fatalf("expected 1 layer with 2 features, got %+v", td)
	}

	var forward, reversed *model.Feature
	for i := range td.Layers[0].Features {
		f := &td.Layers[0].Features[i]
		name, _ := f.Props.Get("name")
		s, _ := name.AsString()
		switch s {
		case "forward":
			forward = f
		case "reversed":
			reversed = f
		}
	}
	if forward == nil || reversed == nil {
		t.Fatal("expected both forward and reversed features")
	}

	// Arc 0 is 3 points, arc 1 is 2 points sharing its first point with
	// arc 0's last point, so stitching should drop the duplicate: 3+1=4.
	if len(forward.Lines[0]) != 4 {
		t.Errorf("forward line length = %d, want 4 (stitched, duplicate dropped)", len(forward.Lines[0]))
	}
	want := model.Point{X: 2, Y: 2}
	if got := forward.Lines[0][3]; got != want {
		t.Errorf("forward line's last point = %+v, want %+v", got, want)
	}

	// Arc index -1 is ^(-1) = 0, reversed: arc 0 is [(0,0),(1,0),(1,1)]
	// reversed to [(1,1),(1,0),(0,0)].
	wantFirst := model.Point{X: 1, Y: 1}
	if got := reversed.Lines[0][0]; got != wantFirst {
		t.Errorf("reversed line's first point = %+v, want %+v", got, wantFirst)
	}
}

func TestTopoJSONDecodeRejectsNonTopology(t *testing.T) {
	dec := TopoJSONDecoder{}
	_, err := dec.Decode(context.Background(), []byte(`{"type": "FeatureCollection"}`), model.NewTileID(0, 0, 0))
	if err == nil {
		t.Error("expected an error for a non-Topology top-level type")
	}
}
