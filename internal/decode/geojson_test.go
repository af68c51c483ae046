package decode

import (
	"context"
	"testing"

	"github.com/tangram-go/tangramcore/internal/model"
)

func TestGeoJSONDecodeFeatureCollection(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"name": "Town Square", "pop": 120},
				"geometry": {"type": "Point", "coordinates": [0, 0]}
			}
		]
	}`)

	dec := GeoJSONDecoder{}
	td, err := dec.Decode(context.Background(), data, model.NewTileID(0, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(td.Layers) != 1 || len(td.Layers[0].Features) != 1 {
		t.Fatalf("expected one layer with one feature, got %+v", td)
	}
	f := td.Layers[0].Features[0]
	if f.GeometryType != model.GeometryPoints || len(f.Points) != 1 {
		t.Fatalf("expected a single point, got %+v", f)
	}
	name, ok := f.Props.Get("name")
	if !ok {
		t.Fatal("expected 'name' property")
	}
	if s, _ := name.AsString(); s != "Town Square" {
		t.Errorf("name = %q, want Town Square", s)
	}
}

func TestGeoJSONDecodeRejectsUnsupportedType(t *testing.T) {
	dec := GeoJSONDecoder{}
	_, err := dec.Decode(context.Background(), []byte(`{"type": "Nonsense"}`), model.NewTileID(0, 0, 0))
	if err == nil {
		t.Error("expected an error for an unsupported top-level type")
	}
}

func TestGeoJSONDecodePolygonWithHole(t *testing.T) {
	data := []byte(`{
		"type": "Feature",
		"properties": {},
		"geometry": {
			"type": "Polygon",
			"coordinates": [
				[[0,0],[0,10],[10,10],[10,0],[0,0]],
				[[2,2],[2,4],[4,4],[4,2],[2,2]]
			]
		}
	}`)
	dec := GeoJSONDecoder{}
	td, err := dec.Decode(context.Background(), data, model.NewTileID(0, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f := td.Layers[0].Features[0]
	if len(f.Polygons) != 1 || len(f.Polygons[0].Rings) != 2 {
		t.Fatalf("expected one polygon with 2 rings (outer+hole), got %+v", f.Polygons)
	}
}
