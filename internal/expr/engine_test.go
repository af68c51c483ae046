package expr

import (
	"testing"

	"github.com/tangram-go/tangramcore/internal/model"
)

func riverFeature() *model.Feature {
	return &model.Feature{
		GeometryType: model.GeometryLines,
		Lines:        []model.Line{{{X: 0, Y: 0}, {X: 1, Y: 1}}},
		Props: model.NewProperties(
			model.Property{Key: "name", Value: model.String("river")},
			model.Property{Key: "class", Value: model.String("waterway")},
		),
	}
}

func TestEnginePropertyAccessFilter(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{`function(){ return feature.name === "river"; }`})

	e.SetFeature(riverFeature(), &Context{Zoom: 10, Geometry: GeometryLine})
	if !e.EvalFilter(0) {
		t.Fatal("expected function to return true for name==river")
	}

	road := &model.Feature{
		Props: model.NewProperties(model.Property{Key: "name", Value: model.String("road")}),
	}
	e.SetFeature(road, &Context{Zoom: 10})
	if e.EvalFilter(0) {
		t.Fatal("expected function to return false for name==road, without recompilation")
	}
}

func TestEngineCompileErrorDoesNotAbortBatch(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{
		`function(){ return true`, // syntax error
		`function(){ return true; }`,
	})

	e.SetFeature(&model.Feature{}, &Context{})
	if e.EvalFilter(0) {
		t.Error("broken function should evaluate as false, not panic or abort")
	}
	if !e.EvalFilter(1) {
		t.Error("second, valid function should still evaluate correctly")
	}
}

func TestEngineEvalStyleColor(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{`function(){ return "#ff0000"; }`})
	e.SetFeature(&model.Feature{}, &Context{})

	var out model.StyleParamValue
	if !e.EvalStyle(0, model.StyleParamColor, &out) {
		t.Fatal("EvalStyle(color) should succeed for a hex string")
	}
	if out.Kind != model.StyleValueU32 {
		t.Fatalf("expected StyleValueU32, got %v", out.Kind)
	}
	if out.U32 != 0xFF0000FF {
		t.Errorf("color = %#08x, want %#08x", out.U32, 0xFF0000FF)
	}
}

func TestEngineEvalStyleWidthMeters(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{`function(){ return "5m"; }`})
	e.SetFeature(&model.Feature{}, &Context{})

	var out model.StyleParamValue
	if !e.EvalStyle(0, model.StyleParamWidth, &out) {
		t.Fatal("EvalStyle(width) should succeed for '5m'")
	}
	if !out.Width.IsMeter || out.Width.Value != 5 {
		t.Errorf("width = %+v, want {5 true}", out.Width)
	}
}

func TestEngineEvalStyleTypeMismatch(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{`function(){ return {not: "a color"}; }`})
	e.SetFeature(&model.Feature{}, &Context{})

	var out model.StyleParamValue
	if e.EvalStyle(0, model.StyleParamColor, &out) {
		t.Error("mismatched type should yield false")
	}
}

func TestEngineExtrudeCoercion(t *testing.T) {
	e := NewEngine(nil)
	e.SetFunctions([]string{
		`function(){ return true; }`,
		`function(){ return false; }`,
		`function(){ return [2, 40]; }`,
	})
	e.SetFeature(&model.Feature{}, &Context{})

	var out model.StyleParamValue
	if !e.EvalStyle(1, model.StyleParamExtrude, &out) {
		t.Fatal("extrude(false) should succeed")
	}
	if out.Vec2 != [2]float32{0, 0} {
		t.Errorf("extrude(false) = %v, want (0,0)", out.Vec2)
	}

	if !e.EvalStyle(2, model.StyleParamExtrude, &out) {
		t.Fatal("extrude([2,40]) should succeed")
	}
	if out.Vec2 != [2]float32{2, 40} {
		t.Errorf("extrude([2,40]) = %v, want (2,40)", out.Vec2)
	}
}
