package rule

import (
	"testing"

	"github.com/tangram-go/tangramcore/internal/expr"
	"github.com/tangram-go/tangramcore/internal/model"
)

func waterFeature() *model.Feature {
	return &model.Feature{
		GeometryType: model.GeometryPolygons,
		Props: model.NewProperties(
			model.Property{Key: "class", Value: model.String("water")},
		),
	}
}

func TestMatchDeeperSublayerWins(t *testing.T) {
	root := model.SceneLayer{
		Name:    "water",
		Enabled: true,
		Rules: []model.DrawRuleData{{
			StyleName: "polygons",
			ID:        1,
			Parameters: []model.StyleParam{
				{Key: model.StyleParamColor, Value: model.StyleParamValue{Kind: model.StyleValueU32, U32: 0x0000FFFF}},
			},
		}},
		Sublayers: []model.SceneLayer{{
			Name:    "water-deep",
			Enabled: true,
			Filter:  expr.Equality("class", model.String("water")),
			Rules: []model.DrawRuleData{{
				StyleName: "polygons",
				ID:        1,
				Parameters: []model.StyleParam{
					{Key: model.StyleParamColor, Value: model.StyleParamValue{Kind: model.StyleValueU32, U32: 0x00008BFF}},
				},
			}},
		}},
	}

	m := NewMatcher()
	rules := m.Match(&root, waterFeature(), &expr.Context{})
	if len(rules) != 1 {
		t.Fatalf("expected 1 merged rule, got %d", len(rules))
	}
	slot := rules[0].Slots[model.StyleParamColor]
	if !slot.Active || slot.Param.U32 != 0x00008BFF {
		t.Errorf("expected deeper sublayer's color to win, got %#08x", slot.Param.U32)
	}
}

func TestMatchExclusiveSublayerStopsAtFirst(t *testing.T) {
	root := model.SceneLayer{
		Name:    "roads",
		Enabled: true,
		Sublayers: []model.SceneLayer{
			{
				Name:      "motorway",
				Enabled:   true,
				Exclusive: true,
				Filter:    expr.Equality("class", model.String("motorway")),
				Rules: []model.DrawRuleData{{
					StyleName: "lines", ID: 1,
					Parameters: []model.StyleParam{{Key: model.StyleParamWidth, Value: model.StyleParamValue{Kind: model.StyleValueWidth, Width: model.WidthValue{Value: 8}}}},
				}},
			},
			{
				Name:    "all-roads",
				Enabled: true,
				Rules: []model.DrawRuleData{{
					StyleName: "lines", ID: 1,
					Parameters: []model.StyleParam{{Key: model.StyleParamWidth, Value: model.StyleParamValue{Kind: model.StyleValueWidth, Width: model.WidthValue{Value: 2}}}},
				}},
			},
		},
	}

	motorway := &model.Feature{
		GeometryType: model.GeometryLines,
		Props:        model.NewProperties(model.Property{Key: "class", Value: model.String("motorway")}),
	}

	m := NewMatcher()
	rules := m.Match(&root, motorway, &expr.Context{})
	if len(rules) != 1 {
		t.Fatalf("expected exactly 1 rule from the exclusive match, got %d", len(rules))
	}
	if rules[0].Slots[model.StyleParamWidth].Param.Width.Value != 8 {
		t.Errorf("expected exclusive motorway sublayer's width 8, fallthrough to all-roads should not have run")
	}
}

func TestMatchVisibleFalseDropsRule(t *testing.T) {
	root := model.SceneLayer{
		Name:    "hidden",
		Enabled: true,
		Rules: []model.DrawRuleData{{
			StyleName: "polygons",
			ID:        1,
			Parameters: []model.StyleParam{
				{Key: model.StyleParamVisible, Value: model.StyleParamValue{Kind: model.StyleValueBool, Bool: false}},
			},
		}},
	}

	m := NewMatcher()
	rules := m.Match(&root, waterFeature(), &expr.Context{})
	if len(rules) != 0 {
		t.Errorf("expected visible:false rule to be dropped, got %d rules", len(rules))
	}
}

func TestMatchRequiredParamNoneInvalidatesRule(t *testing.T) {
	root := model.SceneLayer{
		Name:    "sprites",
		Enabled: true,
		Rules: []model.DrawRuleData{{
			StyleName: "points",
			ID:        1,
			Parameters: []model.StyleParam{
				{Key: model.StyleParamSprite, Function: 0, Required: true},
				{Key: model.StyleParamColor, Value: model.StyleParamValue{Kind: model.StyleValueU32, U32: 1}},
			},
		}},
	}

	// The sprite parameter is declared with no literal value and no
	// engine is installed on the context, so it resolves to none.
	m := NewMatcher()
	rules := m.Match(&root, waterFeature(), &expr.Context{})
	if len(rules) != 0 {
		t.Errorf("expected a none required parameter to invalidate the rule, got %d rules", len(rules))
	}
}

func TestMatchRequiredParamPresentKeepsRule(t *testing.T) {
	root := model.SceneLayer{
		Name:    "sprites",
		Enabled: true,
		Rules: []model.DrawRuleData{{
			StyleName: "points",
			ID:        1,
			Parameters: []model.StyleParam{
				{Key: model.StyleParamSprite, Value: model.StyleParamValue{Kind: model.StyleValueString, Str: "pin"}, Function: model.NoFunction, Required: true},
			},
		}},
	}

	m := NewMatcher()
	rules := m.Match(&root, waterFeature(), &expr.Context{})
	if len(rules) != 1 {
		t.Fatalf("expected the rule with a present required parameter to survive, got %d rules", len(rules))
	}
}

func TestMatchDisabledLayerSkipped(t *testing.T) {
	root := model.SceneLayer{
		Name:    "off",
		Enabled: false,
		Rules: []model.DrawRuleData{{
			StyleName:  "polygons",
			ID:         1,
			Parameters: []model.StyleParam{{Key: model.StyleParamColor, Value: model.StyleParamValue{Kind: model.StyleValueU32, U32: 1}}},
		}},
	}

	m := NewMatcher()
	rules := m.Match(&root, waterFeature(), &expr.Context{})
	if len(rules) != 0 {
		t.Errorf("expected disabled layer to contribute no rules, got %d", len(rules))
	}
}
