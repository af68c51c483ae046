// Package scenefile defines the plain-data shape an external scene
// loader (an external.SceneSource implementation) decodes a scene
// document into, and converts that shape into the model.SceneLayer tree
// the rule matcher walks. The on-disk scene grammar itself — how a YAML
// document expresses filters, style mixins, imports, and so on — is
// deliberately out of scope; this package only defines the minimal
// struct tags a loader can unmarshal onto with gopkg.in/yaml.v3, the
// library the rest of the pack reaches for wherever a config document
// needs decoding.
package scenefile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tangram-go/tangramcore/internal/expr"
	"github.com/tangram-go/tangramcore/internal/model"
)

// StyleParam is one key/value style parameter as written in a scene
// document, before compilation: Value is the literal (if any), Stops is
// a zoom-keyed list of literals (if any), and JS is a raw function body
// string (if any) — exactly one should be set.
type StyleParam struct {
	Key      string      `yaml:"key"`
	Value    interface{} `yaml:"value,omitempty"`
	Stops    [][2]any    `yaml:"stops,omitempty"`
	JS       string      `yaml:"js,omitempty"`
	Required bool        `yaml:"required,omitempty"`
}

// DrawRule is one rule entry under a layer's `draw:` block.
type DrawRule struct {
	Style      string       `yaml:"style"`
	ID         int          `yaml:"id"`
	Parameters []StyleParam `yaml:"parameters,omitempty"`
}

// Layer is one scene-tree node as written in the document.
type Layer struct {
	Name      string     `yaml:"name"`
	Filter    string     `yaml:"filter,omitempty"` // reserved: compiled filter expressions are a Non-goal here
	Enabled   *bool      `yaml:"enabled,omitempty"`
	Exclusive bool       `yaml:"exclusive,omitempty"`
	Draw      []DrawRule `yaml:"draw,omitempty"`
	Layers    []Layer    `yaml:"layers,omitempty"`
}

// Document is the root of a scene file: a flat list of top-level data
// layers, compiling into the scene layer tree rooted at the data layer.
type Document struct {
	Layers []Layer `yaml:"layers"`
}

// Parse decodes raw YAML bytes into a Document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scenefile: parsing document: %w", err)
	}
	return &doc, nil
}

// ToSceneLayer compiles a Document's root layers into the single
// model.SceneLayer tree the rule matcher expects, synthesizing an
// always-enabled, all-matching root so the document's top-level layers
// can simply be its sublayers.
func (d *Document) ToSceneLayer() *model.SceneLayer {
	root := &model.SceneLayer{
		Name:    "root",
		Enabled: true,
		Filter:  expr.NopFilter(),
	}
	for _, l := range d.Layers {
		root.Sublayers = append(root.Sublayers, l.compile())
	}
	return root
}

func (l Layer) compile() model.SceneLayer {
	enabled := true
	if l.Enabled != nil {
		enabled = *l.Enabled
	}
	sl := model.SceneLayer{
		Name:      l.Name,
		Enabled:   enabled,
		Exclusive: l.Exclusive,
		Filter:    expr.NopFilter(), // filter-expression compilation is a Non-goal; always matches
	}
	for _, dr := range l.Draw {
		sl.Rules = append(sl.Rules, dr.compile())
	}
	for _, sub := range l.Layers {
		sl.Sublayers = append(sl.Sublayers, sub.compile())
	}
	return sl
}

func (dr DrawRule) compile() model.DrawRuleData {
	rd := model.DrawRuleData{StyleName: dr.Style, ID: dr.ID}
	for _, p := range dr.Parameters {
		key, ok := model.ParseStyleParamKey(p.Key)
		if !ok {
			continue
		}
		param := model.StyleParam{Key: key, Function: model.NoFunction, Required: p.Required}
		switch {
		case p.JS != "":
			// The JS source is not compiled or kept here: the
			// parameter gets no function index and no value, so it
			// evaluates to none.
			param.Function = model.NoFunction
		case len(p.Stops) > 0:
			param.Stops = stopsFromLiteral(p.Stops)
		default:
			param.Value = literalToStyleValue(key, p.Value)
		}
		rd.Parameters = append(rd.Parameters, param)
	}
	return rd
}

func stopsFromLiteral(raw [][2]any) *model.Stops {
	stops := &model.Stops{}
	for _, pair := range raw {
		zoom, ok := pair[0].(float64)
		if !ok {
			if n, ok2 := pair[0].(int); ok2 {
				zoom = float64(n)
			}
		}
		stops.Zooms = append(stops.Zooms, zoom)
		stops.Values = append(stops.Values, literalToStyleValue(model.StyleParamNone, pair[1]))
	}
	return stops
}

func literalToStyleValue(key model.StyleParamKey, raw interface{}) model.StyleParamValue {
	switch v := raw.(type) {
	case bool:
		return model.StyleParamValue{Kind: model.StyleValueBool, Bool: v}
	case float64:
		return model.StyleParamValue{Kind: model.StyleValueF32, F32: float32(v)}
	case int:
		return model.StyleParamValue{Kind: model.StyleValueF32, F32: float32(v)}
	case string:
		return model.StyleParamValue{Kind: model.StyleValueString, Str: v}
	default:
		return model.StyleParamValue{Kind: model.StyleValueNone}
	}
}
