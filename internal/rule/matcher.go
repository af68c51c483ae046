// Package rule implements the draw-rule matching and merging pass: a
// depth-first walk of the scene layer tree that accumulates per-style
// parameter sets from the most specific matching sublayer, then
// evaluates each merged rule's JS-function and stops parameters.
package rule

import (
	"github.com/tangram-go/tangramcore/internal/expr"
	"github.com/tangram-go/tangramcore/internal/model"
)

// mergeKey indexes the per-feature accumulator by (rule id, style name).
type mergeKey struct {
	ruleID    int
	styleName string
}

// frame is one stack entry of the depth-first walk: a layer together
// with its 1-based depth from the data layer root.
type frame struct {
	layer *model.SceneLayer
	depth int
}

// Matcher walks a scene layer tree for each feature and produces the
// merged, evaluated DrawRules that apply to it.
type Matcher struct {
	stack []frame // reused across Match calls to avoid per-feature allocation
}

// NewMatcher returns a ready-to-use Matcher.
func NewMatcher() *Matcher {
	return &Matcher{stack: make([]frame, 0, 16)}
}

// Match runs the depth-first filter/merge walk over tree
// for one feature, then evaluates the merged rules (stops/JS functions,
// visibility, required-parameter invalidation) against ctx. The returned
// slice is invalidated by the next call to Match on the same Matcher.
func (m *Matcher) Match(root *model.SceneLayer, feature *model.Feature, ctx *expr.Context) []model.DrawRule {
	merged := map[mergeKey]*model.DrawRule{}
	order := make([]mergeKey, 0, 8)

	m.stack = m.stack[:0]
	m.stack = append(m.stack, frame{layer: root, depth: 1})

	for len(m.stack) > 0 {
		top := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]

		layer := top.layer
		if !layer.Enabled {
			continue
		}
		if layer.Filter != nil && !layer.Filter.Evaluate(ctx, &feature.Props) {
			continue
		}

		mergeRules(layer, top.depth, merged, &order)

		// Push enabled sublayers whose filter matches; an exclusive
		// sublayer stops the scan after the first match, in
		// declaration order .
		for i := range layer.Sublayers {
			sub := &layer.Sublayers[i]
			if !sub.Enabled {
				continue
			}
			if sub.Filter != nil && !sub.Filter.Evaluate(ctx, &feature.Props) {
				continue
			}
			m.stack = append(m.stack, frame{layer: sub, depth: top.depth + 1})
			if sub.Exclusive {
				break
			}
		}
	}

	out := make([]model.DrawRule, 0, len(order))
	for _, key := range order {
		r := merged[key]
		if evaluateRule(r, ctx) {
			out = append(out, *r)
		}
	}
	return out
}

// mergeRules folds layer's rules into the accumulator at the given
// depth. For each parameter key, a later merge overwrites an earlier one
// only if its layer depth is strictly greater, or the key is not yet
// set — deeper wins .
func mergeRules(layer *model.SceneLayer, depth int, merged map[mergeKey]*model.DrawRule, order *[]mergeKey) {
	for _, rd := range layer.Rules {
		key := mergeKey{ruleID: rd.ID, styleName: rd.StyleName}
		dr, exists := merged[key]
		if !exists {
			nr := model.NewDrawRule(rd.ID, rd.StyleName)
			dr = &nr
			merged[key] = dr
			*order = append(*order, key)
		}
		for _, p := range rd.Parameters {
			slot := &dr.Slots[p.Key]
			if slot.Active && slot.Depth >= depth {
				continue
			}
			slot.Active = true
			slot.Param = p.Value
			slot.Stops = p.Stops
			slot.Function = p.Function
			slot.SourceLayerName = layer.Name
			slot.Depth = depth
			slot.Required = p.Required
		}
	}
}

// evaluateRule runs the per-parameter JS-function/stops evaluation pass
// and applies visibility/required-parameter invalidation: a slot marked
// Required whose evaluated value comes out none drops the whole rule.
// Returns false if the rule should be dropped.
func evaluateRule(r *model.DrawRule, ctx *expr.Context) bool {
	for i := range r.Slots {
		slot := &r.Slots[i]
		if !slot.Active {
			continue
		}
		switch {
		case slot.Function != model.NoFunction && ctx != nil && ctx.Engine != nil:
			var result model.StyleParamValue
			ok := ctx.Engine.EvalStyle(slot.Function, model.StyleParamKey(i), &result)
			if !ok {
				slot.Param = model.StyleParamValue{Kind: model.StyleValueNone}
			} else {
				slot.Param = result
			}
		case slot.Stops != nil:
			zoom := 0.0
			if ctx != nil {
				zoom = ctx.Zoom
			}
			slot.Param = slot.Stops.Eval(zoom)
		}

		if slot.Required && slot.Param.Kind == model.StyleValueNone {
			return false
		}
	}

	if !r.IsVisible() {
		return false
	}
	return true
}
