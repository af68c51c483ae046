// Package expr implements the style/filter expression engine: the
// declarative Filter tree plus the embedded JavaScript
// interpreter (internal/expr.Engine) that backs Function filters and
// style-parameter functions.
package expr

import (
	"sort"

	"github.com/tangram-go/tangramcore/internal/model"
)

// Kind discriminates the Filter tagged variant.
type Kind uint8

const (
	KindNop Kind = iota
	KindAll
	KindAny
	KindNone
	KindExistence
	KindEqualitySet
	KindEquality
	KindRange
	KindFunction
)

// Static cost estimates from used to sort filter operands
// cheapest-first.
const (
	costKeyword   = 1
	costLiteral   = 10
	costExistence = 20
	costFunction  = 1000
)

// Filter is the tagged variant over
// All/Any/None/Existence/EqualitySet/Equality/Range/Function/Nop.
type Filter struct {
	Kind Kind

	// Combinators (All/Any/None).
	Operands []Filter

	// Existence/EqualitySet/Equality/Range share Key.
	Key string

	// Equality
	EqValue model.Value

	// EqualitySet
	EqSet []model.Value

	// Existence
	WantExists bool

	// Range
	Min, Max     float64
	HasPixelArea bool

	// Function
	FuncIndex model.JsFunctionIndex
}

// NopFilter always matches — the identity element for an empty All(..).
func NopFilter() Filter { return Filter{Kind: KindNop} }

func All(operands ...Filter) Filter  { return Filter{Kind: KindAll, Operands: operands} }
func Any(operands ...Filter) Filter  { return Filter{Kind: KindAny, Operands: operands} }
func NoneOf(operands ...Filter) Filter { return Filter{Kind: KindNone, Operands: operands} }

func Existence(key string, want bool) Filter {
	return Filter{Kind: KindExistence, Key: key, WantExists: want}
}

func Equality(key string, v model.Value) Filter {
	return Filter{Kind: KindEquality, Key: key, EqValue: v}
}

func EqualitySet(key string, vs []model.Value) Filter {
	return Filter{Kind: KindEqualitySet, Key: key, EqSet: vs}
}

// RangeFilter builds a half-open [min,max) numeric range filter. If
// hasPixelArea is absent in the scene file, callers should pass false
// resolved open question.
func RangeFilter(key string, min, max float64, hasPixelArea bool) Filter {
	return Filter{Kind: KindRange, Key: key, Min: min, Max: max, HasPixelArea: hasPixelArea}
}

func FunctionFilter(idx model.JsFunctionIndex) Filter {
	return Filter{Kind: KindFunction, FuncIndex: idx}
}

// Cost returns the static cost estimate used for cheapest-first sorting.
func (f Filter) Cost() int {
	switch f.Kind {
	case KindNop:
		return 0
	case KindFunction:
		return costFunction
	case KindExistence:
		return costExistence
	case KindEquality, KindEqualitySet, KindRange:
		if isKeyword(f.Key) {
			return costKeyword
		}
		return costLiteral
	case KindAll, KindAny, KindNone:
		total := 0
		for _, op := range f.Operands {
			total += op.Cost()
		}
		return total
	default:
		return costLiteral
	}
}

func isKeyword(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// Sort stably reorders combinator operands cheapest-first, recursively,
// so that filter trees with identical operand multisets evaluate
// identically after sorting .
func (f *Filter) Sort() {
	for i := range f.Operands {
		f.Operands[i].Sort()
	}
	if f.Kind == KindAll || f.Kind == KindAny || f.Kind == KindNone {
		sort.SliceStable(f.Operands, func(i, j int) bool {
			return f.Operands[i].Cost() < f.Operands[j].Cost()
		})
	}
}

// Evaluate implements model.Filter so Filter can be stored directly on a
// model.SceneLayer. ctx must be an *Context (or nil for keyword-free
// evaluation of property-only filters); Function filters require ctx to
// carry a live *Engine and will evaluate false without one.
func (f Filter) Evaluate(ctx any, props *model.Properties) bool {
	c, _ := ctx.(*Context)
	return f.eval(c, props)
}

func (f Filter) eval(ctx *Context, props *model.Properties) bool {
	switch f.Kind {
	case KindNop:
		return true
	case KindAll:
		for _, op := range f.Operands {
			if !op.eval(ctx, props) {
				return false
			}
		}
		return true
	case KindAny:
		for _, op := range f.Operands {
			if op.eval(ctx, props) {
				return true
			}
		}
		return false
	case KindNone:
		for _, op := range f.Operands {
			if op.eval(ctx, props) {
				return false
			}
		}
		return true
	case KindExistence:
		_, exists := lookup(ctx, props, f.Key)
		return exists == f.WantExists
	case KindEquality:
		v, exists := lookup(ctx, props, f.Key)
		if !exists {
			return false
		}
		return v.Equal(f.EqValue)
	case KindEqualitySet:
		v, exists := lookup(ctx, props, f.Key)
		if !exists {
			return false
		}
		for _, want := range f.EqSet {
			if v.Equal(want) {
				return true
			}
		}
		return false
	case KindRange:
		return f.evalRange(ctx, props)
	case KindFunction:
		if ctx == nil || ctx.Engine == nil {
			return false
		}
		return ctx.Engine.EvalFilter(f.FuncIndex)
	default:
		return false
	}
}

func (f Filter) evalRange(ctx *Context, props *model.Properties) bool {
	v, exists := lookup(ctx, props, f.Key)
	if !exists {
		return false
	}
	n, ok := v.AsNumber()
	if !ok {
		return false
	}
	min, max := f.Min, f.Max
	if f.HasPixelArea && ctx != nil {
		min *= ctx.MetersPerPixelArea
		max *= ctx.MetersPerPixelArea
	}
	return n >= min && n < max
}

// lookup resolves key either as a keyword from ctx or as a feature
// property.
func lookup(ctx *Context, props *model.Properties, key string) (model.Value, bool) {
	if isKeyword(key) && ctx != nil {
		return ctx.Keyword(key)
	}
	if props == nil {
		return model.None(), false
	}
	return props.Get(key)
}
