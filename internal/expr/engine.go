package expr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/robertkrimen/otto"
	"github.com/tangram-go/tangramcore/internal/model"
)

// Engine embeds a JavaScript interpreter (otto — pure Go, no cgo) behind
// a narrow surface: SetFunctions, SetFeature, EvalFilter, EvalStyle. One
// Engine belongs to exactly one worker goroutine; it is not safe for
// concurrent use.
type Engine struct {
	vm        *otto.Otto
	functions []otto.Value // compiled top-level functions, indexed by JsFunctionIndex
	compileOK []bool
	arena     *stringArena
	logger    *slog.Logger

	curFeature *model.Feature
}

// NewEngine constructs an Engine with the geometry constants and an
// empty `global` object installed.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		vm:     otto.New(),
		arena:  newStringArena(),
		logger: logger,
	}
	mustSet(e.vm, "point", float64(GeometryPoint))
	mustSet(e.vm, "line", float64(GeometryLine))
	mustSet(e.vm, "polygon", float64(GeometryPolygon))
	e.SetGlobals(nil)
	return e
}

func mustSet(vm *otto.Otto, name string, v interface{}) {
	if err := vm.Set(name, v); err != nil {
		panic(fmt.Sprintf("expr: failed to set builtin %q: %v", name, err))
	}
}

// SetGlobals installs the scene's user-supplied `global` object, frozen,
// Passing nil installs an empty frozen object.
func (e *Engine) SetGlobals(values map[string]model.Value) {
	plain := make(map[string]interface{}, len(values))
	for k, v := range values {
		plain[k] = valueToJS(v)
	}
	encoded, err := json.Marshal(plain)
	if err != nil {
		encoded = []byte("{}")
	}
	script := fmt.Sprintf("(function(){ global = Object.freeze(%s); })()", encoded)
	if _, err := e.vm.Run(script); err != nil {
		e.logger.Error("expr: failed to install global object", "error", err)
	}
}

// SetFunctions evaluates each source string as a JS function expression
// (e.g. `function(){ ... }`) and installs it at the corresponding index. A compile failure is
// logged once and that slot is marked failed; EvalFilter/EvalStyle treat
// a failed slot as "always returns undefined" rather than aborting the
// whole batch.
func (e *Engine) SetFunctions(sources []string) {
	e.functions = make([]otto.Value, len(sources))
	e.compileOK = make([]bool, len(sources))

	for i, src := range sources {
		wrapped := fmt.Sprintf("(%s)", src)
		val, err := e.vm.Run(wrapped)
		if err != nil {
			e.logger.Error("expr: function failed to compile", "index", i, "error", err)
			e.compileOK[i] = false
			continue
		}
		if !val.IsFunction() {
			e.logger.Error("expr: source did not evaluate to a function", "index", i)
			e.compileOK[i] = false
			continue
		}
		e.functions[i] = val
		e.compileOK[i] = true
	}
}

// SetFeature points the feature proxy at a new feature. Per-feature scope
// (interned strings from the previous feature) is released.
func (e *Engine) SetFeature(f *model.Feature, ctx *Context) {
	e.releaseFeatureScope()
	e.curFeature = f

	proxy := make(map[string]interface{}, f.Props.Len()+2)
	for i := 0; i < f.Props.Len(); i++ {
		p := f.Props.At(i)
		proxy[p.Key] = valueToJS(p.Value)
	}
	mustSet(e.vm, "feature", proxy)

	if ctx != nil {
		mustSet(e.vm, "$zoom", ctx.Zoom)
		mustSet(e.vm, "$geometry", float64(ctx.Geometry))
	}
}

func (e *Engine) releaseFeatureScope() {
	if e.curFeature == nil {
		return
	}
	for i := 0; i < e.curFeature.Props.Len(); i++ {
		if s, ok := e.curFeature.Props.At(i).Value.AsString(); ok {
			e.arena.Release(s)
		}
	}
	e.curFeature = nil
}

func valueToJS(v model.Value) interface{} {
	switch v.Kind() {
	case model.ValueBool:
		b, _ := v.AsBool()
		return b
	case model.ValueNumber:
		n, _ := v.AsNumber()
		return n
	case model.ValueString:
		s, _ := v.AsString()
		return s
	default:
		return nil
	}
}

func (e *Engine) call(idx model.JsFunctionIndex) (otto.Value, bool) {
	if idx < 0 || int(idx) >= len(e.functions) || !e.compileOK[idx] {
		return otto.UndefinedValue(), false
	}
	result, err := e.functions[idx].Call(otto.UndefinedValue())
	if err != nil {
		e.logger.Debug("expr: function raised at runtime", "index", idx, "error", err)
		return otto.UndefinedValue(), false
	}
	return result, true
}

// EvalFilter calls the function at index and coerces the result to bool
// via JS truthiness. A missing/failed function evaluates to false.
func (e *Engine) EvalFilter(idx model.JsFunctionIndex) bool {
	result, ok := e.call(idx)
	if !ok {
		return false
	}
	truthy, _ := result.ToBoolean()
	return truthy
}

// EvalStyle calls the function at index and converts the result to the
// type demanded by key, writing into *out. Returns false (leaving *out
// unchanged) on a type mismatch or evaluation failure.
func (e *Engine) EvalStyle(idx model.JsFunctionIndex, key model.StyleParamKey, out *model.StyleParamValue) bool {
	result, ok := e.call(idx)
	if !ok {
		return false
	}
	return e.coerce(result, key, out)
}

func (e *Engine) coerce(v otto.Value, key model.StyleParamKey, out *model.StyleParamValue) bool {
	switch key {
	case model.StyleParamColor, model.StyleParamOutlineColor:
		return e.coerceColor(v, out)
	case model.StyleParamWidth, model.StyleParamOutlineWidth:
		return e.coerceWidth(v, out)
	case model.StyleParamExtrude:
		return e.coerceExtrude(v, out)
	case model.StyleParamOrder, model.StyleParamPriority:
		return e.coerceU32(v, out)
	case model.StyleParamVisible, model.StyleParamInteractive:
		b, err := v.ToBoolean()
		if err != nil {
			return false
		}
		*out = model.StyleParamValue{Kind: model.StyleValueBool, Bool: b}
		return true
	default: // string keys (cap/join/sprite/text/...) pass through
		if v.IsUndefined() || v.IsNull() {
			return false
		}
		s, err := v.ToString()
		if err != nil {
			return false
		}
		*out = model.StyleParamValue{Kind: model.StyleValueString, Str: e.arena.Intern(s)}
		return true
	}
}

func (e *Engine) coerceColor(v otto.Value, out *model.StyleParamValue) bool {
	raw, err := v.Export()
	if err != nil {
		return false
	}
	rgba, ok := ParseColor(raw)
	if !ok {
		return false
	}
	*out = model.StyleParamValue{Kind: model.StyleValueU32, U32: rgba}
	return true
}

func (e *Engine) coerceWidth(v otto.Value, out *model.StyleParamValue) bool {
	raw, err := v.Export()
	if err != nil {
		return false
	}
	w, ok := ParseWidth(raw)
	if !ok {
		return false
	}
	*out = model.StyleParamValue{Kind: model.StyleValueWidth, Width: w}
	return true
}

// coerceExtrude implements: true -> (NaN,NaN) meaning
// "use feature default", false -> (0,0), [lo,hi] -> as given.
func (e *Engine) coerceExtrude(v otto.Value, out *model.StyleParamValue) bool {
	if v.IsBoolean() {
		b, _ := v.ToBoolean()
		if b {
			nan := float32(math.NaN())
			*out = model.StyleParamValue{Kind: model.StyleValueVec2, Vec2: [2]float32{nan, nan}}
		} else {
			*out = model.StyleParamValue{Kind: model.StyleValueVec2, Vec2: [2]float32{0, 0}}
		}
		return true
	}
	raw, err := v.Export()
	if err != nil {
		return false
	}
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return false
	}
	lo, ok1 := arr[0].(float64)
	hi, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return false
	}
	*out = model.StyleParamValue{Kind: model.StyleValueVec2, Vec2: [2]float32{float32(lo), float32(hi)}}
	return true
}

func (e *Engine) coerceU32(v otto.Value, out *model.StyleParamValue) bool {
	n, err := v.ToFloat()
	if err != nil || math.IsNaN(n) {
		return false
	}
	if n < 0 {
		return false
	}
	*out = model.StyleParamValue{Kind: model.StyleValueU32, U32: uint32(n)}
	return true
}
