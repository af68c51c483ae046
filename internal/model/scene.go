package model

// StyleParamKey is the closed enum of style parameter keys a draw rule can
// set. It is deliberately small and dense so DrawRule can index parameter
// slots by key instead of hashing.
type StyleParamKey uint8

const (
	StyleParamNone StyleParamKey = iota
	StyleParamColor
	StyleParamWidth
	StyleParamCap
	StyleParamJoin
	StyleParamOrder
	StyleParamPriority
	StyleParamExtrude
	StyleParamHeight
	StyleParamMinHeight
	StyleParamVisible
	StyleParamInteractive
	StyleParamOutlineColor
	StyleParamOutlineWidth
	StyleParamOutlineCap
	StyleParamOutlineJoin
	StyleParamSprite
	StyleParamText
	StyleParamFontSize
	StyleParamTileOffset

	styleParamKeyCount // sentinel: number of slots a DrawRule array needs
)

// StyleParamKeyCount is the number of StyleParamKey values, i.e. the
// fixed width of a DrawRule's per-key arrays.
const StyleParamKeyCount = int(styleParamKeyCount)

var styleParamKeyNames = map[string]StyleParamKey{
	"color":          StyleParamColor,
	"width":          StyleParamWidth,
	"cap":            StyleParamCap,
	"join":           StyleParamJoin,
	"order":          StyleParamOrder,
	"priority":       StyleParamPriority,
	"extrude":        StyleParamExtrude,
	"height":         StyleParamHeight,
	"min_height":     StyleParamMinHeight,
	"visible":        StyleParamVisible,
	"interactive":    StyleParamInteractive,
	"outline:color":  StyleParamOutlineColor,
	"outline:width":  StyleParamOutlineWidth,
	"outline:cap":    StyleParamOutlineCap,
	"outline:join":   StyleParamOutlineJoin,
	"sprite":         StyleParamSprite,
	"text":           StyleParamText,
	"font:size":      StyleParamFontSize,
	"tile:offset":    StyleParamTileOffset,
}

// ParseStyleParamKey resolves a scene-file key name to its enum value.
// Unknown keys return (StyleParamNone, false); callers should treat this
// as a warning and drop the parameter.
func ParseStyleParamKey(name string) (StyleParamKey, bool) {
	k, ok := styleParamKeyNames[name]
	return k, ok
}

// StyleParamValueKind discriminates StyleParamValue's tagged union.
type StyleParamValueKind uint8

const (
	StyleValueNone StyleParamValueKind = iota
	StyleValueBool
	StyleValueF32
	StyleValueU32
	StyleValueString
	StyleValueVec2
	StyleValueWidth
)

// StyleParamValue is the resolved value of a style parameter: a tagged
// union over none/bool/f32/u32/string/vec2/width.
type StyleParamValue struct {
	Kind  StyleParamValueKind
	Bool  bool
	F32   float32
	U32   uint32
	Str   string
	Vec2  [2]float32
	Width WidthValue
}

// WidthValue is a width expressed either in pixels or in meters; the
// geometry builder resolves meters to pixels using the current zoom.
type WidthValue struct {
	Value   float32
	IsMeter bool
}

// JsFunctionIndex identifies a compiled function installed by
// expr.Engine.SetFunctions. A negative value means "no function".
type JsFunctionIndex int32

const NoFunction JsFunctionIndex = -1

// Stops is a piecewise-linear interpolation function indexed by zoom,
// used for zoom-dependent style values.
type Stops struct {
	Zooms  []float64
	Values []StyleParamValue
}

// Eval interpolates the stops at the given zoom. Values outside the range
// clamp to the nearest endpoint. F32, U32, Width and Vec2 stop values
// interpolate linearly; other kinds take the value of the nearer stop.
func (s Stops) Eval(zoom float64) StyleParamValue {
	n := len(s.Zooms)
	if n == 0 {
		return StyleParamValue{}
	}
	if zoom <= s.Zooms[0] {
		return s.Values[0]
	}
	if zoom >= s.Zooms[n-1] {
		return s.Values[n-1]
	}
	for i := 1; i < n; i++ {
		if zoom > s.Zooms[i] {
			continue
		}
		lo, hi := s.Values[i-1], s.Values[i]
		t := (zoom - s.Zooms[i-1]) / (s.Zooms[i] - s.Zooms[i-1])
		return interpolateStyleValue(lo, hi, t)
	}
	return s.Values[n-1]
}

func interpolateStyleValue(lo, hi StyleParamValue, t float64) StyleParamValue {
	switch lo.Kind {
	case StyleValueF32:
		return StyleParamValue{Kind: StyleValueF32, F32: lo.F32 + float32(t)*(hi.F32-lo.F32)}
	case StyleValueU32:
		return StyleParamValue{Kind: StyleValueU32, U32: uint32(float64(lo.U32) + t*float64(int64(hi.U32)-int64(lo.U32)))}
	case StyleValueWidth:
		return StyleParamValue{Kind: StyleValueWidth, Width: WidthValue{
			Value:   lo.Width.Value + float32(t)*(hi.Width.Value-lo.Width.Value),
			IsMeter: lo.Width.IsMeter,
		}}
	case StyleValueVec2:
		return StyleParamValue{Kind: StyleValueVec2, Vec2: [2]float32{
			lo.Vec2[0] + float32(t)*(hi.Vec2[0]-lo.Vec2[0]),
			lo.Vec2[1] + float32(t)*(hi.Vec2[1]-lo.Vec2[1]),
		}}
	default:
		if t < 0.5 {
			return lo
		}
		return hi
	}
}

// StyleParam is a single keyed value attached to a draw rule, as declared
// in the scene file, before merge/evaluation. Required marks a parameter
// whose evaluated value must not be none; a none result invalidates the
// whole rule rather than leaving the slot unset.
type StyleParam struct {
	Key      StyleParamKey
	Value    StyleParamValue
	Stops    *Stops
	Function JsFunctionIndex
	Required bool
}

// DrawRuleData is a draw rule as declared on a SceneLayer, pre-merge.
type DrawRuleData struct {
	StyleName  string
	ID         int
	Parameters []StyleParam // sorted by Key
}

// SceneLayer is one node of the scene's layer tree.
type SceneLayer struct {
	Name      string
	Filter    Filter
	Rules     []DrawRuleData // pre-sorted by StyleName
	Sublayers []SceneLayer
	Enabled   bool
	Exclusive bool
}

// Filter is implemented by expr.Filter; model only needs the interface so
// SceneLayer doesn't import the expr package (which in turn depends on
// model), avoiding an import cycle. expr.Filter satisfies this interface.
type Filter interface {
	// Evaluate is called by the rule matcher with an opaque context value
	// (an *expr.Context) that Filter implementations type-assert.
	Evaluate(ctx any, props *Properties) bool
}

// DrawRuleSlot is one merged parameter slot in a DrawRule, dense-indexed
// by StyleParamKey.
type DrawRuleSlot struct {
	Active          bool
	Param           StyleParamValue
	Stops           *Stops
	Function        JsFunctionIndex
	SourceLayerName string
	Depth           int
	Required        bool
}

// DrawRule is the merged, per-feature accumulation of style parameters
// for one (ruleID, styleName) pair: a dense array indexed by
// StyleParamKey.
type DrawRule struct {
	StyleName string
	ID        int
	Slots     [StyleParamKeyCount]DrawRuleSlot
}

// NewDrawRule returns a zero-valued DrawRule for the given rule/style.
func NewDrawRule(id int, styleName string) DrawRule {
	return DrawRule{StyleName: styleName, ID: id}
}

// IsVisible reports whether the merged rule's `visible` slot, if set, is
// anything but an explicit false.
func (r *DrawRule) IsVisible() bool {
	slot := r.Slots[StyleParamVisible]
	if !slot.Active {
		return true
	}
	return slot.Param.Kind != StyleValueBool || slot.Param.Bool
}
