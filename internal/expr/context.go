package expr

import "github.com/tangram-go/tangramcore/internal/model"

// GeometryKind mirrors the JS-visible geometry constants point=1, line=2,
// polygon=3.
type GeometryKind int

const (
	GeometryPoint   GeometryKind = 1
	GeometryLine    GeometryKind = 2
	GeometryPolygon GeometryKind = 3
)

func GeometryKindOf(g model.GeometryType) GeometryKind {
	switch g {
	case model.GeometryPoints:
		return GeometryPoint
	case model.GeometryLines:
		return GeometryLine
	case model.GeometryPolygons:
		return GeometryPolygon
	default:
		return 0
	}
}

// Context is the style/filter context threaded through one feature's
// evaluation: the $zoom/$geometry keywords, the pixel-area scale factor
// used by Range filters with hasPixelArea, and the worker's thread-local
// Engine for Function filters and style functions.
type Context struct {
	Zoom               float64
	Geometry           GeometryKind
	MetersPerPixelArea float64
	Engine             *Engine
}

// Keyword resolves a dollar-prefixed name to its current value. Unknown
// keywords return (None, false).
func (c *Context) Keyword(key string) (model.Value, bool) {
	switch key {
	case "$zoom":
		return model.Number(c.Zoom), true
	case "$geometry":
		return model.Number(float64(c.Geometry)), true
	default:
		return model.None(), false
	}
}
