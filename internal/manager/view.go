// Package manager implements the tile manager control loop: the single
// render-thread owner of the visible tile set, proxy accounting, and
// task lifecycle.
package manager

import (
	"math"

	"github.com/tangram-go/tangramcore/internal/model"
)

// View describes the camera state the control loop reconciles the tile
// set against each frame: a center in tile-space units at the view's
// integer zoom and a viewport half-extent. There is no zoom bias: the
// wanted set is always computed at Zoom.
type View struct {
	Zoom       uint32
	CenterX    float64 // in tile-space units at Zoom (i.e. tile-column fraction)
	CenterY    float64
	HalfWidth  float64 // viewport half-extent, in tiles, at Zoom
	HalfHeight float64
}

// VisibleSet computes the set of tile ids the view wants: every tile
// whose (x, y) cell at View.Zoom touches the viewport rectangle around
// the center, with the rectangle's edges rounded outward to whole tiles.
// No further padding is added.
func VisibleSet(v View) []model.TileID {
	maxIndex := uint32(1) << v.Zoom

	minX := int(math.Floor(v.CenterX - v.HalfWidth))
	maxX := int(math.Ceil(v.CenterX + v.HalfWidth))
	minY := int(math.Floor(v.CenterY - v.HalfHeight))
	maxY := int(math.Ceil(v.CenterY + v.HalfHeight))

	var out []model.TileID
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			if x < 0 || y < 0 || uint32(x) >= maxIndex || uint32(y) >= maxIndex {
				continue
			}
			out = append(out, model.NewTileID(v.Zoom, uint32(x), uint32(y)))
		}
	}
	return out
}

// distanceToCenter is the metric drives enqueue
// priority from: negated so nearer tiles (smaller distance) get a
// larger, higher-priority value.
func distanceToCenter(v View, id model.TileID) float64 {
	dx := float64(id.X) + 0.5 - v.CenterX
	dy := float64(id.Y) + 0.5 - v.CenterY
	return math.Hypot(dx, dy)
}

func priorityFor(v View, id model.TileID) float64 {
	return -distanceToCenter(v, id)
}
