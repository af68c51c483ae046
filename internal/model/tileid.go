package model

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// TileID identifies a tile by (x, y, z), with an optional StyleZoom used
// for over-zoom: a tile fetched at a coarser z than the view wants is
// reused with StyleZoom carrying the zoom it should be styled/rendered at.
// Ordering is lexicographic by (Z, X, Y), with an explicit comparison
// instead of relying on struct-field declaration order.
type TileID struct {
	X, Y, Z   uint32
	StyleZoom int32 // equal to Z when there is no over-zoom
}

// NewTileID builds a TileID with StyleZoom defaulted to Z (no over-zoom).
func NewTileID(z, x, y uint32) TileID {
	return TileID{X: x, Y: y, Z: z, StyleZoom: int32(z)}
}

// String renders "z{Z}_x{X}_y{Y}", optionally suffixed with the style
// zoom when it differs from Z (over-zoom case).
func (t TileID) String() string {
	if int32(t.Z) != t.StyleZoom {
		return fmt.Sprintf("z%d_x%d_y%d@s%d", t.Z, t.X, t.Y, t.StyleZoom)
	}
	return fmt.Sprintf("z%d_x%d_y%d", t.Z, t.X, t.Y)
}

// LogValue lets slog print a TileID compactly.
func (t TileID) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

// Less implements the (Z, X, Y) lexicographic order.
func (t TileID) Less(o TileID) bool {
	if t.Z != o.Z {
		return t.Z < o.Z
	}
	if t.X != o.X {
		return t.X < o.X
	}
	return t.Y < o.Y
}

// Equal compares identity (X, Y, Z); StyleZoom does not affect identity,
// since two requests for the same tile at different over-zoom targets
// still name the same underlying data.
func (t TileID) Equal(o TileID) bool {
	return t.X == o.X && t.Y == o.Y && t.Z == o.Z
}

// Parent returns the tile one zoom level coarser that contains t, or
// (TileID{}, false) if t is already at zoom 0.
func (t TileID) Parent() (TileID, bool) {
	if t.Z == 0 {
		return TileID{}, false
	}
	return NewTileID(t.Z-1, t.X/2, t.Y/2), true
}

// AncestorAt walks Parent() up to the given zoom. Returns t unchanged if
// z >= t.Z.
func (t TileID) AncestorAt(z uint32) TileID {
	cur := t
	for cur.Z > z {
		p, ok := cur.Parent()
		if !ok {
			break
		}
		cur = p
	}
	return cur
}

// ChildQuadrant identifies one of the four child tiles of a parent.
type ChildQuadrant uint8

const (
	ChildTopLeft ChildQuadrant = iota
	ChildTopRight
	ChildBottomLeft
	ChildBottomRight
)

// Child returns the child tile at the given quadrant, one zoom level
// finer than t.
func (t TileID) Child(q ChildQuadrant) TileID {
	x, y := t.X*2, t.Y*2
	switch q {
	case ChildTopRight:
		x++
	case ChildBottomLeft:
		y++
	case ChildBottomRight:
		x++
		y++
	}
	return NewTileID(t.Z+1, x, y)
}

// SubRect describes the sub-rectangle of a coarser ancestor tile that a
// finer, over-zoomed request reuses — the "sub-rectangle offset carried
// separately"
type SubRect struct {
	X, Y float64 // offset of this tile's top-left (NW) corner within the ancestor, in [0,1)
	Size float64 // this tile's width/height as a fraction of the ancestor's, in (0,1]
}

// SubRectFor computes the SubRect of descendant relative to ancestor.
// ancestor must be a true ancestor of descendant (ancestor.Z <= descendant.Z
// and descendant.AncestorAt(ancestor.Z) == ancestor); otherwise the result
// is meaningless.
func SubRectFor(ancestor, descendant TileID) SubRect {
	if descendant.Z <= ancestor.Z {
		return SubRect{Size: 1}
	}
	levels := descendant.Z - ancestor.Z
	scale := uint32(1) << levels
	size := 1.0 / float64(scale)
	// Position of descendant's origin within the ancestor's span at
	// descendant's zoom.
	ancestorXAtChildZoom := ancestor.X * scale
	ancestorYAtChildZoom := ancestor.Y * scale
	return SubRect{
		X:    float64(descendant.X-ancestorXAtChildZoom) * size,
		Y:    float64(descendant.Y-ancestorYAtChildZoom) * size,
		Size: size,
	}
}

// TileSourceID is a stable integer assigned at source construction time,
// used to tag features with their origin.
type TileSourceID int64

var tileSourceCounter atomic.Int64

// NextTileSourceID returns the next value from the process-wide monotonic
// counter. Called exactly once per TileSource construction.
func NextTileSourceID() TileSourceID {
	return TileSourceID(tileSourceCounter.Add(1))
}
