package geom

import "github.com/tangram-go/tangramcore/internal/model"

// BuildRasterQuad returns the two-triangle mesh spanning a tile's full
// [0,1]x[0,1] extent, used to draw a raster overlay feature's decoded
// image as a textured quad. The vertex U coordinate there carries the
// horizontal texture coordinate here (0 at the left edge, 1 at the
// right) since a raster quad has no "distance along a line" to encode.
func BuildRasterQuad() Mesh {
	var m Mesh
	tl := addVertex(&m, model.Point{X: 0, Y: 0}, [2]float32{0, 0}, 0)
	tr := addVertex(&m, model.Point{X: 1, Y: 0}, [2]float32{0, 0}, 1)
	br := addVertex(&m, model.Point{X: 1, Y: 1}, [2]float32{0, 0}, 1)
	bl := addVertex(&m, model.Point{X: 0, Y: 1}, [2]float32{0, 0}, 0)
	addTri(&m, tl, br, tr)
	addTri(&m, tl, bl, br)
	return m
}
