package model

// GeometryType identifies which of Feature's geometry slices is populated.
type GeometryType uint8

const (
	GeometryUnknown GeometryType = iota
	GeometryPoints
	GeometryLines
	GeometryPolygons
	// GeometryRaster tags a synthetic feature carrying a raster overlay's
	// still-encoded image bytes (see Feature.RasterData), produced when a
	// raster sub-task's decoded tile is attached to its parent.
	GeometryRaster
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoints:
		return "points"
	case GeometryLines:
		return "lines"
	case GeometryPolygons:
		return "polygons"
	case GeometryRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// Point is a 3-component float in tile-local unit-square coordinates
// (z is used by extrusion/height, not by 2D sources).
type Point struct {
	X, Y, Z float32
}

// Line is an ordered vertex chain.
type Line []Point

// Polygon is a ring set: Rings[0] is the outer ring, the remainder are
// holes.
type Polygon struct {
	Rings []Line
}

// Feature is a single decoded map feature. Exactly one of Points/Lines/
// Polygons is non-empty, matching GeometryType.
type Feature struct {
	GeometryType GeometryType
	Points       []Point
	Lines        []Line
	Polygons     []Polygon
	Props        Properties

	// RasterData holds a raster overlay's still-encoded image bytes when
	// GeometryType is GeometryRaster; empty otherwise.
	RasterData []byte

	// SourceID tags the feature with the TileSourceId of the source that
	// produced it, so rule matching can select by source.
	SourceID TileSourceID
}

// Validate checks the "non-empty geometry matches GeometryType, others
// empty" invariant from It is cheap enough to call from
// decoder tests and from debug builds at the builder boundary.
func (f *Feature) Validate() bool {
	switch f.GeometryType {
	case GeometryPoints:
		return len(f.Points) > 0 && len(f.Lines) == 0 && len(f.Polygons) == 0
	case GeometryLines:
		return len(f.Points) == 0 && len(f.Lines) > 0 && len(f.Polygons) == 0
	case GeometryPolygons:
		return len(f.Points) == 0 && len(f.Lines) == 0 && len(f.Polygons) > 0
	case GeometryRaster:
		return len(f.RasterData) > 0 && len(f.Points) == 0 && len(f.Lines) == 0 && len(f.Polygons) == 0
	default:
		return false
	}
}

// Layer is a named collection of features, as decoded from one MVT/GeoJSON/
// TopoJSON layer or object.
type Layer struct {
	Name     string
	Features []Feature
}

// TileData is the uniform in-memory tile model every decoder produces.
type TileData struct {
	Layers []Layer
}

// LayerByName returns the first layer with the given name, or nil.
func (t *TileData) LayerByName(name string) *Layer {
	for i := range t.Layers {
		if t.Layers[i].Name == name {
			return &t.Layers[i]
		}
	}
	return nil
}
