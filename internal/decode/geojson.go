package decode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/tangram-go/tangramcore/internal/model"
)

// GeoJSONDecoder decodes a FeatureCollection (or bare Feature) into the
// uniform TileData model, projecting WGS84 coordinates into the tile's
// unit square via Web Mercator.
type GeoJSONDecoder struct{}

type geoJSONDoc struct {
	Type     string          `json:"type"`
	Features json.RawMessage `json:"features"`

	// Bare-Feature fields, used when Type == "Feature".
	Geometry   json.RawMessage   `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONGeom    `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoJSONGeom struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (d GeoJSONDecoder) Decode(ctx context.Context, data []byte, tile model.TileID) (model.TileData, error) {
	var doc geoJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
	}

	var rawFeatures []json.RawMessage
	switch doc.Type {
	case "FeatureCollection":
		if err := json.Unmarshal(doc.Features, &rawFeatures); err != nil {
			return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
		}
	case "Feature":
		rawFeatures = []json.RawMessage{data}
	default:
		return model.TileData{}, model.NewError(model.ErrorKindDecode, tile,
			fmt.Errorf("geojson: unsupported top-level type %q", doc.Type))
	}

	proj := mercatorProjector(tile)
	layer := model.Layer{Name: "default"}
	for i, raw := range rawFeatures {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return model.TileData{}, err
			}
		}
		var gf geoJSONFeature
		if err := json.Unmarshal(raw, &gf); err != nil {
			return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
		}
		f, err := decodeGeoJSONFeature(gf, proj)
		if err != nil {
			return model.TileData{}, model.NewError(model.ErrorKindDecode, tile, err)
		}
		layer.Features = append(layer.Features, f)
	}

	return model.TileData{Layers: []model.Layer{layer}}, nil
}

func decodeGeoJSONFeature(gf geoJSONFeature, proj func(lon, lat float64) model.Point) (model.Feature, error) {
	var builder model.PropertiesBuilder
	for k, v := range gf.Properties {
		builder.Add(k, jsonValueToModel(v))
	}
	f := model.Feature{Props: builder.Build()}

	switch gf.Geometry.Type {
	case "Point":
		var c [2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &c); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPoints
		f.Points = []model.Point{proj(c[0], c[1])}
	case "MultiPoint":
		var cs [][2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &cs); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPoints
		for _, c := range cs {
			f.Points = append(f.Points, proj(c[0], c[1]))
		}
	case "LineString":
		var cs [][2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &cs); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryLines
		f.Lines = []model.Line{projectLine(cs, proj)}
	case "MultiLineString":
		var css [][][2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &css); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryLines
		for _, cs := range css {
			f.Lines = append(f.Lines, projectLine(cs, proj))
		}
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &rings); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPolygons
		f.Polygons = []model.Polygon{{Rings: projectRings(rings, proj)}}
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(gf.Geometry.Coordinates, &polys); err != nil {
			return f, err
		}
		f.GeometryType = model.GeometryPolygons
		for _, rings := range polys {
			f.Polygons = append(f.Polygons, model.Polygon{Rings: projectRings(rings, proj)})
		}
	default:
		return f, fmt.Errorf("geojson: unsupported geometry type %q", gf.Geometry.Type)
	}
	return f, nil
}

func projectLine(cs [][2]float64, proj func(lon, lat float64) model.Point) model.Line {
	line := make(model.Line, len(cs))
	for i, c := range cs {
		line[i] = proj(c[0], c[1])
	}
	return line
}

func projectRings(rings [][][2]float64, proj func(lon, lat float64) model.Point) []model.Line {
	out := make([]model.Line, len(rings))
	for i, r := range rings {
		out[i] = projectLine(r, proj)
	}
	return out
}

func jsonValueToModel(v any) model.Value {
	switch t := v.(type) {
	case bool:
		return model.Bool(t)
	case float64:
		return model.Number(t)
	case string:
		return model.String(t)
	default:
		return model.None()
	}
}

// mercatorProjector returns a function mapping WGS84 (lon, lat) to the
// given tile's unit-square local coordinates via spherical Web Mercator,
// the inverse of the transform decode/mvt.go's normalization performs
// relative to a tile's extent. The world-to-tile-fraction math is
// delegated to orb/maptile rather than hand-rolled, since it already
// encodes the same spherical-Mercator formula tile servers use.
func mercatorProjector(tile model.TileID) func(lon, lat float64) model.Point {
	zoom := maptile.Zoom(tile.Z)
	return func(lon, lat float64) model.Point {
		worldX, worldY := maptile.Fraction(orb.Point{lon, lat}, zoom)
		return model.Point{
			X: float32(worldX - float64(tile.X)),
			Y: float32(worldY - float64(tile.Y)),
		}
	}
}
