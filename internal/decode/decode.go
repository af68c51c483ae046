// Package decode implements the binary tile decoders:
// MVT (a hand-rolled protobuf wire-format reader, deliberately not
// delegated to a canned protobuf/MVT library — this is the system's
// hardest engineering surface by design), GeoJSON, and TopoJSON.
package decode

import (
	"context"

	"github.com/tangram-go/tangramcore/internal/model"
)

// MediaType identifies which decoder a TileSource should dispatch to.
type MediaType uint8

const (
	MediaUnknown MediaType = iota
	MediaMVT
	MediaGeoJSON
	MediaTopoJSON
	// MediaRaster identifies a raster overlay source (e.g. hillshade,
	// terrain-rgb): RasterDecoder passes the bytes through unparsed.
	MediaRaster
)

// Decoder turns raw tile bytes into the uniform TileData model. ctx is
// checked between layers/features so a canceled task unwinds promptly
// without allocating geometry for layers that will never be used.
type Decoder interface {
	Decode(ctx context.Context, data []byte, tile model.TileID) (model.TileData, error)
}

// ErrCancelled is returned by a Decoder when ctx is done mid-decode.
var ErrCancelled = context.Canceled

// For returns the Decoder registered for mt, or nil if unknown.
func For(mt MediaType) Decoder {
	switch mt {
	case MediaMVT:
		return MVTDecoder{}
	case MediaGeoJSON:
		return GeoJSONDecoder{}
	case MediaTopoJSON:
		return TopoJSONDecoder{}
	case MediaRaster:
		return RasterDecoder{}
	default:
		return nil
	}
}

// RasterDecoder wraps raw raster bytes (still image-encoded; decoding
// to pixels is the renderer's job) in the uniform TileData model as a
// single synthetic GeometryRaster feature, so a raster sub-task can be
// driven through the same Load/Parse task pipeline as a vector source
// and its result attached to the parent tile's own TileData.
type RasterDecoder struct{}

func (RasterDecoder) Decode(ctx context.Context, data []byte, tile model.TileID) (model.TileData, error) {
	if err := ctx.Err(); err != nil {
		return model.TileData{}, err
	}
	return model.TileData{
		Layers: []model.Layer{{
			Name: "raster",
			Features: []model.Feature{{
				GeometryType: model.GeometryRaster,
				RasterData:   data,
			}},
		}},
	}, nil
}
