// Package external defines the narrow boundary interfaces the tile
// pipeline depends on but does not implement: where bytes come from,
// where style comes from, and what happens to a finished mesh. Kept
// deliberately small so a host application supplies thin adapters
// rather than the pipeline reaching out to concrete network/GPU code.
package external

import (
	"context"

	"github.com/tangram-go/tangramcore/internal/model"
)

// DataProvider fetches a tile's raw bytes from wherever a TileSource
// points (network tile server, mbtiles file, in-memory fixture, ...).
// Implementations must make Cancel observable promptly: Fetch should
// check ctx between any internally retried attempts.
type DataProvider interface {
	Fetch(ctx context.Context, tile model.TileID) ([]byte, error)
}

// SceneSource supplies the scene configuration (layers, styles, global
// values) a running instance styles tiles with, via Load.
type SceneSource interface {
	Load(ctx context.Context) (*model.SceneLayer, error)
}

// Renderer receives finished, styled mesh data and is responsible for
// whatever happens next (uploading to a GPU, rasterizing, serializing
// to a client connection). The pipeline never imports a rendering
// backend directly.
type Renderer interface {
	UploadTile(tile model.TileID, styleName string, vertexData, indexData []byte)
	EvictTile(tile model.TileID)
}

// Platform is the host integration point a CLI or embedding application
// supplies for concerns outside the tile pipeline. Its only method is
// RequestRender.
type Platform interface {
	RequestRender()
}
