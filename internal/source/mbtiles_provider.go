package source

import (
	"context"
	"fmt"

	"github.com/tangram-go/tangramcore/internal/mbtiles"
	"github.com/tangram-go/tangramcore/internal/model"
)

// MBTilesProvider implements external.DataProvider by reading vector
// tile bytes out of a local MBTiles sqlite database via mbtiles.Reader.
type MBTilesProvider struct {
	reader *mbtiles.Reader
}

// OpenMBTilesProvider opens path as an MBTiles-backed DataProvider.
func OpenMBTilesProvider(path string) (*MBTilesProvider, error) {
	r, err := mbtiles.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("source: opening mbtiles %s: %w", path, err)
	}
	return &MBTilesProvider{reader: r}, nil
}

// Close releases the underlying database handle.
func (p *MBTilesProvider) Close() error { return p.reader.Close() }

// Fetch reads tile's bytes from the MBTiles database. ReadTile already
// converts the slippy-map (XYZ) TileID to MBTiles' TMS row convention,
// so the raw tile.Y is passed straight through.
func (p *MBTilesProvider) Fetch(ctx context.Context, tile model.TileID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p.reader.ReadTile(int(tile.Z), int(tile.X), int(tile.Y))
	if err != nil {
		return nil, fmt.Errorf("source: reading mbtiles tile %s: %w", tile, err)
	}
	return data, nil
}
