package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tangram-go/tangramcore/internal/model"
)

// folderRenderer implements external.Renderer by writing each tile's
// vertex/index buffers to a pair of flat files, using the same
// z{Z}_x{X}_y{Y} naming convention a folder-based tile cache would use
// for image output, just carrying raw mesh bytes instead of PNGs.
type folderRenderer struct {
	dir string
}

func newFolderRenderer(dir string) (*folderRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	return &folderRenderer{dir: dir}, nil
}

func (r *folderRenderer) UploadTile(tile model.TileID, styleName string, vertexData, indexData []byte) {
	base := filepath.Join(r.dir, fmt.Sprintf("%s.%s", tile.String(), styleName))
	if err := os.WriteFile(base+".vtx", vertexData, 0o644); err != nil {
		logger.Warn("failed to write vertex buffer", "tile", tile, "error", err)
	}
	if err := os.WriteFile(base+".idx", indexData, 0o644); err != nil {
		logger.Warn("failed to write index buffer", "tile", tile, "error", err)
	}
}

func (r *folderRenderer) EvictTile(tile model.TileID) {
	base := filepath.Join(r.dir, tile.String())
	matches, _ := filepath.Glob(base + ".*.vtx")
	for _, m := range matches {
		_ = os.Remove(m)
		_ = os.Remove(m[:len(m)-len(".vtx")] + ".idx")
	}
}
