package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tangram-go/tangramcore/internal/decode"
	"github.com/tangram-go/tangramcore/internal/manager"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/scenefile"
	"github.com/tangram-go/tangramcore/internal/source"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch, decode, and style tiles",
	Long:  `Fetch vector tiles from an HTTP template or MBTiles file, run them through a scene, and write mesh buffers to disk.`,
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntP("zoom", "z", 13, "Zoom level (single-tile mode)")
	fetchCmd.Flags().IntP("x", "x", 0, "X tile coordinate (single-tile mode)")
	fetchCmd.Flags().IntP("y", "y", 0, "Y tile coordinate (single-tile mode)")

	fetchCmd.Flags().String("bbox", "", "Bounding box in tile-space: minX,minY,maxX,maxY at --zoom (batch mode)")
	fetchCmd.Flags().IntP("workers", "w", 4, "Number of concurrent fetch/build workers")

	fetchCmd.Flags().String("url", "", "HTTP tile URL template containing {z}, {x}, {y}")
	fetchCmd.Flags().String("mbtiles", "", "Path to an MBTiles file (alternative to --url)")
	fetchCmd.Flags().String("media", "mvt", "Tile media type: mvt, geojson, or topojson")
	fetchCmd.Flags().Float64("rate", 4, "Max requests/sec against --url")

	fetchCmd.Flags().String("output-dir", "./out", "Output directory for mesh buffers")

	mustBind := []struct{ key, flag string }{
		{"fetch.zoom", "zoom"}, {"fetch.x", "x"}, {"fetch.y", "y"},
		{"fetch.bbox", "bbox"}, {"fetch.workers", "workers"},
		{"fetch.url", "url"}, {"fetch.mbtiles", "mbtiles"},
		{"fetch.media", "media"}, {"fetch.rate", "rate"},
		{"fetch.output_dir", "output-dir"},
	}
	for _, bf := range mustBind {
		if err := viper.BindPFlag(bf.key, fetchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func mediaFromName(name string) (decode.MediaType, error) {
	switch strings.ToLower(name) {
	case "mvt":
		return decode.MediaMVT, nil
	case "geojson":
		return decode.MediaGeoJSON, nil
	case "topojson":
		return decode.MediaTopoJSON, nil
	default:
		return decode.MediaUnknown, fmt.Errorf("unsupported media type %q", name)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	zoom := viper.GetInt("fetch.zoom")
	x := viper.GetInt("fetch.x")
	y := viper.GetInt("fetch.y")
	bbox := viper.GetString("fetch.bbox")
	workers := viper.GetInt("fetch.workers")
	urlTemplate := viper.GetString("fetch.url")
	mbtilesPath := viper.GetString("fetch.mbtiles")
	mediaName := viper.GetString("fetch.media")
	rate := viper.GetFloat64("fetch.rate")
	outputDir := viper.GetString("fetch.output_dir")
	scenePath := viper.GetString("scene")

	media, err := mediaFromName(mediaName)
	if err != nil {
		return err
	}

	var provider interface {
		Fetch(ctx context.Context, tile model.TileID) ([]byte, error)
	}
	switch {
	case mbtilesPath != "":
		p, err := source.OpenMBTilesProvider(mbtilesPath)
		if err != nil {
			return err
		}
		defer p.Close()
		provider = p
	case urlTemplate != "":
		provider = source.NewHTTPProvider(urlTemplate, rate)
	default:
		return fmt.Errorf("one of --url or --mbtiles is required")
	}

	scene := loadSceneOrNil(scenePath)
	builder := manager.NewDefaultBuilder(scene)
	renderer, err := newFolderRenderer(outputDir)
	if err != nil {
		return err
	}

	src := source.New(source.Config{Media: media, Provider: provider})

	tiles, err := tileListFor(uint32(zoom), x, y, bbox)
	if err != nil {
		return err
	}

	logger.Info("fetching tiles", "count", len(tiles), "media", mediaName, "workers", workers, "output_dir", outputDir)

	ctx := context.Background()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			t := src.CreateTask(tile)
			raw, err := src.Load(gCtx, t)
			if err != nil {
				logger.Error("fetch failed", "tile", tile, "error", err)
				return nil // keep going; one tile's failure shouldn't abort the batch
			}
			td, err := src.Parse(gCtx, t, raw)
			if err != nil {
				logger.Error("decode failed", "tile", tile, "error", err)
				return nil
			}
			styleName, vtx, idx, err := builder.Build(gCtx, t, td)
			if err != nil {
				logger.Error("build failed", "tile", tile, "error", err)
				return nil
			}
			renderer.UploadTile(tile, styleName, vtx, idx)
			logger.Info("tile done", "tile", tile, "vertex_bytes", len(vtx), "index_bytes", len(idx))
			return nil
		})
	}

	return g.Wait()
}

// loadSceneOrNil loads and compiles a scene document, logging and
// continuing without styling (rule matching becomes a no-op) if the
// file cannot be read — fetch is primarily a decode/fetch debugging
// tool, so a missing scene should not be fatal.
func loadSceneOrNil(path string) *model.SceneLayer {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("no scene file loaded; tiles will be decoded but not styled", "path", path, "error", err)
		return nil
	}
	doc, err := scenefile.Parse(data)
	if err != nil {
		logger.Warn("failed to parse scene file; tiles will be decoded but not styled", "path", path, "error", err)
		return nil
	}
	return doc.ToSceneLayer()
}

func tileListFor(zoom uint32, x, y int, bbox string) ([]model.TileID, error) {
	if bbox == "" {
		return []model.TileID{model.NewTileID(zoom, uint32(x), uint32(y))}, nil
	}
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("--bbox expects 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --bbox value at position %d: %w", i, err)
		}
		vals[i] = n
	}
	minX, minY, maxX, maxY := vals[0], vals[1], vals[2], vals[3]
	var out []model.TileID
	for tx := minX; tx <= maxX; tx++ {
		for ty := minY; ty <= maxY; ty++ {
			out = append(out, model.NewTileID(zoom, uint32(tx), uint32(ty)))
		}
	}
	return out, nil
}
