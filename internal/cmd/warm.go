package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tangram-go/tangramcore/internal/mbtiles"
	"github.com/tangram-go/tangramcore/internal/source"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Fetch a range of tiles from an HTTP source into a local MBTiles cache",
	Long: `warm pulls raw tile bytes from an HTTP template over a zoom/bbox range and
writes them, undecoded, into an MBTiles database so a later fetch/serve run
can point --mbtiles at the result instead of hitting the network again.`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().String("url", "", "HTTP tile URL template containing {z}, {x}, {y}")
	warmCmd.Flags().Float64("rate", 4, "Max requests/sec against --url")
	warmCmd.Flags().IntP("workers", "w", 4, "Number of concurrent fetch workers")

	warmCmd.Flags().IntP("zoom", "z", 13, "Zoom level")
	warmCmd.Flags().String("bbox", "", "Bounding box in tile-space: minX,minY,maxX,maxY at --zoom (defaults to a single tile at --x/--y)")
	warmCmd.Flags().IntP("x", "x", 0, "X tile coordinate (single-tile mode)")
	warmCmd.Flags().IntP("y", "y", 0, "Y tile coordinate (single-tile mode)")

	warmCmd.Flags().String("out", "./cache.mbtiles", "Output MBTiles database path")
	warmCmd.Flags().String("name", "tangramctl-warm", "Tileset name recorded in the MBTiles metadata table")

	mustBind := []struct{ key, flag string }{
		{"warm.url", "url"}, {"warm.rate", "rate"}, {"warm.workers", "workers"},
		{"warm.zoom", "zoom"}, {"warm.bbox", "bbox"}, {"warm.x", "x"}, {"warm.y", "y"},
		{"warm.out", "out"}, {"warm.name", "name"},
	}
	for _, bf := range mustBind {
		if err := viper.BindPFlag(bf.key, warmCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runWarm(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	urlTemplate := viper.GetString("warm.url")
	if urlTemplate == "" {
		return fmt.Errorf("--url is required")
	}
	rate := viper.GetFloat64("warm.rate")
	workers := viper.GetInt("warm.workers")
	zoom := viper.GetInt("warm.zoom")
	bbox := viper.GetString("warm.bbox")
	x := viper.GetInt("warm.x")
	y := viper.GetInt("warm.y")
	outPath := viper.GetString("warm.out")
	name := viper.GetString("warm.name")

	tiles, err := tileListFor(uint32(zoom), x, y, bbox)
	if err != nil {
		return err
	}

	w, err := mbtiles.New(outPath, mbtiles.Metadata{
		Name:    name,
		Format:  "pbf",
		Type:    "baselayer",
		MinZoom: zoom,
		MaxZoom: zoom,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", outPath, err)
	}
	defer w.Close()

	provider := source.NewHTTPProvider(urlTemplate, rate)

	logger.Info("warming mbtiles cache", "count", len(tiles), "out", outPath, "workers", workers)

	ctx := context.Background()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			data, err := provider.Fetch(gCtx, tile)
			if err != nil {
				logger.Error("warm fetch failed", "tile", tile, "error", err)
				return nil // one tile's failure shouldn't abort the whole run
			}
			if err := w.WriteTile(int(tile.Z), int(tile.X), int(tile.Y), data); err != nil {
				return fmt.Errorf("writing tile %s: %w", tile, err)
			}
			logger.Info("tile cached", "tile", tile, "bytes", len(data))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return w.Flush()
}
