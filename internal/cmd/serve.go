package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tangram-go/tangramcore/internal/external"
	"github.com/tangram-go/tangramcore/internal/manager"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve built mesh buffers over HTTP for interactive debugging",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("url", "", "HTTP tile URL template containing {z}, {x}, {y}")
	serveCmd.Flags().String("mbtiles", "", "Path to an MBTiles file (alternative to --url)")
	serveCmd.Flags().String("media", "mvt", "Tile media type: mvt, geojson, or topojson")
	serveCmd.Flags().Float64("rate", 4, "Max requests/sec against --url")
	serveCmd.Flags().Int("workers", 4, "Number of build-pipeline worker goroutines")

	mustBind := []struct{ key, flag string }{
		{"serve.addr", "addr"}, {"serve.url", "url"}, {"serve.mbtiles", "mbtiles"},
		{"serve.media", "media"}, {"serve.rate", "rate"}, {"serve.workers", "workers"},
	}
	for _, bf := range mustBind {
		if err := viper.BindPFlag(bf.key, serveCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// httpRenderer buffers the most recently uploaded mesh for each tile so
// the HTTP handler can serve it once the tile manager's worker pool
// finishes building it.
type httpRenderer struct {
	mu      chanMutex
	buffers map[model.TileID]tileBuffer
}

type tileBuffer struct {
	styleName           string
	vertexData, indexData []byte
}

// chanMutex is a trivial channel-based mutex; used here instead of
// sync.Mutex purely so Read/Write don't need separate lock/unlock call
// sites sprinkled through the handler below.
type chanMutex chan struct{}

func newChanMutex() chanMutex { c := make(chanMutex, 1); c <- struct{}{}; return c }
func (c chanMutex) Lock()     { <-c }
func (c chanMutex) Unlock()   { c <- struct{}{} }

func newHTTPRenderer() *httpRenderer {
	return &httpRenderer{mu: newChanMutex(), buffers: make(map[model.TileID]tileBuffer)}
}

func (r *httpRenderer) UploadTile(tile model.TileID, styleName string, vertexData, indexData []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers[tile] = tileBuffer{styleName: styleName, vertexData: vertexData, indexData: indexData}
}

func (r *httpRenderer) EvictTile(tile model.TileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, tile)
}

func (r *httpRenderer) get(tile model.TileID) (tileBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[tile]
	return b, ok
}

var _ external.Renderer = (*httpRenderer)(nil)

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	urlTemplate := viper.GetString("serve.url")
	mbtilesPath := viper.GetString("serve.mbtiles")
	mediaName := viper.GetString("serve.media")
	rate := viper.GetFloat64("serve.rate")
	workers := viper.GetInt("serve.workers")
	scenePath := viper.GetString("scene")

	media, err := mediaFromName(mediaName)
	if err != nil {
		return err
	}

	var rendererSrc *source.Source
	switch {
	case mbtilesPath != "":
		p, err := source.OpenMBTilesProvider(mbtilesPath)
		if err != nil {
			return err
		}
		rendererSrc = source.New(source.Config{Media: media, Provider: p})
	case urlTemplate != "":
		p := source.NewHTTPProvider(urlTemplate, rate)
		rendererSrc = source.New(source.Config{Media: media, Provider: p})
	default:
		return fmt.Errorf("one of --url or --mbtiles is required")
	}

	scene := loadSceneOrNil(scenePath)
	builder := manager.NewDefaultBuilder(scene)
	renderer := newHTTPRenderer()

	mgr := manager.New(rendererSrc, builder, renderer, workers, logger)
	defer mgr.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		v, err := parseViewQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mgr.Update(v)
		mgr.DrainCompletions()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"wanted": len(manager.VisibleSet(v))})
	})

	mux.HandleFunc("/tile/", func(w http.ResponseWriter, r *http.Request) {
		tile, err := parseTilePath(strings.TrimPrefix(r.URL.Path, "/tile/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mgr.DrainCompletions()
		buf, ok := renderer.get(tile)
		if !ok {
			http.Error(w, "tile not ready", http.StatusNotFound)
			return
		}
		w.Header().Set("X-Style-Name", buf.styleName)
		w.Header().Set("X-Vertex-Bytes", strconv.Itoa(len(buf.vertexData)))
		w.Header().Set("X-Index-Bytes", strconv.Itoa(len(buf.indexData)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(buf.vertexData)
		w.Write(buf.indexData)
	})

	logger.Info("serving", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func parseViewQuery(r *http.Request) (manager.View, error) {
	q := r.URL.Query()
	zoom, err := strconv.Atoi(q.Get("zoom"))
	if err != nil {
		return manager.View{}, fmt.Errorf("invalid zoom: %w", err)
	}
	cx, _ := strconv.ParseFloat(q.Get("x"), 64)
	cy, _ := strconv.ParseFloat(q.Get("y"), 64)
	hw, _ := strconv.ParseFloat(q.Get("halfWidth"), 64)
	hh, _ := strconv.ParseFloat(q.Get("halfHeight"), 64)
	if hw == 0 {
		hw = 1
	}
	if hh == 0 {
		hh = 1
	}
	return manager.View{Zoom: uint32(zoom), CenterX: cx, CenterY: cy, HalfWidth: hw, HalfHeight: hh}, nil
}

func parseTilePath(path string) (model.TileID, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return model.TileID{}, fmt.Errorf("expected /tile/{z}/{x}/{y}, got %q", path)
	}
	z, err1 := strconv.Atoi(parts[0])
	x, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return model.TileID{}, fmt.Errorf("non-numeric tile coordinate in %q", path)
	}
	return model.NewTileID(uint32(z), uint32(x), uint32(y)), nil
}
