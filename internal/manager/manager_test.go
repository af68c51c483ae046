package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tangram-go/tangramcore/internal/decode"
	"github.com/tangram-go/tangramcore/internal/expr"
	"github.com/tangram-go/tangramcore/internal/model"
	"github.com/tangram-go/tangramcore/internal/source"
)

type fakeDataProvider struct {
	data []byte
}

func (p *fakeDataProvider) Fetch(ctx context.Context, tile model.TileID) ([]byte, error) {
	return p.data, nil
}

// gatedProvider blocks Fetch until release is closed, letting a test
// observe the manager's state while a raster sub-task is still in flight.
type gatedProvider struct {
	data    []byte
	err     error
	release chan struct{}
}

func (p *gatedProvider) Fetch(ctx context.Context, tile model.TileID) ([]byte, error) {
	<-p.release
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}

type recordingRenderer struct {
	mu      sync.Mutex
	uploads []model.TileID
	evicts  []model.TileID
}

func (r *recordingRenderer) UploadTile(tile model.TileID, styleName string, vertexData, indexData []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, tile)
}

func (r *recordingRenderer) EvictTile(tile model.TileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicts = append(r.evicts, tile)
}

func (r *recordingRenderer) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}

func roadsGeoJSON() []byte {
	return []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {"kind": "road"},
			 "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}}
		]
	}`)
}

func simpleScene() *model.SceneLayer {
	return &model.SceneLayer{
		Name:    "roads",
		Enabled: true,
		Filter:  expr.NopFilter(),
		Rules: []model.DrawRuleData{
			{
				StyleName: "lines",
				ID:        1,
				Parameters: []model.StyleParam{
					{Key: model.StyleParamWidth, Value: model.StyleParamValue{
						Kind: model.StyleValueWidth, Width: model.WidthValue{Value: 2},
					}},
				},
			},
		},
	}
}

func TestTileManagerUpdateCreatesAndCompletesTask(t *testing.T) {
	provider := &fakeDataProvider{data: roadsGeoJSON()}
	src := source.New(source.Config{Media: decode.MediaGeoJSON, Provider: provider})
	renderer := &recordingRenderer{}
	builder := NewDefaultBuilder(simpleScene())

	m := New(src, builder, renderer, 1, nil)
	defer m.Close()

	view := View{Zoom: 2, CenterX: 1.5, CenterY: 1.5, HalfWidth: 0.5, HalfHeight: 0.5}
	m.Update(view)

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for renderer.uploadCount() == 0 {
		select {
		case <-ticker.C:
			m.DrainCompletions()
		case <-deadline:
			t.Fatal("timed out waiting for a tile upload")
		}
	}
}

func TestTileManagerHoldsTileUntilRasterSubTaskCompletes(t *testing.T) {
	provider := &fakeDataProvider{data: roadsGeoJSON()}
	rasterGate := &gatedProvider{data: []byte("raster-bytes"), release: make(chan struct{})}
	src := source.New(source.Config{
		Media:    decode.MediaGeoJSON,
		Provider: provider,
		RasterSubs: []source.RasterSource{
			{MaxZoom: 20, Provider: rasterGate, Media: decode.MediaRaster},
		},
	})
	renderer := &recordingRenderer{}
	builder := NewDefaultBuilder(simpleScene())

	m := New(src, builder, renderer, 2, nil)
	defer m.Close()

	view := View{Zoom: 2, CenterX: 1.5, CenterY: 1.5, HalfWidth: 0.5, HalfHeight: 0.5}
	m.Update(view)

	// Give the primary task ample time to reach Parsed and stall there.
	stallDeadline := time.After(500 * time.Millisecond)
	stallTicker := time.NewTicker(5 * time.Millisecond)
drain:
	for {
		select {
		case <-stallTicker.C:
			m.DrainCompletions()
		case <-stallDeadline:
			break drain
		}
	}
	stallTicker.Stop()

	if got := renderer.uploadCount(); got != 0 {
		t.Fatalf("tile uploaded before its raster sub-task completed: %d uploads", got)
	}

	close(rasterGate.release)

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for renderer.uploadCount() == 0 {
		select {
		case <-ticker.C:
			m.DrainCompletions()
		case <-deadline:
			t.Fatal("timed out waiting for upload after releasing the raster sub-task")
		}
	}
}

func TestTileManagerProceedsAfterRasterSubTaskFails(t *testing.T) {
	provider := &fakeDataProvider{data: roadsGeoJSON()}
	rasterProvider := &gatedProvider{release: make(chan struct{}), err: context.DeadlineExceeded}
	close(rasterProvider.release)
	src := source.New(source.Config{
		Media:    decode.MediaGeoJSON,
		Provider: provider,
		RasterSubs: []source.RasterSource{
			{MaxZoom: 20, Provider: rasterProvider, Media: decode.MediaRaster},
		},
	})
	renderer := &recordingRenderer{}
	builder := NewDefaultBuilder(simpleScene())

	m := New(src, builder, renderer, 2, nil)
	defer m.Close()

	view := View{Zoom: 2, CenterX: 1.5, CenterY: 1.5, HalfWidth: 0.5, HalfHeight: 0.5}
	m.Update(view)

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for renderer.uploadCount() == 0 {
		select {
		case <-ticker.C:
			m.DrainCompletions()
		case <-deadline:
			t.Fatal("timed out waiting for upload; a failed raster sub-task must not block the parent forever")
		}
	}
}

func TestVisibleSetClampsToValidRange(t *testing.T) {
	v := View{Zoom: 1, CenterX: 0, CenterY: 0, HalfWidth: 2, HalfHeight: 2}
	ids := VisibleSet(v)
	for _, id := range ids {
		if id.X >= 2 || id.Y >= 2 {
			t.Errorf("tile %v out of range for zoom 1", id)
		}
	}
}
