package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangram-go/tangramcore/internal/decode"
	"github.com/tangram-go/tangramcore/internal/model"
)

type fakeProvider struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (p *fakeProvider) Fetch(ctx context.Context, tile model.TileID) ([]byte, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.data, nil
}

func TestSourceLoadCachesAcrossRequests(t *testing.T) {
	provider := &fakeProvider{data: []byte("hello")}
	src := New(Config{Media: decode.MediaGeoJSON, Provider: provider})

	tile := model.NewTileID(3, 1, 1)

	t1 := src.CreateTask(tile)
	data1, err := src.Load(context.Background(), t1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data1))

	t2 := src.CreateTask(tile)
	data2, err := src.Load(context.Background(), t2)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data2))

	assert.EqualValues(t, 1, provider.calls.Load(), "expected a single network fetch due to cache hit")
}

func TestSourceClearInvalidatesCacheFreshness(t *testing.T) {
	provider := &fakeProvider{data: []byte("v1")}
	src := New(Config{Media: decode.MediaGeoJSON, Provider: provider})
	tile := model.NewTileID(2, 0, 0)

	t1 := src.CreateTask(tile)
	_, err := src.Load(context.Background(), t1)
	require.NoError(t, err)

	src.Clear()

	t2 := src.CreateTask(tile)
	_, err = src.Load(context.Background(), t2)
	require.NoError(t, err)

	assert.EqualValues(t, 2, provider.calls.Load(), "expected Clear to force a re-fetch")
}

func TestSourceLoadPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("network down")
	provider := &fakeProvider{err: wantErr}
	src := New(Config{Media: decode.MediaGeoJSON, Provider: provider})

	tile := model.NewTileID(1, 0, 0)
	tk := src.CreateTask(tile)
	_, err := src.Load(context.Background(), tk)
	require.ErrorIs(t, err, wantErr)
}

func TestSourceCancelMarksTaskCanceled(t *testing.T) {
	provider := &fakeProvider{data: []byte("x")}
	src := New(Config{Media: decode.MediaGeoJSON, Provider: provider})

	tile := model.NewTileID(1, 0, 0)
	tk := src.CreateTask(tile)
	src.Cancel(tile)

	assert.True(t, tk.Canceled(), "expected the task to be canceled")
}

func TestCreateTaskFansOutRasterSubTasksAtMaxZoom(t *testing.T) {
	rasterProvider := &fakeProvider{data: []byte("r")}
	src := New(Config{
		Media:    decode.MediaMVT,
		Provider: &fakeProvider{data: []byte("v")},
		RasterSubs: []RasterSource{
			{MaxZoom: 10, Provider: rasterProvider, Media: decode.MediaGeoJSON},
		},
	})

	// Requesting at zoom 14 should fan out a sub-task clamped to zoom 10.
	tile := model.NewTileID(14, 100, 100)
	tk := src.CreateTask(tile)

	require.Len(t, tk.SubTasks, 1)
	assert.EqualValues(t, 10, tk.SubTasks[0].TileID.Z, "sub-task zoom should clamp to nearest ancestor")
}

func TestSourceLoadRasterSubTaskUsesItsOwnProvider(t *testing.T) {
	vectorProvider := &fakeProvider{data: []byte("vector")}
	rasterProvider := &fakeProvider{data: []byte("raster")}
	src := New(Config{
		Media:    decode.MediaMVT,
		Provider: vectorProvider,
		RasterSubs: []RasterSource{
			{MaxZoom: 20, Provider: rasterProvider, Media: decode.MediaRaster},
		},
	})

	tile := model.NewTileID(5, 1, 1)
	tk := src.CreateTask(tile)
	require.Len(t, tk.SubTasks, 1)

	data, err := src.Load(context.Background(), tk.SubTasks[0])
	require.NoError(t, err)
	assert.Equal(t, "raster", string(data))
	assert.EqualValues(t, 1, rasterProvider.calls.Load())
	assert.EqualValues(t, 0, vectorProvider.calls.Load(), "raster sub-task should never hit the primary provider")

	td, err := src.Parse(context.Background(), tk.SubTasks[0], data)
	require.NoError(t, err)
	require.Len(t, td.Layers, 1)
	require.Len(t, td.Layers[0].Features, 1)
	feat := td.Layers[0].Features[0]
	assert.Equal(t, model.GeometryRaster, feat.GeometryType)
	assert.Equal(t, "raster", string(feat.RasterData))
}
