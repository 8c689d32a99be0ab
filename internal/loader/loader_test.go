package loader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/raster/rastertest"
	"github.com/woozymasta/hydroview/internal/state"
)

const (
	districtJSON = `{"type":"FeatureCollection","name":"District","features":[
		{"type":"Feature","properties":{"NAME_2":"Vadodara"},"geometry":{"type":"Polygon","coordinates":[[[73,22],[74,22],[74,23],[73,23],[73,22]]]}}]}`
	centroidsJSON = `{"type":"FeatureCollection","name":"DistrictCentroids","features":[
		{"type":"Feature","properties":{"NAME_2":"Vadodara"},"geometry":{"type":"Point","coordinates":[73.5,22.5]}}]}`
	basinJSON = `{"type":"FeatureCollection","name":"MA1","features":[
		{"type":"Feature","properties":{"Basin Name":"MA1"},"geometry":{"type":"Polygon","coordinates":[[[300000,2400000],[400000,2400000],[400000,2500000],[300000,2500000],[300000,2400000]]]}}]}`
	basinCentroidsJSON = `{"type":"FeatureCollection","name":"MahiBasinCentroids","features":[
		{"type":"Feature","properties":{"Basin Name":"MA1"},"geometry":{"type":"Point","coordinates":[350000,2450000]}}]}`
	riversJSON = `{"type":"FeatureCollection","name":"order1","features":[
		{"type":"Feature","properties":{"BASIN":1},"geometry":{"type":"LineString","coordinates":[[350000,2450000],[351000,2451000]]}},
		{"type":"Feature","properties":{"BASIN":2},"geometry":{"type":"LineString","coordinates":[[360000,2460000],[361000,2461000]]}},
		{"type":"Feature","properties":{"BASIN":null},"geometry":{"type":"LineString","coordinates":[[370000,2470000],[371000,2471000]]}}]}`
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Layers = cfg.Layers[:2]
	cfg.Basins = cfg.Basins[:2]
	cfg.Themes.Hydrology.Orders = cfg.Themes.Hydrology.Orders[:2]
	cfg.Concurrency = 4
	return cfg
}

// assetDir holds every test asset except MA2.geojson, talukas and order2.geojson.
func assetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"DistrictBoundary.geojson":   districtJSON,
		"DitsrictCentroids.geojson":  centroidsJSON,
		"MA1.geojson":                basinJSON,
		"MahiBasinCentroids.geojson": basinCentroidsJSON,
		"order1.geojson":             riversJSON,
		"MahiSlope.tif":              "definitely not a tiff",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	elevation := rastertest.Write(t, rastertest.Float32(2, 2, [2]float64{73, 24}, 0.5, []float64{110.5, 120.25, 130, 140.75}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MahiElevation.tif"), elevation, 0o644))

	return dir
}

type countingSource struct {
	Source
	mu    sync.Mutex
	opens map[string]int
}

func (c *countingSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.Source.Open(ctx, name)
}

func (c *countingSource) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[name]
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *state.Store, *countingSource) {
	t.Helper()
	cfg := testConfig()
	src := &countingSource{Source: NewSource(assetDir(t), time.Second), opens: map[string]int{}}
	return New(cfg, src), state.New(cfg), src
}

func TestEnsureReprojectsOnlyProjectedKinds(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	require.NoError(t, store.SetLayerVisibility("district", true))

	rep := o.Ensure(context.Background(), store.Snapshot())
	assert.Contains(t, rep.Loaded, "layer/district")
	assert.Contains(t, rep.Loaded, "layer_centroids/district")
	assert.Contains(t, rep.Loaded, "basin/MA1")
	assert.Contains(t, rep.Loaded, "basin_centroids/all")

	layer, ok := o.Collection(KindLayer, "district")
	require.True(t, ok)
	b := layer.Features[0].Geometry.Bound()
	assert.Equal(t, 73.0, b.Min.X(), "geographic layers are published unprojected")
	assert.Equal(t, 23.0, b.Max.Y())

	basinFC, ok := o.Collection(KindBasin, "MA1")
	require.True(t, ok)
	b = basinFC.Features[0].Geometry.Bound()
	assert.True(t, b.Min.X() > 70 && b.Max.X() < 76, "basin reprojected to degrees: %v", b)
	assert.True(t, b.Min.Y() > 20 && b.Max.Y() < 24, "basin reprojected to degrees: %v", b)

	centroids, ok := o.Collection(KindBasinCentroids, BasinCentroidsID)
	require.True(t, ok)
	assert.Less(t, centroids.Features[0].Geometry.Bound().Min.X(), 180.0)
}

func TestEnsureIsolatesFailures(t *testing.T) {
	o, store, src := newTestOrchestrator(t)

	rep := o.Ensure(context.Background(), store.Snapshot())
	assert.False(t, rep.OK())
	assert.Contains(t, rep.Failed, "basin/MA2")
	assert.Contains(t, rep.Loaded, "basin/MA1")

	err := o.Failure(KindBasin, "MA2")
	assert.ErrorIs(t, err, ErrNotFound)

	res := o.Resolve(store.Snapshot())
	assert.Contains(t, res.Basins, "MA1")
	assert.NotContains(t, res.Basins, "MA2")

	// neither the loaded nor the failed asset is fetched again
	rep = o.Ensure(context.Background(), store.Snapshot())
	assert.Contains(t, rep.Cached, "basin/MA1")
	assert.Contains(t, rep.Failed, "basin/MA2")
	assert.Empty(t, rep.Loaded)
	assert.Equal(t, 1, src.count("MA1.geojson"))
	assert.Equal(t, 1, src.count("MA2.geojson"))

	assert.Equal(t, int64(2), o.Metrics().Loaded())
	assert.Equal(t, int64(1), o.Metrics().Failed())
}

func TestEnsureConcurrentCallersFetchOnce(t *testing.T) {
	o, store, src := newTestOrchestrator(t)
	require.NoError(t, store.SetLayerVisibility("district", true))
	snap := store.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Ensure(context.Background(), snap)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.count("DistrictBoundary.geojson"))
	assert.Equal(t, 1, src.count("MA1.geojson"))
}

type gatedSource struct {
	Source
	name    string
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name == g.name {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Source.Open(ctx, name)
}

func TestCanceledCallerLeavesSharedFetchRunning(t *testing.T) {
	cfg := testConfig()
	src := &gatedSource{
		Source:  NewSource(assetDir(t), time.Second),
		name:    "DistrictBoundary.geojson",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := New(cfg, src)
	store := state.New(cfg)
	require.NoError(t, store.SetLayerVisibility("district", true))

	district, ok := Lookup(cfg, KindLayer, "district")
	require.True(t, ok)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	loadErr := make(chan error, 1)
	go func() {
		_, err := o.Load(reqCtx, district)
		loadErr <- err
	}()
	<-src.started

	reports := make(chan Report, 1)
	go func() {
		reports <- o.Ensure(context.Background(), store.Snapshot())
	}()

	cancelReq()
	assert.ErrorIs(t, <-loadErr, context.Canceled)

	close(src.release)
	rep := <-reports
	assert.NotContains(t, rep.Failed, "layer/district")

	_, ok = o.Collection(KindLayer, "district")
	assert.True(t, ok)
	assert.NoError(t, o.Failure(KindLayer, "district"))
	assert.Contains(t, o.Resolve(store.Snapshot()).Layers, "district")
}

func TestUnnamedBasinsKeepTheirOwnGeometry(t *testing.T) {
	dir := t.TempDir()
	unnamed := map[string]string{
		"MA1.geojson": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[300000,2400000]}}]}`,
		"MA2.geojson": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[400000,2500000]}}]}`,
	}
	for name, body := range unnamed {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	o := New(testConfig(), NewSource(dir, time.Second))
	for _, id := range []string{"MA1", "MA2"} {
		a, ok := Lookup(o.Config(), KindBasin, id)
		require.True(t, ok)
		_, err := o.Load(context.Background(), a)
		require.NoError(t, err)
	}

	ma1, _ := o.Collection(KindBasin, "MA1")
	ma2, _ := o.Collection(KindBasin, "MA2")
	require.NotNil(t, ma1)
	require.NotNil(t, ma2)
	assert.NotEqual(t, ma1.Features[0].Geometry, ma2.Features[0].Geometry)
	assert.Less(t, ma1.Features[0].Geometry.Bound().Min.X(), ma2.Features[0].Geometry.Bound().Min.X())
}

func TestLookup(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		kind Kind
		id   string
		file string
	}{
		{KindLayer, "district", "DistrictBoundary.geojson"},
		{KindLayerCentroids, "district", "DitsrictCentroids.geojson"},
		{KindBasin, "MA2", "MA2.geojson"},
		{KindBasinCentroids, BasinCentroidsID, "MahiBasinCentroids.geojson"},
		{KindRiverOrder, "2-3", "order2.geojson"},
		{KindRaster, "slope", "MahiSlope.tif"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a, ok := Lookup(cfg, tt.kind, tt.id)
			require.True(t, ok)
			assert.Equal(t, Asset{Kind: tt.kind, ID: tt.id, File: tt.file}, a)
		})
	}

	for _, miss := range []Asset{
		{Kind: KindLayer, ID: "rivers"},
		{Kind: KindBasin, ID: "MA9"},
		{Kind: KindBasinCentroids, ID: "MA1"},
		{Kind: KindRaster, ID: "hillshade"},
		{Kind: "tiles", ID: "district"},
	} {
		_, ok := Lookup(cfg, miss.Kind, miss.ID)
		assert.False(t, ok, "%s", miss.Key())
	}
}

func TestResolveRiversFollowSelection(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	require.NoError(t, store.SetTheme(state.ThemeHydrology))
	require.NoError(t, store.SetRiverOrder("1-2", true))
	require.NoError(t, store.SetRiverOrder("2-3", true))

	rep := o.Ensure(context.Background(), store.Snapshot())
	assert.Contains(t, rep.Loaded, "river/1-2")
	assert.Contains(t, rep.Failed, "river/2-3")

	res := o.Resolve(store.Snapshot())
	require.Contains(t, res.Rivers, "1-2")
	assert.Len(t, res.Rivers["1-2"].Features, 2, "null BASIN is excluded")
	assert.NotContains(t, res.Rivers, "2-3")

	require.NoError(t, store.SetBasinVisibility("MA2", false))
	res = o.Resolve(store.Snapshot())
	require.Contains(t, res.Rivers, "1-2")
	assert.Len(t, res.Rivers["1-2"].Features, 1)
	assert.Equal(t, 1.0, res.Rivers["1-2"].Features[0].Properties["BASIN"])

	require.NoError(t, store.SetBasinVisibility("MA1", false))
	res = o.Resolve(store.Snapshot())
	assert.NotContains(t, res.Rivers, "1-2", "empty filter result is not rendered")
	assert.Nil(t, res.BasinCentroids)

	// rivers are cached but not rendered outside hydrology
	require.NoError(t, store.SetBasinVisibility("MA1", true))
	require.NoError(t, store.SetTheme(state.ThemeLanduse))
	res = o.Resolve(store.Snapshot())
	assert.Empty(t, res.Rivers)
	_, ok := o.Collection(KindRiverOrder, "1-2")
	assert.True(t, ok)
	require.NotNil(t, res.Overlay)
	assert.Equal(t, "Landuse_Edge.png", res.Overlay.Image)
	assert.InDelta(t, 21.6538526169347278-0.01, res.Overlay.Bounds[0][0], 1e-9)
}

func TestSample(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.Sample(ctx, store.Snapshot(), 73.2, 23.8)
	assert.ErrorIs(t, err, ErrNoTerrain)

	require.NoError(t, store.SetTheme(state.ThemeTerrain))
	r, err := o.Sample(ctx, store.Snapshot(), 73.2, 23.8)
	require.NoError(t, err)
	assert.Equal(t, "Elevation: 110.50 meters", r.Text)

	r, err = o.Sample(ctx, store.Snapshot(), 73.9, 23.1)
	require.NoError(t, err)
	assert.Equal(t, "Elevation: 140.75 meters", r.Text)
	assert.Equal(t, 140.75, r.Value.Raw)

	r, err = o.Sample(ctx, store.Snapshot(), 75, 23.5)
	require.NoError(t, err)
	assert.False(t, r.Value.Available)
	assert.Equal(t, "Elevation: N/A", r.Text)

	require.NoError(t, store.SetSubTheme("slope"))
	r, err = o.Sample(ctx, store.Snapshot(), 73.2, 23.8)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, "Error loading Slope data", r.Text)
}

func TestLegendAndOverlay(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	lg := o.Legend(ctx, store.Snapshot())
	assert.Len(t, lg.Landuse, 9)

	require.NoError(t, store.SetTheme(state.ThemeHydrology))
	lg = o.Legend(ctx, store.Snapshot())
	require.Len(t, lg.Rivers, 2)
	assert.Equal(t, 1.5, lg.Rivers[1].Thickness)

	_, err := o.Overlay(ctx, store.Snapshot(), 0)
	assert.ErrorIs(t, err, ErrNoTerrain)

	require.NoError(t, store.SetTheme(state.ThemeTerrain))
	lg = o.Legend(ctx, store.Snapshot())
	require.NotNil(t, lg.Terrain)
	require.NotNil(t, lg.Terrain.Summary)
	assert.Equal(t, 110.5, lg.Terrain.Summary.Min)
	assert.Equal(t, 140.75, lg.Terrain.Summary.Max)

	img, err := o.Overlay(ctx, store.Snapshot(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestIdentify(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	require.NoError(t, store.SetLayerVisibility("district", true))
	o.Ensure(context.Background(), store.Snapshot())

	hits := o.Identify(store.Snapshot(), 73.5, 22.5)
	require.NotEmpty(t, hits)

	var kinds []Kind
	for _, h := range hits {
		kinds = append(kinds, h.Kind)
	}
	assert.Contains(t, kinds, KindLayer)
	assert.Equal(t, "Vadodara", hits[len(hits)-1].Properties["NAME_2"])

	assert.Empty(t, o.Identify(store.Snapshot(), 10, 10))
}

func TestWatch(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Watch(ctx, store)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok := o.Collection(KindBasin, "MA1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.ToggleLayer("district"))
	assert.Eventually(t, func() bool {
		_, ok := o.Collection(KindLayer, "district")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWatchStartsFromCurrentState(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	require.NoError(t, store.SetLayerVisibility("district", true))
	require.NoError(t, store.SetTheme(state.ThemeHydrology))
	require.NoError(t, store.SetRiverOrder("1-2", true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Watch(ctx, store)

	assert.Eventually(t, func() bool {
		res := o.Resolve(store.Snapshot())
		_, layer := res.Layers["district"]
		_, river := res.Rivers["1-2"]
		return layer && river
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/data/MA1.geojson":
			_, _ = w.Write([]byte(basinJSON))
		case "/data/broken.geojson":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewSource(srv.URL+"/data/", time.Second)
	require.IsType(t, &HTTPSource{}, src)

	rc, err := src.Open(context.Background(), "MA1.geojson")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.JSONEq(t, basinJSON, string(body))

	_, err = src.Open(context.Background(), "missing.geojson")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Open(context.Background(), "broken.geojson")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "500")

	assert.Equal(t, int32(3), hits.Load())
}

func TestDirSourceStaysInRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.geojson"), []byte("{}"), 0o644))

	src := NewSource(dir, time.Second)
	require.IsType(t, &DirSource{}, src)

	rc, err := src.Open(context.Background(), "../a.geojson")
	require.NoError(t, err)
	_ = rc.Close()

	_, err = src.Open(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Open(ctx, "a.geojson")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatisticsFollowSelectedBasins(t *testing.T) {
	cfg := config.Default()
	cfg.Basins[1].Landuse = append(cfg.Basins[1].Landuse, config.ClassArea{Class: 12})
	cfg.Basins[2].Landuse = nil
	o := New(cfg, NewSource(t.TempDir(), time.Second))
	store := state.New(cfg)

	require.NoError(t, store.ToggleBasin("MA5"))
	st := o.Statistics(store.Snapshot())
	assert.Equal(t, store.Snapshot().Version, st.Version)

	ids := make([]string, 0, len(st.Basins))
	for _, b := range st.Basins {
		ids = append(ids, b.Basin)
	}
	assert.Equal(t, []string{"MA1", "MA2", "MA4", "MA6", "MA7", "MA8", "MA9", "MA10"}, ids)

	ma1 := st.Basins[0]
	assert.Equal(t, "Sub-Basin (MA - 1)", ma1.Label)
	assert.InDelta(t, 8559383134.4, ma1.Total, 1e-3)
	assert.Equal(t, 5, ma1.Dominant)
	assert.InDelta(t, 43.9516, ma1.DominantPercent, 1e-4)
	require.Len(t, ma1.Classes, 7)
	assert.Equal(t, "Builtup", ma1.Classes[0].Label)
	assert.Equal(t, "#ff0000", ma1.Classes[0].Color)
	assert.InDelta(t, 0.4111, ma1.Classes[0].Percent, 1e-4)

	sum := 0.0
	for _, c := range ma1.Classes {
		sum += c.Percent
	}
	assert.InDelta(t, 100.0, sum, 1e-9)

	ma2 := st.Basins[1]
	assert.Equal(t, 3, ma2.Dominant)
	assert.InDelta(t, 47.6229, ma2.DominantPercent, 1e-4)
	last := ma2.Classes[len(ma2.Classes)-1]
	assert.Equal(t, "Unknown", last.Label)
	assert.Equal(t, "#000000", last.Color)
	assert.Zero(t, last.Percent)
}

func TestStatisticsEmptySelection(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	require.NoError(t, store.ToggleBasin("MA1"))
	require.NoError(t, store.ToggleBasin("MA2"))

	st := o.Statistics(store.Snapshot())
	assert.NotNil(t, st.Basins)
	assert.Empty(t, st.Basins)
}
