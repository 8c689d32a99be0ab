package geo

import (
	"math"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReprojectCentralMeridian(t *testing.T) {
	p := Reproject(orb.Point{500000, 2544000})

	assert.InDelta(t, 75.0, p.Lon(), 1e-7)
	assert.InDelta(t, 23.0, p.Lat(), 0.1)
}

func TestReprojectRoundTrip(t *testing.T) {
	// Mahi basin extent
	for lon := 72.5; lon <= 75.5; lon += 0.25 {
		for lat := 21.75; lat <= 24.5; lat += 0.25 {
			utm := Forward(orb.Point{lon, lat})
			require.NotEqual(t, lon, utm.X(), "forward transform did not run")

			back := Reproject(utm)
			assert.InDelta(t, lon, back.Lon(), 1e-6)
			assert.InDelta(t, lat, back.Lat(), 1e-6)
		}
	}
}

func TestReprojectReferencePoints(t *testing.T) {
	p := Reproject(orb.Point{350000, 2450000})
	assert.InDelta(t, 73.54539667, p.Lon(), 1e-7)
	assert.InDelta(t, 22.14866319, p.Lat(), 1e-7)

	q := Forward(orb.Point{75, 23})
	assert.InDelta(t, 500000.0, q.X(), 1e-3)
	assert.InDelta(t, 2543519.7636, q.Y(), 1e-3)

	q = Forward(orb.Point{72.5, 21.75})
	assert.InDelta(t, 241438.1174, q.X(), 1e-3)
	assert.InDelta(t, 2407247.0928, q.Y(), 1e-3)
}

func TestTransverseMercatorOtherZone(t *testing.T) {
	// GeoConvert: 33.3N 44.4E in zone 38N
	tm := newTransverseMercator(spheroid{a: 6378137, fi: 298.257223563}, 45, 0.9996, 500000, 0)

	east, north := tm.FromLonLat(44.4, 33.3, nil)
	assert.InDelta(t, 444140.545, east, 1e-3)
	assert.InDelta(t, 3684706.356, north, 1e-3)

	lon, lat := tm.ToLonLat(east, north, nil)
	assert.InDelta(t, 44.4, lon, 1e-10)
	assert.InDelta(t, 33.3, lat, 1e-10)
}

func TestReprojectFallsBackOnDegenerateInput(t *testing.T) {
	nan := Reproject(orb.Point{math.NaN(), 2500000})
	assert.True(t, math.IsNaN(nan.X()))
	assert.Equal(t, 2500000.0, nan.Y())

	inf := orb.Point{math.Inf(1), 100}
	assert.Equal(t, inf, Reproject(inf))
}

func TestReprojectGeometryPreservesStructure(t *testing.T) {
	mp := orb.MultiPolygon{
		{
			{{300000, 2400000}, {310000, 2400000}, {310000, 2410000}, {300000, 2400000}},
			{{302000, 2402000}, {303000, 2402000}, {302000, 2402000}},
		},
		{
			{{400000, 2500000}, {401000, 2500000}, {401000, 2501000}, {400500, 2501500}, {400000, 2500000}},
		},
	}

	out, ok := ReprojectGeometry(mp).(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, out, len(mp))

	for i := range mp {
		require.Len(t, out[i], len(mp[i]))
		for j := range mp[i] {
			assert.Len(t, out[i][j], len(mp[i][j]))
		}
	}

	// input untouched
	assert.Equal(t, orb.Point{300000, 2400000}, mp[0][0][0])
	assert.InDelta(t, 73.0, out[0][0][0].Lon(), 1.0)
}

func TestReprojectCollectionKeepsDegeneratePair(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{300000, 2400000}, {math.NaN(), math.NaN()}, {310000, 2410000}, {300000, 2400000}}},
		{{{400000, 2500000}, {401000, 2500000}, {401000, 2501000}, {400000, 2500000}}},
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(mp))

	out := ReprojectCollection(fc)
	require.Len(t, out.Features, 1)
	got, ok := out.Features[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, got, 2)

	bad := got[0][0][1]
	assert.True(t, math.IsNaN(bad.X()))
	assert.True(t, math.IsNaN(bad.Y()))

	for i, poly := range got {
		for j, p := range poly[0] {
			if i == 0 && j == 1 {
				continue
			}
			assert.Greater(t, p.Lon(), 70.0, "polygon %d point %d", i, j)
			assert.Less(t, p.Lon(), 80.0, "polygon %d point %d", i, j)
			assert.Greater(t, p.Lat(), 20.0, "polygon %d point %d", i, j)
			assert.Less(t, p.Lat(), 25.0, "polygon %d point %d", i, j)
		}
	}
}

func TestReprojectGeometryKinds(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"Point", orb.Point{350000, 2450000}},
		{"MultiPoint", orb.MultiPoint{{350000, 2450000}, {360000, 2460000}}},
		{"LineString", orb.LineString{{350000, 2450000}, {360000, 2460000}}},
		{"MultiLineString", orb.MultiLineString{{{350000, 2450000}, {360000, 2460000}}}},
		{"Polygon", orb.Polygon{{{350000, 2450000}, {360000, 2450000}, {350000, 2460000}, {350000, 2450000}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ReprojectGeometry(tt.geom)
			assert.Equal(t, tt.geom.GeoJSONType(), out.GeoJSONType())

			b := out.Bound()
			assert.True(t, b.Min.Lon() > 70 && b.Max.Lon() < 80, "lon out of zone: %v", b)
			assert.True(t, b.Min.Lat() > 20 && b.Max.Lat() < 26, "lat out of extent: %v", b)
		})
	}
}

func TestReprojectGeometryPassesUnsupportedKinds(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}
	assert.Equal(t, bound, ReprojectGeometry(bound))

	coll := orb.Collection{orb.Point{350000, 2450000}}
	assert.Equal(t, coll, ReprojectGeometry(coll))

	assert.Nil(t, ReprojectGeometry(nil))
}

func TestReprojectCollectionDoesNotMutateInput(t *testing.T) {
	fc := riverCollection("order1", 3)
	fc.ExtraMembers = geojson.Properties{"name": "order1", "crs": map[string]interface{}{"type": "name"}}

	out := ReprojectCollection(fc)

	require.Len(t, out.Features, 3)
	assert.Equal(t, orb.Point{350000, 2450000}, fc.Features[0].Geometry)
	assert.NotEqual(t, fc.Features[0].Geometry, out.Features[0].Geometry)
	assert.Equal(t, "order1", Name(out))
	assert.NotContains(t, out.ExtraMembers, "crs")

	out.Features[0].Properties["BASIN"] = 99.0
	assert.Equal(t, 1.0, fc.Features[0].Properties["BASIN"])
}

func TestFingerprint(t *testing.T) {
	a := riverCollection("order1", 4)
	b := riverCollection("order1", 4)
	c := riverCollection("order1", 5)
	d := riverCollection("order2", 4)

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(d))
	assert.Empty(t, Fingerprint(nil))
}

func TestDecode(t *testing.T) {
	fc, err := Decode([]byte(`{"type":"FeatureCollection","name":"MA3","features":[
		{"type":"Feature","properties":{"BASIN":3},"geometry":{"type":"Point","coordinates":[350000,2450000,12]}}]}`))
	require.NoError(t, err)

	assert.Equal(t, "MA3", Name(fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{350000, 2450000}, fc.Features[0].Geometry)

	_, err = Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestTransformCacheConcurrent(t *testing.T) {
	cache := NewTransformCache()
	fc := riverCollection("order3", 50)

	const workers = 16
	results := make([]*geojson.FeatureCollection, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.GetOrTransform(fc)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, cache.Len())

	// same fingerprint, different instance
	again := cache.GetOrTransform(riverCollection("order3", 50))
	assert.Same(t, results[0], again)
	assert.Nil(t, cache.GetOrTransform(nil))
}

func riverCollection(name string, n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"name": name}
	for i := 0; i < n; i++ {
		f := geojson.NewFeature(orb.Point{350000 + float64(i)*100, 2450000})
		f.Properties["BASIN"] = float64(i%10 + 1)
		fc.Append(f)
	}
	return fc
}
