package basin

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{73.0, 22.0})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	return fc
}

func allBasins() Set {
	return NewSet("MA1", "MA2", "MA3", "MA4", "MA5", "MA6", "MA7", "MA8", "MA9", "MA10")
}

func TestFilterByBasinScenario(t *testing.T) {
	fc := collection(feature(map[string]interface{}{"BASIN": 3.0}))

	got := FilterByBasin(fc, NewSet("MA3", "MA5"))
	assert.Len(t, got.Features, 1)

	got = FilterByBasin(fc, NewSet("MA1"))
	assert.Empty(t, got.Features)
}

func TestFilterByBasinEmptySelection(t *testing.T) {
	fc := collection(
		feature(map[string]interface{}{"BASIN": 1.0}),
		feature(map[string]interface{}{"BASIN": 2.0}),
	)

	got := FilterByBasin(fc, NewSet())
	require.NotNil(t, got)
	assert.Empty(t, got.Features)
	assert.Len(t, fc.Features, 2, "input must not change")
}

func TestFilterByBasinZeroFeatures(t *testing.T) {
	fc := collection()
	assert.Same(t, fc, FilterByBasin(fc, allBasins()))
	assert.Nil(t, FilterByBasin(nil, allBasins()))
}

func TestFilterByBasinAllSelected(t *testing.T) {
	fc := collection(
		feature(map[string]interface{}{"BASIN": 1.0}),
		feature(map[string]interface{}{"NAME": "no basin"}),
		feature(map[string]interface{}{"BASIN": 10.0}),
		feature(map[string]interface{}{"BASIN": nil}),
		feature(map[string]interface{}{"BASIN": 11.0}),
		feature(map[string]interface{}{"BASIN": 0.0}),
		feature(map[string]interface{}{"BASIN": "4"}),
		feature(map[string]interface{}{"BASIN": []interface{}{1.0}}),
	)

	got := FilterByBasin(fc, allBasins())
	require.Len(t, got.Features, 3)
	assert.Same(t, fc.Features[0], got.Features[0])
	assert.Same(t, fc.Features[2], got.Features[1])
	assert.Same(t, fc.Features[6], got.Features[2])
}

func TestFilterByBasinPreservesOrder(t *testing.T) {
	var features []*geojson.Feature
	for _, b := range []float64{5, 1, 5, 3, 2, 5, 1} {
		features = append(features, feature(map[string]interface{}{"BASIN": b}))
	}
	fc := collection(features...)

	got := FilterByBasin(fc, NewSet("MA5", "MA1"))
	require.Len(t, got.Features, 5)

	var order []float64
	for _, f := range got.Features {
		order = append(order, f.Properties["BASIN"].(float64))
	}
	assert.Equal(t, []float64{5, 1, 5, 5, 1}, order)
}

func TestFilterByBasinIdempotent(t *testing.T) {
	fc := collection(
		feature(map[string]interface{}{"BASIN": 2.0}),
		feature(map[string]interface{}{"BASIN": 7.0}),
		feature(map[string]interface{}{"BASIN": 9.0}),
	)
	sel := NewSet("MA2", "MA9")

	once := FilterByBasin(fc, sel)
	twice := FilterByBasin(once, sel)

	assert.Equal(t, once.Features, twice.Features)
}

func TestID(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		id    string
		ok    bool
	}{
		{"Float", 7.0, "MA7", true},
		{"Int", 3, "MA3", true},
		{"Fraction", 7.5, "MA7.5", true},
		{"String", "2", "MA2", true},
		{"Zero", 0.0, "", false},
		{"Empty string", "", "", false},
		{"Bool", true, "", false},
		{"Missing", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := feature(nil)
			if tt.value != nil {
				f.Properties[Attribute] = tt.value
			}
			id, ok := ID(f)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}

	_, ok := ID(nil)
	assert.False(t, ok)
}

func TestSetSorted(t *testing.T) {
	s := NewSet("MA10", "MA2", "MA1", "MA9")
	assert.Equal(t, []string{"MA1", "MA2", "MA9", "MA10"}, s.Sorted())
	assert.True(t, s.Has("MA9"))
	assert.False(t, s.Has("MA3"))
}
