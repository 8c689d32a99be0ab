// Package geo handles GeoJSON decoding and the UTM 43N to WGS84 reprojection pipeline.
package geo

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// Decode parses a GeoJSON FeatureCollection.
func Decode(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	return fc, nil
}

// Name returns the dataset name stored in the collection's "name" member, if any.
func Name(fc *geojson.FeatureCollection) string {
	if fc == nil || fc.ExtraMembers == nil {
		return ""
	}

	name, _ := fc.ExtraMembers["name"].(string)
	return name
}

// Fingerprint identifies a dataset by its name and feature count.
// Two different datasets sharing both collide.
func Fingerprint(fc *geojson.FeatureCollection) string {
	if fc == nil {
		return ""
	}

	return strconv.Quote(Name(fc)) + strconv.Itoa(len(fc.Features))
}
