package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// ReprojectGeometry returns a copy of g with every coordinate passed through Reproject.
// Nesting and coordinate counts are preserved. Kinds other than the six simple
// geometry types are returned as is.
func ReprojectGeometry(g orb.Geometry) orb.Geometry {
	switch g.(type) {
	case orb.Point, orb.MultiPoint,
		orb.LineString, orb.MultiLineString,
		orb.Polygon, orb.MultiPolygon:
		return project.Geometry(orb.Clone(g), Reproject)
	default:
		return g
	}
}

// ReprojectCollection builds a new collection with reprojected geometries.
// The input collection is never modified.
func ReprojectCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return nil
	}

	out := &geojson.FeatureCollection{
		Type:     fc.Type,
		Features: make([]*geojson.Feature, 0, len(fc.Features)),
	}
	if len(fc.ExtraMembers) > 0 {
		out.ExtraMembers = make(geojson.Properties, len(fc.ExtraMembers))
		for k, v := range fc.ExtraMembers {
			// the source CRS declaration no longer applies
			if k == "crs" {
				continue
			}
			out.ExtraMembers[k] = v
		}
	}

	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		out.Features = append(out.Features, &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			Geometry:   ReprojectGeometry(f.Geometry),
			Properties: f.Properties.Clone(),
		})
	}

	return out
}
