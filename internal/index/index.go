// Package index finds the features under a clicked location.
package index

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50

	// minimum rectangle side, rtreego rejects zero-length sides
	minSide = 1e-9
)

// DefaultTolerance is the click radius in degrees for points and lines (~100 m).
const DefaultTolerance = 0.001

type item struct {
	feature *geojson.Feature
	rect    *rtreego.Rect
	order   int
}

func (i *item) Bounds() *rtreego.Rect {
	return i.rect
}

// Index is an R-tree over the feature bounds of one collection.
// It is read-only after construction and safe for concurrent queries.
type Index struct {
	tree  *rtreego.Rtree
	count int
}

// New indexes every feature with a geometry.
func New(fc *geojson.FeatureCollection) *Index {
	ix := &Index{tree: rtreego.NewTree(dimensions, minChildren, maxChildren)}
	if fc == nil {
		return ix
	}

	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}

		b := f.Geometry.Bound()
		rect, err := rtreego.NewRect(
			rtreego.Point{b.Min.X(), b.Min.Y()},
			[]float64{math.Max(b.Max.X()-b.Min.X(), minSide), math.Max(b.Max.Y()-b.Min.Y(), minSide)},
		)
		if err != nil {
			continue
		}

		ix.tree.Insert(&item{feature: f, rect: rect, order: i})
		ix.count++
	}

	return ix
}

// Len returns the number of indexed features.
func (ix *Index) Len() int {
	return ix.count
}

// Identify returns the features at p in collection order. Areas must contain p,
// points and lines must lie within tolerance degrees of it.
func (ix *Index) Identify(p orb.Point, tolerance float64) []*geojson.Feature {
	if ix.count == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = minSide
	}

	query := rtreego.Point{p.X(), p.Y()}.ToRect(tolerance)
	candidates := ix.tree.SearchIntersect(query)

	hits := make([]*item, 0, len(candidates))
	for _, c := range candidates {
		it, ok := c.(*item)
		if !ok {
			continue
		}
		if matches(it.feature.Geometry, p, tolerance) {
			hits = append(hits, it)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].order < hits[j].order })

	out := make([]*geojson.Feature, len(hits))
	for i, h := range hits {
		out[i] = h.feature
	}

	return out
}

func matches(g orb.Geometry, p orb.Point, tolerance float64) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString:
		return planar.DistanceFrom(g, p) <= tolerance
	default:
		return g.Bound().Pad(tolerance).Contains(p)
	}
}
