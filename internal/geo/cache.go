package geo

import (
	"github.com/jellydator/ttlcache/v3"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"
)

// TransformCache memoizes reprojected collections for the process lifetime.
// It is safe for concurrent use; concurrent callers with the same key share one transform.
type TransformCache struct {
	items *ttlcache.Cache[string, *geojson.FeatureCollection]
	group singleflight.Group
}

// NewTransformCache creates an empty cache without expiration.
func NewTransformCache() *TransformCache {
	return &TransformCache{
		items: ttlcache.New(
			ttlcache.WithTTL[string, *geojson.FeatureCollection](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, *geojson.FeatureCollection](),
		),
	}
}

// GetOrTransform returns the reprojected form of fc, computing it on the first request
// for the collection's fingerprint.
func (c *TransformCache) GetOrTransform(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return nil
	}

	key := Fingerprint(fc)
	if item := c.items.Get(key); item != nil {
		return item.Value()
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if c.items.Has(key) {
			return c.items.Get(key).Value(), nil
		}
		out := ReprojectCollection(fc)
		c.items.Set(key, out, ttlcache.NoTTL)
		return out, nil
	})

	return v.(*geojson.FeatureCollection)
}

// Len returns the number of cached collections.
func (c *TransformCache) Len() int {
	return c.items.Len()
}

// Metrics exposes hit and miss counters of the underlying cache.
func (c *TransformCache) Metrics() ttlcache.Metrics {
	return c.items.Metrics()
}
