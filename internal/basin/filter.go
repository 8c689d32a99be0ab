// Package basin filters river networks by watershed sub-basin membership.
package basin

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/hydroview/internal/config"
)

// Attribute is the feature property holding the basin number.
const Attribute = "BASIN"

// Set is a set of basin ids.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids ordered by basin number (MA1, MA2, ..., MA10).
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		ni, ei := strconv.Atoi(strings.TrimPrefix(ids[i], config.BasinPrefix))
		nj, ej := strconv.Atoi(strings.TrimPrefix(ids[j], config.BasinPrefix))
		if ei != nil || ej != nil || ni == nj {
			return ids[i] < ids[j]
		}
		return ni < nj
	})

	return ids
}

// ID builds the basin id for a feature, e.g. BASIN 7 -> "MA7".
// Features without a usable basin number report false.
func ID(f *geojson.Feature) (string, bool) {
	if f == nil {
		return "", false
	}

	switch v := f.Properties[Attribute].(type) {
	case float64:
		if v == 0 {
			return "", false
		}
		return config.BasinPrefix + strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		if v == 0 {
			return "", false
		}
		return config.BasinPrefix + strconv.Itoa(v), true
	case string:
		if v == "" {
			return "", false
		}
		return config.BasinPrefix + v, true
	default:
		return "", false
	}
}

// FilterByBasin returns a new collection holding the features whose basin id is selected.
// Feature order is preserved and the input is not modified.
func FilterByBasin(fc *geojson.FeatureCollection, selected Set) *geojson.FeatureCollection {
	if fc == nil || len(fc.Features) == 0 {
		return fc
	}

	out := &geojson.FeatureCollection{
		Type:         fc.Type,
		BBox:         fc.BBox,
		ExtraMembers: fc.ExtraMembers,
		Features:     make([]*geojson.Feature, 0, len(fc.Features)),
	}

	for _, f := range fc.Features {
		id, ok := ID(f)
		if !ok {
			continue
		}
		if selected.Has(id) {
			out.Features = append(out.Features, f)
		}
	}

	return out
}
