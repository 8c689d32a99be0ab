package loader

import (
	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/state"
)

// Kind classifies a catalog asset.
type Kind string

// Asset kinds.
const (
	KindLayer          Kind = "layer"
	KindLayerCentroids Kind = "layer_centroids"
	KindBasin          Kind = "basin"
	KindBasinCentroids Kind = "basin_centroids"
	KindRiverOrder     Kind = "river"
	KindRaster         Kind = "raster"
)

// BasinCentroidsID is the id of the single basin centroid collection.
const BasinCentroidsID = "all"

// Projected reports whether assets of this kind are authored in UTM and must be reprojected.
func (k Kind) Projected() bool {
	switch k {
	case KindBasin, KindBasinCentroids, KindRiverOrder:
		return true
	}
	return false
}

// Asset is one fetchable file of the catalog.
type Asset struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	File string `json:"file"`
}

// Key identifies the asset in stores and reports.
func (a Asset) Key() string {
	return Key(a.Kind, a.ID)
}

// Key builds a store key.
func Key(kind Kind, id string) string {
	return string(kind) + "/" + id
}

// Catalog lists every asset in the configuration, in catalog order.
func Catalog(cfg *config.Config) []Asset {
	var out []Asset

	for _, l := range cfg.Layers {
		out = append(out, Asset{Kind: KindLayer, ID: l.ID, File: l.File})
		if l.Centroids != "" {
			out = append(out, Asset{Kind: KindLayerCentroids, ID: l.ID, File: l.Centroids})
		}
	}
	for _, b := range cfg.Basins {
		out = append(out, Asset{Kind: KindBasin, ID: b.ID, File: b.File})
	}
	if cfg.BasinCentroids != "" {
		out = append(out, Asset{Kind: KindBasinCentroids, ID: BasinCentroidsID, File: cfg.BasinCentroids})
	}
	for _, o := range cfg.Themes.Hydrology.Orders {
		out = append(out, Asset{Kind: KindRiverOrder, ID: o.ID, File: o.File})
	}
	for _, s := range cfg.Themes.Terrain.SubThemes {
		out = append(out, Asset{Kind: KindRaster, ID: s.ID, File: s.Raster})
	}

	return out
}

// Required lists the assets a snapshot needs rendered, in catalog order.
func Required(cfg *config.Config, snap state.Snapshot) []Asset {
	var out []Asset

	for _, l := range cfg.Layers {
		if !snap.Layers[l.ID] {
			continue
		}
		out = append(out, Asset{Kind: KindLayer, ID: l.ID, File: l.File})
		if l.Centroids != "" {
			out = append(out, Asset{Kind: KindLayerCentroids, ID: l.ID, File: l.Centroids})
		}
	}

	for _, b := range cfg.Basins {
		if snap.Basins[b.ID] {
			out = append(out, Asset{Kind: KindBasin, ID: b.ID, File: b.File})
		}
	}
	if snap.AnyBasinVisible() && cfg.BasinCentroids != "" {
		out = append(out, Asset{Kind: KindBasinCentroids, ID: BasinCentroidsID, File: cfg.BasinCentroids})
	}

	if snap.Theme == state.ThemeHydrology {
		for _, o := range cfg.Themes.Hydrology.Orders {
			if snap.RiverOrders[o.ID] {
				out = append(out, Asset{Kind: KindRiverOrder, ID: o.ID, File: o.File})
			}
		}
	}

	if snap.Theme == state.ThemeTerrain {
		if s, ok := cfg.SubTheme(snap.SubTheme); ok {
			out = append(out, Asset{Kind: KindRaster, ID: s.ID, File: s.Raster})
		}
	}

	return out
}

// Lookup finds a catalog asset by kind and id.
func Lookup(cfg *config.Config, kind Kind, id string) (Asset, bool) {
	var file string

	switch kind {
	case KindLayer:
		if l, ok := cfg.Layer(id); ok {
			file = l.File
		}
	case KindLayerCentroids:
		if l, ok := cfg.Layer(id); ok {
			file = l.Centroids
		}
	case KindBasin:
		if b, ok := cfg.Basin(id); ok {
			file = b.File
		}
	case KindBasinCentroids:
		if id == BasinCentroidsID {
			file = cfg.BasinCentroids
		}
	case KindRiverOrder:
		if o, ok := cfg.RiverOrder(id); ok {
			file = o.File
		}
	case KindRaster:
		if s, ok := cfg.SubTheme(id); ok {
			file = s.Raster
		}
	}

	if file == "" {
		return Asset{}, false
	}
	return Asset{Kind: kind, ID: id, File: file}, true
}
