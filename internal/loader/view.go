package loader

import (
	"context"
	"errors"
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/hydroview/internal/basin"
	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/index"
	"github.com/woozymasta/hydroview/internal/raster"
	"github.com/woozymasta/hydroview/internal/state"
)

// ErrNoTerrain is returned by terrain reads while another theme is active.
var ErrNoTerrain = errors.New("terrain theme is not active")

// ImageOverlay is a georeferenced picture drawn above the base map.
type ImageOverlay struct {
	Image  string        `json:"image"`
	Bounds [2][2]float64 `json:"bounds"`
}

// Resolved is everything renderable for a snapshot. Assets that are not
// loaded yet, failed, or filter down to nothing are absent.
type Resolved struct {
	Version        uint64                                `json:"version"`
	Theme          state.Theme                           `json:"theme"`
	SubTheme       string                                `json:"sub_theme,omitempty"`
	Layers         map[string]*geojson.FeatureCollection `json:"layers"`
	LayerCentroids map[string]*geojson.FeatureCollection `json:"layer_centroids"`
	Basins         map[string]*geojson.FeatureCollection `json:"basins"`
	BasinCentroids *geojson.FeatureCollection            `json:"basin_centroids,omitempty"`
	Rivers         map[string]*geojson.FeatureCollection `json:"rivers"`
	Overlay        *ImageOverlay                         `json:"overlay,omitempty"`
}

// Resolve reads the published stores for snap. It never fetches.
func (o *Orchestrator) Resolve(snap state.Snapshot) Resolved {
	res := Resolved{
		Version:        snap.Version,
		Theme:          snap.Theme,
		SubTheme:       snap.SubTheme,
		Layers:         make(map[string]*geojson.FeatureCollection),
		LayerCentroids: make(map[string]*geojson.FeatureCollection),
		Basins:         make(map[string]*geojson.FeatureCollection),
		Rivers:         make(map[string]*geojson.FeatureCollection),
	}

	for _, l := range o.cfg.Layers {
		if !snap.Layers[l.ID] {
			continue
		}
		if fc, ok := o.Collection(KindLayer, l.ID); ok {
			res.Layers[l.ID] = fc
		}
		if fc, ok := o.Collection(KindLayerCentroids, l.ID); ok {
			res.LayerCentroids[l.ID] = fc
		}
	}

	for _, b := range o.cfg.Basins {
		if !snap.Basins[b.ID] {
			continue
		}
		if fc, ok := o.Collection(KindBasin, b.ID); ok {
			res.Basins[b.ID] = fc
		}
	}
	if snap.AnyBasinVisible() {
		if fc, ok := o.Collection(KindBasinCentroids, BasinCentroidsID); ok {
			res.BasinCentroids = fc
		}
	}

	if snap.Theme == state.ThemeHydrology {
		for _, r := range o.cfg.Themes.Hydrology.Orders {
			if !snap.RiverOrders[r.ID] {
				continue
			}
			if fc, ok := o.River(snap, r.ID); ok && len(fc.Features) > 0 {
				res.Rivers[r.ID] = fc
			}
		}
	}

	res.Overlay = o.overlayFor(snap)

	return res
}

func (o *Orchestrator) overlayFor(snap state.Snapshot) *ImageOverlay {
	bounds := o.cfg.Overlay.Calibrated()

	switch snap.Theme {
	case state.ThemeLanduse:
		if o.cfg.Themes.Landuse.Image != "" {
			return &ImageOverlay{Image: o.cfg.Themes.Landuse.Image, Bounds: bounds}
		}
	case state.ThemeTerrain:
		if st, ok := o.cfg.SubTheme(snap.SubTheme); ok && st.Image != "" {
			return &ImageOverlay{Image: st.Image, Bounds: bounds}
		}
	}

	return nil
}

// River returns a loaded river order narrowed to the snapshot's selected basins.
func (o *Orchestrator) River(snap state.Snapshot, id string) (*geojson.FeatureCollection, bool) {
	fc, ok := o.Collection(KindRiverOrder, id)
	if !ok {
		return nil, false
	}
	return basin.FilterByBasin(fc, snap.BasinSet()), true
}

// Sample reads the active terrain raster at a clicked location.
// A raster that cannot be loaded yields the failure reading together with the error.
func (o *Orchestrator) Sample(ctx context.Context, snap state.Snapshot, lon, lat float64) (raster.Reading, error) {
	if snap.Theme != state.ThemeTerrain {
		return raster.Reading{}, ErrNoTerrain
	}

	st, ok := o.cfg.SubTheme(snap.SubTheme)
	if !ok {
		return raster.Reading{}, state.ErrUnknownSubTheme
	}

	grid, _, err := o.Raster(ctx, st.ID)
	if err != nil {
		log.Warn().Err(err).Str("sub_theme", st.ID).Msg("Terrain sample failed")
		return raster.FailedReading(st.ID, st.Label, lon, lat), err
	}

	v := raster.Sample(grid, lon, lat)
	log.Debug().
		Str("sub_theme", st.ID).
		Float64("lon", lon).
		Float64("lat", lat).
		Bool("available", v.Available).
		Msg("Terrain sampled")

	return raster.NewReading(st.ID, st.Label, st.Unit, lon, lat, v), nil
}

// RiverLegend is one line of the hydrology legend.
type RiverLegend struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Thickness float64 `json:"thickness"`
	Selected  bool    `json:"selected"`
}

// TerrainLegend describes the active raster.
type TerrainLegend struct {
	SubTheme string          `json:"sub_theme"`
	Label    string          `json:"label"`
	Unit     string          `json:"unit,omitempty"`
	Summary  *raster.Summary `json:"summary,omitempty"`
}

// Legend is the legend content of the active theme.
type Legend struct {
	Theme   state.Theme           `json:"theme"`
	Landuse []config.LanduseClass `json:"landuse,omitempty"`
	Rivers  []RiverLegend         `json:"rivers,omitempty"`
	Terrain *TerrainLegend        `json:"terrain,omitempty"`
}

// Legend builds the legend for snap. The terrain summary is omitted when the raster is unavailable.
func (o *Orchestrator) Legend(ctx context.Context, snap state.Snapshot) Legend {
	lg := Legend{Theme: snap.Theme}

	switch snap.Theme {
	case state.ThemeLanduse:
		lg.Landuse = o.cfg.Themes.Landuse.Classes
	case state.ThemeHydrology:
		for _, r := range o.cfg.Themes.Hydrology.Orders {
			lg.Rivers = append(lg.Rivers, RiverLegend{
				ID:        r.ID,
				Label:     r.Label,
				Thickness: r.Thickness,
				Selected:  snap.RiverOrders[r.ID],
			})
		}
	case state.ThemeTerrain:
		st, ok := o.cfg.SubTheme(snap.SubTheme)
		if !ok {
			break
		}
		lg.Terrain = &TerrainLegend{SubTheme: st.ID, Label: st.Label, Unit: st.Unit}
		if _, summary, err := o.Raster(ctx, st.ID); err == nil {
			lg.Terrain.Summary = &summary
		}
	}

	return lg
}

// Overlay renders the active terrain raster as an image.
func (o *Orchestrator) Overlay(ctx context.Context, snap state.Snapshot, maxSize int) (image.Image, error) {
	if snap.Theme != state.ThemeTerrain {
		return nil, ErrNoTerrain
	}

	grid, summary, err := o.Raster(ctx, snap.SubTheme)
	if err != nil {
		return nil, err
	}

	return raster.RenderOverlay(grid, summary, maxSize)
}

// Hit is a feature found under a click.
type Hit struct {
	Kind       Kind               `json:"kind"`
	ID         string             `json:"id"`
	Properties geojson.Properties `json:"properties"`
}

// Identify returns the rendered features at (lon, lat), topmost dataset kinds last.
func (o *Orchestrator) Identify(snap state.Snapshot, lon, lat float64) []Hit {
	res := o.Resolve(snap)
	p := orb.Point{lon, lat}
	selected := snap.BasinSet()

	hits := []Hit{}
	collect := func(kind Kind, id string, filter bool) {
		key := Key(kind, id)
		fc, ok := o.collections.Get(key)
		if !ok {
			return
		}

		ix, ok := o.indexes.Get(key)
		if !ok {
			o.indexes.SetIfAbsent(key, index.New(fc))
			ix, _ = o.indexes.Get(key)
		}

		for _, f := range ix.Identify(p, index.DefaultTolerance) {
			if filter {
				if bid, ok := basin.ID(f); !ok || !selected.Has(bid) {
					continue
				}
			}
			hits = append(hits, Hit{Kind: kind, ID: id, Properties: f.Properties})
		}
	}

	for _, b := range o.cfg.Basins {
		if _, ok := res.Basins[b.ID]; ok {
			collect(KindBasin, b.ID, false)
		}
	}
	for _, r := range o.cfg.Themes.Hydrology.Orders {
		if _, ok := res.Rivers[r.ID]; ok {
			collect(KindRiverOrder, r.ID, true)
		}
	}
	for _, l := range o.cfg.Layers {
		if _, ok := res.Layers[l.ID]; ok {
			collect(KindLayer, l.ID, false)
		}
	}

	return hits
}
