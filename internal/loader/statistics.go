package loader

import (
	"gonum.org/v1/gonum/floats"

	"github.com/woozymasta/hydroview/internal/state"
)

// ClassShare is one land-use class of a basin breakdown.
type ClassShare struct {
	Class   int     `json:"class"`
	Label   string  `json:"label"`
	Color   string  `json:"color"`
	Area    float64 `json:"area"`
	Percent float64 `json:"percent"`
}

// BasinStatistics is the land-use breakdown of one selected basin.
type BasinStatistics struct {
	Basin           string       `json:"basin"`
	Label           string       `json:"label"`
	Total           float64      `json:"total"`
	Dominant        int          `json:"dominant"`
	DominantPercent float64      `json:"dominant_percent"`
	Classes         []ClassShare `json:"classes"`
}

// Statistics lists the land-use breakdowns of the selected basins.
type Statistics struct {
	Version uint64            `json:"version"`
	Basins  []BasinStatistics `json:"basins"`
}

// Statistics builds the land-use breakdown of every selected basin, ordered by
// basin number. Basins without surveyed areas are left out.
func (o *Orchestrator) Statistics(snap state.Snapshot) Statistics {
	out := Statistics{Version: snap.Version, Basins: []BasinStatistics{}}

	for _, id := range snap.BasinSet().Sorted() {
		b, ok := o.cfg.Basin(id)
		if !ok || len(b.Landuse) == 0 {
			continue
		}

		areas := make([]float64, len(b.Landuse))
		for i, ca := range b.Landuse {
			areas[i] = ca.Area
		}
		total := floats.Sum(areas)

		bs := BasinStatistics{
			Basin:   b.ID,
			Label:   b.Label,
			Total:   total,
			Classes: make([]ClassShare, 0, len(b.Landuse)),
		}

		for _, ca := range b.Landuse {
			share := ClassShare{Class: ca.Class, Label: "Unknown", Color: "#000000", Area: ca.Area}
			if lc, ok := o.cfg.LanduseClass(ca.Class); ok {
				share.Label, share.Color = lc.Label, lc.Color
			}
			if total > 0 {
				share.Percent = ca.Area / total * 100
			}
			bs.Classes = append(bs.Classes, share)
		}

		top := floats.MaxIdx(areas)
		bs.Dominant = b.Landuse[top].Class
		if total > 0 {
			bs.DominantPercent = floats.Max(areas) / total * 100
		}

		out.Basins = append(out.Basins, bs)
	}

	return out
}
