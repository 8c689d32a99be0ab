package raster

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the valid cells of a grid's first band.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// Stats summarizes band 0, skipping no-data and non-finite cells.
func Stats(g *Grid) Summary {
	if g == nil || len(g.Bands) == 0 {
		return Summary{}
	}

	values := make([]float64, 0, len(g.Bands[0]))
	for _, v := range g.Bands[0] {
		if !g.isNoData(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Count: len(values),
	}
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}

	return s
}
