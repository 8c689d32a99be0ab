// Package raster holds decoded terrain grids and nearest-cell sampling at geographic coordinates.
package raster

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidGrid is returned when a grid's dimensions, bounds or band sizes disagree.
var ErrInvalidGrid = errors.New("invalid raster grid")

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// Center returns the center of the box.
func (b Bounds) Center() (lon, lat float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// Grid is a decoded raster. Pixel (0,0) is the northwest corner and
// bands are stored row-major.
type Grid struct {
	Width  int
	Height int
	Bounds Bounds
	Bands  [][]float64
	NoData *float64
}

// Validate checks that the grid can be sampled.
func (g *Grid) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrInvalidGrid)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidGrid, g.Width, g.Height)
	}
	if !(g.Bounds.East > g.Bounds.West) || !(g.Bounds.North > g.Bounds.South) {
		return fmt.Errorf("%w: degenerate bounds %+v", ErrInvalidGrid, g.Bounds)
	}
	if len(g.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidGrid)
	}
	for i, band := range g.Bands {
		if len(band) != g.Width*g.Height {
			return fmt.Errorf("%w: band %d has %d cells, want %d", ErrInvalidGrid, i, len(band), g.Width*g.Height)
		}
	}

	return nil
}

// PixelSize returns the cell size in degrees.
func (g *Grid) PixelSize() (dx, dy float64) {
	return (g.Bounds.East - g.Bounds.West) / float64(g.Width),
		(g.Bounds.North - g.Bounds.South) / float64(g.Height)
}

func (g *Grid) isNoData(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return g.NoData != nil && v == *g.NoData
}

// Value is a sampled cell. Available is false when the location has no reading.
type Value struct {
	Available bool    `json:"available"`
	Raw       float64 `json:"raw"`
}

// NotAvailable is the reading for out-of-bounds or no-data locations.
func NotAvailable() Value {
	return Value{}
}

// Rounded returns the value rounded to 2 decimal places.
func (v Value) Rounded() float64 {
	return math.Round(v.Raw*100) / 100
}

// String renders the value with 2 decimals or "N/A".
func (v Value) String() string {
	if !v.Available {
		return "N/A"
	}
	return strconv.FormatFloat(v.Raw, 'f', 2, 64)
}

// Format renders the value followed by unit. The unit is omitted for "N/A".
func (v Value) Format(unit string) string {
	if !v.Available {
		return v.String()
	}
	return v.String() + unit
}

// Sample returns the band-0 value of the cell containing (lon, lat).
// Points on the east or south edge fall into the last column or row.
func Sample(g *Grid, lon, lat float64) Value {
	if g == nil || g.Width <= 0 || g.Height <= 0 || len(g.Bands) == 0 {
		return NotAvailable()
	}
	if !g.Bounds.Contains(lon, lat) {
		return NotAvailable()
	}

	b := g.Bounds
	x := (lon - b.West) / (b.East - b.West) * float64(g.Width)
	y := (b.North - lat) / (b.North - b.South) * float64(g.Height)
	if math.IsNaN(x) || math.IsNaN(y) {
		return NotAvailable()
	}

	col := min(int(math.Floor(x)), g.Width-1)
	row := min(int(math.Floor(y)), g.Height-1)

	idx := row*g.Width + col
	band := g.Bands[0]
	if idx < 0 || idx >= g.Width*g.Height || idx >= len(band) {
		return NotAvailable()
	}

	v := band[idx]
	if g.isNoData(v) {
		return NotAvailable()
	}

	return Value{Available: true, Raw: v}
}

// Reading is a sampled value labelled for display, e.g. "Elevation: 123.46 meters".
type Reading struct {
	SubTheme string  `json:"sub_theme"`
	Label    string  `json:"label"`
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Value    Value   `json:"value"`
	Unit     string  `json:"unit"`
	Text     string  `json:"text"`
}

// NewReading labels v for the sub-theme it was sampled from.
func NewReading(subTheme, label, unit string, lon, lat float64, v Value) Reading {
	return Reading{
		SubTheme: subTheme,
		Label:    label,
		Lon:      lon,
		Lat:      lat,
		Value:    v,
		Unit:     unit,
		Text:     label + ": " + v.Format(unit),
	}
}

// FailedReading is reported when the raster for label could not be loaded.
func FailedReading(subTheme, label string, lon, lat float64) Reading {
	return Reading{
		SubTheme: subTheme,
		Label:    label,
		Lon:      lon,
		Lat:      lat,
		Text:     "Error loading " + label + " data",
	}
}
