// Package config handles configuration loading and the static dataset catalog.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BasinPrefix is prepended to the numeric basin attribute to build a basin id.
const BasinPrefix = "MA"

// Config represents the root configuration file structure.
type Config struct {
	Assets         string        `yaml:"assets" json:"-"`
	BasinCentroids string        `yaml:"basin_centroids,omitempty" json:"basin_centroids,omitempty"`
	Layers         []Layer       `yaml:"layers" json:"layers"`
	Basins         []Basin       `yaml:"basins" json:"basins"`
	Themes         Themes        `yaml:"themes" json:"themes"`
	Overlay        Overlay       `yaml:"overlay" json:"overlay"`
	Timeout        time.Duration `yaml:"timeout,omitempty" json:"-"`
	Concurrency    int           `yaml:"concurrency,omitempty" json:"-"`
	Precision      int           `yaml:"precision,omitempty" json:"-"` // significant digits in JSON responses, 0 keeps all
}

// Layer is a boundary or infrastructure layer authored in geographic coordinates.
type Layer struct {
	ID        string `yaml:"id" json:"id"`
	Label     string `yaml:"label" json:"label"`
	File      string `yaml:"file" json:"file"`
	Centroids string `yaml:"centroids,omitempty" json:"centroids,omitempty"`
}

// Basin is a watershed sub-catchment authored in the projected CRS.
type Basin struct {
	ID      string      `yaml:"id" json:"id"`
	Label   string      `yaml:"label" json:"label"`
	File    string      `yaml:"file" json:"file"`
	Landuse []ClassArea `yaml:"landuse,omitempty" json:"-"`
}

// ClassArea is the area in square metres a land-use class covers within a basin.
type ClassArea struct {
	Class int     `yaml:"class" json:"class"`
	Area  float64 `yaml:"area" json:"area"`
}

// Themes groups the analytic theme catalog.
type Themes struct {
	Landuse   Landuse   `yaml:"landuse" json:"landuse"`
	Hydrology Hydrology `yaml:"hydrology" json:"hydrology"`
	Terrain   Terrain   `yaml:"terrain" json:"terrain"`
}

// Landuse describes the land-use overlay image and its legend classes.
type Landuse struct {
	Image   string         `yaml:"image" json:"image"`
	Classes []LanduseClass `yaml:"classes" json:"classes"`
}

// LanduseClass is one legend entry of the land-use raster.
type LanduseClass struct {
	Value int    `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// Hydrology lists the river order buckets.
type Hydrology struct {
	Orders []RiverOrder `yaml:"orders" json:"orders"`
}

// RiverOrder is a river network bucket authored in the projected CRS.
type RiverOrder struct {
	ID        string  `yaml:"id" json:"id"`
	Label     string  `yaml:"label" json:"label"`
	File      string  `yaml:"file" json:"file"`
	Thickness float64 `yaml:"thickness" json:"thickness"`
}

// Terrain lists the raster sub-themes.
type Terrain struct {
	Default   string     `yaml:"default" json:"default"`
	SubThemes []SubTheme `yaml:"sub_themes" json:"sub_themes"`
}

// SubTheme is a terrain raster variable.
type SubTheme struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Raster string `yaml:"raster" json:"-"`
	Image  string `yaml:"image,omitempty" json:"image,omitempty"`
	Unit   string `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Overlay holds image overlay bounds and the manual alignment nudges applied to them.
type Overlay struct {
	South     float64 `yaml:"south" json:"south"`
	West      float64 `yaml:"west" json:"west"`
	North     float64 `yaml:"north" json:"north"`
	East      float64 `yaml:"east" json:"east"`
	OffsetLon float64 `yaml:"offset_lon" json:"offset_lon"`
	OffsetLat float64 `yaml:"offset_lat" json:"offset_lat"`
}

// Calibrated returns the overlay bounds as [[south, west], [north, east]] with offsets applied.
func (o Overlay) Calibrated() [2][2]float64 {
	return [2][2]float64{
		{o.South + o.OffsetLat, o.West + o.OffsetLon},
		{o.North + o.OffsetLat, o.East + o.OffsetLon},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// An empty path yields the built-in catalog.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset section from the built-in catalog.
func (c *Config) ApplyDefaults() {
	def := Default()

	if c.Assets == "" {
		c.Assets = def.Assets
	}
	if c.BasinCentroids == "" {
		c.BasinCentroids = def.BasinCentroids
	}
	if len(c.Layers) == 0 {
		c.Layers = def.Layers
	}
	if len(c.Basins) == 0 {
		c.Basins = def.Basins
	}
	if c.Themes.Landuse.Image == "" {
		c.Themes.Landuse.Image = def.Themes.Landuse.Image
	}
	if len(c.Themes.Landuse.Classes) == 0 {
		c.Themes.Landuse.Classes = def.Themes.Landuse.Classes
	}
	if len(c.Themes.Hydrology.Orders) == 0 {
		c.Themes.Hydrology = def.Themes.Hydrology
	}
	if len(c.Themes.Terrain.SubThemes) == 0 {
		c.Themes.Terrain.SubThemes = def.Themes.Terrain.SubThemes
	}
	if c.Themes.Terrain.Default == "" {
		c.Themes.Terrain.Default = c.Themes.Terrain.SubThemes[0].ID
	}
	if c.Overlay == (Overlay{}) {
		c.Overlay = def.Overlay
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
}

// Validate checks catalog consistency.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s with empty id", kind)
		}
		key := kind + "/" + id
		if seen[key] {
			return fmt.Errorf("duplicate %s id %q", kind, id)
		}
		seen[key] = true
		return nil
	}

	for _, l := range c.Layers {
		if err := unique("layer", l.ID); err != nil {
			return err
		}
		if l.File == "" {
			return fmt.Errorf("layer %q has no file", l.ID)
		}
	}

	for _, b := range c.Basins {
		if err := unique("basin", b.ID); err != nil {
			return err
		}
		if !strings.HasPrefix(b.ID, BasinPrefix) {
			return fmt.Errorf("basin id %q must start with %q", b.ID, BasinPrefix)
		}

		classes := make(map[int]bool, len(b.Landuse))
		for _, ca := range b.Landuse {
			if classes[ca.Class] {
				return fmt.Errorf("basin %q lists land-use class %d twice", b.ID, ca.Class)
			}
			classes[ca.Class] = true
			if ca.Area < 0 {
				return fmt.Errorf("basin %q land-use class %d has negative area", b.ID, ca.Class)
			}
		}
	}

	prev := 0.0
	for _, o := range c.Themes.Hydrology.Orders {
		if err := unique("river order", o.ID); err != nil {
			return err
		}
		if o.Thickness <= prev {
			return fmt.Errorf("river order %q thickness %.2f must exceed %.2f", o.ID, o.Thickness, prev)
		}
		prev = o.Thickness
	}

	found := false
	for _, s := range c.Themes.Terrain.SubThemes {
		if err := unique("sub-theme", s.ID); err != nil {
			return err
		}
		if s.Raster == "" {
			return fmt.Errorf("sub-theme %q has no raster", s.ID)
		}
		if s.ID == c.Themes.Terrain.Default {
			found = true
		}
	}
	if !found {
		return errors.New("terrain default sub-theme is not in the catalog")
	}

	return nil
}

// Layer returns the catalog entry for id.
func (c *Config) Layer(id string) (Layer, bool) {
	for _, l := range c.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Basin returns the catalog entry for id.
func (c *Config) Basin(id string) (Basin, bool) {
	for _, b := range c.Basins {
		if b.ID == id {
			return b, true
		}
	}
	return Basin{}, false
}

// LanduseClass returns the legend entry for a class value.
func (c *Config) LanduseClass(value int) (LanduseClass, bool) {
	for _, lc := range c.Themes.Landuse.Classes {
		if lc.Value == value {
			return lc, true
		}
	}
	return LanduseClass{}, false
}

// RiverOrder returns the catalog entry for id.
func (c *Config) RiverOrder(id string) (RiverOrder, bool) {
	for _, o := range c.Themes.Hydrology.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return RiverOrder{}, false
}

// SubTheme returns the catalog entry for id.
func (c *Config) SubTheme(id string) (SubTheme, bool) {
	for _, s := range c.Themes.Terrain.SubThemes {
		if s.ID == id {
			return s, true
		}
	}
	return SubTheme{}, false
}
