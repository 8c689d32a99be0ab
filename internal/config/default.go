package config

import (
	"fmt"
	"time"
)

// Default returns the Mahi basin catalog.
func Default() *Config {
	basins := make([]Basin, 0, 10)
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("%s%d", BasinPrefix, i)
		basins = append(basins, Basin{
			ID:      id,
			Label:   fmt.Sprintf("Sub-Basin (MA - %d)", i),
			File:    id + ".geojson",
			Landuse: append([]ClassArea(nil), basinLanduse[id]...),
		})
	}

	orders := make([]RiverOrder, 0, 6)
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("%d-%d", i, i+1)
		orders = append(orders, RiverOrder{
			ID:        id,
			Label:     id,
			File:      fmt.Sprintf("order%d.geojson", i),
			Thickness: 1 + 0.5*float64(i-1),
		})
	}

	return &Config{
		Assets:         "public",
		BasinCentroids: "MahiBasinCentroids.geojson",
		Layers: []Layer{
			{ID: "district", Label: "District", File: "DistrictBoundary.geojson", Centroids: "DitsrictCentroids.geojson"},
			{ID: "talukas", Label: "Talukas", File: "TalukaBoundary.geojson", Centroids: "TalukaCentroids.geojson"},
			{ID: "road", Label: "Road", File: "Roads_layer.geojson"},
			{ID: "railways", Label: "Railways", File: "Railway.geojson"},
			{ID: "canal", Label: "Canal", File: "Canals.geojson"},
		},
		Basins: basins,
		Themes: Themes{
			Landuse: Landuse{
				Image: "Landuse_Edge.png",
				Classes: []LanduseClass{
					{Value: 1, Label: "Builtup", Color: "#ff0000"},
					{Value: 2, Label: "Waterbodies", Color: "#013ddc"},
					{Value: 3, Label: "Agriculture", Color: "#feff73"},
					{Value: 4, Label: "Vegetation Patches", Color: "#7ac602"},
					{Value: 5, Label: "Shrubland", Color: "#95e689"},
					{Value: 6, Label: "Salineland", Color: "#dfaaf0"},
					{Value: 7, Label: "Barrenland", Color: "#fe95e7"},
					{Value: 8, Label: "Fallowland", Color: "#fefeb4"},
					{Value: 9, Label: "Forest Patches", Color: "#267300"},
				},
			},
			Hydrology: Hydrology{Orders: orders},
			Terrain: Terrain{
				Default: "elevation",
				SubThemes: []SubTheme{
					{ID: "elevation", Label: "Elevation", Raster: "MahiElevation.tif", Image: "Elevation_Edge.png", Unit: " meters"},
					{ID: "slope", Label: "Slope", Raster: "MahiSlope.tif", Image: "Slope_Edge.png"},
					{ID: "aspect", Label: "Aspect", Raster: "MahiAspect.tif", Image: "Aspect_Edge.png"},
				},
			},
		},
		Overlay: Overlay{
			South:     21.6538526169347278,
			West:      72.4500108944436363,
			North:     24.599028110435821,
			East:      75.2870019434714663,
			OffsetLon: 0.03,
			OffsetLat: -0.01,
		},
		Timeout:     15 * time.Second,
		Concurrency: 8,
	}
}

// basinLanduse holds the surveyed land-use class areas of each Mahi sub-basin, in square metres.
var basinLanduse = map[string][]ClassArea{
	"MA1": {
		{1, 35184067.84}, {2, 114602638.47}, {3, 2836033560.99}, {4, 1658631848.4},
		{5, 3761984509.47}, {7, 107928901.04}, {8, 45017608.19},
	},
	"MA2": {
		{1, 1395533.99}, {2, 10209576.98}, {3, 511467314.03}, {4, 105310335.3},
		{5, 394788259.72}, {7, 13988197.46}, {8, 36834247.99},
	},
	"MA3": {
		{1, 14634396.32}, {2, 38854988.51}, {3, 653344473.22}, {4, 8372291.22},
		{5, 404835374.27}, {7, 826915.5}, {8, 361834855.76},
	},
	"MA4": {
		{1, 37809022.55}, {2, 43937871.95}, {3, 1682449022.66}, {4, 241407300.41},
		{5, 1119828862.06}, {7, 57550945.49}, {8, 39517616.16},
	},
	"MA5": {
		{1, 66279193.71}, {2, 121298280.94}, {3, 2532718949.02}, {4, 6358852.39},
		{5, 1225216777.73}, {6, 30119.44}, {7, 571356.62}, {8, 786455050.36},
	},
	"MA6": {
		{1, 5514595.4}, {2, 112920513.46}, {3, 1062583674.51}, {4, 114169101.09},
		{5, 727862702.46}, {7, 39002847.57}, {8, 11707334.51}, {9, 382186469.15},
	},
	"MA7": {
		{1, 49341116.69}, {2, 55447148.34}, {3, 2587329142.05}, {4, 53170848.95},
		{5, 1594324108.85}, {7, 196279254.28}, {8, 883509008.64}, {9, 261236843.53},
	},
	"MA8": {
		{1, 4747918.78}, {2, 57414951.66}, {3, 982575493.05}, {4, 236263265.38},
		{5, 746691915.14}, {7, 26527011.02}, {8, 8930869.9}, {9, 660050155.51},
	},
	"MA9": {
		{1, 76006859.67}, {2, 67531432.19}, {3, 2384695598.94}, {4, 257031987.36},
		{5, 639581715.2}, {6, 1955938.09}, {7, 45093363.14}, {8, 148761732.69},
		{9, 405690583.79},
	},
	"MA10": {
		{1, 277507729.35}, {2, 224528549.56}, {3, 3650695009.25}, {4, 573368236.63},
		{5, 432528829.01}, {6, 192809129.87}, {7, 29941460.1}, {8, 598471419.64},
		{9, 83711959.69},
	},
}
