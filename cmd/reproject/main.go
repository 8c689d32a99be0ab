package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/hydroview/internal/basin"
	"github.com/woozymasta/hydroview/internal/geo"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input  string   `short:"i" long:"in"     description:"Input GeoJSON in UTM zone 43N. Reads from stdin if empty"`
	Output string   `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format string   `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Basins []string `short:"b" long:"basin"  description:"Keep only features of these basins (e.g. MA3), repeatable"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Read Input
	var inputData []byte
	var err error

	if opts.Input != "" {
		inputData, err = os.ReadFile(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
	} else {
		inputData, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
	}

	fc, err := geo.Decode(inputData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding GeoJSON: %v\n", err)
		os.Exit(1)
	}

	fc = geo.ReprojectCollection(fc)
	if len(opts.Basins) > 0 {
		fc = basin.FilterByBasin(fc, basin.NewSet(opts.Basins...))
	}

	// marshal
	outputData, err := json.MarshalIndent(fc, "", "  ")
	if err == nil && opts.Format == "yaml" {
		// geojson types only know JSON, so go through a generic document
		var doc interface{}
		if err = json.Unmarshal(outputData, &doc); err == nil {
			outputData, err = yaml.Marshal(doc)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully reprojected %d features to %s (format: %s)\n", len(fc.Features), opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}
