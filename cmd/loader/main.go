package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/loader"
	"github.com/woozymasta/hydroview/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file, built-in catalog if empty" default:"config.yaml"`
	Assets      string `short:"d" long:"assets"      env:"ASSETS"      description:"Asset directory or base URL, overrides the config"`
	Concurrency int    `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Parallel fetches, overrides the config"`
	Strict      bool   `short:"s" long:"strict"      description:"Exit with an error if any asset fails"`
	Metrics     bool   `short:"m" long:"metrics"     description:"Dump fetch metrics as JSON to stdout"`
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

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Assets != "" {
		cfg.Assets = opts.Assets
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := loader.New(cfg, loader.NewSource(cfg.Assets, cfg.Timeout))

	log.Info().
		Str("assets", cfg.Assets).
		Int("assets_total", len(loader.Catalog(cfg))).
		Int("concurrency", cfg.Concurrency).
		Msg("Starting loader")

	rep := orch.EnsureAll(ctx)

	for _, key := range rep.Loaded {
		log.Info().Str("asset", key).Msg("Asset loaded")
	}

	failed := make([]string, 0, len(rep.Failed))
	for key := range rep.Failed {
		failed = append(failed, key)
	}
	sort.Strings(failed)
	for _, key := range failed {
		log.Error().Str("asset", key).Str("reason", rep.Failed[key]).Msg("Asset failed")
	}

	if opts.Metrics {
		orch.Metrics().WriteJSON(os.Stdout)
	}

	log.Info().
		Int("loaded", len(rep.Loaded)).
		Int("failed", len(rep.Failed)).
		Msg("Loader finished")

	if opts.Strict && !rep.OK() {
		os.Exit(1)
	}
}
