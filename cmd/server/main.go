package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/loader"
	"github.com/woozymasta/hydroview/internal/logger"
	"github.com/woozymasta/hydroview/internal/server"
	"github.com/woozymasta/hydroview/internal/state"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"    description:"Path to configuration file, built-in catalog if empty" default:"config.yaml"`
	Addr        string   `short:"a" long:"addr"         env:"LISTEN_ADDRESS" description:"Address to listen on"                                default:"0.0.0.0"`
	Port        int      `short:"p" long:"port"         env:"LISTEN_PORT"    description:"Port to listen on"                                   default:"8080"`
	Assets      string   `short:"d" long:"assets"       env:"ASSETS"         description:"Asset directory or base URL, overrides the config"`
	Origins     []string `short:"o" long:"origin"       env:"CORS_ORIGINS"   env-delim:"," description:"Allowed CORS origins"`
	OverlaySize int      `short:"s" long:"overlay-size" env:"OVERLAY_SIZE"   description:"Longest side of the rendered terrain overlay" default:"2048"`
	Preload     bool     `short:"P" long:"preload"      env:"PRELOAD"        description:"Fetch the whole catalog at startup"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Assets != "" {
		cfg.Assets = opts.Assets
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.New(cfg)
	orch := loader.New(cfg, loader.NewSource(cfg.Assets, cfg.Timeout))

	if opts.Preload {
		rep := orch.EnsureAll(ctx)
		log.Info().
			Int("loaded", len(rep.Loaded)).
			Int("failed", len(rep.Failed)).
			Msg("Catalog preloaded")
	}
	go orch.Watch(ctx, store)

	srvCtx := server.NewServerContext(cfg, store, orch)
	srvCtx.Origins = opts.Origins
	if opts.OverlaySize > 0 {
		srvCtx.OverlaySize = opts.OverlaySize
	}

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Str("assets", cfg.Assets).
		Int("layers", len(cfg.Layers)).
		Int("basins", len(cfg.Basins)).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Web server stopped")
}
