package server

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/loader"
	"github.com/woozymasta/hydroview/internal/state"
)

const (
	mimeJSON = "application/json"

	// longest side of the rendered terrain overlay
	defaultOverlaySize = 2048
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config      *config.Config
	Store       *state.Store
	Loader      *loader.Orchestrator
	OverlaySize int
	Origins     []string

	minifier *minify.M
}

// NewServerContext wires the state store and the loader behind the HTTP handlers.
func NewServerContext(cfg *config.Config, store *state.Store, orch *loader.Orchestrator) *ServerContext {
	m := minify.New()
	m.Add(mimeJSON, &json.Minifier{Precision: cfg.Precision})

	log.Info().
		Int("layers", len(cfg.Layers)).
		Int("basins", len(cfg.Basins)).
		Int("river_orders", len(cfg.Themes.Hydrology.Orders)).
		Int("sub_themes", len(cfg.Themes.Terrain.SubThemes)).
		Str("assets", cfg.Assets).
		Msg("Server context initialized")

	return &ServerContext{
		Config:      cfg,
		Store:       store,
		Loader:      orch,
		OverlaySize: defaultOverlaySize,
		minifier:    m,
	}
}

// Router builds the HTTP handler tree.
func (s *ServerContext) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	r.Get("/health", s.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.HandleCatalog)
		r.Get("/resolved", s.HandleResolved)
		r.Get("/sample", s.HandleSample)
		r.Get("/identify", s.HandleIdentify)
		r.Get("/legend", s.HandleLegend)
		r.Get("/statistics", s.HandleStatistics)
		r.Get("/overlay.webp", s.HandleOverlay)
		r.Get("/metrics", s.HandleMetrics)

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.HandleState)
			r.Put("/theme", s.HandleSetTheme)
			r.Put("/subtheme", s.HandleSetSubTheme)
			r.Post("/layers/{id}/toggle", s.HandleToggle(s.Store.ToggleLayer))
			r.Put("/layers/{id}", s.HandleSetVisibility(s.Store.SetLayerVisibility))
			r.Post("/basins/{id}/toggle", s.HandleToggle(s.Store.ToggleBasin))
			r.Put("/basins/{id}", s.HandleSetVisibility(s.Store.SetBasinVisibility))
			r.Post("/rivers/{id}/toggle", s.HandleToggle(s.Store.ToggleRiverOrder))
			r.Put("/rivers/{id}", s.HandleSetVisibility(s.Store.SetRiverOrder))
		})

		r.Route("/data", func(r chi.Router) {
			r.Get("/layers/{id}", s.HandleData(loader.KindLayer))
			r.Get("/layers/{id}/centroids", s.HandleData(loader.KindLayerCentroids))
			r.Get("/basins/centroids", s.HandleBasinCentroids)
			r.Get("/basins/{id}", s.HandleData(loader.KindBasin))
			r.Get("/rivers/{id}", s.HandleRiver)
		})
	})

	origins := s.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}
