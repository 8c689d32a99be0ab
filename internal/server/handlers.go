// Package server exposes the viewer state and datasets over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/loader"
	"github.com/woozymasta/hydroview/internal/raster"
	"github.com/woozymasta/hydroview/internal/state"
)

type errorResponse struct {
	Error string `json:"error"`
}

type catalogResponse struct {
	Layers        []config.Layer `json:"layers"`
	Basins        []config.Basin `json:"basins"`
	Themes        config.Themes  `json:"themes"`
	OverlayBounds [2][2]float64  `json:"overlay_bounds"`
}

// writeJSON encodes v, minifies it and writes it with status.
func (s *ServerContext) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if compact, err := s.minifier.Bytes(mimeJSON, data); err == nil {
		data = compact
	} else {
		log.Debug().Err(err).Msg("Response minification skipped")
	}

	w.Header().Set("Content-Type", mimeJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_, _ = w.Write(data)
}

func (s *ServerContext) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// HandleHealth reports liveness.
func (s *ServerContext) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCatalog serves the layer, basin and theme catalog.
func (s *ServerContext) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, catalogResponse{
		Layers:        s.Config.Layers,
		Basins:        s.Config.Basins,
		Themes:        s.Config.Themes,
		OverlayBounds: s.Config.Overlay.Calibrated(),
	})
}

// HandleState serves the current state snapshot.
func (s *ServerContext) HandleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Store.Snapshot())
}

// HandleSetTheme switches the active theme. Body: {"theme": "terrain"}.
func (s *ServerContext) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	theme, err := state.ParseTheme(req.Theme)
	if err == nil {
		err = s.Store.SetTheme(theme)
	}
	s.transition(w, err)
}

// HandleSetSubTheme picks the terrain raster. Body: {"sub_theme": "slope"}.
func (s *ServerContext) HandleSetSubTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubTheme string `json:"sub_theme"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	s.transition(w, s.Store.SetSubTheme(req.SubTheme))
}

// HandleToggle adapts a toggle transition keyed by the {id} URL parameter.
func (s *ServerContext) HandleToggle(toggle func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.transition(w, toggle(chi.URLParam(r, "id")))
	}
}

// HandleSetVisibility adapts a set transition. Body: {"visible": true}.
func (s *ServerContext) HandleSetVisibility(set func(id string, visible bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Visible *bool `json:"visible"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		if req.Visible == nil {
			s.writeError(w, http.StatusBadRequest, "visible is required")
			return
		}

		s.transition(w, set(chi.URLParam(r, "id"), *req.Visible))
	}
}

func (s *ServerContext) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *ServerContext) transition(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.Store.Snapshot())
}

// HandleData serves a single dataset, loading it on first request.
func (s *ServerContext) HandleData(kind loader.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveDataset(w, r, kind, chi.URLParam(r, "id"))
	}
}

// HandleBasinCentroids serves the basin label points.
func (s *ServerContext) HandleBasinCentroids(w http.ResponseWriter, r *http.Request) {
	s.serveDataset(w, r, loader.KindBasinCentroids, loader.BasinCentroidsID)
}

func (s *ServerContext) serveDataset(w http.ResponseWriter, r *http.Request, kind loader.Kind, id string) {
	if !s.ensureAsset(w, r, kind, id) {
		return
	}

	fc, ok := s.Loader.Collection(kind, id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no data for this layer")
		return
	}
	s.writeJSON(w, http.StatusOK, fc)
}

// HandleRiver serves a river order narrowed to the currently selected basins.
func (s *ServerContext) HandleRiver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ensureAsset(w, r, loader.KindRiverOrder, id) {
		return
	}

	fc, ok := s.Loader.River(s.Store.Snapshot(), id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no data for this layer")
		return
	}
	s.writeJSON(w, http.StatusOK, fc)
}

func (s *ServerContext) ensureAsset(w http.ResponseWriter, r *http.Request, kind loader.Kind, id string) bool {
	a, ok := loader.Lookup(s.Config, kind, id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown "+string(kind)+" "+strconv.Quote(id))
		return false
	}

	if _, err := s.Loader.Load(r.Context(), a); err != nil {
		log.Debug().Err(err).Str("asset", a.Key()).Msg("Dataset unavailable")
		s.writeError(w, http.StatusNotFound, "no data for this layer")
		return false
	}

	return true
}

// HandleResolved serves everything currently renderable.
func (s *ServerContext) HandleResolved(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Loader.Resolve(s.Store.Snapshot()))
}

// HandleSample reads the active terrain raster at ?lon=&lat=.
func (s *ServerContext) HandleSample(w http.ResponseWriter, r *http.Request) {
	lon, lat, ok := s.coords(w, r)
	if !ok {
		return
	}

	reading, err := s.Loader.Sample(r.Context(), s.Store.Snapshot(), lon, lat)
	switch {
	case errors.Is(err, loader.ErrNoTerrain):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, loader.ErrNotLoaded):
		s.writeJSON(w, http.StatusNotFound, reading)
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, reading)
	}
}

// HandleIdentify lists the rendered features at ?lon=&lat=.
func (s *ServerContext) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	lon, lat, ok := s.coords(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.Loader.Identify(s.Store.Snapshot(), lon, lat))
}

func (s *ServerContext) coords(w http.ResponseWriter, r *http.Request) (lon, lat float64, ok bool) {
	q := r.URL.Query()

	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	if errLon != nil || errLat != nil {
		s.writeError(w, http.StatusBadRequest, "lon and lat query parameters must be numbers")
		return 0, 0, false
	}

	return lon, lat, true
}

// HandleLegend serves the legend of the active theme.
func (s *ServerContext) HandleLegend(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Loader.Legend(r.Context(), s.Store.Snapshot()))
}

// HandleStatistics serves the land-use breakdown of the selected basins.
func (s *ServerContext) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Loader.Statistics(s.Store.Snapshot()))
}

// HandleOverlay renders the active terrain raster as WebP.
func (s *ServerContext) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	img, err := s.Loader.Overlay(r.Context(), s.Store.Snapshot(), s.OverlaySize)
	switch {
	case errors.Is(err, loader.ErrNoTerrain):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusNotFound, "no data for this layer")
		return
	}

	var buf bytes.Buffer
	if err := raster.EncodeWebP(&buf, img); err != nil {
		log.Error().Err(err).Msg("Failed to encode overlay")
		s.writeError(w, http.StatusInternalServerError, "overlay encoding failed")
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// HandleMetrics dumps the loader metrics registry.
func (s *ServerContext) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", mimeJSON)
	s.Loader.Metrics().WriteJSON(w)
}
