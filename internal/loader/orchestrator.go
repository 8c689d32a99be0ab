// Package loader fetches catalog assets once per session, normalizes them and
// publishes them for rendering.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/hydroview/internal/config"
	"github.com/woozymasta/hydroview/internal/geo"
	"github.com/woozymasta/hydroview/internal/index"
	"github.com/woozymasta/hydroview/internal/raster"
	"github.com/woozymasta/hydroview/internal/state"
)

// ErrNotLoaded is returned when a required asset is not available.
var ErrNotLoaded = errors.New("asset not loaded")

// Report summarizes one Ensure pass.
type Report struct {
	Loaded []string          `json:"loaded"`
	Cached []string          `json:"cached"`
	Failed map[string]string `json:"failed,omitempty"`
}

// OK reports whether every asset is available.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Orchestrator loads assets on demand. Each asset is fetched at most once per
// session; a failed asset stays failed and never blocks its siblings.
type Orchestrator struct {
	cfg   *config.Config
	src   Source
	cache *geo.TransformCache

	collections cmap.ConcurrentMap[string, *geojson.FeatureCollection]
	rasters     cmap.ConcurrentMap[string, *raster.Grid]
	summaries   cmap.ConcurrentMap[string, raster.Summary]
	failures    cmap.ConcurrentMap[string, error]
	indexes     cmap.ConcurrentMap[string, *index.Index]

	group   singleflight.Group
	metrics *Metrics
}

// New creates an orchestrator reading assets from src.
func New(cfg *config.Config, src Source) *Orchestrator {
	cache := geo.NewTransformCache()

	return &Orchestrator{
		cfg:         cfg,
		src:         src,
		cache:       cache,
		collections: cmap.New[*geojson.FeatureCollection](),
		rasters:     cmap.New[*raster.Grid](),
		summaries:   cmap.New[raster.Summary](),
		failures:    cmap.New[error](),
		indexes:     cmap.New[*index.Index](),
		metrics:     newMetrics(cache),
	}
}

// Config returns the catalog the orchestrator serves.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// Metrics returns load counters.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Ensure loads every asset the snapshot needs.
func (o *Orchestrator) Ensure(ctx context.Context, snap state.Snapshot) Report {
	return o.ensure(ctx, Required(o.cfg, snap))
}

// EnsureAll loads the whole catalog.
func (o *Orchestrator) EnsureAll(ctx context.Context) Report {
	return o.ensure(ctx, Catalog(o.cfg))
}

type outcome struct {
	fresh bool
	err   error
}

func (o *Orchestrator) ensure(ctx context.Context, assets []Asset) Report {
	results := make([]outcome, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Concurrency, 1))

	for i, a := range assets {
		i, a := i, a
		g.Go(func() error {
			fresh, err := o.load(gctx, a)
			results[i] = outcome{fresh: fresh, err: err}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Loaded: []string{}, Cached: []string{}}
	for i, a := range assets {
		switch r := results[i]; {
		case r.err != nil:
			if rep.Failed == nil {
				rep.Failed = make(map[string]string)
			}
			rep.Failed[a.Key()] = r.err.Error()
		case r.fresh:
			rep.Loaded = append(rep.Loaded, a.Key())
		default:
			rep.Cached = append(rep.Cached, a.Key())
		}
	}

	if len(rep.Loaded) > 0 || len(rep.Failed) > 0 {
		log.Info().
			Int("loaded", len(rep.Loaded)).
			Int("cached", len(rep.Cached)).
			Int("failed", len(rep.Failed)).
			Msg("Assets ensured")
	}

	return rep
}

// Load makes a single asset available. It reports true when this call fetched it.
func (o *Orchestrator) Load(ctx context.Context, a Asset) (bool, error) {
	return o.load(ctx, a)
}

func (o *Orchestrator) load(ctx context.Context, a Asset) (bool, error) {
	key := a.Key()
	if o.has(a) {
		return false, nil
	}
	if err, ok := o.failures.Get(key); ok {
		return false, err
	}

	// The shared fetch outlives any single caller: a waiter that gives up
	// must not cancel the fetch for the others.
	ch := o.group.DoChan(key, func() (interface{}, error) {
		if o.has(a) {
			return false, nil
		}
		if err, ok := o.failures.Get(key); ok {
			return false, err
		}

		fetchCtx, cancel := o.detach(ctx)
		defer cancel()

		if err := o.fetch(fetchCtx, a); err != nil {
			o.metrics.fetchFailed.Inc(1)
			o.failures.Set(key, err)
			log.Warn().
				Err(err).
				Str("asset", key).
				Str("file", a.File).
				Msg("Failed to load asset")
			return false, err
		}

		return true, nil
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		fresh, _ := res.Val.(bool)
		return fresh, res.Err
	}
}

// detach keeps the caller's values but not its cancellation, bounded by the configured timeout.
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if o.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, o.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) has(a Asset) bool {
	if a.Kind == KindRaster {
		return o.rasters.Has(a.Key())
	}
	return o.collections.Has(a.Key())
}

func (o *Orchestrator) fetch(ctx context.Context, a Asset) error {
	start := time.Now()

	rc, err := o.src.Open(ctx, a.File)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if a.Kind == KindRaster {
		grid, err := raster.Decode(rc)
		if err != nil {
			return fmt.Errorf("%s: %w", a.File, err)
		}
		o.summaries.Set(a.Key(), raster.Stats(grid))
		o.rasters.Set(a.Key(), grid)
	} else {
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read %s: %w", a.File, err)
		}

		fc, err := geo.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", a.File, err)
		}

		if a.Kind.Projected() {
			// unnamed collections would all share one fingerprint
			if geo.Name(fc) == "" {
				if fc.ExtraMembers == nil {
					fc.ExtraMembers = geojson.Properties{}
				}
				fc.ExtraMembers["name"] = a.File
			}

			t := time.Now()
			fc = o.cache.GetOrTransform(fc)
			o.metrics.transform.UpdateSince(t)
		}

		o.collections.Set(a.Key(), fc)
	}

	o.metrics.fetchOK.Inc(1)
	o.metrics.fetchTime.UpdateSince(start)

	log.Debug().
		Str("asset", a.Key()).
		Str("file", a.File).
		Bool("reprojected", a.Kind.Projected()).
		Dur("duration", time.Since(start)).
		Msg("Asset loaded")

	return nil
}

// Collection returns a published feature collection as loaded, without basin filtering.
func (o *Orchestrator) Collection(kind Kind, id string) (*geojson.FeatureCollection, bool) {
	return o.collections.Get(Key(kind, id))
}

// Failure returns the recorded load error of an asset, if any.
func (o *Orchestrator) Failure(kind Kind, id string) error {
	err, _ := o.failures.Get(Key(kind, id))
	return err
}

// Raster returns the decoded grid of a terrain sub-theme, loading it if needed.
func (o *Orchestrator) Raster(ctx context.Context, subTheme string) (*raster.Grid, raster.Summary, error) {
	st, ok := o.cfg.SubTheme(subTheme)
	if !ok {
		return nil, raster.Summary{}, fmt.Errorf("%w: %q", state.ErrUnknownSubTheme, subTheme)
	}

	a := Asset{Kind: KindRaster, ID: st.ID, File: st.Raster}
	if _, err := o.load(ctx, a); err != nil {
		return nil, raster.Summary{}, fmt.Errorf("%w: %s: %w", ErrNotLoaded, a.Key(), err)
	}

	grid, ok := o.rasters.Get(a.Key())
	if !ok {
		return nil, raster.Summary{}, fmt.Errorf("%w: %s", ErrNotLoaded, a.Key())
	}
	summary, _ := o.summaries.Get(a.Key())

	return grid, summary, nil
}

// Watch runs Ensure for the current state and after every transition until ctx ends.
// Bursts of transitions collapse into one pass over the latest snapshot.
func (o *Orchestrator) Watch(ctx context.Context, store *state.Store) {
	var (
		mu     sync.Mutex
		latest state.Snapshot
		signal = make(chan struct{}, 1)
	)

	cancel := store.Subscribe(func(snap state.Snapshot) {
		mu.Lock()
		if snap.Version > latest.Version {
			latest = snap
		}
		mu.Unlock()

		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer cancel()

	// taken after subscribing so no transition falls in between
	initial := store.Snapshot()
	mu.Lock()
	if initial.Version >= latest.Version {
		latest = initial
	}
	mu.Unlock()
	select {
	case signal <- struct{}{}:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-signal:
			mu.Lock()
			snap := latest
			mu.Unlock()

			rep := o.Ensure(ctx, snap)
			for key, msg := range rep.Failed {
				log.Debug().Str("asset", key).Str("error", msg).Uint64("version", snap.Version).Msg("Asset unavailable")
			}
		}
	}
}
