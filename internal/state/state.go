// Package state owns the viewer's theme, layer, basin and river order selection.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/hydroview/internal/basin"
	"github.com/woozymasta/hydroview/internal/config"
)

// Theme is one of the mutually exclusive analytic views.
type Theme string

// Themes.
const (
	ThemeLanduse   Theme = "landuse"
	ThemeHydrology Theme = "hydrology"
	ThemeTerrain   Theme = "terrain"
)

// Transition errors.
var (
	ErrUnknownTheme       = errors.New("unknown theme")
	ErrUnknownSubTheme    = errors.New("unknown terrain sub-theme")
	ErrSubThemeNotAllowed = errors.New("sub-theme can only be set while the terrain theme is active")
	ErrUnknownLayer       = errors.New("unknown layer")
	ErrUnknownBasin       = errors.New("unknown basin")
	ErrUnknownRiverOrder  = errors.New("unknown river order")
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLanduse, ThemeHydrology, ThemeTerrain:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTheme, s)
}

// Snapshot is an immutable copy of the state after a transition.
type Snapshot struct {
	Version        uint64          `json:"version"`
	Theme          Theme           `json:"theme"`
	SubTheme       string          `json:"sub_theme,omitempty"`
	Layers         map[string]bool `json:"layers"`
	Basins         map[string]bool `json:"basins"`
	RiverOrders    map[string]bool `json:"river_orders"`
	SelectedBasins []string        `json:"selected_basins"`
}

// BasinSet returns the selected basins as a set.
func (s Snapshot) BasinSet() basin.Set {
	return basin.NewSet(s.SelectedBasins...)
}

// AnyBasinVisible reports whether at least one basin is selected.
func (s Snapshot) AnyBasinVisible() bool {
	return len(s.SelectedBasins) > 0
}

// Store serializes state transitions and notifies subscribers.
type Store struct {
	mu        sync.Mutex
	cfg       *config.Config
	version   uint64
	theme     Theme
	subTheme  string
	layers    map[string]bool
	basins    map[string]bool
	rivers    map[string]bool
	listeners map[int]func(Snapshot)
	nextID    int
}

// New returns the initial state: land use theme, no layers, every basin, no river orders.
func New(cfg *config.Config) *Store {
	s := &Store{
		cfg:       cfg,
		theme:     ThemeLanduse,
		layers:    make(map[string]bool, len(cfg.Layers)),
		basins:    make(map[string]bool, len(cfg.Basins)),
		rivers:    make(map[string]bool, len(cfg.Themes.Hydrology.Orders)),
		listeners: make(map[int]func(Snapshot)),
	}

	for _, l := range cfg.Layers {
		s.layers[l.ID] = false
	}
	for _, b := range cfg.Basins {
		s.basins[b.ID] = true
	}
	for _, o := range cfg.Themes.Hydrology.Orders {
		s.rivers[o.ID] = false
	}

	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:     s.version,
		Theme:       s.theme,
		SubTheme:    s.subTheme,
		Layers:      make(map[string]bool, len(s.layers)),
		Basins:      make(map[string]bool, len(s.basins)),
		RiverOrders: make(map[string]bool, len(s.rivers)),
	}

	for k, v := range s.layers {
		snap.Layers[k] = v
	}
	for k, v := range s.rivers {
		snap.RiverOrders[k] = v
	}

	selected := basin.NewSet()
	for k, v := range s.basins {
		snap.Basins[k] = v
		if v {
			selected[k] = struct{}{}
		}
	}
	snap.SelectedBasins = selected.Sorted()

	return snap
}

// Subscribe registers fn to receive a snapshot after every successful transition.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update runs fn under the lock and, if it succeeds, publishes the new snapshot.
func (s *Store) update(op string, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.version++
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	log.Debug().
		Str("op", op).
		Uint64("version", snap.Version).
		Str("theme", string(snap.Theme)).
		Str("sub_theme", snap.SubTheme).
		Msg("State changed")

	for _, l := range listeners {
		l(snap)
	}

	return nil
}

// SetTheme switches the active theme. Terrain starts at its default sub-theme,
// other themes clear it.
func (s *Store) SetTheme(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}

	return s.update("set_theme", func() error {
		s.theme = t
		s.subTheme = ""
		if t == ThemeTerrain {
			s.subTheme = s.cfg.Themes.Terrain.Default
		}
		return nil
	})
}

// SetSubTheme picks the terrain raster variable.
func (s *Store) SetSubTheme(id string) error {
	return s.update("set_sub_theme", func() error {
		if s.theme != ThemeTerrain {
			return ErrSubThemeNotAllowed
		}
		if _, ok := s.cfg.SubTheme(id); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSubTheme, id)
		}
		s.subTheme = id
		return nil
	})
}

// ToggleLayer flips a layer's visibility.
func (s *Store) ToggleLayer(id string) error {
	return s.update("toggle_layer", func() error {
		return flip(s.layers, id, ErrUnknownLayer)
	})
}

// SetLayerVisibility shows or hides a layer.
func (s *Store) SetLayerVisibility(id string, visible bool) error {
	return s.update("set_layer", func() error {
		return set(s.layers, id, visible, ErrUnknownLayer)
	})
}

// ToggleBasin flips a basin's visibility and therefore its river filter membership.
func (s *Store) ToggleBasin(id string) error {
	return s.update("toggle_basin", func() error {
		return flip(s.basins, id, ErrUnknownBasin)
	})
}

// SetBasinVisibility shows or hides a basin.
func (s *Store) SetBasinVisibility(id string, visible bool) error {
	return s.update("set_basin", func() error {
		return set(s.basins, id, visible, ErrUnknownBasin)
	})
}

// ToggleRiverOrder flips a river order's selection.
func (s *Store) ToggleRiverOrder(id string) error {
	return s.update("toggle_river_order", func() error {
		return flip(s.rivers, id, ErrUnknownRiverOrder)
	})
}

// SetRiverOrder selects or deselects a river order.
func (s *Store) SetRiverOrder(id string, selected bool) error {
	return s.update("set_river_order", func() error {
		return set(s.rivers, id, selected, ErrUnknownRiverOrder)
	})
}

func flip(m map[string]bool, id string, unknown error) error {
	v, ok := m[id]
	if !ok {
		return fmt.Errorf("%w: %q", unknown, id)
	}
	m[id] = !v
	return nil
}

func set(m map[string]bool, id string, v bool, unknown error) error {
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%w: %q", unknown, id)
	}
	m[id] = v
	return nil
}
