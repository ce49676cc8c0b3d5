package viewport

import (
	"fmt"

	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// Mode is the presentation the renderer should use
type Mode int

const (
	ModeFlat Mode = iota
	ModeGlobe
)

func (m Mode) String() string {
	if m == ModeGlobe {
		return "globe"
	}
	return "flat"
}

// MarshalText renders the mode by name
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "flat":
		*m = ModeFlat
	case "globe":
		*m = ModeGlobe
	default:
		return fmt.Errorf("unknown viewport mode %q", b)
	}
	return nil
}

// Config holds the viewport thresholds
type Config struct {
	GlobeModeZoomFloor int `koanf:"globe_mode_zoom_floor"`
}

// DefaultConfig returns the map's viewport settings
func DefaultConfig() Config {
	return Config{GlobeModeZoomFloor: 4}
}

// Querier answers viewport queries
type Querier interface {
	Query(bbox models.BBox, zoom int) []models.Item
}

// Teardowner discards transient disclosure state
type Teardowner interface {
	Teardown() bool
}

// Frame is the result of a settled viewport
type Frame struct {
	BBox  models.BBox   `json:"bbox"`
	Zoom  int           `json:"zoom"`
	Items []models.Item `json:"items"`
	Mode  Mode          `json:"mode"`
	// Switch is set when the settle moved the view across the globe floor
	Switch *Mode `json:"switch,omitempty"`
}

// Bridge turns viewport events into index queries and teardown triggers.
// It is not safe for concurrent use.
type Bridge struct {
	cfg   Config
	index Querier
	ctl   Teardowner
	log   *logger.Logger

	mode      Mode
	forceFlat bool
	settled   bool
	last      Frame
}

// New creates a bridge in flat mode
func New(cfg Config, index Querier, ctl Teardowner, log *logger.Logger) *Bridge {
	return &Bridge{
		cfg:   cfg,
		index: index,
		ctl:   ctl,
		log:   logger.OrNop(log).Named("viewport"),
	}
}

// Mode returns the presentation mode last signalled
func (b *Bridge) Mode() Mode {
	return b.mode
}

// Last returns the most recent settled frame and whether there was one
func (b *Bridge) Last() (Frame, bool) {
	return b.last, b.settled
}

// OnViewportSettled re-queries the index for the viewport.
// Calling it repeatedly during an animation is fine; only the final call
// for a gesture needs to be exact.
func (b *Bridge) OnViewportSettled(bbox models.BBox, zoom int) Frame {
	target := ModeFlat
	switch {
	case b.forceFlat:
		b.forceFlat = false
	case zoom < b.cfg.GlobeModeZoomFloor:
		target = ModeGlobe
	}

	f := Frame{
		BBox:  bbox,
		Zoom:  zoom,
		Items: b.index.Query(bbox, zoom),
		Mode:  target,
	}
	if target != b.mode {
		b.log.Debug("mode switch", "from", b.mode, "to", target, "zoom", zoom)
		b.mode = target
		m := target
		f.Switch = &m
	}

	b.last = f
	b.settled = true
	return f
}

// Refresh re-runs the last settled query against the current index without
// touching the mode or a pending focus override
func (b *Bridge) Refresh() (Frame, bool) {
	if !b.settled {
		return Frame{}, false
	}
	b.last.Items = b.index.Query(b.last.BBox, b.last.Zoom)
	b.last.Switch = nil
	return b.last, true
}

// OnZoomStart tears down disclosure before the next settle
func (b *Bridge) OnZoomStart() bool {
	return b.ctl.Teardown()
}

// OnBackgroundClick tears down disclosure
func (b *Bridge) OnBackgroundClick() bool {
	return b.ctl.Teardown()
}

// RequestFocus handles an explicit focus, search or selection. It forces
// flat mode immediately and keeps the next settle in flat mode whatever its
// zoom. It reports whether the mode changed.
func (b *Bridge) RequestFocus() bool {
	b.forceFlat = true
	if b.mode == ModeFlat {
		return false
	}
	b.log.Debug("focus forces flat mode")
	b.mode = ModeFlat
	return true
}
