package disclosure

import (
	"fmt"

	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/spatial"
)

// Config holds the zoom-vs-spiderfy decision parameters
type Config struct {
	SpiderfyZoomFloor int     `koanf:"spiderfy_zoom_floor"`
	MaxFlyZoom        int     `koanf:"max_fly_zoom"`
	BaseLeg           float64 `koanf:"base_leg"`
	LegPerMember      float64 `koanf:"leg_per_member"`
	LegCap            float64 `koanf:"leg_cap"`
}

// DefaultConfig returns the map's disclosure settings
func DefaultConfig() Config {
	return Config{
		SpiderfyZoomFloor: 16,
		MaxFlyZoom:        18,
		BaseLeg:           65,
		LegPerMember:      3,
		LegCap:            60,
	}
}

// ClusterSource resolves clusters against the current index build
type ClusterSource interface {
	ExpansionZoom(id models.ClusterID) (int, bool)
	Members(id models.ClusterID) ([]models.IndexedPoint, bool)
}

// Action tells the caller what an activation resulted in
type Action int

const (
	ActionNone Action = iota
	ActionZoom
	ActionDisclose
	ActionSelect
)

func (a Action) String() string {
	switch a {
	case ActionZoom:
		return "zoom"
	case ActionDisclose:
		return "disclose"
	case ActionSelect:
		return "select"
	default:
		return "none"
	}
}

// MarshalText renders the action by name
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an action name
func (a *Action) UnmarshalText(b []byte) error {
	for _, candidate := range []Action{ActionNone, ActionZoom, ActionDisclose, ActionSelect} {
		if candidate.String() == string(b) {
			*a = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", b)
}

// Recenter asks the renderer to move the viewport
type Recenter struct {
	Center models.LatLng `json:"center"`
	Zoom   int           `json:"zoom"`
}

// State is a broken-open cluster. It is a snapshot of the index build it was
// created from and is never modified after creation.
type State struct {
	ClusterID models.ClusterID      `json:"clusterId"`
	Center    models.LatLng         `json:"center"`
	Zoom      int                   `json:"zoom"`
	Members   []models.IndexedPoint `json:"members"`
	Positions []models.LatLng       `json:"positions"`
	Offsets   []models.ScreenPoint  `json:"offsets"` // pixels from the cluster glyph
	Anchor    models.ScreenPoint    `json:"anchor"`  // cluster glyph relative to the viewport centre
	LegLength float64               `json:"legLength"`
	LegMeters float64               `json:"legMeters"` // ground length of a leg at Zoom
}

// Outcome is the result of an activation callback
type Outcome struct {
	Action   Action               `json:"action"`
	Recenter *Recenter            `json:"recenter,omitempty"`
	State    *State               `json:"state,omitempty"`
	Point    *models.IndexedPoint `json:"point,omitempty"`
}

// Controller owns the single disclosure state of a map view.
// It is not safe for concurrent use.
type Controller struct {
	cfg   Config
	src   ClusterSource
	proj  spatial.Projection
	log   *logger.Logger
	state *State
}

// New creates an idle controller
func New(cfg Config, src ClusterSource, proj spatial.Projection, log *logger.Logger) *Controller {
	if proj == nil {
		proj = spatial.NewWebMercator(spatial.DefaultTileSize)
	}
	return &Controller{
		cfg:  cfg,
		src:  src,
		proj: proj,
		log:  logger.OrNop(log).Named("disclosure"),
	}
}

// Config returns the controller settings
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the live disclosure, or nil when idle
func (c *Controller) State() *State {
	return c.state
}

// Disclosed reports whether a cluster is currently broken open
func (c *Controller) Disclosed() bool {
	return c.state != nil
}

// IsSuppressed reports whether the cluster glyph for id must not be drawn
func (c *Controller) IsSuppressed(id models.ClusterID) bool {
	return c.state != nil && c.state.ClusterID == id
}

// Teardown discards the live disclosure. It reports whether there was one.
func (c *Controller) Teardown() bool {
	if c.state == nil {
		return false
	}
	c.log.Debug("disclosure cleared", "cluster", c.state.ClusterID)
	c.state = nil
	return true
}

// OnZoomStart clears the disclosure since leg geometry is tied to one zoom
func (c *Controller) OnZoomStart() bool {
	return c.Teardown()
}

// OnBackgroundClick clears the disclosure
func (c *Controller) OnBackgroundClick() bool {
	return c.Teardown()
}

// OnPointActivate selects a single note without touching the disclosure
func (c *Controller) OnPointActivate(p models.IndexedPoint) Outcome {
	return Outcome{Action: ActionSelect, Point: &p}
}

// OnClusterActivate decides between zooming towards the cluster and breaking
// it open around its glyph. Any live disclosure is torn down first.
// viewportCenter is the pixel position of the viewport centre at currentZoom.
func (c *Controller) OnClusterActivate(cl models.Cluster, currentZoom int, viewportCenter models.ScreenPoint) Outcome {
	c.Teardown()

	expansion, ok := c.src.ExpansionZoom(cl.ID)
	if !ok {
		c.log.Debug("ignoring stale cluster", "cluster", cl.ID)
		return Outcome{Action: ActionNone}
	}

	if expansion > currentZoom && currentZoom < c.cfg.SpiderfyZoomFloor {
		zoom := expansion
		if zoom > c.cfg.MaxFlyZoom {
			zoom = c.cfg.MaxFlyZoom
		}
		return Outcome{
			Action:   ActionZoom,
			Recenter: &Recenter{Center: cl.Center, Zoom: zoom},
		}
	}

	members, ok := c.src.Members(cl.ID)
	if !ok || len(members) == 0 {
		return Outcome{Action: ActionNone}
	}
	if len(members) == 1 {
		p := members[0]
		return Outcome{Action: ActionSelect, Point: &p}
	}

	c.state = c.disclose(cl, members, currentZoom, viewportCenter)
	c.log.Debug("cluster disclosed", "cluster", cl.ID, "members", len(members), "zoom", currentZoom)

	return Outcome{
		Action:   ActionDisclose,
		Recenter: &Recenter{Center: cl.Center, Zoom: currentZoom},
		State:    c.state,
	}
}

func (c *Controller) disclose(cl models.Cluster, members []models.IndexedPoint, zoom int, viewportCenter models.ScreenPoint) *State {
	z := float64(zoom)
	origin := c.proj.Project(cl.Center, z)
	leg := c.cfg.LegLength(len(members))
	offsets := Offsets(len(members), leg)

	positions := make([]models.LatLng, len(offsets))
	for i, off := range offsets {
		positions[i] = c.proj.Unproject(origin.Add(off), z).Wrapped()
	}
	var meters float64
	if len(positions) > 0 {
		meters = spatial.HaversineDistance(cl.Center.Lat, cl.Center.Lng, positions[0].Lat, positions[0].Lng)
	}

	return &State{
		ClusterID: cl.ID,
		Center:    cl.Center,
		Zoom:      zoom,
		Members:   members,
		Positions: positions,
		Offsets:   offsets,
		Anchor:    origin.Sub(viewportCenter),
		LegLength: leg,
		LegMeters: meters,
	}
}
