package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/disclosure"
	"github.com/jengzang/memorymap-backend-go/internal/globe"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/mapview"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/notesource"
)

var (
	// ErrClusterNotFound is returned for unknown or stale cluster ids
	ErrClusterNotFound = errors.New("cluster not found")
	// ErrNoteNotFound is returned for notes missing from the current build
	ErrNoteNotFound = errors.New("note not found")
)

// Stats describes the current build
type Stats struct {
	Points          int       `json:"points"`
	Skipped         int       `json:"skipped"`
	Generation      uint32    `json:"generation"`
	GlobeGeneration uint32    `json:"globeGeneration"`
	Views           int       `json:"views"`
	LastRefresh     time.Time `json:"lastRefresh"`
}

// NoteStore reads single notes from storage
type NoteStore interface {
	GetNoteByID(ctx context.Context, id string) (*models.Note, error)
}

// MapService feeds notes into the map and globe indexes and routes view
// callbacks to the registry
type MapService struct {
	source notesource.Source
	index  *cluster.Index
	globe  *globe.Overview
	views  *mapview.Registry
	m      *metrics.Metrics
	log    *logger.Logger
	store  NoteStore // optional

	refreshMu   sync.Mutex
	lastRefresh time.Time
}

// NewMapService creates a new map service
func NewMapService(source notesource.Source, index *cluster.Index, overview *globe.Overview, views *mapview.Registry, m *metrics.Metrics, log *logger.Logger) *MapService {
	return &MapService{
		source: source,
		index:  index,
		globe:  overview,
		views:  views,
		m:      m,
		log:    logger.OrNop(log).Named("map"),
	}
}

// SetNoteStore lets Note find notes written since the last refresh
func (s *MapService) SetNoteStore(store NoteStore) {
	s.store = store
}

// Refresh fetches every note, rebuilds both indexes and republishes all
// views. Concurrent calls are serialised.
func (s *MapService) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	notes, err := s.source.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch notes: %w", err)
	}
	notesource.SortNewestFirst(notes)

	start := time.Now()
	s.index.Build(notes)
	s.m.RecordBuild("map", time.Since(start).Seconds(), s.index.Len(), s.index.Skipped())

	start = time.Now()
	s.globe.Build(notes)
	s.m.RecordBuild("globe", time.Since(start).Seconds(), s.globe.Index().Len(), s.globe.Index().Skipped())

	s.views.InvalidateAll()
	s.lastRefresh = time.Now()

	s.log.Info("indexes rebuilt",
		"notes", len(notes),
		"indexed", s.index.Len(),
		"skipped", s.index.Skipped(),
		"generation", s.index.Generation(),
	)
	return nil
}

// Run rebuilds every interval and whenever watcher reports a change, until
// ctx is done. A zero interval or nil watcher disables that trigger.
func (s *MapService) Run(ctx context.Context, interval time.Duration, watcher *notesource.Watcher) error {
	g, ctx := errgroup.WithContext(ctx)

	refresh := func(trigger string) {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("refresh failed", "trigger", trigger, "error", err)
		}
	}

	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					refresh("interval")
				}
			}
		})
	}
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx, func() { refresh("watch") })
		})
	}

	return g.Wait()
}

// Stats reports the current build
func (s *MapService) Stats() Stats {
	s.refreshMu.Lock()
	last := s.lastRefresh
	s.refreshMu.Unlock()

	return Stats{
		Points:          s.index.Len(),
		Skipped:         s.index.Skipped(),
		Generation:      s.index.Generation(),
		GlobeGeneration: s.globe.Index().Generation(),
		Views:           s.views.Len(),
		LastRefresh:     last,
	}
}

// CreateView opens a new map view
func (s *MapService) CreateView() *mapview.View {
	return s.views.Create()
}

// View returns the view for id
func (s *MapService) View(id string) (*mapview.View, error) {
	return s.views.Get(id)
}

// RemoveView closes a view
func (s *MapService) RemoveView(id string) {
	s.views.Remove(id)
}

// Settle re-queries a view after its viewport came to rest
func (s *MapService) Settle(viewID string, filter models.ViewportFilter) (mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return mapview.RenderSet{}, err
	}
	return v.Settle(filter.BBox(), filter.Zoom), nil
}

// ActivateCluster handles a cluster click at the given zoom
func (s *MapService) ActivateCluster(viewID string, id models.ClusterID, zoom int) (disclosure.Outcome, mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return disclosure.Outcome{}, mapview.RenderSet{}, err
	}
	out, rs := v.ActivateCluster(id, zoom)
	return out, rs, nil
}

// ActivatePoint handles a click on a single note
func (s *MapService) ActivatePoint(viewID, noteID string) (disclosure.Outcome, mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return disclosure.Outcome{}, mapview.RenderSet{}, err
	}
	out, ok := v.ActivatePoint(noteID)
	if !ok {
		return out, mapview.RenderSet{}, ErrNoteNotFound
	}
	return out, v.Current(), nil
}

// ZoomStart signals the start of a zoom gesture
func (s *MapService) ZoomStart(viewID string) (mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return mapview.RenderSet{}, err
	}
	return v.ZoomStart(), nil
}

// BackgroundClick signals a click on empty map
func (s *MapService) BackgroundClick(viewID string) (mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return mapview.RenderSet{}, err
	}
	return v.BackgroundClick(), nil
}

// RequestFocus forces a view into flat mode
func (s *MapService) RequestFocus(viewID string) (mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return mapview.RenderSet{}, err
	}
	return v.RequestFocus(), nil
}

// Members returns every note under a map cluster
func (s *MapService) Members(id models.ClusterID) ([]models.IndexedPoint, error) {
	members, ok := s.index.Members(id)
	if !ok {
		return nil, ErrClusterNotFound
	}
	return members, nil
}

// Children returns the items a map cluster splits into one zoom deeper
func (s *MapService) Children(id models.ClusterID) ([]models.Item, error) {
	children, ok := s.index.Children(id)
	if !ok {
		return nil, ErrClusterNotFound
	}
	return children, nil
}

// ExpansionZoom returns the zoom at which a map cluster splits
func (s *MapService) ExpansionZoom(id models.ClusterID) (int, error) {
	z, ok := s.index.ExpansionZoom(id)
	if !ok {
		return 0, ErrClusterNotFound
	}
	return z, nil
}

// GlobeMarkers returns the whole-world overview
func (s *MapService) GlobeMarkers() []globe.Marker {
	return s.globe.Markers()
}

// GlobeActivateCluster maps a globe cluster click to a focus and switches
// the view to flat mode
func (s *MapService) GlobeActivateCluster(viewID string, id models.ClusterID) (globe.Focus, mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return globe.Focus{}, mapview.RenderSet{}, err
	}
	focus, ok := s.globe.ActivateCluster(id)
	if !ok {
		return globe.Focus{}, mapview.RenderSet{}, ErrClusterNotFound
	}
	return focus, v.RequestFocus(), nil
}

// GlobeActivateNote maps a globe note click to a focus and switches the
// view to flat mode
func (s *MapService) GlobeActivateNote(viewID, noteID string) (globe.Focus, mapview.RenderSet, error) {
	v, err := s.views.Get(viewID)
	if err != nil {
		return globe.Focus{}, mapview.RenderSet{}, err
	}
	focus, ok := s.globe.ActivateNote(noteID)
	if !ok {
		return globe.Focus{}, mapview.RenderSet{}, ErrNoteNotFound
	}
	return focus, v.RequestFocus(), nil
}

// Note returns a note from the current build, falling back to the note store
func (s *MapService) Note(ctx context.Context, id string) (models.Note, error) {
	if p, ok := s.index.Point(id); ok {
		return p.Payload, nil
	}
	if s.store == nil {
		return models.Note{}, ErrNoteNotFound
	}
	n, err := s.store.GetNoteByID(ctx, id)
	if err != nil {
		return models.Note{}, fmt.Errorf("failed to get note: %w", err)
	}
	if n == nil {
		return models.Note{}, ErrNoteNotFound
	}
	return *n, nil
}
