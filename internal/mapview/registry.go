package mapview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/disclosure"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
	"github.com/jengzang/memorymap-backend-go/internal/viewport"
)

// ErrViewNotFound is returned for unknown or expired view ids
var ErrViewNotFound = errors.New("view not found")

// RegistryConfig bounds the number and lifetime of views
type RegistryConfig struct {
	MaxViews        int           `koanf:"max_views"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// DefaultRegistryConfig returns the registry limits used by the server
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxViews:        1000,
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// Registry holds one view per client session over a shared index
type Registry struct {
	cfg   RegistryConfig
	index *cluster.Index
	dcfg  disclosure.Config
	vcfg  viewport.Config
	m     *metrics.Metrics
	log   *logger.Logger

	mu    sync.RWMutex
	views map[string]*View
}

// NewRegistry creates an empty registry
func NewRegistry(cfg RegistryConfig, index *cluster.Index, dcfg disclosure.Config, vcfg viewport.Config, m *metrics.Metrics, log *logger.Logger) *Registry {
	def := DefaultRegistryConfig()
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = def.MaxViews
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &Registry{
		cfg:   cfg,
		index: index,
		dcfg:  dcfg,
		vcfg:  vcfg,
		m:     m,
		log:   logger.OrNop(log).Named("views"),
		views: make(map[string]*View),
	}
}

// Create opens a new view, evicting the least recently used one when full
func (r *Registry) Create() *View {
	id := uuid.New().String()
	v := NewView(id, r.index, r.dcfg, r.vcfg, r.m, r.log)

	r.mu.Lock()
	if len(r.views) >= r.cfg.MaxViews {
		r.evictOldestLocked()
	}
	r.views[id] = v
	n := len(r.views)
	r.mu.Unlock()

	r.m.SetViews(n)
	r.log.Debug("view created", "view", id, "views", n)
	return v
}

func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true

	for id, v := range r.views {
		at := v.LastAccess()
		if first || at.Before(oldest) {
			oldestID = id
			oldest = at
			first = false
		}
	}
	if oldestID == "" {
		return
	}
	r.views[oldestID].closeSubscribers()
	delete(r.views, oldestID)
	r.m.RecordEviction("capacity")
	r.log.Debug("view evicted", "view", oldestID, "reason", "capacity")
}

// Get returns the view for id
func (r *Registry) Get(id string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

// Remove drops a view; unknown ids are ignored
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	n := len(r.views)
	r.mu.Unlock()

	if ok {
		v.closeSubscribers()
		r.m.SetViews(n)
	}
}

// Len returns the number of live views
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// InvalidateAll republishes every view after an index rebuild
func (r *Registry) InvalidateAll() {
	r.mu.RLock()
	views := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mu.RUnlock()

	for _, v := range views {
		v.Invalidate()
	}
}

// Cleanup removes views idle for longer than the configured timeout.
// It returns how many were removed.
func (r *Registry) Cleanup(now time.Time) int {
	r.mu.Lock()
	var expired []*View
	for id, v := range r.views {
		if now.Sub(v.LastAccess()) > r.cfg.IdleTimeout {
			expired = append(expired, v)
			delete(r.views, id)
		}
	}
	n := len(r.views)
	r.mu.Unlock()

	for _, v := range expired {
		v.closeSubscribers()
		r.m.RecordEviction("idle")
	}
	if len(expired) > 0 {
		r.m.SetViews(n)
		r.log.Debug("idle views removed", "removed", len(expired), "views", n)
	}
	return len(expired)
}

// Run removes idle views periodically until ctx is done
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Cleanup(now)
		}
	}
}
