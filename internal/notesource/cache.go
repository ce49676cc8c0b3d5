package notesource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// ErrNoCache is returned when no cached note set exists yet
var ErrNoCache = errors.New("no cached notes")

// Cache stores the last good note set as zstd-compressed JSON
type Cache struct {
	path string
}

// NewCache creates a cache at path
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Save replaces the cached set. The file is written next to the target and
// renamed so readers never see a partial file.
func (c *Cache) Save(notes []models.Note) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	bufWriter := bufio.NewWriterSize(tmp, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(notes); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush zstd writer: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Load returns the cached set, or ErrNoCache
func (c *Cache) Load() ([]models.Note, error) {
	file, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	notes := []models.Note{}
	if err := json.NewDecoder(dec).Decode(&notes); err != nil {
		return nil, fmt.Errorf("failed to decode cached notes: %w", err)
	}
	return notes, nil
}

// CachedSource wraps a source with a local fallback. A failed fetch is
// served from the last good set, and with no usable cache it degrades to
// an empty set instead of failing.
type CachedSource struct {
	inner Source
	cache *Cache
	log   *logger.Logger
}

// NewCachedSource wraps inner with cache
func NewCachedSource(inner Source, cache *Cache, log *logger.Logger) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: cache,
		log:   logger.OrNop(log).Named("notecache"),
	}
}

// FetchAll never returns an error unless ctx is done
func (s *CachedSource) FetchAll(ctx context.Context) ([]models.Note, error) {
	notes, err := s.inner.FetchAll(ctx)
	if err == nil {
		if saveErr := s.cache.Save(notes); saveErr != nil {
			s.log.Warn("failed to update note cache", "error", saveErr)
		}
		return notes, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.log.Warn("note source failed, using cache", "error", err)
	cached, cacheErr := s.cache.Load()
	switch {
	case cacheErr == nil:
		return cached, nil
	case errors.Is(cacheErr, ErrNoCache):
		s.log.Warn("no cached notes, serving an empty map")
	default:
		s.log.Error("failed to read note cache", "error", cacheErr)
	}
	return []models.Note{}, nil
}
