package notesource

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var sample = []models.Note{
	{ID: "a", Lat: 1, Lng: 1, CreatedAt: 10, Content: "first"},
	{ID: "b", Lat: 2, Lng: 2, CreatedAt: 30, Content: "third"},
	{ID: "c", Lat: 3, Lng: 3, CreatedAt: 20, Content: "second"},
}

func ids(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func writeNotes(t *testing.T, path string, notes []models.Note) {
	t.Helper()
	data, err := json.Marshal(notes)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

type failingSource struct{ err error }

func (f failingSource) FetchAll(context.Context) ([]models.Note, error) {
	return nil, f.err
}

func TestStaticIsNewestFirst(t *testing.T) {
	got, err := Static(sample).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
	assert.Equal(t, "a", sample[0].ID, "input is not reordered")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json")
	writeNotes(t, path, sample)

	got, err := NewFileSource(path).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = NewFileSource(path).FetchAll(context.Background())
	assert.Error(t, err)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json")).FetchAll(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSQLiteSource(t *testing.T) {
	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "notes.db")})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, database.NewMigrationManager(conn, nil).RunMigrations())

	repo := repository.NewNoteRepository(conn)
	require.NoError(t, repo.UpsertNotes(context.Background(), sample))

	got, err := NewSQLiteSource(repo).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "cache", "notes.json.zst"))

	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoCache)

	require.NoError(t, cache.Save(sample))
	got, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestCachedSourceFallback(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(filepath.Join(dir, "notes.json.zst"))
	ctx := context.Background()

	got, err := NewCachedSource(failingSource{errors.New("offline")}, cache, nil).FetchAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got, "no cache degrades to empty")

	got, err = NewCachedSource(Static(sample), cache, nil).FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = NewCachedSource(failingSource{errors.New("offline")}, cache, nil).FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got), "served from the last good set")
}

func TestCachedSourceCorruptCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	got, err := NewCachedSource(failingSource{errors.New("offline")}, NewCache(path), nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCachedSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCachedSource(failingSource{context.Canceled}, NewCache(filepath.Join(t.TempDir(), "c.zst")), nil).FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	writeNotes(t, path, sample[:1])

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() { changed <- struct{}{} })
	}()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0o644))
	writeNotes(t, path, sample)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.NoError(t, <-done)
}
