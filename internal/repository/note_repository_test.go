package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

func newTestRepo(t *testing.T) *NoteRepository {
	t.Helper()
	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "notes.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, database.NewMigrationManager(conn, nil).RunMigrations())
	return NewNoteRepository(conn)
}

func TestUpsertAndListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	notes := []models.Note{
		{ID: "old", Lat: 1, Lng: 1, CreatedAt: 100, Color: "#111111"},
		{ID: "new", Lat: 2, Lng: 2, CreatedAt: 300, IsAnonymous: true},
		{ID: "mid", Lat: 3, Lng: 3, CreatedAt: 200, IsAdmin: true, LocationName: "Harbour"},
	}
	require.NoError(t, repo.UpsertNotes(ctx, notes))

	got, err := repo.ListNotes(ctx, models.NoteFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, notes[2], got[1])

	got, err = repo.ListNotes(ctx, models.NoteFilter{Since: 200, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)

	total, err := repo.CountNotes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestUpsertReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertNotes(ctx, []models.Note{{ID: "a", Lat: 1, Lng: 1, Content: "first"}}))
	require.NoError(t, repo.UpsertNotes(ctx, []models.Note{{ID: "a", Lat: 1, Lng: 1, Content: "second"}}))

	n, err := repo.GetNoteByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "second", n.Content)

	n, err = repo.GetNoteByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestListEmpty(t *testing.T) {
	got, err := newTestRepo(t).ListNotes(context.Background(), models.NoteFilter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
