package notesource

import (
	"context"
	"sort"

	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// Source supplies the full note set. The engine never pages or streams;
// every fetch returns everything.
type Source interface {
	FetchAll(ctx context.Context) ([]models.Note, error)
}

// SortNewestFirst orders notes by creation time, newest first, keeping the
// input order for equal timestamps
func SortNewestFirst(notes []models.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt > notes[j].CreatedAt
	})
}

// Static is a fixed in-memory note set
type Static []models.Note

// FetchAll returns a copy of the notes
func (s Static) FetchAll(context.Context) ([]models.Note, error) {
	out := make([]models.Note, len(s))
	copy(out, s)
	SortNewestFirst(out)
	return out, nil
}
