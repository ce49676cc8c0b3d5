package notesource

import (
	"context"
	"fmt"

	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/repository"
)

// SQLiteSource reads notes from the notes table
type SQLiteSource struct {
	repo *repository.NoteRepository
}

// NewSQLiteSource creates a source over the note repository
func NewSQLiteSource(repo *repository.NoteRepository) *SQLiteSource {
	return &SQLiteSource{repo: repo}
}

// FetchAll returns every stored note, newest first
func (s *SQLiteSource) FetchAll(ctx context.Context) ([]models.Note, error) {
	notes, err := s.repo.ListNotes(ctx, models.NoteFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notes: %w", err)
	}
	return notes, nil
}
