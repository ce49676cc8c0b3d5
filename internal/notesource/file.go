package notesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// FileSource reads notes from a JSON array on disk
type FileSource struct {
	path string
}

// NewFileSource creates a source over a JSON file
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads
func (s *FileSource) Path() string {
	return s.path
}

// FetchAll reads and decodes the whole file
func (s *FileSource) FetchAll(ctx context.Context) ([]models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}

	notes := []models.Note{}
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes file %s: %w", s.path, err)
	}
	SortNewestFirst(notes)
	return notes, nil
}
