package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

const noteColumns = `id, lat, lng, content, original_content, location_name, created_at,
	is_anonymous, author_name, color, is_admin, image_url`

// NoteRepository handles database operations for notes
type NoteRepository struct {
	db *sql.DB
}

// NewNoteRepository creates a new note repository
func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// ListNotes retrieves notes newest first
func (r *NoteRepository) ListNotes(ctx context.Context, filter models.NoteFilter) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	var args []interface{}

	if filter.Since > 0 {
		query += " WHERE created_at >= ?"
		args = append(args, filter.Since)
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		err := rows.Scan(
			&n.ID, &n.Lat, &n.Lng, &n.Content, &n.OriginalContent, &n.LocationName, &n.CreatedAt,
			&n.IsAnonymous, &n.AuthorName, &n.Color, &n.IsAdmin, &n.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, nil
}

// GetNoteByID retrieves a single note; nil when it does not exist
func (r *NoteRepository) GetNoteByID(ctx context.Context, id string) (*models.Note, error) {
	var n models.Note
	err := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id).Scan(
		&n.ID, &n.Lat, &n.Lng, &n.Content, &n.OriginalContent, &n.LocationName, &n.CreatedAt,
		&n.IsAnonymous, &n.AuthorName, &n.Color, &n.IsAdmin, &n.ImageURL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	return &n, nil
}

// CountNotes returns the number of stored notes
func (r *NoteRepository) CountNotes(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return total, nil
}

// UpsertNotes writes notes in one transaction, replacing rows with the same id
func (r *NoteRepository) UpsertNotes(ctx context.Context, notes []models.Note) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO notes (`+noteColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, n := range notes {
			_, err := stmt.ExecContext(ctx,
				n.ID, n.Lat, n.Lng, n.Content, n.OriginalContent, n.LocationName, n.CreatedAt,
				n.IsAnonymous, n.AuthorName, n.Color, n.IsAdmin, n.ImageURL,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert note %s: %w", n.ID, err)
			}
		}
		return nil
	})
}
