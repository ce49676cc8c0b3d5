package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jengzang/memorymap-backend-go/internal/config"
	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/notesource"
	"github.com/jengzang/memorymap-backend-go/internal/repository"
)

var importCmd = &cobra.Command{
	Use:   "import <notes.json>",
	Short: "Load a JSON array of notes into the notes table",
	Long: `Load a JSON array of notes into the notes table. Existing notes with the
same id are replaced.

Examples:
  memorymap import ./data/notes.json
  memorymap import --config ./config.yaml ./export.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	notes, err := notesource.NewFileSource(args[0]).FetchAll(cmd.Context())
	if err != nil {
		return err
	}

	if err := database.Init(cfg.Database, log); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	db, err := database.GetDB()
	if err != nil {
		return err
	}
	repo := repository.NewNoteRepository(db)
	if err := repo.UpsertNotes(cmd.Context(), notes); err != nil {
		return err
	}

	total, err := repo.CountNotes(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d notes, %d in table\n", len(notes), total)
	return nil
}
