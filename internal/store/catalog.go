package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/internal/writer"
	"github.com/lamim/campaignforge/pkg/models"
)

// Store is the campaign catalog plus the per-campaign vector indexes, all in
// one SQLite database.
type Store struct {
	db     *sql.DB
	cfg    config.StorageConfig
	logger *slog.Logger
}

// CatalogEntry is one row of the campaign catalog.
type CatalogEntry struct {
	Name        string
	DisplayName string
	Description string
	FilePath    string
	IndexedAt   *time.Time
}

// Open opens (or creates) the catalog database.
func Open(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS campaigns (
			name TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL,
			indexed_at TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create campaigns table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCampaign renders the campaign to markdown, writes it atomically into
// the campaigns directory, and registers it in the catalog. If registration
// fails the file is removed so catalog and directory stay in agreement.
func (s *Store) SaveCampaign(c *models.Campaign) (string, error) {
	content := writer.RenderCampaign(c)

	path, err := writer.WriteCampaignFile(s.cfg.CampaignsDir, c.Title, content)
	if err != nil {
		return "", err
	}

	name := util.SanitizeTitle(c.Title)
	if err := s.Register(name, c.Title, c.Description, path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("Failed to remove campaign file after catalog failure",
				"path", path, "error", rmErr)
		}
		return "", fmt.Errorf("failed to register campaign: %w", err)
	}

	s.logger.Info("Campaign saved", "name", name, "path", path)
	return path, nil
}

// Register upserts a catalog row.
func (s *Store) Register(name, displayName, description, filePath string) error {
	_, err := s.db.Exec(`
		INSERT INTO campaigns (name, display_name, description, file_path)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			file_path = excluded.file_path`,
		name, displayName, description, filePath)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign %s: %w", name, err)
	}
	return nil
}

// Get returns one catalog entry.
func (s *Store) Get(name string) (*CatalogEntry, error) {
	row := s.db.QueryRow(`
		SELECT name, display_name, description, file_path, indexed_at
		FROM campaigns WHERE name = ?`, name)

	var e CatalogEntry
	if err := row.Scan(&e.Name, &e.DisplayName, &e.Description, &e.FilePath, &e.IndexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("campaign %q not found", name)
		}
		return nil, fmt.Errorf("failed to query campaign %s: %w", name, err)
	}
	return &e, nil
}

// List returns all catalog entries ordered by name.
func (s *Store) List() ([]CatalogEntry, error) {
	rows, err := s.db.Query(`
		SELECT name, display_name, description, file_path, indexed_at
		FROM campaigns ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Name, &e.DisplayName, &e.Description, &e.FilePath, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a campaign's file, catalog row, and vector table.
func (s *Store) Delete(name string) error {
	entry, err := s.Get(name)
	if err != nil {
		return err
	}

	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove campaign file: %w", err)
	}

	if _, err := s.db.Exec("DELETE FROM campaigns WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete catalog row: %w", err)
	}

	if err := s.dropChunkTable(name); err != nil {
		return err
	}

	s.logger.Info("Campaign deleted", "name", name)
	return nil
}

// markIndexed stamps the catalog row after a successful (re)index.
func (s *Store) markIndexed(name string) error {
	_, err := s.db.Exec("UPDATE campaigns SET indexed_at = ? WHERE name = ?", time.Now(), name)
	if err != nil {
		return fmt.Errorf("failed to mark campaign indexed: %w", err)
	}
	return nil
}
