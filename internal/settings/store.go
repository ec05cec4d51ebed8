package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/econsult/internal/db"
)

// Store persists Settings as a single row in SQLite.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Load returns the current settings, creating the default row when none
// exists yet.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var (
		out         Settings
		lastUpdated sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT default_system_prompts, last_updated FROM settings WHERE id = 1`,
	).Scan(&out.DefaultSystemPrompts, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.write(ctx, ""); err != nil {
			return Settings{}, err
		}
		return s.Load(ctx)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if lastUpdated.Valid {
		out.LastUpdated = &lastUpdated.String
	}
	return out, nil
}

// UpdateDefaultSystemPrompts replaces the stored prompts and stamps
// last_updated.
func (s *Store) UpdateDefaultSystemPrompts(ctx context.Context, prompts string) error {
	return s.write(ctx, prompts)
}

// Reset restores the default (empty) settings.
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, "")
}

// DefaultSystemPrompts returns only the prompts text. A missing row reads as
// empty without being created.
func (s *Store) DefaultSystemPrompts(ctx context.Context) (string, error) {
	var prompts string
	err := s.db.QueryRowContext(ctx,
		`SELECT default_system_prompts FROM settings WHERE id = 1`,
	).Scan(&prompts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading default system prompts: %w", err)
	}
	return prompts, nil
}

func (s *Store) write(ctx context.Context, prompts string) error {
	stamp := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, default_system_prompts, last_updated) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			default_system_prompts = excluded.default_system_prompts,
			last_updated = excluded.last_updated`,
		prompts, stamp,
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
