package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/econsult/internal/db"
)

// timeLayout has fixed-width fractions so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists search history entries.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Record inserts an entry. If entry.ID is empty a UUID is generated; a zero
// CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.Sources == nil {
		entry.Sources = []Source{}
	}

	sources, err := json.Marshal(entry.Sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_history (
			id, user_identity, cluster_id, query, doctor_instructions,
			success, error_message, summary, sources, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserIdentity,
		entry.ClusterID,
		entry.Query,
		entry.DoctorInstructions,
		boolToInt(entry.Success),
		entry.ErrorMessage,
		entry.Summary,
		string(sources),
		entry.DurationMS,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting search history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries for userIdentity, newest first.
// limit is clamped to [1, MaxLimit].
func (s *Store) List(ctx context.Context, userIdentity string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_identity, cluster_id, query, doctor_instructions,
			   success, error_message, summary, sources, duration_ms, created_at
		FROM search_history
		WHERE user_identity = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userIdentity, limit)
	if err != nil {
		return nil, fmt.Errorf("querying search history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			success   int
			sources   string
			createdAt string
		)
		if err := rows.Scan(
			&e.ID, &e.UserIdentity, &e.ClusterID, &e.Query, &e.DoctorInstructions,
			&success, &e.ErrorMessage, &e.Summary, &sources, &e.DurationMS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning search history: %w", err)
		}
		e.Success = success != 0
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources for %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
