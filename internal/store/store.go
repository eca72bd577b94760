package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"storylist/internal/model"
)

// The three logical collections. Each is an independent map from a string
// id to a full JSON value; writes replace the whole value.
const (
	collectionSettings  = "settings"
	collectionChecklist = "checklist"
	collectionStory     = "story"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);`

// Store is SQLite-backed key-value persistence for settings, checklists
// and stories. Pure storage, no business logic.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, collection, id string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, collection, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (collection, id, value, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (collection, id) DO UPDATE SET
             value = excluded.value, updated_at = excluded.updated_at`,
		collection, id, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE collection = ? AND id = ?`,
		collection, id,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetChecklist loads a checklist. The bool reports whether it exists.
func (s *Store) GetChecklist(ctx context.Context, id string) (model.Checklist, bool, error) {
	var checklist model.Checklist
	ok, err := s.get(ctx, collectionChecklist, id, &checklist)
	return checklist, ok, err
}

// PutChecklist replaces the checklist stored under id.
func (s *Store) PutChecklist(ctx context.Context, id string, checklist model.Checklist) error {
	return s.put(ctx, collectionChecklist, id, checklist)
}

// DeleteChecklist removes the checklist stored under id.
func (s *Store) DeleteChecklist(ctx context.Context, id string) error {
	return s.delete(ctx, collectionChecklist, id)
}

// GetStory loads a story. The bool reports whether it exists.
func (s *Store) GetStory(ctx context.Context, id string) (model.Story, bool, error) {
	var story model.Story
	ok, err := s.get(ctx, collectionStory, id, &story)
	return story, ok, err
}

// PutStory replaces the story stored under id.
func (s *Store) PutStory(ctx context.Context, id string, story model.Story) error {
	return s.put(ctx, collectionStory, id, story)
}

// DeleteStory removes the story stored under id.
func (s *Store) DeleteStory(ctx context.Context, id string) error {
	return s.delete(ctx, collectionStory, id)
}

// GetSetting decodes the setting stored under key into out.
func (s *Store) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	return s.get(ctx, collectionSettings, key, out)
}

// PutSetting replaces the setting stored under key.
func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	return s.put(ctx, collectionSettings, key, value)
}

// DeleteSetting removes the setting stored under key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.delete(ctx, collectionSettings, key)
}

// SettingString returns the string setting under key, or "" when the key
// is absent.
func (s *Store) SettingString(ctx context.Context, key string) (string, error) {
	var value string
	ok, err := s.get(ctx, collectionSettings, key, &value)
	if err != nil || !ok {
		return "", err
	}
	return value, nil
}
