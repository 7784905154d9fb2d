// Package store provides SQLite persistence for the config API server.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robertmeta/trss-cli/model"
	_ "modernc.org/sqlite"
)

var (
	// ErrIndexOutOfRange is returned when no entry exists at a position.
	ErrIndexOutOfRange = errors.New("invalid index")
	// ErrConflict is returned when the stored entry differs from the expected value.
	ErrConflict = errors.New("original config not match")
)

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps ":memory:" a single database and serializes
	// the compare-then-write transactions below.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rss_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS seen_items (
		feed_url TEXT NOT NULL,
		item_url TEXT NOT NULL,
		title TEXT,
		seen_at INTEGER NOT NULL,
		PRIMARY KEY (feed_url, item_url)
	);

	CREATE INDEX IF NOT EXISTS idx_rss_configs_position ON rss_configs(position);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ListConfigs returns the collection in position order.
func (s *Store) ListConfigs(ctx context.Context) ([]model.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM rss_configs ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	configs := []model.ConfigEntry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		c, err := decode(data)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

// AppendConfig adds c at the end of the collection and returns its index.
func (s *Store) AppendConfig(ctx context.Context, c model.ConfigEntry) (int, error) {
	data, err := encode(c)
	if err != nil {
		return 0, err
	}

	var index int
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM rss_configs").Scan(&index); err != nil {
			return fmt.Errorf("failed to count configs: %w", err)
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO rss_configs (position, data) VALUES (?, ?)", index, data)
		if err != nil {
			return fmt.Errorf("failed to insert config: %w", err)
		}
		return nil
	})
	return index, err
}

// UpdateConfig replaces the entry at index with c, but only if the stored
// entry equals original.
func (s *Store) UpdateConfig(ctx context.Context, index int, c, original model.ConfigEntry) error {
	data, err := encode(c)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		id, stored, err := loadAt(ctx, tx, index)
		if err != nil {
			return err
		}
		if !stored.Equal(original) {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx, "UPDATE rss_configs SET data = ? WHERE id = ?", data, id); err != nil {
			return fmt.Errorf("failed to update config: %w", err)
		}
		return nil
	})
}

// DeleteConfig removes the entry at index, but only if it equals expected.
// Later entries move up by one position.
func (s *Store) DeleteConfig(ctx context.Context, index int, expected model.ConfigEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		id, stored, err := loadAt(ctx, tx, index)
		if err != nil {
			return err
		}
		if !stored.Equal(expected) {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM rss_configs WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE rss_configs SET position = position - 1 WHERE position > ?", index); err != nil {
			return fmt.Errorf("failed to shift configs: %w", err)
		}
		return nil
	})
}

// ReplaceConfigs discards the collection and stores configs in order.
func (s *Store) ReplaceConfigs(ctx context.Context, configs []model.ConfigEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM rss_configs"); err != nil {
			return fmt.Errorf("failed to clear configs: %w", err)
		}
		for i, c := range configs {
			data, err := encode(c)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO rss_configs (position, data) VALUES (?, ?)", i, data); err != nil {
				return fmt.Errorf("failed to insert config: %w", err)
			}
		}
		return nil
	})
}

// HasSeen reports whether the job already handled itemURL from feedURL.
func (s *Store) HasSeen(ctx context.Context, feedURL, itemURL string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM seen_items WHERE feed_url = ? AND item_url = ?",
		feedURL, itemURL,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query seen item: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records item as handled for feedURL.
func (s *Store) MarkSeen(ctx context.Context, feedURL string, item model.Item) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seen_items (feed_url, item_url, title, seen_at) VALUES (?, ?, ?, ?)",
		feedURL, item.URL, item.Title, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark item seen: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadAt(ctx context.Context, tx *sql.Tx, index int) (int64, model.ConfigEntry, error) {
	if index < 0 {
		return 0, model.ConfigEntry{}, ErrIndexOutOfRange
	}

	var id int64
	var data string
	err := tx.QueryRowContext(ctx, "SELECT id, data FROM rss_configs WHERE position = ?", index).Scan(&id, &data)
	if err == sql.ErrNoRows {
		return 0, model.ConfigEntry{}, ErrIndexOutOfRange
	}
	if err != nil {
		return 0, model.ConfigEntry{}, fmt.Errorf("failed to get config: %w", err)
	}

	c, err := decode(data)
	return id, c, err
}

func encode(c model.ConfigEntry) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(data), nil
}

func decode(data string) (model.ConfigEntry, error) {
	var c model.ConfigEntry
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, fmt.Errorf("failed to decode config: %w", err)
	}
	return c, nil
}
