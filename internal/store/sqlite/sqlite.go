// Package sqlite stores the voice profile and the intent cache in a local
// SQLite database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/intent"
)

var (
	_ auth.ProfileStore = (*Store)(nil)
	_ intent.Store      = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS voice_profile (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	features    TEXT NOT NULL,
	passphrase  TEXT NOT NULL,
	enrolled_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS intent_cache (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT NOT NULL UNIQUE,
	record     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store is a SQLite-backed store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite store: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent cache writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ── Voice profile ───────────────────────────────────────────────────────────

// LoadProfile implements [auth.ProfileStore].
func (s *Store) LoadProfile(ctx context.Context) (auth.Profile, bool, error) {
	var features, passphrase, enrolledAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT features, passphrase, enrolled_at FROM voice_profile WHERE id = 1`,
	).Scan(&features, &passphrase, &enrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Profile{}, false, nil
	}
	if err != nil {
		return auth.Profile{}, false, fmt.Errorf("sqlite store: load profile: %w", err)
	}

	p := auth.Profile{Passphrase: passphrase}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return auth.Profile{}, false, fmt.Errorf("sqlite store: decode features: %w", err)
	}
	if p.EnrolledAt, err = time.Parse(time.RFC3339Nano, enrolledAt); err != nil {
		return auth.Profile{}, false, fmt.Errorf("sqlite store: decode enrolled_at: %w", err)
	}
	return p, true, nil
}

// SaveProfile implements [auth.ProfileStore]. The previous profile is replaced.
func (s *Store) SaveProfile(ctx context.Context, p auth.Profile) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("sqlite store: encode features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voice_profile (id, features, passphrase, enrolled_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			features    = excluded.features,
			passphrase  = excluded.passphrase,
			enrolled_at = excluded.enrolled_at`,
		string(features), p.Passphrase, p.EnrolledAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite store: save profile: %w", err)
	}
	return nil
}

// ── Intent cache ────────────────────────────────────────────────────────────

// LoadIntents implements [intent.Store].
func (s *Store) LoadIntents(ctx context.Context) ([]intent.StoredIntent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, record, created_at FROM intent_cache ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load intents: %w", err)
	}
	defer rows.Close()

	var out []intent.StoredIntent
	for rows.Next() {
		var key, record, created string
		if err := rows.Scan(&key, &record, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan intent: %w", err)
		}
		rec, err := intent.UnmarshalRecord([]byte(record))
		if err != nil {
			return nil, fmt.Errorf("sqlite store: decode intent %q: %w", key, err)
		}
		at, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: decode created_at for %q: %w", key, err)
		}
		out = append(out, intent.StoredIntent{Key: key, Record: rec, CreatedAt: at})
	}
	return out, rows.Err()
}

// SaveIntent implements [intent.Store]. Saving an existing key moves it to
// the newest position.
func (s *Store) SaveIntent(ctx context.Context, e intent.StoredIntent) error {
	record, err := intent.MarshalRecord(e.Record)
	if err != nil {
		return fmt.Errorf("sqlite store: encode intent: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM intent_cache WHERE key = ?`, e.Key); err != nil {
		return fmt.Errorf("sqlite store: save intent: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO intent_cache (key, record, created_at) VALUES (?, ?, ?)`,
		e.Key, string(record), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("sqlite store: save intent: %w", err)
	}
	return tx.Commit()
}

// DeleteIntent implements [intent.Store].
func (s *Store) DeleteIntent(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intent_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store: delete intent: %w", err)
	}
	return nil
}

// ClearIntents implements [intent.Store].
func (s *Store) ClearIntents(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intent_cache`); err != nil {
		return fmt.Errorf("sqlite store: clear intents: %w", err)
	}
	return nil
}
