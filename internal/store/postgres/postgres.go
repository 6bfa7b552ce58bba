// Package postgres stores the voice profile and the intent cache in
// PostgreSQL. Voice features live in a pgvector column so profiles can be
// compared with the database's own distance operators.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/intent"
)

var (
	_ auth.ProfileStore = (*Store)(nil)
	_ intent.Store      = (*Store)(nil)
)

// Store is a PostgreSQL-backed store holding a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn, registers pgvector types on every
// connection and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ── Voice profile ───────────────────────────────────────────────────────────

// LoadProfile implements [auth.ProfileStore].
func (s *Store) LoadProfile(ctx context.Context) (auth.Profile, bool, error) {
	var (
		vec pgvector.Vector
		p   auth.Profile
	)
	err := s.pool.QueryRow(ctx,
		`SELECT features, passphrase, enrolled_at FROM voice_profiles WHERE id = 1`,
	).Scan(&vec, &p.Passphrase, &p.EnrolledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Profile{}, false, nil
	}
	if err != nil {
		return auth.Profile{}, false, fmt.Errorf("postgres store: load profile: %w", err)
	}
	p.Features = featuresFromVector(vec)
	return p, true, nil
}

// SaveProfile implements [auth.ProfileStore]. The previous profile is replaced.
func (s *Store) SaveProfile(ctx context.Context, p auth.Profile) error {
	const q = `
		INSERT INTO voice_profiles (id, features, passphrase, enrolled_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			features    = EXCLUDED.features,
			passphrase  = EXCLUDED.passphrase,
			enrolled_at = EXCLUDED.enrolled_at`
	if _, err := s.pool.Exec(ctx, q, vectorFromFeatures(p.Features), p.Passphrase, p.EnrolledAt); err != nil {
		return fmt.Errorf("postgres store: save profile: %w", err)
	}
	return nil
}

// ProfileDistance returns the Euclidean distance between the stored profile
// and f, computed by pgvector. ok is false when no profile is stored.
func (s *Store) ProfileDistance(ctx context.Context, f auth.Features) (dist float64, ok bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT features <-> $1 FROM voice_profiles WHERE id = 1`, vectorFromFeatures(f),
	).Scan(&dist)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres store: profile distance: %w", err)
	}
	return dist, true, nil
}

func vectorFromFeatures(f auth.Features) pgvector.Vector {
	v := make([]float32, len(f))
	for i, x := range f {
		v[i] = float32(x)
	}
	return pgvector.NewVector(v)
}

func featuresFromVector(v pgvector.Vector) auth.Features {
	var f auth.Features
	for i, x := range v.Slice() {
		if i >= len(f) {
			break
		}
		f[i] = float64(x)
	}
	return f
}

// ── Intent cache ────────────────────────────────────────────────────────────

// LoadIntents implements [intent.Store].
func (s *Store) LoadIntents(ctx context.Context) ([]intent.StoredIntent, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, record, created_at FROM intent_cache ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load intents: %w", err)
	}
	defer rows.Close()

	var out []intent.StoredIntent
	for rows.Next() {
		var (
			e   intent.StoredIntent
			raw []byte
		)
		if err := rows.Scan(&e.Key, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan intent: %w", err)
		}
		if e.Record, err = intent.UnmarshalRecord(raw); err != nil {
			return nil, fmt.Errorf("postgres store: decode intent %q: %w", e.Key, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveIntent implements [intent.Store]. Saving an existing key moves it to
// the newest position.
func (s *Store) SaveIntent(ctx context.Context, e intent.StoredIntent) error {
	raw, err := intent.MarshalRecord(e.Record)
	if err != nil {
		return fmt.Errorf("postgres store: encode intent: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM intent_cache WHERE key = $1`, e.Key); err != nil {
		return fmt.Errorf("postgres store: save intent: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO intent_cache (key, record, created_at) VALUES ($1, $2, $3)`,
		e.Key, raw, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres store: save intent: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteIntent implements [intent.Store].
func (s *Store) DeleteIntent(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM intent_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres store: delete intent: %w", err)
	}
	return nil
}

// ClearIntents implements [intent.Store].
func (s *Store) ClearIntents(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM intent_cache`); err != nil {
		return fmt.Errorf("postgres store: clear intents: %w", err)
	}
	return nil
}
