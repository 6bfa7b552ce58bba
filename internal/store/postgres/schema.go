package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Voice profile
// ─────────────────────────────────────────────────────────────────────────────

const ddlVoiceProfiles = `
CREATE TABLE IF NOT EXISTS voice_profiles (
    id           SMALLINT     PRIMARY KEY CHECK (id = 1),
    features     vector(5)    NOT NULL,
    passphrase   TEXT         NOT NULL,
    enrolled_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ─────────────────────────────────────────────────────────────────────────────
// Intent cache
// ─────────────────────────────────────────────────────────────────────────────

const ddlIntentCache = `
CREATE TABLE IF NOT EXISTS intent_cache (
    seq         BIGSERIAL    PRIMARY KEY,
    key         TEXT         NOT NULL UNIQUE,
    record      JSONB        NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_intent_cache_action
    ON intent_cache ((record->>'action'));
`

// Migrate creates the pgvector extension and all tables. Every statement is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"pgvector extension", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"voice_profiles", ddlVoiceProfiles},
		{"intent_cache", ddlIntentCache},
	}
	for _, s := range steps {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	return nil
}
