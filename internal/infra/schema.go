package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names are matched by the repositories when translating unique
// violations, keep them in sync with identity and ledger.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    email           TEXT,
    phone_number    TEXT,
    ip_address      TEXT NOT NULL,
    credits_balance BIGINT NOT NULL DEFAULT 0,
    user_type       TEXT NOT NULL DEFAULT 'Free',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT users_email_key UNIQUE (email),
    CONSTRAINT users_phone_number_key UNIQUE (phone_number),
    CONSTRAINT users_ip_address_key UNIQUE (ip_address)
);

CREATE TABLE IF NOT EXISTS credit_entries (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    delta         BIGINT NOT NULL,
    balance_after BIGINT NOT NULL,
    reason        TEXT NOT NULL,
    reference     TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT credit_entries_reason_reference_key UNIQUE (reason, reference)
);

CREATE INDEX IF NOT EXISTS idx_credit_entries_user_created ON credit_entries (user_id, created_at DESC);
`

// EnsureSchema creates the tables used by the Postgres-backed stores. It is
// idempotent; production deployments may run the same DDL as a migration.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
