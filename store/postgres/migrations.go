package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward schema step, tracked in fundme_migrations.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations lists the schema in order. Amounts are NUMERIC(78,0), wide
// enough for any uint256.
var Migrations = []Migration{
	{
		Name:    "create_fundme_funds",
		Version: "20240101000001",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_funds (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    price_feed  TEXT NOT NULL,
    minimum_usd NUMERIC(78,0) NOT NULL,
    network     TEXT NOT NULL DEFAULT '',
    balance     NUMERIC(78,0) NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name:    "create_fundme_totals",
		Version: "20240101000002",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_totals (
    fund_id     TEXT NOT NULL REFERENCES fundme_funds (id),
    contributor TEXT NOT NULL,
    amount      NUMERIC(78,0) NOT NULL DEFAULT 0,
    PRIMARY KEY (fund_id, contributor)
);`,
	},
	{
		Name:    "create_fundme_funders",
		Version: "20240101000003",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_funders (
    fund_id     TEXT NOT NULL REFERENCES fundme_funds (id),
    position    INTEGER NOT NULL,
    contributor TEXT NOT NULL,
    PRIMARY KEY (fund_id, position)
);`,
	},
	{
		Name:    "create_fundme_contributions",
		Version: "20240101000004",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_contributions (
    seq         BIGSERIAL,
    id          TEXT PRIMARY KEY,
    fund_id     TEXT NOT NULL REFERENCES fundme_funds (id),
    contributor TEXT NOT NULL,
    amount      NUMERIC(78,0) NOT NULL,
    usd_value   NUMERIC(78,0) NOT NULL,
    price       NUMERIC(78,0) NOT NULL,
    position    INTEGER NOT NULL,
    fallback    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fundme_contributions_fund ON fundme_contributions (fund_id, seq);`,
	},
	{
		Name:    "create_fundme_withdrawals",
		Version: "20240101000005",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_withdrawals (
    seq            BIGSERIAL,
    id             TEXT PRIMARY KEY,
    fund_id        TEXT NOT NULL REFERENCES fundme_funds (id),
    owner          TEXT NOT NULL,
    amount         NUMERIC(78,0) NOT NULL,
    strategy       TEXT NOT NULL,
    contributors   INTEGER NOT NULL,
    storage_reads  INTEGER NOT NULL,
    storage_writes INTEGER NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fundme_withdrawals_fund ON fundme_withdrawals (fund_id, seq);`,
	},
}

// Migrate applies every migration not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundme_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("fundme/postgres: create migrations table: %w", err)
	}

	for _, m := range Migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("fundme/postgres: migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m Migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var applied string
	err = tx.QueryRow(ctx, `SELECT version FROM fundme_migrations WHERE version = $1`, m.Version).Scan(&applied)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	if _, err := tx.Exec(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO fundme_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
