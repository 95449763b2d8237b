package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Migration is one forward schema step. Applied versions are recorded in
// fundme_migrations so Migrate is safe to call on every start.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations lists the schema in order.
var Migrations = []Migration{
	{
		Name:    "create_fundme_funds",
		Version: "20240101000001",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_funds (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    price_feed  TEXT NOT NULL,
    minimum_usd TEXT NOT NULL,
    network     TEXT NOT NULL DEFAULT '',
    balance     TEXT NOT NULL DEFAULT '0',
    created_at  TEXT NOT NULL
);`,
	},
	{
		Name:    "create_fundme_totals",
		Version: "20240101000002",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_totals (
    fund_id     TEXT NOT NULL REFERENCES fundme_funds (id),
    contributor TEXT NOT NULL,
    amount      TEXT NOT NULL DEFAULT '0',
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
    id          TEXT PRIMARY KEY,
    fund_id     TEXT NOT NULL REFERENCES fundme_funds (id),
    contributor TEXT NOT NULL,
    amount      TEXT NOT NULL,
    usd_value   TEXT NOT NULL,
    price       TEXT NOT NULL,
    position    INTEGER NOT NULL,
    fallback    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fundme_contributions_fund ON fundme_contributions (fund_id, id);`,
	},
	{
		Name:    "create_fundme_withdrawals",
		Version: "20240101000005",
		Up: `
CREATE TABLE IF NOT EXISTS fundme_withdrawals (
    id             TEXT PRIMARY KEY,
    fund_id        TEXT NOT NULL REFERENCES fundme_funds (id),
    owner          TEXT NOT NULL,
    amount         TEXT NOT NULL,
    strategy       TEXT NOT NULL,
    contributors   INTEGER NOT NULL,
    storage_reads  INTEGER NOT NULL,
    storage_writes INTEGER NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fundme_withdrawals_fund ON fundme_withdrawals (fund_id, id);`,
	},
}

// Migrate applies every migration not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS fundme_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`); err != nil {
		return fmt.Errorf("fundme/sqlite: create migrations table: %w", err)
	}

	for _, m := range Migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("fundme/sqlite: migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var applied string
	err = tx.QueryRowContext(ctx, `SELECT version FROM fundme_migrations WHERE version = ?`, m.Version).Scan(&applied)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fundme_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
