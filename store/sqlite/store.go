// Package sqlite is a store.Store on SQLite (mattn/go-sqlite3). Amounts are
// kept as base-10 strings; all arithmetic happens in Go inside a
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	fundstore "github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// compile-time interface check
var _ fundstore.Store = (*Store)(nil)

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path, configured with
//   - WAL journal for readers during writes
//   - a 5 second busy timeout
//   - foreign key enforcement
//   - a single connection, SQLite's single-writer model
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("fundme/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("fundme/sqlite: %s: %w", pragma, err)
		}
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ==================== Fund Store ====================

func (s *Store) CreateFund(ctx context.Context, f *fund.Fund) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO fundme_funds (id, owner, price_feed, minimum_usd, network, balance, created_at)
VALUES (?, ?, ?, ?, ?, '0', ?)`,
		f.ID.String(), f.Owner, f.PriceFeed, f.MinimumUSD.String(), f.Network, formatTime(f.CreatedAt))
	if isConstraint(err) {
		return fundme.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetFund(ctx context.Context, fundID id.FundID) (*fund.Fund, error) {
	var m fundModel
	err := s.db.QueryRowContext(ctx, `
SELECT id, owner, price_feed, minimum_usd, network, created_at
FROM fundme_funds WHERE id = ?`, fundID.String()).
		Scan(&m.ID, &m.Owner, &m.PriceFeed, &m.MinimumUSD, &m.Network, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fundme.ErrFundNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toFund()
}

// ==================== Ledger Store ====================

func (s *Store) RecordContribution(ctx context.Context, c *fund.Contribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	balance, err := balance(ctx, tx, c.FundID)
	if err != nil {
		return err
	}
	total, err := contribution(ctx, tx, c.FundID, c.Contributor)
	if err != nil {
		return err
	}
	position, err := count(ctx, tx, c.FundID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO fundme_totals (fund_id, contributor, amount) VALUES (?, ?, ?)
ON CONFLICT (fund_id, contributor) DO UPDATE SET amount = excluded.amount`,
		c.FundID.String(), c.Contributor, total.Add(c.Amount).String()); err != nil {
		return fmt.Errorf("fundme/sqlite: update total: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fundme_funders (fund_id, position, contributor) VALUES (?, ?, ?)`,
		c.FundID.String(), position, c.Contributor); err != nil {
		return fmt.Errorf("fundme/sqlite: append funder: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE fundme_funds SET balance = ? WHERE id = ?`,
		balance.Add(c.Amount).String(), c.FundID.String()); err != nil {
		return fmt.Errorf("fundme/sqlite: update balance: %w", err)
	}

	c.Index = position
	if _, err := tx.ExecContext(ctx, `
INSERT INTO fundme_contributions (id, fund_id, contributor, amount, usd_value, price, position, fallback, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.FundID.String(), c.Contributor, c.Amount.String(), c.USDValue.String(),
		c.Price.String(), c.Index, c.Fallback, formatTime(c.CreatedAt)); err != nil {
		return fmt.Errorf("fundme/sqlite: insert contribution: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Contribution(ctx context.Context, fundID id.FundID, contributor string) (types.Wei, error) {
	if err := exists(ctx, s.db, fundID); err != nil {
		return types.Wei{}, err
	}
	return contribution(ctx, s.db, fundID, contributor)
}

func (s *Store) ContributorAt(ctx context.Context, fundID id.FundID, index int) (string, error) {
	if err := exists(ctx, s.db, fundID); err != nil {
		return "", err
	}
	return contributorAt(ctx, s.db, fundID, index)
}

func (s *Store) ContributorCount(ctx context.Context, fundID id.FundID) (int, error) {
	if err := exists(ctx, s.db, fundID); err != nil {
		return 0, err
	}
	return count(ctx, s.db, fundID)
}

func (s *Store) Balance(ctx context.Context, fundID id.FundID) (types.Wei, error) {
	return balance(ctx, s.db, fundID)
}

// ==================== Receipt Store ====================

func (s *Store) ListContributions(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, fund_id, contributor, amount, usd_value, price, position, fallback, created_at
FROM fundme_contributions WHERE fund_id = ?
ORDER BY rowid ASC LIMIT ? OFFSET ?`, fundID.String(), limit(opts), max(opts.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*fund.Contribution
	for rows.Next() {
		var m contributionModel
		if err := rows.Scan(&m.ID, &m.FundID, &m.Contributor, &m.Amount, &m.USDValue, &m.Price,
			&m.Position, &m.Fallback, &m.CreatedAt); err != nil {
			return nil, err
		}
		c, err := m.toContribution()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListWithdrawals(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, fund_id, owner, amount, strategy, contributors, storage_reads, storage_writes, created_at
FROM fundme_withdrawals WHERE fund_id = ?
ORDER BY rowid ASC LIMIT ? OFFSET ?`, fundID.String(), limit(opts), max(opts.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*fund.Withdrawal
	for rows.Next() {
		var m withdrawalModel
		if err := rows.Scan(&m.ID, &m.FundID, &m.Owner, &m.Amount, &m.Strategy, &m.Contributors,
			&m.StorageReads, &m.StorageWrites, &m.CreatedAt); err != nil {
			return nil, err
		}
		w, err := m.toWithdrawal()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ==================== Transactions ====================

func (s *Store) WithTx(ctx context.Context, fundID id.FundID, fn func(ctx context.Context, tx fundstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := exists(ctx, tx, fundID); err != nil {
		return err
	}
	if err := fn(ctx, &sqlTx{tx: tx, fundID: fundID}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	tx     *sql.Tx
	fundID id.FundID
}

func (t *sqlTx) ContributorCount(ctx context.Context) (int, error) {
	return count(ctx, t.tx, t.fundID)
}

func (t *sqlTx) ContributorAt(ctx context.Context, index int) (string, error) {
	return contributorAt(ctx, t.tx, t.fundID, index)
}

func (t *sqlTx) Contributors(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT contributor FROM fundme_funders WHERE fund_id = ? ORDER BY position ASC`, t.fundID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *sqlTx) ResetContribution(ctx context.Context, contributor string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE fundme_totals SET amount = '0' WHERE fund_id = ? AND contributor = ?`,
		t.fundID.String(), contributor)
	return err
}

func (t *sqlTx) ClearContributors(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM fundme_funders WHERE fund_id = ?`, t.fundID.String())
	return err
}

func (t *sqlTx) Balance(ctx context.Context) (types.Wei, error) {
	return balance(ctx, t.tx, t.fundID)
}

func (t *sqlTx) DrainBalance(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE fundme_funds SET balance = '0' WHERE id = ?`, t.fundID.String())
	return err
}

func (t *sqlTx) RecordWithdrawal(ctx context.Context, w *fund.Withdrawal) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO fundme_withdrawals (id, fund_id, owner, amount, strategy, contributors, storage_reads, storage_writes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.FundID.String(), w.Owner, w.Amount.String(), string(w.Strategy),
		w.Contributors, w.StorageReads, w.StorageWrites, formatTime(w.CreatedAt))
	return err
}

// ==================== Helpers ====================

func exists(ctx context.Context, q querier, fundID id.FundID) error {
	_, err := balance(ctx, q, fundID)
	return err
}

func balance(ctx context.Context, q querier, fundID id.FundID) (types.Wei, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT balance FROM fundme_funds WHERE id = ?`, fundID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Wei{}, fundme.ErrFundNotFound
	}
	if err != nil {
		return types.Wei{}, err
	}
	return types.ParseWei(raw)
}

func contribution(ctx context.Context, q querier, fundID id.FundID, contributor string) (types.Wei, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT amount FROM fundme_totals WHERE fund_id = ? AND contributor = ?`,
		fundID.String(), contributor).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Wei{}, nil
	}
	if err != nil {
		return types.Wei{}, err
	}
	return types.ParseWei(raw)
}

func count(ctx context.Context, q querier, fundID id.FundID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM fundme_funders WHERE fund_id = ?`, fundID.String()).Scan(&n)
	return n, err
}

func contributorAt(ctx context.Context, q querier, fundID id.FundID, index int) (string, error) {
	var c string
	err := q.QueryRowContext(ctx, `SELECT contributor FROM fundme_funders WHERE fund_id = ? AND position = ?`,
		fundID.String(), index).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", fundme.ErrIndexOutOfRange, index)
	}
	return c, err
}

func limit(opts fund.ListOpts) int {
	if opts.Limit <= 0 {
		return -1
	}
	return opts.Limit
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
