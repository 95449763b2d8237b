// Package postgres is a store.Store on PostgreSQL using pgx. WithTx and
// RecordContribution lock the fund row with SELECT ... FOR UPDATE, so
// concurrent ledgers on the same fund serialize on the database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	fundstore "github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// compile-time interface check
var _ fundstore.Store = (*Store)(nil)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("fundme/postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("fundme/postgres: ping database: %w", err)
	}
	return NewFromPool(pool), nil
}

// NewFromPool wraps an existing pool. Close closes it.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ==================== Fund Store ====================

func (s *Store) CreateFund(ctx context.Context, f *fund.Fund) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO fundme_funds (id, owner, price_feed, minimum_usd, network, balance, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, 0, $6)`,
		f.ID.String(), f.Owner, f.PriceFeed, f.MinimumUSD.String(), f.Network, f.CreatedAt)
	if isUniqueViolation(err) {
		return fundme.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetFund(ctx context.Context, fundID id.FundID) (*fund.Fund, error) {
	var m fundModel
	err := s.pool.QueryRow(ctx, `
SELECT id, owner, price_feed, minimum_usd::text, network, created_at
FROM fundme_funds WHERE id = $1`, fundID.String()).
		Scan(&m.ID, &m.Owner, &m.PriceFeed, &m.MinimumUSD, &m.Network, &m.CreatedAt)
	if isNoRows(err) {
		return nil, fundme.ErrFundNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toFund()
}

// ==================== Ledger Store ====================

func (s *Store) RecordContribution(ctx context.Context, c *fund.Contribution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := lockBalance(ctx, tx, c.FundID); err != nil {
		return err
	}
	position, err := count(ctx, tx, c.FundID)
	if err != nil {
		return err
	}

	amount := c.Amount.String()
	if _, err := tx.Exec(ctx, `
INSERT INTO fundme_totals (fund_id, contributor, amount) VALUES ($1, $2, $3::numeric)
ON CONFLICT (fund_id, contributor) DO UPDATE SET amount = fundme_totals.amount + EXCLUDED.amount`,
		c.FundID.String(), c.Contributor, amount); err != nil {
		return fmt.Errorf("fundme/postgres: update total: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO fundme_funders (fund_id, position, contributor) VALUES ($1, $2, $3)`,
		c.FundID.String(), position, c.Contributor); err != nil {
		return fmt.Errorf("fundme/postgres: append funder: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE fundme_funds SET balance = balance + $1::numeric WHERE id = $2`,
		amount, c.FundID.String()); err != nil {
		return fmt.Errorf("fundme/postgres: update balance: %w", err)
	}

	c.Index = position
	if _, err := tx.Exec(ctx, `
INSERT INTO fundme_contributions (id, fund_id, contributor, amount, usd_value, price, position, fallback, created_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)`,
		c.ID.String(), c.FundID.String(), c.Contributor, amount, c.USDValue.String(),
		c.Price.String(), c.Index, c.Fallback, c.CreatedAt); err != nil {
		return fmt.Errorf("fundme/postgres: insert contribution: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Contribution(ctx context.Context, fundID id.FundID, contributor string) (types.Wei, error) {
	if _, err := balance(ctx, s.pool, fundID); err != nil {
		return types.Wei{}, err
	}
	return contribution(ctx, s.pool, fundID, contributor)
}

func (s *Store) ContributorAt(ctx context.Context, fundID id.FundID, index int) (string, error) {
	if _, err := balance(ctx, s.pool, fundID); err != nil {
		return "", err
	}
	return contributorAt(ctx, s.pool, fundID, index)
}

func (s *Store) ContributorCount(ctx context.Context, fundID id.FundID) (int, error) {
	if _, err := balance(ctx, s.pool, fundID); err != nil {
		return 0, err
	}
	return count(ctx, s.pool, fundID)
}

func (s *Store) Balance(ctx context.Context, fundID id.FundID) (types.Wei, error) {
	return balance(ctx, s.pool, fundID)
}

// ==================== Receipt Store ====================

func (s *Store) ListContributions(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, fund_id, contributor, amount::text, usd_value::text, price::text, position, fallback, created_at
FROM fundme_contributions WHERE fund_id = $1
ORDER BY seq ASC LIMIT $2 OFFSET $3`, fundID.String(), limit(opts), max(opts.Offset, 0))
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
	rows, err := s.pool.Query(ctx, `
SELECT id, fund_id, owner, amount::text, strategy, contributors, storage_reads, storage_writes, created_at
FROM fundme_withdrawals WHERE fund_id = $1
ORDER BY seq ASC LIMIT $2 OFFSET $3`, fundID.String(), limit(opts), max(opts.Offset, 0))
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := lockBalance(ctx, tx, fundID); err != nil {
		return err
	}
	if err := fn(ctx, &pgTx{tx: tx, fundID: fundID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx     pgx.Tx
	fundID id.FundID
}

func (t *pgTx) ContributorCount(ctx context.Context) (int, error) {
	return count(ctx, t.tx, t.fundID)
}

func (t *pgTx) ContributorAt(ctx context.Context, index int) (string, error) {
	return contributorAt(ctx, t.tx, t.fundID, index)
}

func (t *pgTx) Contributors(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT contributor FROM fundme_funders WHERE fund_id = $1 ORDER BY position ASC`, t.fundID.String())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *pgTx) ResetContribution(ctx context.Context, contributor string) error {
	_, err := t.tx.Exec(ctx, `UPDATE fundme_totals SET amount = 0 WHERE fund_id = $1 AND contributor = $2`,
		t.fundID.String(), contributor)
	return err
}

func (t *pgTx) ClearContributors(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM fundme_funders WHERE fund_id = $1`, t.fundID.String())
	return err
}

func (t *pgTx) Balance(ctx context.Context) (types.Wei, error) {
	return balance(ctx, t.tx, t.fundID)
}

func (t *pgTx) DrainBalance(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `UPDATE fundme_funds SET balance = 0 WHERE id = $1`, t.fundID.String())
	return err
}

func (t *pgTx) RecordWithdrawal(ctx context.Context, w *fund.Withdrawal) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO fundme_withdrawals (id, fund_id, owner, amount, strategy, contributors, storage_reads, storage_writes, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		w.ID.String(), w.FundID.String(), w.Owner, w.Amount.String(), string(w.Strategy),
		w.Contributors, w.StorageReads, w.StorageWrites, w.CreatedAt)
	return err
}

// ==================== Helpers ====================

func lockBalance(ctx context.Context, q querier, fundID id.FundID) (types.Wei, error) {
	return scanBalance(q.QueryRow(ctx, `SELECT balance::text FROM fundme_funds WHERE id = $1 FOR UPDATE`, fundID.String()))
}

func balance(ctx context.Context, q querier, fundID id.FundID) (types.Wei, error) {
	return scanBalance(q.QueryRow(ctx, `SELECT balance::text FROM fundme_funds WHERE id = $1`, fundID.String()))
}

func scanBalance(row pgx.Row) (types.Wei, error) {
	var raw string
	err := row.Scan(&raw)
	if isNoRows(err) {
		return types.Wei{}, fundme.ErrFundNotFound
	}
	if err != nil {
		return types.Wei{}, err
	}
	return types.ParseWei(raw)
}

func contribution(ctx context.Context, q querier, fundID id.FundID, contributor string) (types.Wei, error) {
	var raw string
	err := q.QueryRow(ctx, `SELECT amount::text FROM fundme_totals WHERE fund_id = $1 AND contributor = $2`,
		fundID.String(), contributor).Scan(&raw)
	if isNoRows(err) {
		return types.Wei{}, nil
	}
	if err != nil {
		return types.Wei{}, err
	}
	return types.ParseWei(raw)
}

func count(ctx context.Context, q querier, fundID id.FundID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM fundme_funders WHERE fund_id = $1`, fundID.String()).Scan(&n)
	return n, err
}

func contributorAt(ctx context.Context, q querier, fundID id.FundID, index int) (string, error) {
	var c string
	err := q.QueryRow(ctx, `SELECT contributor FROM fundme_funders WHERE fund_id = $1 AND position = $2`,
		fundID.String(), index).Scan(&c)
	if isNoRows(err) {
		return "", fmt.Errorf("%w: %d", fundme.ErrIndexOutOfRange, index)
	}
	return c, err
}

// limit returns nil for an unset limit; LIMIT NULL is no limit.
func limit(opts fund.ListOpts) any {
	if opts.Limit <= 0 {
		return nil
	}
	return opts.Limit
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
