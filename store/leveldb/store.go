// Package leveldb is an embedded store.Store on goleveldb. Each fund is one
// JSON document holding its configuration and ledger state; receipts are
// kept under per-fund prefixes keyed by a zero-padded sequence so that a
// prefix scan returns them in insertion order.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	fundstore "github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// compile-time interface check
var _ fundstore.Store = (*Store)(nil)

// Store implements store.Store on a LevelDB database.
type Store struct {
	// mu serializes read-modify-write cycles; leveldb itself only makes
	// single batches atomic.
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (creating if needed) the database directory at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("fundme/leveldb: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a database that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("fundme/leveldb: open memory: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate is a no-op; leveldb is schemaless.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping reports whether the database is still open.
func (s *Store) Ping(context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	if errors.Is(err, leveldb.ErrClosed) {
		return fundme.ErrStoreClosed
	}
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type state struct {
	Fund    *fund.Fund           `json:"fund"`
	Balance types.Wei            `json:"balance"`
	Funders []string             `json:"funders"`
	Totals  map[string]types.Wei `json:"totals"`
	Seq     uint64               `json:"seq"`
}

func fundKey(fundID id.FundID) []byte {
	return []byte("fund/" + fundID.String())
}

func contributionPrefix(fundID id.FundID) []byte {
	return []byte("ctb/" + fundID.String() + "/")
}

func withdrawalPrefix(fundID id.FundID) []byte {
	return []byte("wdr/" + fundID.String() + "/")
}

func seqKey(prefix []byte, seq uint64) []byte {
	return append(append([]byte(nil), prefix...), fmt.Sprintf("%020d", seq)...)
}

// ==================== Fund Store ====================

func (s *Store) CreateFund(_ context.Context, f *fund.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has(fundKey(f.ID), nil)
	if err != nil {
		return mapErr(err)
	}
	if ok {
		return fundme.ErrAlreadyExists
	}
	cp := *f
	return s.put(fundKey(f.ID), &state{
		Fund:    &cp,
		Funders: []string{},
		Totals:  map[string]types.Wei{},
	})
}

func (s *Store) GetFund(_ context.Context, fundID id.FundID) (*fund.Fund, error) {
	st, err := s.load(fundID)
	if err != nil {
		return nil, err
	}
	return st.Fund, nil
}

// ==================== Ledger Store ====================

func (s *Store) RecordContribution(_ context.Context, c *fund.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(c.FundID)
	if err != nil {
		return err
	}
	st.Balance = st.Balance.Add(c.Amount)
	st.Totals[c.Contributor] = st.Totals[c.Contributor].Add(c.Amount)
	c.Index = len(st.Funders)
	st.Funders = append(st.Funders, c.Contributor)
	st.Seq++

	batch := new(leveldb.Batch)
	if err := putJSON(batch, fundKey(c.FundID), st); err != nil {
		return err
	}
	if err := putJSON(batch, seqKey(contributionPrefix(c.FundID), st.Seq), c); err != nil {
		return err
	}
	return mapErr(s.db.Write(batch, nil))
}

func (s *Store) Contribution(_ context.Context, fundID id.FundID, contributor string) (types.Wei, error) {
	st, err := s.load(fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return st.Totals[contributor], nil
}

func (s *Store) ContributorAt(_ context.Context, fundID id.FundID, index int) (string, error) {
	st, err := s.load(fundID)
	if err != nil {
		return "", err
	}
	return st.at(index)
}

func (s *Store) ContributorCount(_ context.Context, fundID id.FundID) (int, error) {
	st, err := s.load(fundID)
	if err != nil {
		return 0, err
	}
	return len(st.Funders), nil
}

func (s *Store) Balance(_ context.Context, fundID id.FundID) (types.Wei, error) {
	st, err := s.load(fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return st.Balance, nil
}

// ==================== Receipt Store ====================

func (s *Store) ListContributions(_ context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error) {
	if _, err := s.load(fundID); err != nil {
		return nil, err
	}
	return scan[fund.Contribution](s.db, contributionPrefix(fundID), opts)
}

func (s *Store) ListWithdrawals(_ context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Withdrawal, error) {
	if _, err := s.load(fundID); err != nil {
		return nil, err
	}
	return scan[fund.Withdrawal](s.db, withdrawalPrefix(fundID), opts)
}

func scan[T any](db *leveldb.DB, prefix []byte, opts fund.ListOpts) ([]*T, error) {
	iter := db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []*T
	skipped := 0
	for iter.Next() {
		if skipped < opts.Offset {
			skipped++
			continue
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		v := new(T)
		if err := json.Unmarshal(iter.Value(), v); err != nil {
			return nil, fmt.Errorf("fundme/leveldb: decode %s: %w", iter.Key(), err)
		}
		out = append(out, v)
	}
	return out, mapErr(iter.Error())
}

// ==================== Transactions ====================

// WithTx hands fn an in-memory copy of the fund's state inside a leveldb
// transaction and writes it back, with any withdrawal receipts, when fn
// succeeds.
func (s *Store) WithTx(ctx context.Context, fundID id.FundID, fn func(ctx context.Context, tx fundstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := s.db.OpenTransaction()
	if err != nil {
		return mapErr(err)
	}
	defer tr.Discard()

	st, err := decodeState(tr.Get(fundKey(fundID), nil))
	if err != nil {
		return err
	}
	tx := &ldbTx{state: st}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for _, w := range tx.withdrawals {
		st.Seq++
		if err := putJSON(batch, seqKey(withdrawalPrefix(fundID), st.Seq), w); err != nil {
			return err
		}
	}
	if err := putJSON(batch, fundKey(fundID), st); err != nil {
		return err
	}
	if err := tr.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return mapErr(err)
	}
	return mapErr(tr.Commit())
}

type ldbTx struct {
	state       *state
	withdrawals []*fund.Withdrawal
}

func (t *ldbTx) ContributorCount(context.Context) (int, error) {
	return len(t.state.Funders), nil
}

func (t *ldbTx) ContributorAt(_ context.Context, index int) (string, error) {
	return t.state.at(index)
}

func (t *ldbTx) Contributors(context.Context) ([]string, error) {
	return append([]string(nil), t.state.Funders...), nil
}

func (t *ldbTx) ResetContribution(_ context.Context, contributor string) error {
	if _, ok := t.state.Totals[contributor]; ok {
		t.state.Totals[contributor] = types.Wei{}
	}
	return nil
}

func (t *ldbTx) ClearContributors(context.Context) error {
	t.state.Funders = []string{}
	return nil
}

func (t *ldbTx) Balance(context.Context) (types.Wei, error) {
	return t.state.Balance, nil
}

func (t *ldbTx) DrainBalance(context.Context) error {
	t.state.Balance = types.Wei{}
	return nil
}

func (t *ldbTx) RecordWithdrawal(_ context.Context, w *fund.Withdrawal) error {
	t.withdrawals = append(t.withdrawals, w)
	return nil
}

// ==================== Helpers ====================

func (st *state) at(index int) (string, error) {
	if index < 0 || index >= len(st.Funders) {
		return "", fmt.Errorf("%w: %d", fundme.ErrIndexOutOfRange, index)
	}
	return st.Funders[index], nil
}

func (s *Store) load(fundID id.FundID) (*state, error) {
	return decodeState(s.db.Get(fundKey(fundID), nil))
}

func decodeState(raw []byte, err error) (*state, error) {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fundme.ErrFundNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("fundme/leveldb: decode fund: %w", err)
	}
	if st.Totals == nil {
		st.Totals = map[string]types.Wei{}
	}
	return &st, nil
}

func (s *Store) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return mapErr(s.db.Put(key, raw, nil))
}

func putJSON(batch *leveldb.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fundme/leveldb: encode %s: %w", key, err)
	}
	batch.Put(key, raw)
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return fundme.ErrStoreClosed
	}
	return err
}
