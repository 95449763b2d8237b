// Package mongo is a store.Store on MongoDB. A fund's ledger state lives in
// its fund document and every change is a version-guarded update, so two
// writers racing on the same fund cannot both win. Receipts are written in
// the same multi-document transaction, which needs a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/fund"
	"github.com/xraph/fundme/id"
	fundstore "github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// Collection name constants.
const (
	colFunds         = "fundme_funds"
	colContributions = "fundme_contributions"
	colWithdrawals   = "fundme_withdrawals"
)

// maxAttempts bounds the optimistic retries of RecordContribution.
const maxAttempts = 5

// ErrConcurrentUpdate is returned when the fund document changed between
// read and write.
var ErrConcurrentUpdate = errors.New("fundme/mongo: concurrent update")

// compile-time interface check
var _ fundstore.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri and uses database dbName.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("fundme/mongo: connect: %w", err)
	}
	s := NewFromClient(client, dbName)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("fundme/mongo: ping: %w", err)
	}
	return s, nil
}

// NewFromClient wraps a connected client. Close disconnects it.
func NewFromClient(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName)}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all fundme collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("fundme/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Fund Store ====================

func (s *Store) CreateFund(ctx context.Context, f *fund.Fund) error {
	_, err := s.db.Collection(colFunds).InsertOne(ctx, toFundModel(f))
	if mongo.IsDuplicateKeyError(err) {
		return fundme.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("fundme/mongo: create fund: %w", err)
	}
	return nil
}

func (s *Store) GetFund(ctx context.Context, fundID id.FundID) (*fund.Fund, error) {
	m, err := s.load(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return fromFundModel(m)
}

// ==================== Ledger Store ====================

func (s *Store) RecordContribution(ctx context.Context, c *fund.Contribution) error {
	for range maxAttempts {
		err := s.inTxn(ctx, func(ctx context.Context) error {
			m, err := s.load(ctx, c.FundID)
			if err != nil {
				return err
			}
			version := m.Version

			balance, err := types.ParseWei(m.Balance)
			if err != nil {
				return err
			}
			total, err := m.total(c.Contributor)
			if err != nil {
				return err
			}
			m.setTotal(c.Contributor, total.Add(c.Amount))
			m.Balance = balance.Add(c.Amount).String()
			c.Index = len(m.Funders)
			m.Funders = append(m.Funders, c.Contributor)
			m.Seq++

			if err := s.save(ctx, m, version); err != nil {
				return err
			}
			if _, err := s.db.Collection(colContributions).InsertOne(ctx, toContributionModel(c, m.Seq)); err != nil {
				return fmt.Errorf("fundme/mongo: insert contribution: %w", err)
			}
			return nil
		})
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
	}
	return ErrConcurrentUpdate
}

func (s *Store) Contribution(ctx context.Context, fundID id.FundID, contributor string) (types.Wei, error) {
	m, err := s.load(ctx, fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return m.total(contributor)
}

func (s *Store) ContributorAt(ctx context.Context, fundID id.FundID, index int) (string, error) {
	m, err := s.load(ctx, fundID)
	if err != nil {
		return "", err
	}
	return funderAt(m, index)
}

func (s *Store) ContributorCount(ctx context.Context, fundID id.FundID) (int, error) {
	m, err := s.load(ctx, fundID)
	if err != nil {
		return 0, err
	}
	return len(m.Funders), nil
}

func (s *Store) Balance(ctx context.Context, fundID id.FundID) (types.Wei, error) {
	m, err := s.load(ctx, fundID)
	if err != nil {
		return types.Wei{}, err
	}
	return types.ParseWei(m.Balance)
}

// ==================== Receipt Store ====================

func (s *Store) ListContributions(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Contribution, error) {
	var models []contributionModel
	if err := s.list(ctx, colContributions, fundID, opts, &models); err != nil {
		return nil, fmt.Errorf("fundme/mongo: list contributions: %w", err)
	}
	out := make([]*fund.Contribution, 0, len(models))
	for i := range models {
		c, err := fromContributionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, fundID id.FundID, opts fund.ListOpts) ([]*fund.Withdrawal, error) {
	var models []withdrawalModel
	if err := s.list(ctx, colWithdrawals, fundID, opts, &models); err != nil {
		return nil, fmt.Errorf("fundme/mongo: list withdrawals: %w", err)
	}
	out := make([]*fund.Withdrawal, 0, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Store) list(ctx context.Context, col string, fundID id.FundID, opts fund.ListOpts, results any) error {
	findOpts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	cursor, err := s.db.Collection(col).Find(ctx, bson.M{"fund_id": fundID.String()}, findOpts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, results)
}

// ==================== Transactions ====================

// WithTx loads the fund document, lets fn work on it in memory, and writes
// it back guarded by the version it was read at.
func (s *Store) WithTx(ctx context.Context, fundID id.FundID, fn func(ctx context.Context, tx fundstore.Tx) error) error {
	return s.inTxn(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, fundID)
		if err != nil {
			return err
		}
		tx := &mongoTx{fund: m}
		version := m.Version
		if err := fn(ctx, tx); err != nil {
			return err
		}

		receipts := make([]any, 0, len(tx.withdrawals))
		for _, w := range tx.withdrawals {
			m.Seq++
			receipts = append(receipts, toWithdrawalModel(w, m.Seq))
		}
		if err := s.save(ctx, m, version); err != nil {
			return err
		}
		if len(receipts) > 0 {
			if _, err := s.db.Collection(colWithdrawals).InsertMany(ctx, receipts); err != nil {
				return fmt.Errorf("fundme/mongo: insert withdrawal: %w", err)
			}
		}
		return nil
	})
}

type mongoTx struct {
	fund        *fundModel
	withdrawals []*fund.Withdrawal
}

func (t *mongoTx) ContributorCount(context.Context) (int, error) {
	return len(t.fund.Funders), nil
}

func (t *mongoTx) ContributorAt(_ context.Context, index int) (string, error) {
	return funderAt(t.fund, index)
}

func (t *mongoTx) Contributors(context.Context) ([]string, error) {
	return append([]string(nil), t.fund.Funders...), nil
}

func (t *mongoTx) ResetContribution(_ context.Context, contributor string) error {
	for i := range t.fund.Totals {
		if t.fund.Totals[i].Contributor == contributor {
			t.fund.Totals[i].Amount = "0"
		}
	}
	return nil
}

func (t *mongoTx) ClearContributors(context.Context) error {
	t.fund.Funders = []string{}
	return nil
}

func (t *mongoTx) Balance(context.Context) (types.Wei, error) {
	return types.ParseWei(t.fund.Balance)
}

func (t *mongoTx) DrainBalance(context.Context) error {
	t.fund.Balance = "0"
	return nil
}

func (t *mongoTx) RecordWithdrawal(_ context.Context, w *fund.Withdrawal) error {
	t.withdrawals = append(t.withdrawals, w)
	return nil
}

// ==================== Helpers ====================

// inTxn runs fn inside a session transaction, committing on nil.
func (s *Store) inTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("fundme/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("fundme/mongo: start transaction: %w", err)
	}
	sctx := mongo.NewSessionContext(ctx, sess)
	if err := fn(sctx); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return err
	}
	return sess.CommitTransaction(sctx)
}

func (s *Store) load(ctx context.Context, fundID id.FundID) (*fundModel, error) {
	var m fundModel
	err := s.db.Collection(colFunds).FindOne(ctx, bson.M{"_id": fundID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, fundme.ErrFundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fundme/mongo: get fund: %w", err)
	}
	return &m, nil
}

// save writes the ledger state back if the document is still at version.
func (s *Store) save(ctx context.Context, m *fundModel, version int64) error {
	res, err := s.db.Collection(colFunds).UpdateOne(ctx,
		bson.M{"_id": m.ID, "version": version},
		bson.M{
			"$set": bson.M{
				"balance": m.Balance,
				"funders": m.Funders,
				"totals":  m.Totals,
				"seq":     m.Seq,
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("fundme/mongo: update fund: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func funderAt(m *fundModel, index int) (string, error) {
	if index < 0 || index >= len(m.Funders) {
		return "", fmt.Errorf("%w: %d", fundme.ErrIndexOutOfRange, index)
	}
	return m.Funders[index], nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all fundme collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colContributions: {
			{Keys: bson.D{{Key: "fund_id", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "fund_id", Value: 1}, {Key: "contributor", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "fund_id", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
