package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/config"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	paymem "github.com/xraph/fundme/payout/memory"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/leveldb"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/store/mongo"
	"github.com/xraph/fundme/store/postgres"
	"github.com/xraph/fundme/store/sqlite"
	"github.com/xraph/fundme/types"
)

// runtime is the resolved process configuration shared by every command.
type runtime struct {
	opts     *RootOptions
	env      config.Env
	networks config.Networks
	network  config.Network
	zl       zerolog.Logger
	logger   *slog.Logger
}

func newRuntime(opts *RootOptions, logOut io.Writer) (*runtime, error) {
	env := config.Load(opts.EnvFiles...)

	networks, err := config.LoadNetworks(env.NetworksFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load networks", err)
	}

	name := opts.Network
	if name == "" {
		name = env.Network
	}
	network, err := networks.Get(name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "select network", err)
	}

	zl := NewLogger(env.AppEnv, logOut)
	return &runtime{
		opts:     opts,
		env:      env,
		networks: networks,
		network:  network,
		zl:       zl,
		logger:   slogFor(zl, opts.Verbose),
	}, nil
}

// development reports whether the selected network binds a mock feed.
func (rt *runtime) development() bool {
	return rt.networks.IsDevelopment(rt.network.Name)
}

// openStore opens the backend named by FUNDME_STORE.
func openStore(ctx context.Context, env config.Env) (store.Store, error) {
	switch env.Store {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		s, err := sqlite.Open(env.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, env.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongo.New(ctx, env.DatabaseURL, env.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "leveldb":
		s, err := leveldb.Open(env.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", env.Store)
	}
}

// buildFeed binds the price feed for the selected network: the mock on
// development chains, otherwise the HTTP feed with retries and an optional
// redis cache in front. The returned closer releases the redis client.
func (rt *runtime) buildFeed() (oracle.PriceFeed, func() error, error) {
	noop := func() error { return nil }
	if rt.development() {
		rt.logger.Debug("development network, binding mock price feed",
			"network", rt.network.Name,
			"address", oracle.DefaultMockAddress,
		)
		return oracle.NewDefaultMock(), noop, nil
	}

	if rt.network.PriceFeed == "" {
		return nil, nil, fmt.Errorf("network %q has no price_feed", rt.network.Name)
	}
	url := rt.env.PriceFeedURL
	if url == "" {
		url = rt.network.PriceFeedURL
	}
	if url == "" {
		return nil, nil, fmt.Errorf("network %q has no price_feed_url", rt.network.Name)
	}

	var feed oracle.PriceFeed = oracle.NewHTTPFeed(rt.network.PriceFeed, url)
	if rt.env.OracleRetries > 0 {
		feed = oracle.NewRetrying(feed,
			oracle.WithMaxRetries(rt.env.OracleRetries),
			oracle.WithRetryLogger(rt.logger),
		)
	}
	if rt.env.RedisAddr == "" {
		return feed, noop, nil
	}

	client := redis.NewClient(&redis.Options{Addr: rt.env.RedisAddr})
	feed = oracle.NewCached(feed, oracle.NewRedisCache(client), rt.env.PriceCacheTTL, rt.logger)
	return feed, client.Close, nil
}

// session is an opened store plus the ledger bound to it.
type session struct {
	rt      *runtime
	store   store.Store
	bank    *paymem.Bank
	ledger  *fundme.Ledger
	closers []func() error
}

func (s *session) Close(ctx context.Context) error {
	var errs []error
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (rt *runtime) open(ctx context.Context) (*session, oracle.PriceFeed, error) {
	st, err := openStore(ctx, rt.env)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}
	feed, closeFeed, err := rt.buildFeed()
	if err != nil {
		_ = st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "bind price feed", err)
	}
	return &session{
		rt:      rt,
		store:   st,
		bank:    paymem.New(),
		closers: []func() error{st.Close, closeFeed},
	}, feed, nil
}

// deploy creates a new fund on the selected network and records it in the
// deployments file.
func (rt *runtime) deploy(ctx context.Context, owner string, minimum types.USD, opts ...fundme.Option) (*session, error) {
	deployments, err := config.LoadDeployments(rt.env.DeploymentsFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load deployments", err)
	}

	s, feed, err := rt.open(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]fundme.Option{fundme.WithLogger(rt.logger)}, opts...)
	l, err := fundme.Deploy(ctx, s.store, s.bank, fundme.Config{
		Owner:      owner,
		PriceFeed:  feed,
		MinimumUSD: minimum,
		Network:    rt.network.Name,
	}, opts...)
	if err != nil {
		_ = s.Close(ctx)
		return nil, ledgerError("deploy", err)
	}
	s.ledger = l

	deployments[rt.network.Name] = config.Deployment{
		FundID:     l.FundID().String(),
		Owner:      l.Owner(),
		PriceFeed:  l.PriceFeed(),
		Mock:       rt.development(),
		DeployedAt: l.Fund().CreatedAt,
	}
	if err := deployments.Save(rt.env.DeploymentsFile); err != nil {
		_ = s.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "save deployments", err)
	}
	return s, nil
}

// attach re-binds the fund recorded for the selected network.
func (rt *runtime) attach(ctx context.Context, opts ...fundme.Option) (*session, error) {
	deployments, err := config.LoadDeployments(rt.env.DeploymentsFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load deployments", err)
	}
	dep, err := deployments.Lookup(rt.network.Name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "run `fundme deploy` first", err)
	}
	fundID, err := id.ParseFundID(dep.FundID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "deployments file", err)
	}

	s, feed, err := rt.open(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]fundme.Option{fundme.WithLogger(rt.logger)}, opts...)
	l, err := fundme.Load(ctx, s.store, s.bank, fundID, feed, opts...)
	if err != nil {
		_ = s.Close(ctx)
		return nil, ledgerError("attach "+dep.FundID, err)
	}
	s.ledger = l
	return s, nil
}

// caller resolves the acting identity: the flag, else the configured owner.
func (rt *runtime) caller(from string) (string, error) {
	if from != "" {
		return from, nil
	}
	if rt.env.Owner != "" {
		return rt.env.Owner, nil
	}
	return "", NewExitError(ExitCommandError, "no caller: pass --from or set FUNDME_OWNER")
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
