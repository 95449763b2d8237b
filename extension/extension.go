// Package extension provides the Forge extension adapter for FundMe.
//
// It implements the forge.Extension interface to integrate a FundMe ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fundme" or "fundme" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/api"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/payout"
	paymem "github.com/xraph/fundme/payout/memory"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fundme"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Crowdfunding ledger with a USD contribution floor"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts a FundMe ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *fundme.Ledger
	store      store.Store
	bank       payout.Bank
	feed       oracle.PriceFeed
	ledgerOpts []fundme.Option
}

// New creates a new FundMe Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the bound ledger. This is nil until Register is called.
func (e *Extension) Ledger() *fundme.Ledger { return e.ledger }

// Register implements [forge.Extension]. It loads configuration, binds the
// ledger to its fund and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.bind(context.Background()); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*fundme.Ledger, error) {
		return e.ledger, nil
	})
}

// bind deploys a new fund, or attaches to config.FundID, filling in
// in-memory defaults for anything not provided.
func (e *Extension) bind(ctx context.Context) error {
	if e.store == nil {
		e.store = memory.New()
	}
	if e.bank == nil {
		e.bank = paymem.New()
	}
	if e.feed == nil {
		e.feed = oracle.NewDefaultMock()
	}

	opts := make([]fundme.Option, 0, len(e.ledgerOpts)+1)
	if e.config.DisableMigrate {
		opts = append(opts, fundme.WithoutMigrate())
	}
	opts = append(opts, e.ledgerOpts...)

	if e.config.FundID != "" {
		fundID, err := id.ParseFundID(e.config.FundID)
		if err != nil {
			return fmt.Errorf("fundme: fund_id: %w", err)
		}
		l, err := fundme.Load(ctx, e.store, e.bank, fundID, e.feed, opts...)
		if err != nil {
			return err
		}
		e.ledger = l
		return nil
	}

	l, err := fundme.Deploy(ctx, e.store, e.bank, fundme.Config{
		Owner:      e.config.Owner,
		PriceFeed:  e.feed,
		MinimumUSD: types.Dollars(e.config.MinimumUSD),
		Network:    e.config.Network,
	}, opts...)
	if err != nil {
		return err
	}
	e.ledger = l
	return nil
}

// Handler returns the fund's HTTP API mounted under BasePath, or nil when
// routes are disabled.
func (e *Extension) Handler() http.Handler {
	if e.config.DisableRoutes || e.ledger == nil {
		return nil
	}
	router := api.NewRouter(e.ledger, api.WithHealthCheck(e.Health))
	prefix := strings.TrimSuffix(e.config.BasePath, "/")
	if prefix == "" {
		return router
	}
	return http.StripPrefix(prefix, router)
}

// Start implements [forge.Extension].
func (e *Extension) Start(_ context.Context) error {
	if e.ledger == nil {
		return errors.New("fundme: extension not initialized")
	}
	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.ledger != nil {
		if err := e.ledger.Close(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fundme: store not initialized")
	}
	return e.store.Ping(ctx)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fundme: configuration is required but not found in config files; " +
				"ensure 'extensions.fundme' or 'fundme' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("fundme: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("fund_id", e.config.FundID),
		forge.F("owner", e.config.Owner),
		forge.F("minimum_usd", e.config.MinimumUSD),
		forge.F("network", e.config.Network),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.fundme", "fundme"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("fundme: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("fundme: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.MinimumUSD == 0 {
		cfg.MinimumUSD = defaults.MinimumUSD
	}
	if cfg.Network == "" {
		cfg.Network = defaults.Network
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.FundID == "" {
		yamlConfig.FundID = programmaticConfig.FundID
	}
	if yamlConfig.Owner == "" {
		yamlConfig.Owner = programmaticConfig.Owner
	}
	if yamlConfig.Network == "" {
		yamlConfig.Network = programmaticConfig.Network
	}
	if yamlConfig.MinimumUSD == 0 {
		yamlConfig.MinimumUSD = programmaticConfig.MinimumUSD
	}

	return mergeWithDefaults(yamlConfig)
}
