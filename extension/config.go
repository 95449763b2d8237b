package extension

// Config holds the FundMe extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fundme" or "fundme" keys).
type Config struct {
	// DisableRoutes prevents HTTP handler construction.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration when the ledger binds.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for fund routes (default: "/fundme").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// FundID attaches to an existing fund. When empty a new fund is deployed.
	FundID string `json:"fund_id" mapstructure:"fund_id" yaml:"fund_id"`

	// Owner is the deployer identity for a new fund.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// MinimumUSD is the contribution floor in whole dollars (default: 50).
	MinimumUSD int64 `json:"minimum_usd" mapstructure:"minimum_usd" yaml:"minimum_usd"`

	// Network is recorded on a newly deployed fund.
	Network string `json:"network" mapstructure:"network" yaml:"network"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:   "/fundme",
		MinimumUSD: 50,
		Network:    "hardhat",
	}
}
