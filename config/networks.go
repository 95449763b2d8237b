// Package config loads the process configuration: the network table that
// decides which price feed a deployment binds, the environment, and the
// deployments file that lets later commands re-attach to a fund.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownNetwork is returned for a network missing from the table.
var ErrUnknownNetwork = errors.New("config: unknown network")

// Network describes one deployment target.
type Network struct {
	Name               string `yaml:"-"`
	ChainID            int64  `yaml:"chain_id"`
	PriceFeed          string `yaml:"price_feed,omitempty"`
	PriceFeedURL       string `yaml:"price_feed_url,omitempty"`
	BlockConfirmations int    `yaml:"block_confirmations,omitempty"`
	RPCURL             string `yaml:"rpc_url,omitempty"`
}

// Networks is the network table plus the names that get a mock feed.
type Networks struct {
	Default           string             `yaml:"default"`
	DevelopmentChains []string           `yaml:"development_chains"`
	Networks          map[string]Network `yaml:"networks"`
}

// DefaultNetworks returns the built-in table.
func DefaultNetworks() Networks {
	return Networks{
		Default:           "hardhat",
		DevelopmentChains: []string{"hardhat", "localhost"},
		Networks: map[string]Network{
			"hardhat": {
				ChainID:            31337,
				BlockConfirmations: 1,
			},
			"localhost": {
				ChainID:            31337,
				BlockConfirmations: 1,
				RPCURL:             "http://127.0.0.1:8545/",
			},
			"goerli": {
				ChainID:            5,
				PriceFeed:          "0xD4a33860578De61DBAbDc8BFdb98FD742fA7028e",
				BlockConfirmations: 6,
			},
			"sepolia": {
				ChainID:            11155111,
				PriceFeed:          "0x694AA1769357215DE4FAC081bf1f309aDC325306",
				BlockConfirmations: 6,
			},
		},
	}
}

// LoadNetworks reads a YAML network table. ${VAR} references are expanded
// from the environment before parsing. A missing file yields the defaults.
func LoadNetworks(path string) (Networks, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultNetworks(), nil
	}
	if err != nil {
		return Networks{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseNetworks(raw)
}

// ParseNetworks decodes a YAML network table.
func ParseNetworks(raw []byte) (Networks, error) {
	var n Networks
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &n); err != nil {
		return Networks{}, fmt.Errorf("config: parse networks: %w", err)
	}
	if len(n.Networks) == 0 {
		return Networks{}, errors.New("config: networks table is empty")
	}
	if n.Default == "" {
		n.Default = "hardhat"
	}
	return n, nil
}

// Get returns the named network, or the default one for "".
func (n Networks) Get(name string) (Network, error) {
	if name == "" {
		name = n.Default
	}
	net, ok := n.Networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	net.Name = name
	return net, nil
}

// IsDevelopment reports whether name binds a mock price feed.
func (n Networks) IsDevelopment(name string) bool {
	return slices.Contains(n.DevelopmentChains, name)
}

// Names returns the network names in sorted order.
func (n Networks) Names() []string {
	names := make([]string, 0, len(n.Networks))
	for name := range n.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
