package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotDeployed is returned when a network has no recorded deployment.
var ErrNotDeployed = errors.New("config: no deployment recorded")

// Deployment is what a later command needs to re-attach to a fund.
type Deployment struct {
	FundID     string    `yaml:"fund_id"`
	Owner      string    `yaml:"owner"`
	PriceFeed  string    `yaml:"price_feed"`
	Mock       bool      `yaml:"mock,omitempty"`
	DeployedAt time.Time `yaml:"deployed_at"`
}

// Deployments maps network name to its deployment.
type Deployments map[string]Deployment

// LoadDeployments reads the deployments file. A missing file is empty.
func LoadDeployments(path string) (Deployments, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Deployments{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	d := Deployments{}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return d, nil
}

// Lookup returns the deployment recorded for network.
func (d Deployments) Lookup(network string) (Deployment, error) {
	dep, ok := d[network]
	if !ok {
		return Deployment{}, fmt.Errorf("%w for %q", ErrNotDeployed, network)
	}
	return dep, nil
}

// Save writes the file atomically via a temp file and rename.
func (d Deployments) Save(path string) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".deployments-*")
	if err != nil {
		return fmt.Errorf("config: save deployments: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("config: save deployments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
