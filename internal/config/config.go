package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DefaultRegions are the regions probed when neither the --regions flag nor a
// config file narrows the list.
var DefaultRegions = []string{
	"us-east-1",
	"us-west-2",
	"ap-south-1",
	"ap-southeast-1",
	"eu-west-1",
	"eu-central-1",
}

// Config is the optional YAML config file. Flags and environment variables
// take precedence over anything set here.
type Config struct {
	Profile string   `yaml:"profile"`
	Regions []string `yaml:"regions"`

	// PriceOverrides replaces built-in monthly price estimates, keyed by
	// pricing table entry, e.g. "loadbalancer.application: 25.00".
	PriceOverrides map[string]float64 `yaml:"price_overrides"`
}

// Load reads and parses the config file at path. A missing file with an empty
// path is not an error; a missing file with an explicit path is.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// ResolveRegions picks the region list: explicit flag value first, then the
// config file, then the defaults.
func (c *Config) ResolveRegions(flagRegions []string) []string {
	if len(flagRegions) > 0 {
		return flagRegions
	}
	if len(c.Regions) > 0 {
		return c.Regions
	}
	return DefaultRegions
}

// ResolveProfile picks the AWS profile: explicit flag value first, then the
// config file, then the default credential chain.
func (c *Config) ResolveProfile(flagProfile string) string {
	if flagProfile != "" {
		return flagProfile
	}
	return c.Profile
}
