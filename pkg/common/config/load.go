package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"

	"github.com/fystack/storage-inspector/pkg/common/enum"
)

var validate = validator.New()

const DefaultTimeout = 10 * time.Second

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Defaults.Timeout == 0 {
		cfg.Defaults.Timeout = DefaultTimeout
	}
	if cfg.Reader == "" {
		cfg.Reader = enum.ReaderTypeRPC
	}
	if cfg.Cache.Enabled && cfg.Cache.Type == "" {
		cfg.Cache.Type = enum.KVStoreTypeBadger
	}

	// apply defaults
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.FinalizeNodes(); err != nil {
		return nil, err
	}

	// validate
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}

	for name, c := range cfg.Contracts {
		c.Name = name
		for arrayName, a := range c.Arrays {
			a.Name = arrayName
			if _, err := a.Resolve(); err != nil {
				return nil, fmt.Errorf("contract %s: %w", name, err)
			}
			c.Arrays[arrayName] = a
		}
		cfg.Contracts[name] = c
	}

	if cfg.Cache.Enabled && !cfg.Cache.InMemory && cfg.Cache.Directory == "" {
		return nil, fmt.Errorf("cache: directory is required unless in_memory is set")
	}
	return &cfg, nil
}

// ApplyDefaults merges the defaults section into every node's client settings.
func (c *Config) ApplyDefaults() error {
	for name, n := range c.Nodes {
		if err := mergo.Merge(&n.Client, c.Defaults); err != nil {
			return fmt.Errorf("node %s: merge defaults: %w", name, err)
		}
		c.Nodes[name] = n
	}
	return nil
}

func (c *Config) GetContract(name string) (ContractConfig, error) {
	if cc, ok := c.Contracts[name]; ok {
		return cc, nil
	}
	return ContractConfig{}, fmt.Errorf("contract %s not found", name)
}

func (c ContractConfig) GetArray(name string) (ArrayConfig, error) {
	if a, ok := c.Arrays[name]; ok {
		return a, nil
	}
	return ArrayConfig{}, fmt.Errorf("array %s not found in contract %s", name, c.Name)
}
