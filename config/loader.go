package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load builds a Config from the defaults, the YAML file at path and the
// environment, in that order of precedence (later wins). An empty path means
// DefaultConfigPath, which may be absent; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	f, err := os.Open(path) //nolint:gosec // User-provided config path is intentional
	switch {
	case err == nil:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("load config %s: %w", path, ErrConfigNotFound)
	default:
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// decode reads YAML into cfg, rejecting unknown keys. An empty file leaves
// cfg unchanged.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPI); ok && v != "" {
		c.API = v
	}
	if v, ok := lookup(EnvSyncRoot); ok && v != "" {
		c.SyncRoot = v
	}
}
