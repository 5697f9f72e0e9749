package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays EMISSIONKEEPER_* variables. Unset variables keep the
// value already in cfg.
func parseEnv(cfg *Config) error {
	return env.Parse(cfg)
}
