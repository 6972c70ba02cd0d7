package config

import (
	"fmt"

	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(func() (*Config, error) {
		cfg, err := Load()
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
		return cfg, nil
	}),
)
