// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"fmt"

	"github.com/luxfi/twamm/precompileconfig"
)

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade           precompileconfig.Upgrade `json:"upgrade,omitempty"`
	MaxPriceImpactBps uint64                   `json:"maxPriceImpactBps,omitempty"`
	Precision         uint8                    `json:"precision,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade) &&
		c.MaxPriceImpactBps == other.MaxPriceImpactBps &&
		c.Precision == other.Precision
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	if c.MaxPriceImpactBps > MaxConfigurableImpactBps {
		return fmt.Errorf("maxPriceImpactBps %d exceeds limit %d", c.MaxPriceImpactBps, MaxConfigurableImpactBps)
	}
	if c.Precision > 38 {
		return fmt.Errorf("precision %d exceeds limit 38", c.Precision)
	}
	return nil
}
