// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"fmt"

	"github.com/luxfi/twamm/contract"
	"github.com/luxfi/twamm/modules"
	"github.com/luxfi/twamm/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)
var _ contract.StatefulPrecompiledContract = (*twammPrecompile)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "lxTwammConfig"

// Module is the precompile module
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     LXTwammPrecompile,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

// Configure applies the upgrade config to state at activation.
func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T: %v", &Config{}, cfg, cfg)
	}

	precompile := LXTwammPrecompile.(*twammPrecompile)
	if config.MaxPriceImpactBps > 0 {
		precompile.setStateUint64(state, maxImpactSlot, config.MaxPriceImpactBps)
	}
	if config.Precision > 0 {
		precompile.setStateUint64(state, precisionSlot, uint64(config.Precision))
	}
	return nil
}
