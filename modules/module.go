// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules keeps the registry of stateful precompile modules and the
// reserved address ranges they may occupy.
package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/twamm/contract"
)

// Module pairs a precompile contract with the address it lives at and the
// configurator that activates it on upgrade.
type Module struct {
	// ConfigKey is the json key used to specify this precompile in
	// upgrade files.
	ConfigKey string
	// Address is the address the precompile is registered at.
	Address common.Address
	// Contract handles calls to Address.
	Contract contract.StatefulPrecompiledContract
	// Configurator makes and applies this precompile's config.
	Configurator contract.Configurator
}

type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
