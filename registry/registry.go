// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"fmt"

	"github.com/luxfi/geth/common"
)

// Precompile address scheme, aligned with LP numbering (LP-0099).
//
// All Lux-native precompiles use trailing-significant 20-byte addresses:
//   Format: 0x0000000000000000000000000000000000PCII
//
// The address ends with the 16-bit LP number (PCII). The selector encodes:
//   0x 0000...0000 P C II
//                  │ │ └┴─ Item/function (8 bits)
//                  │ └──── Chain slot    (4 bits)
//                  └────── Family page   (4 bits, aligned with LP-Pxxx)
//
// This module occupies the Markets family (P=9, LP-9xxx). The TWAMM
// calculator sits at item 0x15: LP-9015.

// Markets family precompile addresses (LP-9xxx).
const (
	LXPool   = "0x0000000000000000000000000000000000009010" // LP-9010 LXPool (singleton AMM)
	LXOracle = "0x0000000000000000000000000000000000009011" // LP-9011 LXOracle (price aggregation)
	LXRouter = "0x0000000000000000000000000000000000009012" // LP-9012 LXRouter (swap routing)
	LXHooks  = "0x0000000000000000000000000000000000009013" // LP-9013 LXHooks (hook registry)
	LXFlash  = "0x0000000000000000000000000000000000009014" // LP-9014 LXFlash (flash loans)
	LXTwamm  = "0x0000000000000000000000000000000000009015" // LP-9015 LXTwamm (time-weighted AMM)
	LXBook   = "0x0000000000000000000000000000000000009020" // LP-9020 LXBook (orderbook + matching)
	LXVault  = "0x0000000000000000000000000000000000009030" // LP-9030 LXVault (custody + margin)
	LXFeed   = "0x0000000000000000000000000000000000009040" // LP-9040 LXFeed (computed prices)
	LXLend   = "0x0000000000000000000000000000000000009050" // LP-9050 LXLend (lending pool)
)

// PrecompileAddress calculates an address from (P, C, II) nibbles.
// P = family page (aligned with LP-Pxxx), C = chain slot, II = item.
// Returns trailing-significant format: 0x0000000000000000000000000000000000PCII.
func PrecompileAddress(p, c, ii uint8) common.Address {
	if p > 15 || c > 15 {
		return common.Address{}
	}
	selector := fmt.Sprintf("%x%x%02x", p, c, ii)
	addr := "0000000000000000000000000000000000" + selector
	return common.HexToAddress("0x" + addr)
}

// ChainSlot returns the C-nibble for a chain name.
func ChainSlot(chain string) uint8 {
	switch chain {
	case "P", "p":
		return 0
	case "X", "x":
		return 1
	case "C", "c":
		return 2
	case "Zoo", "zoo":
		return 8
	default:
		return 0xFF
	}
}

// FamilyPage returns the P-nibble for a family name (aligned with LP-Pxxx).
func FamilyPage(family string) uint8 {
	switch family {
	case "DEX", "dex", "Markets", "markets":
		return 9 // LP-9xxx
	default:
		return 0xFF
	}
}

// PrecompileInfo describes a registered precompile.
type PrecompileInfo struct {
	Address     string
	Name        string
	Description string
	GasBase     uint64
	Chains      []string
	LPNumber    string
}

// MarketPrecompiles lists the markets-family precompiles with their metadata.
var MarketPrecompiles = []PrecompileInfo{
	{LXPool, "LX_POOL", "Uniswap v4-style singleton AMM", 50000, []string{"C", "Zoo"}, "LP-9010"},
	{LXOracle, "LX_ORACLE", "Price oracle aggregation", 15000, []string{"C", "Zoo"}, "LP-9011"},
	{LXRouter, "LX_ROUTER", "Optimized swap routing", 10000, []string{"C", "Zoo"}, "LP-9012"},
	{LXHooks, "LX_HOOKS", "Hook contract registry", 10000, []string{"C", "Zoo"}, "LP-9013"},
	{LXFlash, "LX_FLASH", "Flash loan facility", 50000, []string{"C", "Zoo"}, "LP-9014"},
	{LXTwamm, "LX_TWAMM", "Time-weighted AMM virtual order calculator", 15000, []string{"C", "Zoo"}, "LP-9015"},
	{LXBook, "LX_BOOK", "Central limit order book", 25000, []string{"C", "Zoo"}, "LP-9020"},
	{LXVault, "LX_VAULT", "Custody, margin, positions", 50000, []string{"C", "Zoo"}, "LP-9030"},
	{LXFeed, "LX_FEED", "Computed price feeds (mark/index)", 10000, []string{"C", "Zoo"}, "LP-9040"},
	{LXLend, "LX_LEND", "Lending pool", 25000, []string{"C", "Zoo"}, "LP-9050"},
}

// GetPrecompileAddress returns the address for a precompile by name.
func GetPrecompileAddress(name string) common.Address {
	for _, p := range MarketPrecompiles {
		if p.Name == name {
			return common.HexToAddress(p.Address)
		}
	}
	return common.Address{}
}

// GetChainPrecompiles returns the markets precompiles enabled on a chain.
func GetChainPrecompiles(chainLetter string) []common.Address {
	var result []common.Address
	for _, p := range MarketPrecompiles {
		for _, c := range p.Chains {
			if c == chainLetter {
				result = append(result, common.HexToAddress(p.Address))
				break
			}
		}
	}
	return result
}

// IsPrecompileEnabled reports whether addr is registered for the chain.
func IsPrecompileEnabled(chainLetter string, addr common.Address) bool {
	for _, enabled := range GetChainPrecompiles(chainLetter) {
		if enabled == addr {
			return true
		}
	}
	return false
}
