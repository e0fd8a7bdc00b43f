// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/twamm/contract"
	"github.com/luxfi/twamm/fixedpoint"
)

// Function selectors (first 4 bytes of keccak256 of function signature)
var (
	// Write functions
	SelectorInitialize       = [4]byte{0xc4, 0xd6, 0x6d, 0xe8} // initialize(address)
	SelectorCalculateTrades  = [4]byte{0x5b, 0x0e, 0x9b, 0x33} // calculateVirtualTrades(bytes32,uint256,uint256,uint256,uint256,uint256)
	SelectorAdvancedTwamm    = [4]byte{0x8a, 0x2f, 0x1c, 0x74} // calculateAdvancedTwamm(bytes32,uint256,uint256,uint256,uint256,uint256,uint256)
	SelectorBatchCalculate   = [4]byte{0x3d, 0x91, 0xa6, 0x0b} // batchCalculateVirtualTrades(uint256,uint256[])
	SelectorUpdateConfig     = [4]byte{0x7e, 0xb4, 0x2f, 0x85} // updateConfig(uint256,uint256)
	SelectorSetEmergencyMode = [4]byte{0x2c, 0x1e, 0x81, 0x6a} // setEmergencyMode(bool)
	SelectorResetStatistics  = [4]byte{0x66, 0xf3, 0x0d, 0xc1} // resetStatistics()

	// View functions
	SelectorSimulateScenarios = [4]byte{0x9f, 0x4a, 0xcc, 0x28} // simulateExecutionScenarios(uint256,uint256,uint256,uint256,uint256,uint256)
	SelectorPriceImpact       = [4]byte{0x44, 0x7d, 0x30, 0x9e} // calculatePriceImpact(uint256,uint256,uint256)
	SelectorExecutionQuality  = [4]byte{0xe1, 0x58, 0x26, 0x4f} // calculateExecutionQuality(uint256,uint256,uint256)
	SelectorGetPoolStats      = [4]byte{0xb0, 0x8c, 0x95, 0x12} // getPoolStats(bytes32)
	SelectorGetGlobalStats    = [4]byte{0x1f, 0xd2, 0x7a, 0xe6} // getGlobalStats()
	SelectorHealthCheck       = [4]byte{0x61, 0x9e, 0xf4, 0x03} // healthCheck()
)

// Configuration defaults, applied on initialize.
const (
	DefaultMaxPriceImpactBps uint64 = 1_000 // 10%
	MaxConfigurableImpactBps uint64 = 5_000 // 50%

	// Upper bound on entries in a batch or simulation call.
	maxBatchEntries uint64 = 1_000
)

// Storage slots, derived from descriptive strings. Per-pool fields hang off
// poolStatePrefix keyed by pool id.
var (
	ownerSlot       = makeSlot([]byte("twamm.owner"))
	maxImpactSlot   = makeSlot([]byte("twamm.maxPriceImpactBps"))
	precisionSlot   = makeSlot([]byte("twamm.precision"))
	emergencySlot   = makeSlot([]byte("twamm.emergencyMode"))
	totalCalcsSlot  = makeSlot([]byte("twamm.totalCalculations"))
	totalVolumeSlot = makeSlot([]byte("twamm.totalVolumeProcessed"))
	poolStatePrefix = []byte("twamm.poolState")
)

// LXTwammPrecompile is the stateful precompile singleton.
var LXTwammPrecompile contract.StatefulPrecompiledContract = &twammPrecompile{}

type twammPrecompile struct{}

// Run dispatches a call to the calculator by selector.
func (t *twammPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	stateDB := accessibleState.GetStateDB()

	var selector [4]byte
	copy(selector[:], input[:4])
	args := input[4:]

	switch selector {
	case SelectorInitialize:
		return t.initialize(stateDB, caller, args, suppliedGas, readOnly)
	case SelectorCalculateTrades:
		return t.calculateVirtualTrades(accessibleState, args, suppliedGas, readOnly)
	case SelectorAdvancedTwamm:
		return t.calculateAdvancedTwamm(accessibleState, args, suppliedGas, readOnly)
	case SelectorBatchCalculate:
		return t.batchCalculate(stateDB, args, suppliedGas, readOnly)
	case SelectorSimulateScenarios:
		return t.simulateScenarios(stateDB, args, suppliedGas)
	case SelectorPriceImpact:
		return t.priceImpact(args, suppliedGas)
	case SelectorExecutionQuality:
		return t.executionQuality(args, suppliedGas)
	case SelectorGetPoolStats:
		return t.getPoolStats(stateDB, args, suppliedGas)
	case SelectorGetGlobalStats:
		return t.getGlobalStats(stateDB, suppliedGas)
	case SelectorUpdateConfig:
		return t.updateConfig(stateDB, caller, args, suppliedGas, readOnly)
	case SelectorSetEmergencyMode:
		return t.setEmergencyMode(stateDB, caller, args, suppliedGas, readOnly)
	case SelectorResetStatistics:
		return t.resetStatistics(stateDB, caller, suppliedGas, readOnly)
	case SelectorHealthCheck:
		return t.healthCheck(stateDB, suppliedGas)
	default:
		return nil, suppliedGas, ErrInvalidInput
	}
}

// initialize sets the owner and configuration defaults. Callable once; a
// second call fails unless made by the current owner.
func (t *twammPrecompile) initialize(
	stateDB contract.StateDB,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrWriteProtection
	}
	if suppliedGas < GasConfigWrite {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasConfigWrite

	if !t.isOwner(stateDB, caller) {
		return nil, remainingGas, ErrUnauthorized
	}
	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}

	owner := common.BytesToAddress(args[12:32])
	if owner == (common.Address{}) {
		return nil, remainingGas, ErrInvalidInput
	}

	var ownerWord common.Hash
	copy(ownerWord[12:], owner.Bytes())
	stateDB.SetState(ContractAddress, ownerSlot, ownerWord)
	t.setStateUint64(stateDB, maxImpactSlot, DefaultMaxPriceImpactBps)
	t.setStateUint64(stateDB, precisionSlot, uint64(fixedpoint.DefaultPrecision))
	t.setStateUint64(stateDB, emergencySlot, 0)

	return nil, remainingGas, nil
}

// calculateVirtualTrades runs the virtual order calculation for one pool
// and accumulates pool and global statistics. Statistics are written only
// after a successful calculation.
//
// Args: poolId, sellRate0, sellRate1, blocksElapsed, reserve0, reserve1.
// Returns amount0 and amount1 as two words.
func (t *twammPrecompile) calculateVirtualTrades(
	accessibleState contract.AccessibleState,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if suppliedGas < GasCalculateBase {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasCalculateBase

	stateDB := accessibleState.GetStateDB()
	if len(args) < 6*32 {
		return nil, remainingGas, ErrInvalidInput
	}

	var poolID PoolID
	copy(poolID[:], args[:32])
	rate0 := new(uint256.Int).SetBytes(args[32:64])
	rate1 := new(uint256.Int).SetBytes(args[64:96])
	blocksWord := new(uint256.Int).SetBytes(args[96:128])
	reserve0 := new(uint256.Int).SetBytes(args[128:160])
	reserve1 := new(uint256.Int).SetBytes(args[160:192])

	if err := validateCalculationInputs(rate0, rate1, blocksWord, reserve0, reserve1); err != nil {
		return nil, remainingGas, err
	}
	if t.emergencyMode(stateDB) {
		return nil, remainingGas, ErrEmergencyMode
	}

	precision := t.precision(stateDB)
	amount0, amount1, err := TradeAmounts(rate0, rate1, blocksWord.Uint64(), reserve0, reserve1, precision)
	if err != nil {
		return nil, remainingGas, err
	}

	if !readOnly {
		if remainingGas < GasStateWrite {
			return nil, 0, ErrInsufficientGas
		}
		remainingGas -= GasStateWrite
		t.recordCalculation(accessibleState, poolID, amount0, amount1, reserve0, reserve1, precision)
	}

	result := make([]byte, 64)
	amount0.WriteToSlice(result[:32])
	amount1.WriteToSlice(result[32:])
	return result, remainingGas, nil
}

// calculateAdvancedTwamm extends calculateVirtualTrades with price impacts
// per side and an execution quality score.
//
// Args: poolId, sellRate0, sellRate1, blocksElapsed, reserve0, reserve1,
// historicalVolatility (reserved). Returns amount0, amount1, impact0Bps,
// impact1Bps, quality as five words.
func (t *twammPrecompile) calculateAdvancedTwamm(
	accessibleState contract.AccessibleState,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if suppliedGas < GasAdvancedCalc {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasAdvancedCalc

	stateDB := accessibleState.GetStateDB()
	if len(args) < 7*32 {
		return nil, remainingGas, ErrInvalidInput
	}

	var poolID PoolID
	copy(poolID[:], args[:32])
	rate0 := new(uint256.Int).SetBytes(args[32:64])
	rate1 := new(uint256.Int).SetBytes(args[64:96])
	blocksWord := new(uint256.Int).SetBytes(args[96:128])
	reserve0 := new(uint256.Int).SetBytes(args[128:160])
	reserve1 := new(uint256.Int).SetBytes(args[160:192])

	if err := validateCalculationInputs(rate0, rate1, blocksWord, reserve0, reserve1); err != nil {
		return nil, remainingGas, err
	}
	if t.emergencyMode(stateDB) {
		return nil, remainingGas, ErrEmergencyMode
	}

	precision := t.precision(stateDB)
	blocks := blocksWord.Uint64()

	amount0, amount1, err := TradeAmounts(rate0, rate1, blocks, reserve0, reserve1, precision)
	if err != nil {
		return nil, remainingGas, err
	}

	impact0 := uint256.NewInt(0)
	if !amount0.IsZero() {
		impact0, err = PriceImpact(amount0, reserve0, reserve1)
		if err != nil {
			return nil, remainingGas, err
		}
	}
	impact1 := uint256.NewInt(0)
	if !amount1.IsZero() {
		impact1, err = PriceImpact(amount1, reserve1, reserve0)
		if err != nil {
			return nil, remainingGas, err
		}
	}

	worstImpact := impact0
	if impact1.Gt(impact0) {
		worstImpact = impact1
	}
	if !worstImpact.IsUint64() || worstImpact.Uint64() > t.maxPriceImpactBps(stateDB) {
		return nil, remainingGas, ErrInsufficientLiquidity
	}

	blocksInt := uint256.NewInt(blocks)
	expected0 := new(uint256.Int).Mul(rate0, blocksInt)
	expected1 := new(uint256.Int).Mul(rate1, blocksInt)
	expectedTotal := new(uint256.Int).Add(expected0, expected1)

	quality := uint256.NewInt(100)
	if !expectedTotal.IsZero() {
		actualTotal := new(uint256.Int).Add(amount0, amount1)
		quality = ExecutionQuality(expectedTotal, actualTotal, worstImpact)
	}

	if !readOnly {
		if remainingGas < GasStateWrite {
			return nil, 0, ErrInsufficientGas
		}
		remainingGas -= GasStateWrite
		t.recordCalculation(accessibleState, poolID, amount0, amount1, reserve0, reserve1, precision)
	}

	result := make([]byte, 5*32)
	amount0.WriteToSlice(result[0:32])
	amount1.WriteToSlice(result[32:64])
	impact0.WriteToSlice(result[64:96])
	impact1.WriteToSlice(result[96:128])
	quality.WriteToSlice(result[128:160])
	return result, remainingGas, nil
}

// batchCalculate runs the virtual order calculation for several pools in
// one call. Any failing entry fails the whole batch; only global counters
// are updated, after all entries succeed.
//
// Args: count, then count entries of (sellRate0, sellRate1, blocksElapsed,
// reserve0, reserve1). Returns count pairs of (amount0, amount1).
func (t *twammPrecompile) batchCalculate(
	stateDB contract.StateDB,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if len(args) < 32 {
		return nil, suppliedGas, ErrInvalidInput
	}
	countWord := new(uint256.Int).SetBytes(args[:32])
	if !countWord.IsUint64() {
		return nil, suppliedGas, ErrInvalidInput
	}
	count := countWord.Uint64()
	if count == 0 || count > maxBatchEntries {
		return nil, suppliedGas, ErrInvalidInput
	}

	requiredGas := count * GasBatchPerPool
	if suppliedGas < requiredGas {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - requiredGas

	if uint64(len(args)) < 32+count*5*32 {
		return nil, remainingGas, ErrInvalidInput
	}
	if t.emergencyMode(stateDB) {
		return nil, remainingGas, ErrEmergencyMode
	}

	precision := t.precision(stateDB)
	result := make([]byte, count*64)
	volumeTotal := uint256.NewInt(0)

	for i := uint64(0); i < count; i++ {
		entry := args[32+i*5*32:]
		rate0 := new(uint256.Int).SetBytes(entry[0:32])
		rate1 := new(uint256.Int).SetBytes(entry[32:64])
		blocksWord := new(uint256.Int).SetBytes(entry[64:96])
		reserve0 := new(uint256.Int).SetBytes(entry[96:128])
		reserve1 := new(uint256.Int).SetBytes(entry[128:160])

		if err := validateCalculationInputs(rate0, rate1, blocksWord, reserve0, reserve1); err != nil {
			return nil, remainingGas, err
		}

		amount0, amount1, err := TradeAmounts(rate0, rate1, blocksWord.Uint64(), reserve0, reserve1, precision)
		if err != nil {
			return nil, remainingGas, err
		}

		amount0.WriteToSlice(result[i*64 : i*64+32])
		amount1.WriteToSlice(result[i*64+32 : i*64+64])
		volumeTotal.Add(volumeTotal, amount0)
		volumeTotal.Add(volumeTotal, amount1)
	}

	if !readOnly {
		t.bumpGlobalStats(stateDB, count, volumeTotal)
	}
	return result, remainingGas, nil
}

// simulateScenarios projects a one-sided flow across evenly spaced time
// horizons. Pure view: nothing is written.
//
// Args: sellRate0, sellRate1 (reserved), maxBlocks, reserve0, reserve1,
// scenarioCount. Returns scenarioCount tuples of (amount0, amount1,
// impact0Bps, impact1Bps, quality).
func (t *twammPrecompile) simulateScenarios(
	stateDB contract.StateDB,
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if len(args) < 6*32 {
		return nil, suppliedGas, ErrInvalidInput
	}

	rate0 := new(uint256.Int).SetBytes(args[0:32])
	maxBlocksWord := new(uint256.Int).SetBytes(args[64:96])
	reserve0 := new(uint256.Int).SetBytes(args[96:128])
	reserve1 := new(uint256.Int).SetBytes(args[128:160])
	countWord := new(uint256.Int).SetBytes(args[160:192])

	if !countWord.IsUint64() || !maxBlocksWord.IsUint64() {
		return nil, suppliedGas, ErrInvalidInput
	}
	count := countWord.Uint64()
	if count == 0 || count > maxBatchEntries {
		return nil, suppliedGas, ErrInvalidInput
	}

	requiredGas := count * GasSimulatePerRun
	if suppliedGas < requiredGas {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - requiredGas

	if reserve0.IsZero() || reserve1.IsZero() {
		return nil, remainingGas, ErrInvalidReserves
	}
	blocksPerScenario := maxBlocksWord.Uint64() / count
	if blocksPerScenario == 0 {
		return nil, remainingGas, ErrInvalidInput
	}

	precision := t.precision(stateDB)
	result := make([]byte, count*5*32)

	for i := uint64(1); i <= count; i++ {
		blocks := blocksPerScenario * i

		totalSell, overflow := new(uint256.Int).MulOverflow(rate0, uint256.NewInt(blocks))
		if overflow {
			return nil, remainingGas, ErrMathOverflow
		}
		amountOut, err := AmountOut(totalSell, reserve0, reserve1, precision)
		if err != nil {
			return nil, remainingGas, err
		}
		impact, err := PriceImpact(totalSell, reserve0, reserve1)
		if err != nil {
			return nil, remainingGas, err
		}
		quality := ExecutionQuality(totalSell, amountOut, impact)

		offset := (i - 1) * 5 * 32
		totalSell.WriteToSlice(result[offset : offset+32])
		amountOut.WriteToSlice(result[offset+32 : offset+64])
		impact.WriteToSlice(result[offset+64 : offset+96])
		// impact1 stays zero for a one-sided simulation
		quality.WriteToSlice(result[offset+128 : offset+160])
	}
	return result, remainingGas, nil
}

// priceImpact returns the basis-point impact of a single trade.
// Args: amountIn, reserveIn, reserveOut.
func (t *twammPrecompile) priceImpact(args []byte, suppliedGas uint64) ([]byte, uint64, error) {
	if suppliedGas < GasPriceImpact {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasPriceImpact

	if len(args) < 3*32 {
		return nil, remainingGas, ErrInvalidInput
	}
	amountIn := new(uint256.Int).SetBytes(args[0:32])
	reserveIn := new(uint256.Int).SetBytes(args[32:64])
	reserveOut := new(uint256.Int).SetBytes(args[64:96])

	impact, err := PriceImpact(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, remainingGas, err
	}

	result := make([]byte, 32)
	impact.WriteToSlice(result)
	return result, remainingGas, nil
}

// executionQuality scores a fill. Args: expectedOut, actualOut, impactBps.
func (t *twammPrecompile) executionQuality(args []byte, suppliedGas uint64) ([]byte, uint64, error) {
	if suppliedGas < GasQualityScore {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasQualityScore

	if len(args) < 3*32 {
		return nil, remainingGas, ErrInvalidInput
	}
	expected := new(uint256.Int).SetBytes(args[0:32])
	actual := new(uint256.Int).SetBytes(args[32:64])
	impactBps := new(uint256.Int).SetBytes(args[64:96])

	result := make([]byte, 32)
	ExecutionQuality(expected, actual, impactBps).WriteToSlice(result)
	return result, remainingGas, nil
}

// getPoolStats returns (cumulativeVolume0, cumulativeVolume1,
// totalExecutions) for a pool id.
func (t *twammPrecompile) getPoolStats(stateDB contract.StateDB, args []byte, suppliedGas uint64) ([]byte, uint64, error) {
	if suppliedGas < GasStatsRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasStatsRead

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}
	var poolID PoolID
	copy(poolID[:], args[:32])

	state := t.loadPoolState(stateDB, poolID)
	result := make([]byte, 3*32)
	state.CumulativeVolume0.WriteToSlice(result[0:32])
	state.CumulativeVolume1.WriteToSlice(result[32:64])
	copy(result[64:96], word32(state.TotalExecutions).Bytes())
	return result, remainingGas, nil
}

// getGlobalStats returns (totalCalculations, totalVolumeProcessed).
func (t *twammPrecompile) getGlobalStats(stateDB contract.StateDB, suppliedGas uint64) ([]byte, uint64, error) {
	if suppliedGas < GasStatsRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasStatsRead

	calcs := stateDB.GetState(ContractAddress, totalCalcsSlot)
	volume := stateDB.GetState(ContractAddress, totalVolumeSlot)

	result := make([]byte, 64)
	copy(result[:32], calcs[:])
	copy(result[32:], volume[:])
	return result, remainingGas, nil
}

// updateConfig sets the impact ceiling and fixed-point precision.
// Args: maxPriceImpactBps (must not exceed MaxConfigurableImpactBps),
// precision (decimal digits). Owner only.
func (t *twammPrecompile) updateConfig(
	stateDB contract.StateDB,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrWriteProtection
	}
	if suppliedGas < GasConfigWrite {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasConfigWrite

	if !t.isOwner(stateDB, caller) {
		return nil, remainingGas, ErrUnauthorized
	}
	if len(args) < 64 {
		return nil, remainingGas, ErrInvalidInput
	}

	maxBpsWord := new(uint256.Int).SetBytes(args[0:32])
	precisionWord := new(uint256.Int).SetBytes(args[32:64])

	if !maxBpsWord.IsUint64() || maxBpsWord.Uint64() > MaxConfigurableImpactBps {
		return nil, remainingGas, ErrInvalidInput
	}
	if !precisionWord.IsUint64() || precisionWord.Uint64() == 0 || precisionWord.Uint64() > 38 {
		return nil, remainingGas, ErrInvalidInput
	}

	t.setStateUint64(stateDB, maxImpactSlot, maxBpsWord.Uint64())
	t.setStateUint64(stateDB, precisionSlot, precisionWord.Uint64())
	return nil, remainingGas, nil
}

// setEmergencyMode halts mutating calculations. Owner only.
func (t *twammPrecompile) setEmergencyMode(
	stateDB contract.StateDB,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrWriteProtection
	}
	if suppliedGas < GasConfigWrite {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasConfigWrite

	if !t.isOwner(stateDB, caller) {
		return nil, remainingGas, ErrUnauthorized
	}
	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}

	var enabled uint64
	if args[31] != 0 {
		enabled = 1
	}
	t.setStateUint64(stateDB, emergencySlot, enabled)
	return nil, remainingGas, nil
}

// resetStatistics zeroes the global counters. Owner only.
func (t *twammPrecompile) resetStatistics(
	stateDB contract.StateDB,
	caller common.Address,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if readOnly {
		return nil, suppliedGas, ErrWriteProtection
	}
	if suppliedGas < GasConfigWrite {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasConfigWrite

	if !t.isOwner(stateDB, caller) {
		return nil, remainingGas, ErrUnauthorized
	}

	stateDB.SetState(ContractAddress, totalCalcsSlot, common.Hash{})
	stateDB.SetState(ContractAddress, totalVolumeSlot, common.Hash{})
	return nil, remainingGas, nil
}

// healthCheck returns a true word iff the calculator is not in emergency
// mode.
func (t *twammPrecompile) healthCheck(stateDB contract.StateDB, suppliedGas uint64) ([]byte, uint64, error) {
	if suppliedGas < GasStatsRead {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasStatsRead

	result := make([]byte, 32)
	if !t.emergencyMode(stateDB) {
		result[31] = 1
	}
	return result, remainingGas, nil
}

// validateCalculationInputs enforces the calculator-level bounds: a nonzero
// uint64 block count, nonzero reserves, and per-block rates at most 1% of
// the larger reserve.
func validateCalculationInputs(rate0, rate1, blocksWord, reserve0, reserve1 *uint256.Int) error {
	if !blocksWord.IsUint64() || blocksWord.IsZero() {
		return ErrInvalidInput
	}
	if reserve0.IsZero() || reserve1.IsZero() {
		return ErrInvalidReserves
	}

	larger := reserve0
	if reserve1.Gt(reserve0) {
		larger = reserve1
	}
	maxRate := new(uint256.Int).Div(larger, uint256.NewInt(100))
	if rate0.Gt(maxRate) || rate1.Gt(maxRate) {
		return ErrInvalidInput
	}
	return nil
}

// recordCalculation bumps global counters and the pool's cumulative state.
// Called only after a successful calculation.
func (t *twammPrecompile) recordCalculation(
	accessibleState contract.AccessibleState,
	poolID PoolID,
	amount0, amount1, reserve0, reserve1 *uint256.Int,
	precision uint8,
) {
	stateDB := accessibleState.GetStateDB()

	volume := new(uint256.Int).Add(amount0, amount1)
	t.bumpGlobalStats(stateDB, 1, volume)

	state := t.loadPoolState(stateDB, poolID)
	state.CumulativeVolume0.Add(state.CumulativeVolume0, amount0)
	state.CumulativeVolume1.Add(state.CumulativeVolume1, amount1)
	state.TotalExecutions++

	if blockCtx := accessibleState.GetBlockContext(); blockCtx != nil {
		if number := blockCtx.Number(); number != nil && number.IsUint64() {
			state.LastUpdateBlock = number.Uint64()
		}
	}

	// Spot price sqrt(reserve1/reserve0) at calculation time, scaled.
	one := fixedpoint.One(precision)
	if price, err := fixedpoint.MulDiv(reserve1, one, reserve0); err == nil {
		state.LastSqrtPrice = fixedpoint.Sqrt(new(uint256.Int).Mul(price, one))
	}

	t.storePoolState(stateDB, poolID, state)
}

func (t *twammPrecompile) bumpGlobalStats(stateDB contract.StateDB, calculations uint64, volume *uint256.Int) {
	calcs := new(uint256.Int).SetBytes(stateDB.GetState(ContractAddress, totalCalcsSlot).Bytes())
	calcs.Add(calcs, uint256.NewInt(calculations))
	stateDB.SetState(ContractAddress, totalCalcsSlot, calcs.Bytes32())

	total := new(uint256.Int).SetBytes(stateDB.GetState(ContractAddress, totalVolumeSlot).Bytes())
	total.Add(total, volume)
	stateDB.SetState(ContractAddress, totalVolumeSlot, total.Bytes32())
}

// Pool state storage

func (t *twammPrecompile) loadPoolState(stateDB contract.StateDB, poolID PoolID) *PoolState {
	state := NewPoolState()

	if v := stateDB.GetState(ContractAddress, poolFieldKey(poolID, "lastUpdateBlock")); v != (common.Hash{}) {
		state.LastUpdateBlock = new(uint256.Int).SetBytes(v.Bytes()).Uint64()
	}
	if v := stateDB.GetState(ContractAddress, poolFieldKey(poolID, "cumulativeVolume0")); v != (common.Hash{}) {
		state.CumulativeVolume0.SetBytes(v.Bytes())
	}
	if v := stateDB.GetState(ContractAddress, poolFieldKey(poolID, "cumulativeVolume1")); v != (common.Hash{}) {
		state.CumulativeVolume1.SetBytes(v.Bytes())
	}
	if v := stateDB.GetState(ContractAddress, poolFieldKey(poolID, "totalExecutions")); v != (common.Hash{}) {
		state.TotalExecutions = new(uint256.Int).SetBytes(v.Bytes()).Uint64()
	}
	if v := stateDB.GetState(ContractAddress, poolFieldKey(poolID, "lastSqrtPrice")); v != (common.Hash{}) {
		state.LastSqrtPrice.SetBytes(v.Bytes())
	}
	return state
}

func (t *twammPrecompile) storePoolState(stateDB contract.StateDB, poolID PoolID, state *PoolState) {
	stateDB.SetState(ContractAddress, poolFieldKey(poolID, "lastUpdateBlock"), word32(state.LastUpdateBlock))
	stateDB.SetState(ContractAddress, poolFieldKey(poolID, "cumulativeVolume0"), state.CumulativeVolume0.Bytes32())
	stateDB.SetState(ContractAddress, poolFieldKey(poolID, "cumulativeVolume1"), state.CumulativeVolume1.Bytes32())
	stateDB.SetState(ContractAddress, poolFieldKey(poolID, "totalExecutions"), word32(state.TotalExecutions))
	stateDB.SetState(ContractAddress, poolFieldKey(poolID, "lastSqrtPrice"), state.LastSqrtPrice.Bytes32())
}

// Config reads

func (t *twammPrecompile) isOwner(stateDB contract.StateDB, caller common.Address) bool {
	owner := common.BytesToAddress(stateDB.GetState(ContractAddress, ownerSlot).Bytes()[12:])
	// No owner set yet: the first caller may initialize.
	if owner == (common.Address{}) {
		return true
	}
	return caller == owner
}

func (t *twammPrecompile) emergencyMode(stateDB contract.StateDB) bool {
	v := stateDB.GetState(ContractAddress, emergencySlot)
	if v[0] == 0 {
		return false
	}
	return v[31] != 0
}

func (t *twammPrecompile) precision(stateDB contract.StateDB) uint8 {
	v := stateDB.GetState(ContractAddress, precisionSlot)
	if v[0] == 0 {
		return fixedpoint.DefaultPrecision
	}
	return uint8(new(uint256.Int).SetBytes(v.Bytes()[24:]).Uint64())
}

func (t *twammPrecompile) maxPriceImpactBps(stateDB contract.StateDB) uint64 {
	v := stateDB.GetState(ContractAddress, maxImpactSlot)
	if v[0] == 0 {
		return DefaultMaxPriceImpactBps
	}
	return new(uint256.Int).SetBytes(v.Bytes()[24:]).Uint64()
}

func (t *twammPrecompile) setStateUint64(stateDB contract.StateDB, slot common.Hash, v uint64) {
	var val common.Hash
	val[0] = 1 // marker: explicitly set
	copy(val[24:], word32(v).Bytes()[24:])
	stateDB.SetState(ContractAddress, slot, val)
}

// makeSlot derives a storage slot from a descriptive label.
func makeSlot(label []byte) common.Hash {
	h := blake3.New()
	h.Write(label)
	var slot common.Hash
	h.Digest().Read(slot[:])
	return slot
}

// poolFieldKey derives the storage key for one field of a pool's state.
func poolFieldKey(poolID PoolID, field string) common.Hash {
	h := blake3.New()
	h.Write(poolStatePrefix)
	h.Write(poolID[:])
	h.Write([]byte(field))
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}
