// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package twamm implements the Time-Weighted Average Market Maker precompile
// for Lux EVMs. Long-duration sell orders are never executed as discrete
// trades; instead the pool aggregates all concurrently active orders into
// net per-direction sell rates and periodically settles them against a
// constant-product reserve with one closed-form "virtual order" execution
// covering the elapsed block span.
package twamm

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Precompile address in the LP-9xxx markets range.
// LP-aligned format: 0x0000000000000000000000000000000000LPNUM.
const (
	LXTwammAddress = "0x0000000000000000000000000000000000009015" // LP-9015 LXTwamm
)

// ContractAddress is the deployed address of the TWAMM precompile.
var ContractAddress = common.HexToAddress(LXTwammAddress)

// Gas costs for TWAMM operations
const (
	GasCalculateBase  uint64 = 15_000 // Single virtual-trade calculation
	GasAdvancedCalc   uint64 = 25_000 // Calculation + impact + quality scoring
	GasBatchPerPool   uint64 = 12_000 // Per-pool cost in a batch calculation
	GasSimulatePerRun uint64 = 8_000  // Per-scenario simulation cost
	GasStatsRead      uint64 = 2_000  // Pool / global statistics read
	GasConfigWrite    uint64 = 5_000  // Configuration update
	GasStateWrite     uint64 = 5_000  // Pool-state storage write
	GasQualityScore   uint64 = 3_000  // Execution-quality scoring
	GasPriceImpact    uint64 = 3_000  // Price-impact calculation
)

// OrderKind discriminates how an order's sell amount is executed.
type OrderKind uint8

const (
	// LongTerm orders stream their sell amount at a constant per-block rate.
	LongTerm OrderKind = iota
	// Instant orders execute in a single trade and never enter the pool's
	// virtual-order schedule.
	Instant
)

func (k OrderKind) String() string {
	switch k {
	case LongTerm:
		return "long-term"
	case Instant:
		return "instant"
	default:
		return "unknown"
	}
}

// OrderDirection names which side of the pair an order sells.
type OrderDirection uint8

const (
	SellToken0 OrderDirection = iota
	SellToken1
)

func (d OrderDirection) String() string {
	switch d {
	case SellToken0:
		return "sell-token0"
	case SellToken1:
		return "sell-token1"
	default:
		return "unknown"
	}
}

// Opposite returns the direction receiving this direction's proceeds.
func (d OrderDirection) Opposite() OrderDirection {
	if d == SellToken0 {
		return SellToken1
	}
	return SellToken0
}

// Order is a single long-term sell order. Orders are immutable except for
// the execution-progress fields (RemainingAmount, AccumulatedOut,
// LastVirtualOrderBlock), which only change inside a virtual-order catch-up.
type Order struct {
	ID                    uint64
	Owner                 common.Address
	Kind                  OrderKind
	Direction             OrderDirection
	SellRate              *uint256.Int // amount sold per block
	RemainingAmount       *uint256.Int
	StartBlock            uint64
	EndBlock              uint64
	LastVirtualOrderBlock uint64
	AccumulatedOut        *uint256.Int
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.SellRate = o.SellRate.Clone()
	c.RemainingAmount = o.RemainingAmount.Clone()
	c.AccumulatedOut = o.AccumulatedOut.Clone()
	return &c
}

// VirtualOrderState tracks the pool-wide virtual execution schedule.
type VirtualOrderState struct {
	LastVirtualOrderBlock uint64
	// OrderBlockInterval is the minimum block gap before a forced catch-up.
	OrderBlockInterval uint64
}

// DefaultOrderBlockInterval spaces forced catch-ups 100 blocks apart.
const DefaultOrderBlockInterval uint64 = 100

// VirtualExecutionResult reports one virtual-order catch-up.
type VirtualExecutionResult struct {
	BlocksExecuted  uint64
	Amount0Sold     *uint256.Int
	Amount1Sold     *uint256.Int
	Amount0Received *uint256.Int
	Amount1Received *uint256.Int
	NewReserve0     *uint256.Int
	NewReserve1     *uint256.Int
	// GasUsedEstimate is advisory only and saturates instead of failing.
	GasUsedEstimate uint64
}

// ExecutionStatistics is a read-only snapshot of pool activity.
type ExecutionStatistics struct {
	ActiveOrders              uint32
	CompletedOrders           uint32
	TotalVolume0              *uint256.Int
	TotalVolume1              *uint256.Int
	CurrentSellRate0          *uint256.Int
	CurrentSellRate1          *uint256.Int
	LastVirtualExecutionBlock uint64
}

// PoolState is the per-pool record persisted through the host StateDB.
type PoolState struct {
	LastUpdateBlock   uint64
	CumulativeVolume0 *uint256.Int
	CumulativeVolume1 *uint256.Int
	TotalExecutions   uint64
	LastSqrtPrice     *uint256.Int
}

// NewPoolState returns an empty pool state.
func NewPoolState() *PoolState {
	return &PoolState{
		CumulativeVolume0: uint256.NewInt(0),
		CumulativeVolume1: uint256.NewInt(0),
		LastSqrtPrice:     uint256.NewInt(0),
	}
}

// VirtualTradeResult is the extended calculation result returned by the
// advanced precompile surface: settled amounts plus scoring.
type VirtualTradeResult struct {
	Amount0Out       *uint256.Int
	Amount1Out       *uint256.Int
	PriceImpact0Bps  *uint256.Int
	PriceImpact1Bps  *uint256.Int
	ExecutionQuality *uint256.Int
}

// ExecutionRecord is one append-only history entry for a pool.
type ExecutionRecord struct {
	BlockNumber    uint64
	Amount0        *uint256.Int
	Amount1        *uint256.Int
	GasUsed        uint64
	PriceImpactBps *uint256.Int
}

// PoolID identifies a pool in storage and history.
type PoolID [32]byte

// ComputePoolID derives a pool identifier from the token pair.
func ComputePoolID(token0, token1 common.Address) PoolID {
	h := blake3.New()
	h.Write(token0.Bytes())
	h.Write(token1.Bytes())
	var id PoolID
	h.Digest().Read(id[:])
	return id
}

// Errors
var (
	ErrInvalidInput          = errors.New("invalid input parameters")
	ErrMathOverflow          = errors.New("mathematical overflow")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidReserves       = errors.New("invalid reserve amounts")
	ErrOrderNotFound         = errors.New("order not found")
	ErrNotOrderOwner         = errors.New("not order owner")
	ErrEmergencyMode         = errors.New("contract in emergency mode")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInsufficientGas       = errors.New("insufficient gas")
	ErrWriteProtection       = errors.New("write protection: read-only call")
)

// Order validation bounds
const (
	// MinOrderDuration is the shortest accepted long-term order, in blocks.
	MinOrderDuration uint64 = 10
	// MaxOrderDuration caps order length at one million blocks.
	MaxOrderDuration uint64 = 1_000_000
	// MaxTimeHorizon bounds a single virtual execution window.
	MaxTimeHorizon uint64 = 100_000

	// Bounds on the virtual-order catch-up cadence, in blocks.
	MinOrderBlockInterval uint64 = 10
	MaxOrderBlockInterval uint64 = 1_000
)

// word32 packs a uint64 into a big-endian 32-byte storage word.
func word32(v uint64) common.Hash {
	var h common.Hash
	binary.BigEndian.PutUint64(h[24:], v)
	return h
}
