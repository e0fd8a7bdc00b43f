// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"github.com/holiman/uint256"
)

// Blocks per day assuming 15 second block times.
const blocksPerDay uint64 = 6_000

// OptimalOrderInterval derives a virtual-order catch-up cadence from a
// target number of executions per day, clamped to
// [MinOrderBlockInterval, MaxOrderBlockInterval]. A zero target falls back
// to DefaultOrderBlockInterval before clamping.
func OptimalOrderInterval(executionsPerDay uint64) uint64 {
	interval := DefaultOrderBlockInterval
	if executionsPerDay > 0 {
		interval = blocksPerDay / executionsPerDay
	}

	if interval < MinOrderBlockInterval {
		return MinOrderBlockInterval
	}
	if interval > MaxOrderBlockInterval {
		return MaxOrderBlockInterval
	}
	return interval
}

// ValidateOrderParams rejects order parameters before any state is touched:
// zero amounts, durations outside [MinOrderDuration, MaxOrderDuration], and
// sell amounts above 10% of the current sell-side reserve.
func ValidateOrderParams(sellAmount, currentReserve *uint256.Int, durationBlocks uint64) error {
	if sellAmount.IsZero() {
		return ErrInvalidInput
	}
	if durationBlocks < MinOrderDuration || durationBlocks > MaxOrderDuration {
		return ErrInvalidInput
	}

	if !currentReserve.IsZero() {
		maxAmount := new(uint256.Int).Div(currentReserve, uint256.NewInt(10))
		if sellAmount.Gt(maxAmount) {
			return ErrInvalidInput
		}
	}
	return nil
}

// TWAPImpact measures, in basis points, how far spreading sellAmount over
// durationBlocks falls short of the no-slippage linear output. Output at or
// above the estimate clamps to zero.
func TWAPImpact(sellAmount, reserveIn, reserveOut *uint256.Int, durationBlocks uint64, precision uint8) (*uint256.Int, error) {
	if durationBlocks == 0 {
		return nil, ErrInvalidInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInvalidReserves
	}

	sellRate := new(uint256.Int).Div(sellAmount, uint256.NewInt(durationBlocks))
	if sellRate.IsZero() {
		return uint256.NewInt(0), nil
	}

	_, newReserveOut, err := unidirectionalState(reserveIn, reserveOut, sellRate, durationBlocks, precision)
	if err != nil {
		return nil, err
	}

	actualOut := uint256.NewInt(0)
	if newReserveOut.Lt(reserveOut) {
		actualOut.Sub(reserveOut, newReserveOut)
	}

	expectedOut, overflow := new(uint256.Int).MulOverflow(sellAmount, reserveOut)
	if overflow {
		return nil, ErrMathOverflow
	}
	expectedOut.Div(expectedOut, reserveIn)

	if !expectedOut.Gt(actualOut) {
		return uint256.NewInt(0), nil
	}

	shortfall := new(uint256.Int).Sub(expectedOut, actualOut)
	impact, overflow := new(uint256.Int).MulOverflow(shortfall, bpsScale)
	if overflow {
		return nil, ErrMathOverflow
	}
	return impact.Div(impact, expectedOut), nil
}
