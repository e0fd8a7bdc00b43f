// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/luxfi/twamm/fixedpoint"
)

// Basis-point scale: 10000 bps = 100%.
var bpsScale = uint256.NewInt(10_000)

// Impact threshold above which execution quality is penalized (5%).
var qualityImpactThreshold = uint256.NewInt(500)

// VirtualAmmState computes the reserve state after continuous selling at the
// given per-block rates for an elapsed block span. Dispatches on which rates
// are nonzero: no trading returns the inputs unchanged, a single nonzero
// rate runs the unidirectional closed form, and two nonzero rates are netted
// against each other at the spot price first.
func VirtualAmmState(x0, y0, rateX, rateY *uint256.Int, blocks uint64, precision uint8) (*uint256.Int, *uint256.Int, error) {
	switch {
	case rateX.IsZero() && rateY.IsZero():
		return x0.Clone(), y0.Clone(), nil

	case !rateX.IsZero() && rateY.IsZero():
		newIn, newOut, err := unidirectionalState(x0, y0, rateX, blocks, precision)
		if err != nil {
			return nil, nil, err
		}
		return newIn, newOut, nil

	case !rateY.IsZero() && rateX.IsZero():
		newIn, newOut, err := unidirectionalState(y0, x0, rateY, blocks, precision)
		if err != nil {
			return nil, nil, err
		}
		return newOut, newIn, nil

	default:
		return bidirectionalState(x0, y0, rateX, rateY, blocks, precision)
	}
}

// unidirectionalState applies the closed-form reserve update for one-sided
// continuous selling and returns (newReserveIn, newReserveOut).
//
// This is a documented approximation of the exact sqrt(k)*e^(2x/sqrt(k))
// solution, carried over branch-for-branch from the reference system for
// result compatibility: below one scale unit of decay the effective inflow
// is the linear term totalSell*reserveIn/(reserveIn+sqrt(k)); above it a
// fixed 80%-efficiency inflow is used. The constant-product bound
// newIn*newOut <= k holds in both branches because newOut = k/newIn under
// truncating division.
func unidirectionalState(reserveIn, reserveOut, sellRate *uint256.Int, blocks uint64, precision uint8) (*uint256.Int, *uint256.Int, error) {
	k, overflow := new(uint256.Int).MulOverflow(reserveIn, reserveOut)
	if overflow {
		return nil, nil, ErrMathOverflow
	}

	sqrtK := fixedpoint.Sqrt(k)
	if sqrtK.IsZero() {
		return nil, nil, ErrInvalidReserves
	}

	totalSell, overflow := new(uint256.Int).MulOverflow(sellRate, uint256.NewInt(blocks))
	if overflow {
		return nil, nil, ErrMathOverflow
	}

	one := fixedpoint.One(precision)
	decay, overflow := new(uint256.Int).MulOverflow(totalSell, one)
	if overflow {
		return nil, nil, ErrMathOverflow
	}
	decay.Div(decay, sqrtK)

	newReserveIn := new(uint256.Int)
	if decay.Lt(one) {
		// Small decay: linear approximation of the exponential.
		inflow, overflow := new(uint256.Int).MulOverflow(totalSell, reserveIn)
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		inflow.Div(inflow, new(uint256.Int).Add(reserveIn, sqrtK))
		newReserveIn.Add(reserveIn, inflow)
	} else {
		// Large decay: fixed 80%-efficiency inflow.
		inflow, overflow := new(uint256.Int).MulOverflow(totalSell, uint256.NewInt(8))
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		inflow.Div(inflow, uint256.NewInt(10))
		newReserveIn.Add(reserveIn, inflow)
	}

	newReserveOut := new(uint256.Int).Div(k, newReserveIn)
	return newReserveIn, newReserveOut, nil
}

// bidirectionalState nets two opposing continuous flows at the spot price
// and runs the unidirectional update on whichever side has positive net
// volume. Value-equal flows leave the reserves unchanged.
func bidirectionalState(x0, y0, rateX, rateY *uint256.Int, blocks uint64, precision uint8) (*uint256.Int, *uint256.Int, error) {
	one := fixedpoint.One(precision)
	blocksInt := uint256.NewInt(blocks)

	totalSellX, overflow := new(uint256.Int).MulOverflow(rateX, blocksInt)
	if overflow {
		return nil, nil, ErrMathOverflow
	}
	totalSellY, overflow := new(uint256.Int).MulOverflow(rateY, blocksInt)
	if overflow {
		return nil, nil, ErrMathOverflow
	}

	if x0.IsZero() {
		return nil, nil, ErrInvalidReserves
	}
	priceXInY, err := fixedpoint.MulDiv(y0, one, x0)
	if err != nil {
		return nil, nil, ErrMathOverflow
	}
	if priceXInY.IsZero() {
		return nil, nil, ErrDivisionByZero
	}

	sellXValueInY, err := fixedpoint.MulDiv(totalSellX, priceXInY, one)
	if err != nil {
		return nil, nil, ErrMathOverflow
	}

	switch sellXValueInY.Cmp(totalSellY) {
	case 1: // net flow X -> Y
		offset, err := fixedpoint.MulDiv(totalSellY, one, priceXInY)
		if err != nil {
			return nil, nil, ErrMathOverflow
		}
		netSellX := new(uint256.Int).Sub(totalSellX, offset)
		netRate := netSellX.Div(netSellX, blocksInt)
		if netRate.IsZero() {
			return x0.Clone(), y0.Clone(), nil
		}
		return unidirectionalState(x0, y0, netRate, blocks, precision)

	case -1: // net flow Y -> X
		netSellY := new(uint256.Int).Sub(totalSellY, sellXValueInY)
		netRate := netSellY.Div(netSellY, blocksInt)
		if netRate.IsZero() {
			return x0.Clone(), y0.Clone(), nil
		}
		newIn, newOut, err := unidirectionalState(y0, x0, netRate, blocks, precision)
		if err != nil {
			return nil, nil, err
		}
		return newOut, newIn, nil

	default: // balanced flows cancel out
		return x0.Clone(), y0.Clone(), nil
	}
}

// TradeAmounts computes the total (amount0, amount1) moved by continuous
// selling at the given per-block rates over an elapsed block span,
// time-weighted and net of fees. A single nonzero rate yields (sold, bought)
// oriented to the token order; two nonzero rates are netted at the spot
// price first.
func TradeAmounts(rate0, rate1 *uint256.Int, blocks uint64, reserve0, reserve1 *uint256.Int, precision uint8) (*uint256.Int, *uint256.Int, error) {
	blocksInt := uint256.NewInt(blocks)

	switch {
	case rate0.IsZero() && rate1.IsZero():
		return uint256.NewInt(0), uint256.NewInt(0), nil

	case !rate0.IsZero() && rate1.IsZero():
		totalSell, overflow := new(uint256.Int).MulOverflow(rate0, blocksInt)
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		amountOut, err := AmountOut(totalSell, reserve0, reserve1, precision)
		if err != nil {
			return nil, nil, err
		}
		return totalSell, amountOut, nil

	case !rate1.IsZero() && rate0.IsZero():
		totalSell, overflow := new(uint256.Int).MulOverflow(rate1, blocksInt)
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		amountOut, err := AmountOut(totalSell, reserve1, reserve0, precision)
		if err != nil {
			return nil, nil, err
		}
		return amountOut, totalSell, nil

	default:
		totalSell0, overflow := new(uint256.Int).MulOverflow(rate0, blocksInt)
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		totalSell1, overflow := new(uint256.Int).MulOverflow(rate1, blocksInt)
		if overflow {
			return nil, nil, ErrMathOverflow
		}
		return NetFlowAmounts(totalSell0, totalSell1, reserve0, reserve1, precision)
	}
}

// NetFlowAmounts nets two opposing total sell amounts at the spot price and
// trades only the surplus. Returns (amount0, amount1): the net amount sold
// of one token and the amount bought of the other. Value-equal flows cancel
// to (0, 0).
func NetFlowAmounts(sell0, sell1, reserve0, reserve1 *uint256.Int, precision uint8) (*uint256.Int, *uint256.Int, error) {
	if reserve0.IsZero() || reserve1.IsZero() {
		return nil, nil, ErrInvalidReserves
	}

	one := fixedpoint.One(precision)
	price0In1, err := fixedpoint.MulDiv(reserve1, one, reserve0)
	if err != nil {
		return nil, nil, ErrMathOverflow
	}
	if price0In1.IsZero() {
		return nil, nil, ErrDivisionByZero
	}

	sell0ValueIn1, err := fixedpoint.MulDiv(sell0, price0In1, one)
	if err != nil {
		return nil, nil, ErrMathOverflow
	}

	switch sell0ValueIn1.Cmp(sell1) {
	case 1: // net flow 0 -> 1
		netValue := new(uint256.Int).Sub(sell0ValueIn1, sell1)
		netSell0, err := fixedpoint.MulDiv(netValue, one, price0In1)
		if err != nil {
			return nil, nil, ErrMathOverflow
		}
		amount1Out, err := AmountOut(netSell0, reserve0, reserve1, precision)
		if err != nil {
			return nil, nil, err
		}
		return netSell0, amount1Out, nil

	case -1: // net flow 1 -> 0
		netSell1 := new(uint256.Int).Sub(sell1, sell0ValueIn1)
		amount0Out, err := AmountOut(netSell1, reserve1, reserve0, precision)
		if err != nil {
			return nil, nil, err
		}
		return amount0Out, netSell1, nil

	default:
		return uint256.NewInt(0), uint256.NewInt(0), nil
	}
}

// AmountOut computes the constant-product output for a time-weighted inflow,
// net of the 0.3% pool fee. The time-weighting factor 0.8 + 0.2*r/(1+r)
// (r = amountIn/reserveIn) models the execution benefit of spreading the
// order over time: larger orders recover more of the naive slippage.
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int, precision uint8) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return uint256.NewInt(0), nil
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInvalidReserves
	}

	k, overflow := new(uint256.Int).MulOverflow(reserveIn, reserveOut)
	if overflow {
		return nil, ErrMathOverflow
	}

	one := fixedpoint.One(precision)
	factor, err := timeWeightingFactor(amountIn, reserveIn, precision)
	if err != nil {
		return nil, err
	}

	effectiveIn, err := fixedpoint.MulDiv(amountIn, factor, one)
	if err != nil {
		return nil, ErrMathOverflow
	}

	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, effectiveIn)
	if overflow {
		return nil, ErrMathOverflow
	}
	newReserveOut := new(uint256.Int).Div(k, newReserveIn)

	if newReserveOut.Gt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	amountOut := new(uint256.Int).Sub(reserveOut, newReserveOut)

	// 0.3% fee
	feeAdjusted, overflow := new(uint256.Int).MulOverflow(amountOut, uint256.NewInt(997))
	if overflow {
		return nil, ErrMathOverflow
	}
	return feeAdjusted.Div(feeAdjusted, uint256.NewInt(1000)), nil
}

// timeWeightingFactor returns 0.8 + 0.2*r/(1+r), scaled, for r = amount/reserve.
func timeWeightingFactor(amount, reserve *uint256.Int, precision uint8) (*uint256.Int, error) {
	one := fixedpoint.One(precision)

	sizeRatio, err := fixedpoint.MulDiv(amount, one, reserve)
	if err != nil {
		return nil, ErrMathOverflow
	}

	base := new(uint256.Int).Mul(one, uint256.NewInt(8))
	base.Div(base, uint256.NewInt(10)) // 0.8

	numerator, overflow := new(uint256.Int).MulOverflow(one, uint256.NewInt(2))
	if overflow {
		return nil, ErrMathOverflow
	}
	numerator.Div(numerator, uint256.NewInt(10)) // 0.2
	numerator, overflow = new(uint256.Int).MulOverflow(numerator, sizeRatio)
	if overflow {
		return nil, ErrMathOverflow
	}
	adjustment := numerator.Div(numerator, new(uint256.Int).Add(one, sizeRatio))

	factor, overflow := new(uint256.Int).AddOverflow(base, adjustment)
	if overflow {
		return nil, ErrMathOverflow
	}
	return factor, nil
}

// PriceImpact measures how far a trade's constant-product output falls short
// of the no-slippage linear estimate amountIn*reserveOut/reserveIn, in basis
// points. Output at or above the estimate clamps to zero; the result is
// never negative.
func PriceImpact(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInvalidReserves
	}
	if amountIn.IsZero() {
		return uint256.NewInt(0), nil
	}

	k, overflow := new(uint256.Int).MulOverflow(reserveIn, reserveOut)
	if overflow {
		return nil, ErrMathOverflow
	}

	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, ErrMathOverflow
	}
	newReserveOut := new(uint256.Int).Div(k, newReserveIn)
	if newReserveOut.Gt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	amountOut := new(uint256.Int).Sub(reserveOut, newReserveOut)

	expectedOut, err := fixedpoint.MulDiv(amountIn, reserveOut, reserveIn)
	if err != nil {
		return nil, ErrMathOverflow
	}

	if !expectedOut.Gt(amountOut) {
		return uint256.NewInt(0), nil
	}

	shortfall := new(uint256.Int).Sub(expectedOut, amountOut)
	impact, err := fixedpoint.MulDiv(shortfall, bpsScale, expectedOut)
	if err != nil {
		return nil, ErrMathOverflow
	}
	return impact, nil
}

// ExecutionQuality scores a fill from 0 to 100: up to 50 points for the
// actual/expected amount ratio plus up to 50 points docked one point per
// 100 bps of impact beyond 5%. Saturating by design; this is the one place
// besides gas estimates where out-of-range results clamp instead of failing.
func ExecutionQuality(expected, actual, impactBps *uint256.Int) *uint256.Int {
	fifty := uint256.NewInt(50)

	amountScore := fifty.Clone()
	if !expected.IsZero() {
		ratio, overflow := new(uint256.Int).MulOverflow(actual, fifty)
		if overflow {
			ratio = fifty.Clone()
		} else {
			ratio.Div(ratio, expected)
		}
		if ratio.Lt(fifty) {
			amountScore = ratio
		}
	}

	impactScore := fifty.Clone()
	if impactBps.Gt(qualityImpactThreshold) {
		penalty := new(uint256.Int).Sub(impactBps, qualityImpactThreshold)
		penalty.Div(penalty, uint256.NewInt(100))
		if penalty.Lt(fifty) {
			impactScore.Sub(fifty, penalty)
		} else {
			impactScore = uint256.NewInt(0)
		}
	}

	total := new(uint256.Int).Add(amountScore, impactScore)
	hundred := uint256.NewInt(100)
	if total.Gt(hundred) {
		return hundred
	}
	return total
}

// OptimalRate finds the largest per-block sell rate whose single-block price
// impact stays at or below the target. The uniform rate totalAmount/time is
// returned directly when it already meets the target; otherwise a binary
// search descends for up to 50 iterations.
func OptimalRate(totalAmount, availableTime, reserveIn, reserveOut, targetImpactBps *uint256.Int, precision uint8) (*uint256.Int, error) {
	if availableTime.IsZero() {
		return nil, ErrInvalidInput
	}

	uniformRate := new(uint256.Int).Div(totalAmount, availableTime)

	impact, err := PriceImpact(uniformRate, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if !impact.Gt(targetImpactBps) {
		return uniformRate, nil
	}

	low := uint256.NewInt(1)
	high := uniformRate.Clone()
	optimal := uniformRate.Clone()

	for i := 0; i < 50; i++ {
		mid := new(uint256.Int).Add(low, high)
		mid.Div(mid, uint256.NewInt(2))

		midImpact, err := PriceImpact(mid, reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}

		if !midImpact.Gt(targetImpactBps) {
			optimal = mid.Clone()
			low = new(uint256.Int).Add(mid, uint256.NewInt(1))
		} else {
			if mid.IsZero() {
				break
			}
			high = new(uint256.Int).Sub(mid, uint256.NewInt(1))
		}

		if !high.Gt(low) {
			break
		}
	}
	return optimal, nil
}

// ValidateConstraints rejects parameter sets the closed form cannot execute
// safely: empty reserves, a window outside (0, MaxTimeHorizon] blocks,
// per-block rates above 0.1% of the respective reserve, or total sell
// volume reaching either reserve.
func ValidateConstraints(reserveX, reserveY, rateX, rateY *uint256.Int, blocks uint64) error {
	if reserveX.IsZero() || reserveY.IsZero() {
		return ErrInvalidReserves
	}
	if blocks == 0 || blocks > MaxTimeHorizon {
		return ErrInvalidInput
	}

	maxRateX := new(uint256.Int).Div(reserveX, uint256.NewInt(1000))
	maxRateY := new(uint256.Int).Div(reserveY, uint256.NewInt(1000))
	if rateX.Gt(maxRateX) || rateY.Gt(maxRateY) {
		return ErrInvalidInput
	}

	blocksInt := uint256.NewInt(blocks)
	totalSellX, overflow := new(uint256.Int).MulOverflow(rateX, blocksInt)
	if overflow {
		return ErrMathOverflow
	}
	totalSellY, overflow := new(uint256.Int).MulOverflow(rateY, blocksInt)
	if overflow {
		return ErrMathOverflow
	}
	if !totalSellX.Lt(reserveX) || !totalSellY.Lt(reserveY) {
		return ErrInsufficientLiquidity
	}
	return nil
}

// TWAP computes a weighted average price from parallel price and weight
// series.
func TWAP(prices, weights []*uint256.Int) (*uint256.Int, error) {
	if len(prices) == 0 || len(prices) != len(weights) {
		return nil, ErrInvalidInput
	}

	weightedSum := uint256.NewInt(0)
	totalWeight := uint256.NewInt(0)

	for i, price := range prices {
		term, overflow := new(uint256.Int).MulOverflow(price, weights[i])
		if overflow {
			return nil, ErrMathOverflow
		}
		weightedSum, overflow = new(uint256.Int).AddOverflow(weightedSum, term)
		if overflow {
			return nil, ErrMathOverflow
		}
		totalWeight, overflow = new(uint256.Int).AddOverflow(totalWeight, weights[i])
		if overflow {
			return nil, ErrMathOverflow
		}
	}

	if totalWeight.IsZero() {
		return nil, ErrDivisionByZero
	}
	return weightedSum.Div(weightedSum, totalWeight), nil
}

// Operation identifiers for gas estimation.
const (
	OpSubmitOrder uint8 = iota
	OpExecuteOrders
	OpCancelOrder
)

// EstimateOperationGas returns an advisory gas figure for an operation at
// the given complexity. Saturates at MaxUint64 instead of failing.
func EstimateOperationGas(op uint8, complexity uint64) uint64 {
	var base uint64
	switch op {
	case OpSubmitOrder:
		base = 80_000
	case OpExecuteOrders:
		base = 150_000
	case OpCancelOrder:
		base = 50_000
	default:
		base = 100_000
	}

	if complexity > (math.MaxUint64-base)/1000 {
		return math.MaxUint64
	}
	return base + complexity*1000
}

// MEVProtectionScore rates how resistant a schedule is to sandwich attacks:
// up to 50 points for temporal spread (saturating at 100 blocks) and up to
// 50 for execution randomness (saturating at one scale unit).
func MEVProtectionScore(timeDistribution, randomness *uint256.Int, precision uint8) *uint256.Int {
	fifty := uint256.NewInt(50)
	hundred := uint256.NewInt(100)
	one := fixedpoint.One(precision)

	timeScore := fifty.Clone()
	if !timeDistribution.Gt(hundred) {
		timeScore = new(uint256.Int).Mul(timeDistribution, fifty)
		timeScore.Div(timeScore, hundred)
	}

	randomScore := fifty.Clone()
	if !randomness.Gt(one) {
		score, overflow := new(uint256.Int).MulOverflow(randomness, fifty)
		if overflow {
			score = fifty.Clone()
		} else {
			score.Div(score, one)
		}
		randomScore = score
	}

	return new(uint256.Int).Add(timeScore, randomScore)
}
