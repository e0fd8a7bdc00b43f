// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	testOwner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testOther = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestCreateLongTermOrder(t *testing.T) {
	pool := NewOrderPool(1_000)

	orderID, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != 1 {
		t.Errorf("orderID = %d, want 1", orderID)
	}

	order, err := pool.GetOrder(orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(1_000); !order.SellRate.Eq(want) {
		t.Errorf("sell rate = %s, want %s", order.SellRate, want)
	}
	if order.EndBlock != 1_100 {
		t.Errorf("end block = %d, want 1100", order.EndBlock)
	}
	if order.Kind != LongTerm {
		t.Errorf("kind = %v, want LongTerm", order.Kind)
	}

	rate0, rate1 := pool.CurrentSellRates()
	if !rate0.Eq(uint256.NewInt(1_000)) || !rate1.IsZero() {
		t.Errorf("aggregate rates = (%s, %s), want (1000, 0)", rate0, rate1)
	}
}

func TestCreateOrderRejectsBadParams(t *testing.T) {
	pool := NewOrderPool(0)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100), 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero duration: err = %v, want ErrInvalidInput", err)
	}
	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(0), 10, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero amount: err = %v, want ErrInvalidInput", err)
	}
	// Amount below duration truncates to a zero rate.
	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(5), 10, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero rate: err = %v, want ErrInvalidInput", err)
	}
}

func TestExecuteVirtualOrdersCatchUp(t *testing.T) {
	pool := NewOrderPool(1_000)
	r := uint256.NewInt(1_000_000)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := pool.ExecuteVirtualOrders(r, r, 1_050, testPrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BlocksExecuted != 50 {
		t.Errorf("blocks executed = %d, want 50", result.BlocksExecuted)
	}
	if want := uint256.NewInt(50_000); !result.Amount0Sold.Eq(want) {
		t.Errorf("amount0 sold = %s, want %s", result.Amount0Sold, want)
	}
	if want := uint256.NewInt(1_025_000); !result.NewReserve0.Eq(want) {
		t.Errorf("newReserve0 = %s, want %s", result.NewReserve0, want)
	}
	if want := uint256.NewInt(24_391); !result.Amount1Received.Eq(want) {
		t.Errorf("amount1 received = %s, want %s", result.Amount1Received, want)
	}

	order, err := pool.GetOrder(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(50_000); !order.RemainingAmount.Eq(want) {
		t.Errorf("remaining = %s, want %s", order.RemainingAmount, want)
	}
	if !order.AccumulatedOut.Eq(result.Amount1Received) {
		t.Errorf("sole order accrued %s, want all of %s", order.AccumulatedOut, result.Amount1Received)
	}
	if order.LastVirtualOrderBlock != 1_050 {
		t.Errorf("order last block = %d, want 1050", order.LastVirtualOrderBlock)
	}
}

func TestExecuteVirtualOrdersIdempotent(t *testing.T) {
	pool := NewOrderPool(1_000)
	r := uint256.NewInt(1_000_000)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.ExecuteVirtualOrders(r, r, 1_050, testPrecision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same block again: nothing moves.
	result, err := pool.ExecuteVirtualOrders(r, r, 1_050, testPrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Amount0Sold.IsZero() || result.BlocksExecuted != 0 {
		t.Errorf("repeat execution sold %s over %d blocks, want no-op", result.Amount0Sold, result.BlocksExecuted)
	}
	if !result.NewReserve0.Eq(r) || !result.NewReserve1.Eq(r) {
		t.Errorf("repeat execution moved reserves to (%s, %s)", result.NewReserve0, result.NewReserve1)
	}

	order, err := pool.GetOrder(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(50_000); !order.RemainingAmount.Eq(want) {
		t.Errorf("remaining = %s, want %s unchanged", order.RemainingAmount, want)
	}
}

func TestExecuteVirtualOrdersProportionalDistribution(t *testing.T) {
	pool := NewOrderPool(0)
	r := uint256.NewInt(1_000_000)

	idA, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(200_000), 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := pool.CreateLongTermOrder(testOther, SellToken0, uint256.NewInt(100_000), 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := pool.ExecuteVirtualOrders(r, r, 10, testPrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(30_000); !result.Amount0Sold.Eq(want) {
		t.Fatalf("amount0 sold = %s, want %s", result.Amount0Sold, want)
	}

	orderA, err := pool.GetOrder(idA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orderB, err := pool.GetOrder(idB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A sold 20000 of the 30000 total, B sold 10000: proceeds split 2:1.
	twiceB := new(uint256.Int).Mul(orderB.AccumulatedOut, uint256.NewInt(2))
	diff := new(uint256.Int)
	if orderA.AccumulatedOut.Gt(twiceB) {
		diff.Sub(orderA.AccumulatedOut, twiceB)
	} else {
		diff.Sub(twiceB, orderA.AccumulatedOut)
	}
	if diff.Gt(uint256.NewInt(2)) {
		t.Errorf("distribution not 2:1: A=%s, B=%s", orderA.AccumulatedOut, orderB.AccumulatedOut)
	}

	// Distributed proceeds never exceed the pot, and truncation leaves at
	// most one unit per contributing order undistributed.
	sum := new(uint256.Int).Add(orderA.AccumulatedOut, orderB.AccumulatedOut)
	if sum.Gt(result.Amount1Received) {
		t.Errorf("distributed %s exceeds pot %s", sum, result.Amount1Received)
	} else if dust := new(uint256.Int).Sub(result.Amount1Received, sum); dust.Gt(uint256.NewInt(2)) {
		t.Errorf("undistributed remainder = %s (pot %s, distributed %s), want at most 2",
			dust, result.Amount1Received, sum)
	}
}

func TestExecuteVirtualOrdersCappedOrderConservation(t *testing.T) {
	pool := NewOrderPool(0)
	r := uint256.NewInt(1_000_000)

	// A's balance runs out mid-window; B keeps selling at the same rate.
	idA, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(9_000), 30, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := pool.CreateLongTermOrder(testOther, SellToken0, uint256.NewInt(30_000), 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := pool.ExecuteVirtualOrders(r, r, 50, testPrecision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A is capped at its 9000 remaining; B sells 300*50. An uncapped A
	// would have pushed the total to 30000.
	if want := uint256.NewInt(24_000); !result.Amount0Sold.Eq(want) {
		t.Fatalf("amount0 sold = %s, want %s", result.Amount0Sold, want)
	}
	if want := uint256.NewInt(11_858); !result.Amount1Received.Eq(want) {
		t.Fatalf("amount1 received = %s, want %s", result.Amount1Received, want)
	}

	// The capped order sold out and was removed.
	if _, err := pool.GetOrder(idA); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("capped order still present: err = %v", err)
	}

	orderB, err := pool.GetOrder(idB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(7_411); !orderB.AccumulatedOut.Eq(want) {
		t.Errorf("B accumulated out = %s, want %s", orderB.AccumulatedOut, want)
	}

	// A's share is the pot scaled by its 9000/24000 contribution. Together
	// the shares cover the pot within one unit per contributing order.
	shareA := new(uint256.Int).Mul(result.Amount1Received, uint256.NewInt(9_000))
	shareA.Div(shareA, uint256.NewInt(24_000))
	sum := new(uint256.Int).Add(shareA, orderB.AccumulatedOut)
	if sum.Gt(result.Amount1Received) {
		t.Errorf("distributed %s exceeds pot %s", sum, result.Amount1Received)
	} else if dust := new(uint256.Int).Sub(result.Amount1Received, sum); dust.Gt(uint256.NewInt(2)) {
		t.Errorf("undistributed remainder = %s (pot %s, distributed %s), want at most 2",
			dust, result.Amount1Received, sum)
	}
}

func TestExecuteVirtualOrdersCompletesOrders(t *testing.T) {
	pool := NewOrderPool(0)
	r := uint256.NewInt(1_000_000)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(10_000), 100, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Past the order's end block: it sells out and is removed.
	if _, err := pool.ExecuteVirtualOrders(r, r, 200, testPrecision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.GetOrder(1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("completed order still present: err = %v", err)
	}
	if n := pool.ActiveOrderCount(); n != 0 {
		t.Errorf("active orders = %d, want 0", n)
	}

	rate0, rate1 := pool.CurrentSellRates()
	if !rate0.IsZero() || !rate1.IsZero() {
		t.Errorf("aggregate rates = (%s, %s), want (0, 0)", rate0, rate1)
	}

	stats := pool.Statistics()
	if stats.CompletedOrders != 1 {
		t.Errorf("completed orders = %d, want 1", stats.CompletedOrders)
	}
}

func TestCancelOrder(t *testing.T) {
	pool := NewOrderPool(1_000)
	r := uint256.NewInt(1_000_000)

	orderID, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.ExecuteVirtualOrders(r, r, 1_050, testPrecision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := pool.CancelOrder(orderID, testOther); !errors.Is(err, ErrNotOrderOwner) {
		t.Errorf("foreign cancel: err = %v, want ErrNotOrderOwner", err)
	}

	refund, proceeds, err := pool.CancelOrder(orderID, testOwner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(50_000); !refund.Eq(want) {
		t.Errorf("refund = %s, want %s", refund, want)
	}
	if proceeds.IsZero() {
		t.Error("proceeds = 0, want accrued output")
	}

	if _, _, err := pool.CancelOrder(orderID, testOwner); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("double cancel: err = %v, want ErrOrderNotFound", err)
	}

	rate0, _ := pool.CurrentSellRates()
	if !rate0.IsZero() {
		t.Errorf("aggregate rate0 = %s after cancel, want 0", rate0)
	}
}

func TestNeedsCatchUp(t *testing.T) {
	pool := NewOrderPool(1_000)

	if pool.NeedsCatchUp(2_000) {
		t.Error("empty pool wants catch-up")
	}

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 1_000, 1_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pool.NeedsCatchUp(1_050) {
		t.Error("catch-up wanted below the interval")
	}
	if !pool.NeedsCatchUp(1_100) {
		t.Error("catch-up not wanted at the interval")
	}
	if pool.NeedsCatchUp(900) {
		t.Error("catch-up wanted for a past block")
	}
}

func TestSetOrderBlockIntervalClamps(t *testing.T) {
	pool := NewOrderPool(0)

	if err := pool.SetOrderBlockInterval(0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("SetOrderBlockInterval(0) error = %v, want ErrInvalidInput", err)
	}
	if got := pool.state.OrderBlockInterval; got != DefaultOrderBlockInterval {
		t.Errorf("interval after rejected update = %d, want %d", got, DefaultOrderBlockInterval)
	}

	if err := pool.SetOrderBlockInterval(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pool.state.OrderBlockInterval; got != MinOrderBlockInterval {
		t.Errorf("interval = %d, want clamp to %d", got, MinOrderBlockInterval)
	}

	if err := pool.SetOrderBlockInterval(5_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pool.state.OrderBlockInterval; got != MaxOrderBlockInterval {
		t.Errorf("interval = %d, want clamp to %d", got, MaxOrderBlockInterval)
	}

	if err := pool.SetOrderBlockInterval(500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pool.state.OrderBlockInterval; got != 500 {
		t.Errorf("interval = %d, want 500", got)
	}
}

func TestOrdersByOwner(t *testing.T) {
	pool := NewOrderPool(0)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(10_000), 100, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.CreateLongTermOrder(testOther, SellToken1, uint256.NewInt(20_000), 100, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.CreateLongTermOrder(testOwner, SellToken1, uint256.NewInt(30_000), 100, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders := pool.OrdersByOwner(testOwner)
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	if orders[0].ID != 1 || orders[1].ID != 3 {
		t.Errorf("order ids = (%d, %d), want ascending (1, 3)", orders[0].ID, orders[1].ID)
	}
}

func TestEstimateVirtualExecutionGas(t *testing.T) {
	pool := NewOrderPool(1_000)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// base 50000 + 50 blocks * 1000 + 1 order * 5000
	if got := pool.EstimateVirtualExecutionGas(1_050); got != 105_000 {
		t.Errorf("gas = %d, want 105000", got)
	}
	// No elapsed blocks.
	if got := pool.EstimateVirtualExecutionGas(900); got != 55_000 {
		t.Errorf("gas = %d, want 55000", got)
	}
}

func TestStatisticsSnapshot(t *testing.T) {
	pool := NewOrderPool(0)
	r := uint256.NewInt(1_000_000)

	if _, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.ExecuteVirtualOrders(r, r, 50, testPrecision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := pool.Statistics()
	if stats.ActiveOrders != 1 {
		t.Errorf("active orders = %d, want 1", stats.ActiveOrders)
	}
	if want := uint256.NewInt(50_000); !stats.TotalVolume0.Eq(want) {
		t.Errorf("volume0 = %s, want %s", stats.TotalVolume0, want)
	}
	if stats.LastVirtualExecutionBlock != 50 {
		t.Errorf("last execution block = %d, want 50", stats.LastVirtualExecutionBlock)
	}

	// Snapshot must not alias pool internals.
	stats.TotalVolume0.AddUint64(stats.TotalVolume0, 1)
	if pool.Statistics().TotalVolume0.Eq(stats.TotalVolume0) {
		t.Error("statistics snapshot aliases the pool counters")
	}
}

func TestExecuteVirtualOrdersFailureLeavesPoolUntouched(t *testing.T) {
	pool := NewOrderPool(1_000)

	orderID, err := pool.CreateLongTermOrder(testOwner, SellToken0, uint256.NewInt(100_000), 100, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero reserves make the engine call fail after the plan is built.
	zero := uint256.NewInt(0)
	if _, err := pool.ExecuteVirtualOrders(zero, zero, 1_050, testPrecision); !errors.Is(err, ErrInvalidReserves) {
		t.Fatalf("error = %v, want ErrInvalidReserves", err)
	}

	if got := pool.LastVirtualOrderBlock(); got != 1_000 {
		t.Errorf("last virtual order block = %d, want 1000", got)
	}
	order, err := pool.GetOrder(orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint256.NewInt(100_000); !order.RemainingAmount.Eq(want) {
		t.Errorf("remaining = %s, want %s", order.RemainingAmount, want)
	}
	if !order.AccumulatedOut.IsZero() {
		t.Errorf("accumulated out = %s, want 0", order.AccumulatedOut)
	}
}
