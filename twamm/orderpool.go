// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"math"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// OrderPool tracks long-term orders for a single pair and replays their
// accumulated flow against the reserves when virtual orders are executed.
// All methods are safe for concurrent use.
type OrderPool struct {
	mu sync.RWMutex

	orders      map[uint64]*Order
	nextOrderID uint64

	// Aggregate per-block sell rates across all active orders.
	sellRate0 *uint256.Int
	sellRate1 *uint256.Int

	state VirtualOrderState

	completedOrders uint32
	totalVolume0    *uint256.Int
	totalVolume1    *uint256.Int

	log log.Logger
}

// orderSettlement is one order's share of a virtual execution, computed in
// full before any pool state is mutated.
type orderSettlement struct {
	orderID    uint64
	sellAmount *uint256.Int
	outAmount  *uint256.Int
	completed  bool
}

// NewOrderPool returns an empty pool starting its virtual order clock at
// the given block.
func NewOrderPool(startBlock uint64) *OrderPool {
	return &OrderPool{
		orders:      make(map[uint64]*Order),
		nextOrderID: 1,
		sellRate0:   uint256.NewInt(0),
		sellRate1:   uint256.NewInt(0),
		state: VirtualOrderState{
			LastVirtualOrderBlock: startBlock,
			OrderBlockInterval:    DefaultOrderBlockInterval,
		},
		totalVolume0: uint256.NewInt(0),
		totalVolume1: uint256.NewInt(0),
		log:          log.NewTestLogger(log.InfoLevel),
	}
}

// CreateLongTermOrder registers a new order selling amount over
// durationBlocks starting at currentBlock. The per-block sell rate is
// amount/durationBlocks truncating; a rate of zero is rejected rather than
// stored as a dead order.
func (p *OrderPool) CreateLongTermOrder(owner common.Address, direction OrderDirection, amount *uint256.Int, durationBlocks, currentBlock uint64) (uint64, error) {
	if durationBlocks == 0 || amount.IsZero() {
		return 0, ErrInvalidInput
	}

	sellRate := new(uint256.Int).Div(amount, uint256.NewInt(durationBlocks))
	if sellRate.IsZero() {
		return 0, ErrInvalidInput
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	orderID := p.nextOrderID
	p.nextOrderID++

	order := &Order{
		ID:                    orderID,
		Owner:                 owner,
		Kind:                  LongTerm,
		Direction:             direction,
		SellRate:              sellRate,
		RemainingAmount:       amount.Clone(),
		AccumulatedOut:        uint256.NewInt(0),
		StartBlock:            currentBlock,
		EndBlock:              currentBlock + durationBlocks,
		LastVirtualOrderBlock: currentBlock,
	}
	p.orders[orderID] = order
	p.addSellRate(direction, sellRate)

	p.log.Debug("long-term order created",
		"order", orderID,
		"direction", direction.String(),
		"rate", sellRate.String(),
		"end", order.EndBlock,
	)
	return orderID, nil
}

// CancelOrder removes an order and returns (unsoldAmount, accruedProceeds).
// Only the order's owner may cancel it.
func (p *OrderPool) CancelOrder(orderID uint64, owner common.Address) (*uint256.Int, *uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	if order.Owner != owner {
		return nil, nil, ErrNotOrderOwner
	}

	p.subSellRate(order.Direction, order.SellRate)
	delete(p.orders, orderID)

	p.log.Debug("order cancelled", "order", orderID, "refund", order.RemainingAmount.String())
	return order.RemainingAmount.Clone(), order.AccumulatedOut.Clone(), nil
}

// ExecuteVirtualOrders advances the pool from its last virtual order block
// to currentBlock, trading the aggregate flow against the given reserves and
// crediting each order its pro-rata share of the proceeds. Calling it again
// at the same or an earlier block is a no-op returning the reserves
// unchanged.
//
// Settlement is computed in full before any order is touched: if any step
// fails the pool state is exactly as it was before the call.
func (p *OrderPool) ExecuteVirtualOrders(reserve0, reserve1 *uint256.Int, currentBlock uint64, precision uint8) (*VirtualExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if currentBlock <= p.state.LastVirtualOrderBlock {
		return &VirtualExecutionResult{
			Amount0Sold:     uint256.NewInt(0),
			Amount1Sold:     uint256.NewInt(0),
			Amount0Received: uint256.NewInt(0),
			Amount1Received: uint256.NewInt(0),
			NewReserve0:     reserve0.Clone(),
			NewReserve1:     reserve1.Clone(),
		}, nil
	}
	blocks := currentBlock - p.state.LastVirtualOrderBlock

	// Phase one: plan.
	totalSell0, totalSell1, sells, err := p.planOrderFlow(blocks)
	if err != nil {
		return nil, err
	}

	rate0 := new(uint256.Int).Div(totalSell0, uint256.NewInt(blocks))
	rate1 := new(uint256.Int).Div(totalSell1, uint256.NewInt(blocks))

	newReserve0, newReserve1, err := VirtualAmmState(reserve0, reserve1, rate0, rate1, blocks, precision)
	if err != nil {
		return nil, err
	}

	// Proceeds per direction: whatever the opposing reserve gave up.
	out1 := uint256.NewInt(0)
	if newReserve1.Lt(reserve1) {
		out1.Sub(reserve1, newReserve1)
	}
	out0 := uint256.NewInt(0)
	if newReserve0.Lt(reserve0) {
		out0.Sub(reserve0, newReserve0)
	}

	settlements, err := p.planSettlements(sells, totalSell0, totalSell1, out0, out1, currentBlock)
	if err != nil {
		return nil, err
	}

	// Phase two: commit.
	for _, s := range settlements {
		order := p.orders[s.orderID]
		order.RemainingAmount.Sub(order.RemainingAmount, s.sellAmount)
		order.AccumulatedOut.Add(order.AccumulatedOut, s.outAmount)
		order.LastVirtualOrderBlock = currentBlock
		if s.completed {
			p.subSellRate(order.Direction, order.SellRate)
			delete(p.orders, s.orderID)
			p.completedOrders++
		}
	}
	p.state.LastVirtualOrderBlock = currentBlock
	p.totalVolume0.Add(p.totalVolume0, totalSell0)
	p.totalVolume1.Add(p.totalVolume1, totalSell1)

	p.log.Debug("virtual orders executed",
		"blocks", blocks,
		"sold0", totalSell0.String(),
		"sold1", totalSell1.String(),
		"settled", len(settlements),
	)

	return &VirtualExecutionResult{
		BlocksExecuted:  blocks,
		Amount0Sold:     totalSell0,
		Amount1Sold:     totalSell1,
		Amount0Received: out0,
		Amount1Received: out1,
		NewReserve0:     newReserve0,
		NewReserve1:     newReserve1,
		GasUsedEstimate: p.estimateExecutionGasLocked(blocks),
	}, nil
}

// planOrderFlow computes each order's sell amount for the elapsed span,
// capped at its remaining balance, and the per-direction totals. Orders are
// visited in ascending id order so the plan is deterministic.
func (p *OrderPool) planOrderFlow(blocks uint64) (*uint256.Int, *uint256.Int, map[uint64]*uint256.Int, error) {
	totalSell0 := uint256.NewInt(0)
	totalSell1 := uint256.NewInt(0)
	sells := make(map[uint64]*uint256.Int, len(p.orders))

	for _, id := range p.sortedOrderIDs() {
		order := p.orders[id]

		sellAmount, overflow := new(uint256.Int).MulOverflow(order.SellRate, uint256.NewInt(blocks))
		if overflow {
			return nil, nil, nil, ErrMathOverflow
		}
		if sellAmount.Gt(order.RemainingAmount) {
			sellAmount.Set(order.RemainingAmount)
		}
		sells[id] = sellAmount

		var err error
		switch order.Direction {
		case SellToken0:
			totalSell0, err = checkedAdd(totalSell0, sellAmount)
		default:
			totalSell1, err = checkedAdd(totalSell1, sellAmount)
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return totalSell0, totalSell1, sells, nil
}

// planSettlements splits the proceeds among orders pro rata by sell amount
// and marks orders that finish this span.
func (p *OrderPool) planSettlements(sells map[uint64]*uint256.Int, totalSell0, totalSell1, out0, out1 *uint256.Int, currentBlock uint64) ([]orderSettlement, error) {
	settlements := make([]orderSettlement, 0, len(sells))

	for _, id := range p.sortedOrderIDs() {
		order := p.orders[id]
		sellAmount := sells[id]

		outAmount := uint256.NewInt(0)
		var total, pot *uint256.Int
		if order.Direction == SellToken0 {
			total, pot = totalSell0, out1
		} else {
			total, pot = totalSell1, out0
		}
		if !total.IsZero() && !sellAmount.IsZero() {
			share, overflow := new(uint256.Int).MulOverflow(pot, sellAmount)
			if overflow {
				return nil, ErrMathOverflow
			}
			outAmount = share.Div(share, total)
		}

		remaining := new(uint256.Int).Sub(order.RemainingAmount, sellAmount)
		settlements = append(settlements, orderSettlement{
			orderID:    id,
			sellAmount: sellAmount,
			outAmount:  outAmount,
			completed:  remaining.IsZero() || order.EndBlock <= currentBlock,
		})
	}
	return settlements, nil
}

// NeedsCatchUp reports whether at least one order is active and at least
// OrderBlockInterval blocks have elapsed since the last virtual execution.
func (p *OrderPool) NeedsCatchUp(currentBlock uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.orders) == 0 {
		return false
	}
	if currentBlock <= p.state.LastVirtualOrderBlock {
		return false
	}
	return currentBlock-p.state.LastVirtualOrderBlock >= p.state.OrderBlockInterval
}

// SetOrderBlockInterval updates the catch-up cadence. Zero is rejected
// with ErrInvalidInput; nonzero values are clamped to
// [MinOrderBlockInterval, MaxOrderBlockInterval].
func (p *OrderPool) SetOrderBlockInterval(interval uint64) error {
	if interval == 0 {
		return ErrInvalidInput
	}
	if interval < MinOrderBlockInterval {
		interval = MinOrderBlockInterval
	}
	if interval > MaxOrderBlockInterval {
		interval = MaxOrderBlockInterval
	}

	p.mu.Lock()
	p.state.OrderBlockInterval = interval
	p.mu.Unlock()
	return nil
}

// GetOrder returns a copy of the order, or ErrOrderNotFound.
func (p *OrderPool) GetOrder(orderID uint64) (*Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

// OrdersByOwner returns copies of all active orders owned by owner, in
// ascending id order.
func (p *OrderPool) OrdersByOwner(owner common.Address) []*Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Order
	for _, id := range p.sortedOrderIDs() {
		if order := p.orders[id]; order.Owner == owner {
			out = append(out, order.Clone())
		}
	}
	return out
}

// ActiveOrderCount returns the number of live orders.
func (p *OrderPool) ActiveOrderCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}

// CurrentSellRates returns the aggregate per-block sell rates
// (token0, token1).
func (p *OrderPool) CurrentSellRates() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sellRate0.Clone(), p.sellRate1.Clone()
}

// LastVirtualOrderBlock returns the block the pool last executed to.
func (p *OrderPool) LastVirtualOrderBlock() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.LastVirtualOrderBlock
}

// Statistics returns a snapshot of cumulative execution counters.
func (p *OrderPool) Statistics() ExecutionStatistics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ExecutionStatistics{
		ActiveOrders:              uint32(len(p.orders)),
		CompletedOrders:           p.completedOrders,
		TotalVolume0:              p.totalVolume0.Clone(),
		TotalVolume1:              p.totalVolume1.Clone(),
		CurrentSellRate0:          p.sellRate0.Clone(),
		CurrentSellRate1:          p.sellRate1.Clone(),
		LastVirtualExecutionBlock: p.state.LastVirtualOrderBlock,
	}
}

// EstimateVirtualExecutionGas returns an advisory gas figure for catching
// the pool up to currentBlock. Saturates instead of overflowing.
func (p *OrderPool) EstimateVirtualExecutionGas(currentBlock uint64) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var blocks uint64
	if currentBlock > p.state.LastVirtualOrderBlock {
		blocks = currentBlock - p.state.LastVirtualOrderBlock
	}
	return p.estimateExecutionGasLocked(blocks)
}

func (p *OrderPool) estimateExecutionGasLocked(blocks uint64) uint64 {
	const (
		baseGas     = 50_000
		perBlockGas = 1_000
		perOrderGas = 5_000
	)

	gas := uint64(baseGas)
	if blocks > (math.MaxUint64-gas)/perBlockGas {
		return math.MaxUint64
	}
	gas += blocks * perBlockGas

	orders := uint64(len(p.orders))
	if orders > 0 && orders > (math.MaxUint64-gas)/perOrderGas {
		return math.MaxUint64
	}
	return gas + orders*perOrderGas
}

func (p *OrderPool) sortedOrderIDs() []uint64 {
	ids := make([]uint64, 0, len(p.orders))
	for id := range p.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *OrderPool) addSellRate(direction OrderDirection, rate *uint256.Int) {
	if direction == SellToken0 {
		p.sellRate0.Add(p.sellRate0, rate)
	} else {
		p.sellRate1.Add(p.sellRate1, rate)
	}
}

func (p *OrderPool) subSellRate(direction OrderDirection, rate *uint256.Int) {
	if direction == SellToken0 {
		p.sellRate0.Sub(p.sellRate0, rate)
	} else {
		p.sellRate1.Sub(p.sellRate1, rate)
	}
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return sum, nil
}
