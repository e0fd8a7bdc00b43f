// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"
)

func testRecord(block uint64) *ExecutionRecord {
	return &ExecutionRecord{
		BlockNumber:    block,
		Amount0:        uint256.NewInt(block * 10),
		Amount1:        uint256.NewInt(block * 7),
		GasUsed:        50_000 + block,
		PriceImpactBps: uint256.NewInt(block % 100),
	}
}

func TestHistoryAppendAndCount(t *testing.T) {
	history := NewExecutionHistory(memdb.New())
	poolID := ComputePoolID(token0Addr, token1Addr)

	count, err := history.Count(poolID)
	require.NoError(t, err)
	require.Zero(t, count)

	for block := uint64(1); block <= 5; block++ {
		require.NoError(t, history.Append(poolID, testRecord(block*100)))
	}

	count, err = history.Count(poolID)
	require.NoError(t, err)
	require.EqualValues(t, 5, count)
}

func TestHistoryRecordsRoundTrip(t *testing.T) {
	history := NewExecutionHistory(memdb.New())
	poolID := ComputePoolID(token0Addr, token1Addr)

	want := &ExecutionRecord{
		BlockNumber:    12_345,
		Amount0:        uint256.NewInt(100_000),
		Amount1:        uint256.NewInt(75_404),
		GasUsed:        62_000,
		PriceImpactBps: uint256.NewInt(909),
	}
	require.NoError(t, history.Append(poolID, want))

	records, err := history.Records(poolID, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	require.Equal(t, want.BlockNumber, got.BlockNumber)
	require.Equal(t, want.Amount0, got.Amount0)
	require.Equal(t, want.Amount1, got.Amount1)
	require.Equal(t, want.GasUsed, got.GasUsed)
	require.Equal(t, want.PriceImpactBps, got.PriceImpactBps)
}

func TestHistoryRecordsLimit(t *testing.T) {
	history := NewExecutionHistory(memdb.New())
	poolID := ComputePoolID(token0Addr, token1Addr)

	for block := uint64(1); block <= 10; block++ {
		require.NoError(t, history.Append(poolID, testRecord(block)))
	}

	// A limit keeps the most recent records, oldest first.
	records, err := history.Records(poolID, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.EqualValues(t, 8, records[0].BlockNumber)
	require.EqualValues(t, 9, records[1].BlockNumber)
	require.EqualValues(t, 10, records[2].BlockNumber)

	// A limit above the count returns everything.
	records, err = history.Records(poolID, 100)
	require.NoError(t, err)
	require.Len(t, records, 10)
	require.EqualValues(t, 1, records[0].BlockNumber)
}

func TestHistoryPoolIsolation(t *testing.T) {
	history := NewExecutionHistory(memdb.New())
	poolA := ComputePoolID(token0Addr, token1Addr)
	poolB := ComputePoolID(token1Addr, token0Addr)

	require.NoError(t, history.Append(poolA, testRecord(1)))
	require.NoError(t, history.Append(poolA, testRecord(2)))
	require.NoError(t, history.Append(poolB, testRecord(3)))

	count, err := history.Count(poolA)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	records, err := history.Records(poolB, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 3, records[0].BlockNumber)
}

func TestHistoryEmptyPool(t *testing.T) {
	history := NewExecutionHistory(memdb.New())
	poolID := ComputePoolID(token0Addr, token1Addr)

	records, err := history.Records(poolID, 5)
	require.NoError(t, err)
	require.Nil(t, records)
}
