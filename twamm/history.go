// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package twamm

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/log"
)

// Key prefixes in the history database.
var (
	recordPrefix  = []byte("twamm:rec:")
	counterPrefix = []byte("twamm:cnt:")
)

// encodedRecordSize is the fixed wire size of one execution record:
// block number, amount0, amount1, gas used, price impact.
const encodedRecordSize = 8 + 32 + 32 + 8 + 32

// ExecutionHistory is an append-only log of virtual order executions,
// keyed by pool and sequence number.
type ExecutionHistory struct {
	db  database.Database
	log log.Logger
}

// NewExecutionHistory wraps db as an execution log. The database is owned
// by the caller.
func NewExecutionHistory(db database.Database) *ExecutionHistory {
	return &ExecutionHistory{
		db:  db,
		log: log.NewTestLogger(log.InfoLevel),
	}
}

// Append stores a record under the pool's next sequence number. The record
// and the counter bump are written in one batch.
func (h *ExecutionHistory) Append(poolID PoolID, record *ExecutionRecord) error {
	seq, err := h.Count(poolID)
	if err != nil {
		return err
	}

	batch := h.db.NewBatch()
	if err := batch.Put(recordKey(poolID, seq), encodeRecord(record)); err != nil {
		return err
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], seq+1)
	if err := batch.Put(counterKey(poolID), counter[:]); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}

	h.log.Debug("execution record appended",
		"block", record.BlockNumber,
		"seq", seq,
	)
	return nil
}

// Records returns up to limit of the pool's most recent records, oldest
// first. A limit of zero returns everything.
func (h *ExecutionHistory) Records(poolID PoolID, limit uint64) ([]*ExecutionRecord, error) {
	count, err := h.Count(poolID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	start := uint64(0)
	if limit > 0 && limit < count {
		start = count - limit
	}

	records := make([]*ExecutionRecord, 0, count-start)
	for seq := start; seq < count; seq++ {
		raw, err := h.db.Get(recordKey(poolID, seq))
		if err != nil {
			return nil, err
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Count returns the number of records stored for the pool.
func (h *ExecutionHistory) Count(poolID PoolID) (uint64, error) {
	raw, err := h.db.Get(counterKey(poolID))
	if err == database.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, ErrInvalidInput
	}
	return binary.BigEndian.Uint64(raw), nil
}

func recordKey(poolID PoolID, seq uint64) []byte {
	key := make([]byte, 0, len(recordPrefix)+len(poolID)+8)
	key = append(key, recordPrefix...)
	key = append(key, poolID[:]...)
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

func counterKey(poolID PoolID) []byte {
	key := make([]byte, 0, len(counterPrefix)+len(poolID))
	key = append(key, counterPrefix...)
	return append(key, poolID[:]...)
}

func encodeRecord(r *ExecutionRecord) []byte {
	buf := make([]byte, encodedRecordSize)
	binary.BigEndian.PutUint64(buf[0:8], r.BlockNumber)

	a0 := r.Amount0.Bytes32()
	copy(buf[8:40], a0[:])
	a1 := r.Amount1.Bytes32()
	copy(buf[40:72], a1[:])

	binary.BigEndian.PutUint64(buf[72:80], r.GasUsed)

	impact := r.PriceImpactBps.Bytes32()
	copy(buf[80:112], impact[:])
	return buf
}

func decodeRecord(raw []byte) (*ExecutionRecord, error) {
	if len(raw) != encodedRecordSize {
		return nil, ErrInvalidInput
	}
	return &ExecutionRecord{
		BlockNumber:    binary.BigEndian.Uint64(raw[0:8]),
		Amount0:        new(uint256.Int).SetBytes(raw[8:40]),
		Amount1:        new(uint256.Int).SetBytes(raw[40:72]),
		GasUsed:        binary.BigEndian.Uint64(raw[72:80]),
		PriceImpactBps: new(uint256.Int).SetBytes(raw[80:112]),
	}, nil
}
