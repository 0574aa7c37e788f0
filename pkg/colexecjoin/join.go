// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colexecjoin implements the parallel hash-join operator: the
// sink -> finalize -> probe -> source state machine, the perfect / hashed /
// external path selection, and the ratchet checkpoint protocol layered on
// top of them.
package colexecjoin

import "github.com/ratchetdb/hashjoin/pkg/coldata"

// Comparator names the relational operator applied by one join condition.
type Comparator int

const (
	CompEQ Comparator = iota
	CompNE
	CompLT
	CompLE
	CompGT
	CompGE
)

// JoinCondition is one (left-expr, right-expr, comparator) triple. The
// operator evaluates left/right expressions upstream and hands the
// evaluated columns to the hash table; Eval fields are indices into the
// probe/build chunk rather than expression trees, since expression
// evaluation is an external collaborator (query planner territory) that
// this operator does not implement.
type JoinCondition struct {
	LeftCol    int
	RightCol   int
	Comparator Comparator
}

// JoinType is one of the eight join kinds the operator supports.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
	SemiJoin
	AntiJoin
	MarkJoin
	SingleJoin
)

// StoresPayload reports whether build-side payload columns (as opposed to
// just the equi-key columns) must be materialized for this join type.
func (jt JoinType) StoresPayload() bool {
	switch jt {
	case AntiJoin, SemiJoin, MarkJoin:
		return false
	default:
		return true
	}
}

// IsRightOuter reports whether unmatched build rows must be emitted, which
// drives the SCAN_HT stage in the external source and the trailing
// GatherFullOuter pass in the in-memory source.
func (jt JoinType) IsRightOuter() bool {
	return jt == RightJoin || jt == FullJoin
}

// EmptyResultIfRHSIsEmpty reports whether an empty build side lets the
// finalize orchestrator short-circuit the probe pipeline entirely
// (NO_OUTPUT_POSSIBLE), which holds for every join type except the ones
// that must still emit a row per probe input: LEFT/FULL/SINGLE emit it
// NULL-extended, ANTI passes it through and MARK emits it with its mark.
func (jt JoinType) EmptyResultIfRHSIsEmpty() bool {
	switch jt {
	case InnerJoin, SemiJoin, RightJoin:
		return true
	default:
		return false
	}
}

// PerfectJoinStats carries the planner-supplied statistics that decide
// whether the perfect-hash fast path is even worth attempting.
type PerfectJoinStats struct {
	Min          int64
	Max          int64
	HasStats     bool
	IsBuildSmall bool
}

// Range returns build_max - build_min, valid only when HasStats is true.
func (s PerfectJoinStats) Range() int64 { return s.Max - s.Min }

// Config is the per-operator configuration surface from the specification's
// external interfaces section.
type Config struct {
	JoinType            JoinType
	Conditions          []JoinCondition
	RightProjectionMap  []int
	ConditionTypes      []coldata.T
	BuildTypes          []coldata.T
	PerfectJoinStats    PerfectJoinStats
	CanGoExternal       bool
	BufferPoolMaxBytes  int64
	WorkerCount         int
}

// MaxHTSize is 60% of the buffer pool, the hash table's hard memory
// ceiling before the operator must go external.
func (c Config) MaxHTSize() int64 {
	return int64(float64(c.BufferPoolMaxBytes) * 0.60)
}

// SinkMemoryPerWorker divides the hash table budget evenly across workers.
func (c Config) SinkMemoryPerWorker() int64 {
	if c.WorkerCount == 0 {
		return c.MaxHTSize()
	}
	return c.MaxHTSize() / int64(c.WorkerCount)
}
