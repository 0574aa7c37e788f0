// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package colexecjoin

import "github.com/cockroachdb/errors"

// maxPerfectRange bounds how large build_max - build_min may be before the
// dense perfect table is rejected in favor of the hashed path purely on
// memory grounds, independent of whether the planner-supplied stats still
// qualify structurally.
const maxPerfectRange = 16 * 1024 * 1024

// PerfectTable is the dense array keyed by key-Min used by the perfect-hash
// fast path: single equi-key integer joins over a provably small, known
// range skip hashing and chaining entirely, indexing build rows directly.
type PerfectTable struct {
	stats   PerfectJoinStats
	present []uint32 // bitset, size Range()+1
	slots   []RowRef
}

// NewPerfectTable allocates a dense table sized to stats.Range()+1. Callers
// must have already confirmed Eligible(cfg) is true.
func NewPerfectTable(stats PerfectJoinStats) *PerfectTable {
	n := int(stats.Range()) + 1
	slots := make([]RowRef, n)
	for i := range slots {
		slots[i] = NilRowRef
	}
	return &PerfectTable{
		stats:   stats,
		present: make([]uint32, (n+31)/32),
		slots:   slots,
	}
}

// Eligible reports whether a build side qualifies for the perfect-hash
// path at all: the planner must have supplied a dense, small integer-range
// estimate for a join keyed by exactly one equality condition over an
// integer column, and the range must be small enough to allocate densely.
func Eligible(cfg Config) bool {
	if !cfg.PerfectJoinStats.HasStats || !cfg.PerfectJoinStats.IsBuildSmall {
		return false
	}
	if len(cfg.Conditions) != 1 || cfg.Conditions[0].Comparator != CompEQ {
		return false
	}
	if len(cfg.ConditionTypes) != 1 || !cfg.ConditionTypes[0].IsInteger() {
		return false
	}
	if cfg.PerfectJoinStats.Range() < 0 || cfg.PerfectJoinStats.Range() > maxPerfectRange {
		return false
	}
	return true
}

func (pt *PerfectTable) index(key int64) int { return int(key - pt.stats.Min) }

func (pt *PerfectTable) inRange(key int64) bool {
	return key >= pt.stats.Min && key <= pt.stats.Max
}

func (pt *PerfectTable) occupied(idx int) bool {
	word, bit := idx/32, uint32(1)<<uint(idx%32)
	return pt.present[word]&bit != 0
}

func (pt *PerfectTable) markOccupied(idx int) {
	word, bit := idx/32, uint32(1)<<uint(idx%32)
	pt.present[word] |= bit
}

// Insert places ref at key's dense slot. It returns a recoverable
// DuplicateOrOutOfRangeKey *Error, per the error handling design, if key
// falls outside [Min, Max] (the planner's stats were wrong) or a row with
// the same key was already inserted (perfect joins assume a unique build
// key per slot); callers catching this error abandon the perfect table and
// fall back to the hashed pointer-table path for the whole build side.
func (pt *PerfectTable) Insert(key int64, ref RowRef) error {
	if !pt.inRange(key) {
		return NewError(DuplicateOrOutOfRangeKey, "perfect_build", -1,
			errors.Newf("key %d outside perfect-table range [%d, %d]", key, pt.stats.Min, pt.stats.Max))
	}
	idx := pt.index(key)
	if pt.occupied(idx) {
		return NewError(DuplicateOrOutOfRangeKey, "perfect_build", -1,
			errors.Newf("duplicate build key %d in perfect table", key))
	}
	pt.markOccupied(idx)
	pt.slots[idx] = ref
	return nil
}

// Lookup returns the build row at key's slot, if any.
func (pt *PerfectTable) Lookup(key int64) (RowRef, bool) {
	if !pt.inRange(key) {
		return NilRowRef, false
	}
	idx := pt.index(key)
	if !pt.occupied(idx) {
		return NilRowRef, false
	}
	return pt.slots[idx], true
}

// Len returns the total number of dense slots (Range()+1, occupied or
// not), used by the full-outer scan as the bound when iterating the dense
// array rather than a block collection directly.
func (pt *PerfectTable) Len() int { return len(pt.slots) }

// SlotAt returns the RowRef stored at dense index i and whether it is
// occupied, for the full-outer / right-outer scan over every build row in
// key order.
func (pt *PerfectTable) SlotAt(i int) (RowRef, bool) {
	return pt.slots[i], pt.occupied(i)
}

// BuildPerfectTable scans every build row already accumulated in blocks and
// inserts it into a fresh PerfectTable keyed by its single equi-key column.
// On the first duplicate or out-of-range key it returns the partially
// built table alongside the error so the finalize orchestrator can decide
// whether a partial perfect build is worth discarding versus restarting
// the whole build side on the hashed path (the source system always
// restarts; this is cheap enough here that we just let the caller choose).
func BuildPerfectTable(cfg Config, blocks *BlockCollection) (*PerfectTable, error) {
	pt := NewPerfectTable(cfg.PerfectJoinStats)
	for blockIdx, blk := range blocks.Blocks {
		for offset := 0; offset < blk.count; offset++ {
			key := blk.keys.ColVec(0).AsInt64(offset)
			ref := RowRef{Block: uint32(blockIdx), Offset: uint32(offset)}
			if err := pt.Insert(key, ref); err != nil {
				return pt, err
			}
		}
	}
	return pt, nil
}
