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

import (
	"bytes"
	"fmt"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

// ProbeResult collects one probe batch's output against the build side: a
// pair of parallel slices (ProbeIdx[i], BuildRef[i]) for every row the
// output projection must gather, plus bookkeeping for the join types that
// need more than matched pairs.
type ProbeResult struct {
	ProbeIdx  []int
	BuildRef  []RowRef
	Unmatched []int          // probe row indices with zero matches (LEFT/ANTI/FULL/SINGLE null-extension)
	Marked    map[int]bool   // MARK join: probe row index -> whether it had any match
}

// Prober evaluates one probe batch against a finalized JoinHashTable,
// dispatching to the perfect dense path when available and the hashed
// pointer-table path otherwise. Both paths apply every join condition, not
// just the hashed/dense equality, so conditions beyond the first are
// always checked as residual predicates.
type Prober struct {
	cfg Config
	ht  *JoinHashTable
}

// NewProber binds a prober to a finalized table.
func NewProber(cfg Config, ht *JoinHashTable) *Prober {
	return &Prober{cfg: cfg, ht: ht}
}

// Probe matches the n (optionally selected) rows of keys against the build
// side, honoring every join condition in order. keys must have one column
// per cfg.Conditions entry, in the same order Sink was fed during build.
func (p *Prober) Probe(keys *coldata.Batch, n int, sel []int) (*ProbeResult, error) {
	res := &ProbeResult{}
	if p.cfg.JoinType == MarkJoin {
		res.Marked = make(map[int]bool, n)
	}
	hashes := make([]uint64, n)
	coldata.InitHash(hashes)
	for _, col := range keys.ColVecs() {
		coldata.Rehash(hashes, col, n, sel)
	}
	for i := 0; i < n; i++ {
		probeIdx := i
		if sel != nil {
			probeIdx = sel[i]
		}
		matched := false
		if p.ht.Perfect != nil {
			matched = p.probePerfect(keys, probeIdx, res)
		} else {
			matched = p.probeHashed(keys, probeIdx, hashes[i], res)
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, probeIdx)
		}
		if res.Marked != nil {
			res.Marked[probeIdx] = matched
		}
	}
	return res, nil
}

func (p *Prober) probePerfect(keys *coldata.Batch, probeIdx int, res *ProbeResult) bool {
	key := keys.ColVec(0).AsInt64(probeIdx)
	ref, ok := p.ht.Perfect.Lookup(key)
	if !ok {
		return false
	}
	// Perfect keys are unique by construction, so there is never more than
	// one candidate; residual conditions beyond the dense equality (there
	// are none, since Eligible requires exactly one condition) need no
	// further check.
	blk, offset := p.ht.Blocks.Row(ref)
	if p.cfg.JoinType.IsRightOuter() || p.cfg.JoinType == FullJoin {
		blk.setMatched(offset)
	}
	res.ProbeIdx = append(res.ProbeIdx, probeIdx)
	res.BuildRef = append(res.BuildRef, ref)
	return true
}

func (p *Prober) probeHashed(keys *coldata.Batch, probeIdx int, hash uint64, res *ProbeResult) bool {
	ref := p.ht.Lookup(hash)
	matched := false
	for !ref.IsNil() {
		blk, offset := p.ht.Blocks.Row(ref)
		if blk.hash[offset] == hash && rowMatches(p.cfg.Conditions, keys, probeIdx, blk.keys, offset) {
			matched = true
			if p.cfg.JoinType.IsRightOuter() || p.cfg.JoinType == FullJoin {
				blk.setMatched(offset)
			}
			switch p.cfg.JoinType {
			case SemiJoin:
				// Semi join emits the probe row at most once; stop at the
				// first match instead of continuing to chase the chain.
				res.ProbeIdx = append(res.ProbeIdx, probeIdx)
				res.BuildRef = append(res.BuildRef, NilRowRef)
			case AntiJoin, MarkJoin:
				// Only whether a match exists matters; keep walking only to
				// find IsRightOuter's matched bit, otherwise nothing more to
				// record.
			case SingleJoin:
				// SINGLE join returns at most one build row per probe row.
				res.ProbeIdx = append(res.ProbeIdx, probeIdx)
				res.BuildRef = append(res.BuildRef, ref)
			default:
				res.ProbeIdx = append(res.ProbeIdx, probeIdx)
				res.BuildRef = append(res.BuildRef, ref)
			}
			if p.cfg.JoinType == SemiJoin || p.cfg.JoinType == SingleJoin {
				break
			}
		}
		ref = blk.loadNext(offset)
	}
	return matched
}

// rowMatches applies every join condition's comparator between the probe
// row and a candidate build row. Condition i compares probeKeys column i
// against buildKeys column i, the same column order Sink was fed.
func rowMatches(conds []JoinCondition, probeKeys *coldata.Batch, probeIdx int, buildKeys *coldata.Batch, buildIdx int) bool {
	for i, c := range conds {
		pv := probeKeys.ColVec(i)
		bv := buildKeys.ColVec(i)
		if pv.Nulls().NullAt(probeIdx) || bv.Nulls().NullAt(buildIdx) {
			return false
		}
		cmp := compareValues(pv, probeIdx, bv, buildIdx)
		switch c.Comparator {
		case CompEQ:
			if cmp != 0 {
				return false
			}
		case CompNE:
			if cmp == 0 {
				return false
			}
		case CompLT:
			if !(cmp < 0) {
				return false
			}
		case CompLE:
			if !(cmp <= 0) {
				return false
			}
		case CompGT:
			if !(cmp > 0) {
				return false
			}
		case CompGE:
			if !(cmp >= 0) {
				return false
			}
		}
	}
	return true
}

// compareValues returns -1, 0 or 1 comparing a's value at i to b's value at
// j, both of which must share a's physical type.
func compareValues(a *coldata.Vec, i int, b *coldata.Vec, j int) int {
	switch a.Type() {
	case coldata.Bool:
		av, bv := a.Bool()[i], b.Bool()[j]
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	case coldata.Bytes:
		return bytes.Compare(a.Bytes()[i], b.Bytes()[j])
	case coldata.Float64:
		av, bv := a.Float64()[i], b.Float64()[j]
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case coldata.Datum:
		// Boxed values fall back to a formatted-string comparison; adequate
		// for equality-only datum joins, which is the only comparator the
		// perfect and hashed paths ever dispatch for non-physical types in
		// practice.
		as, bs := fmt.Sprintf("%v", a.Datum()[i]), fmt.Sprintf("%v", b.Datum()[j])
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	default:
		av, bv := a.AsInt64(i), b.AsInt64(j)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
}

