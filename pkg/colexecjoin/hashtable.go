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
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/marusama/semaphore"
	"golang.org/x/sync/errgroup"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

// loadFactor bounds the pointer table's average chain length; the bucket
// count is always the next power of two at or above Count()/loadFactor,
// i.e. at least twice the row count.
const loadFactor = 0.5

// parallelConstructThreshold is PARALLEL_CONSTRUCT_THRESHOLD from §4.4:
// below this row count, building the pointer table single-threaded costs
// less than the goroutine fan-out would.
const parallelConstructThreshold = 1 << 20

// PointerTable is the bucket array every probe row walks a chain from: one
// atomically-updated packed RowRef per bucket, CAS-chained through each
// row's own next slot. This is the Go analogue of the source system's
// first[]/next[] arrays, generalized from dense keyIDs to (block, offset)
// addressing.
type PointerTable struct {
	buckets []uint64
	mask    uint64
}

// NewPointerTable allocates a table with the smallest power-of-two bucket
// count satisfying count/loadFactor, with a floor of 1 so probing an empty
// build side never divides by zero.
func NewPointerTable(count uint64) *PointerTable {
	n := uint64(1)
	target := uint64(float64(count) / loadFactor)
	for n < target || n == 0 {
		n <<= 1
	}
	if n == 0 {
		n = 1
	}
	buckets := make([]uint64, n)
	nilPacked := packRowRef(NilRowRef)
	for i := range buckets {
		buckets[i] = nilPacked
	}
	return &PointerTable{buckets: buckets, mask: n - 1}
}

func (pt *PointerTable) bucketIdx(hash uint64) uint64 { return hash & pt.mask }

// Insert pushes ref onto the bucket's chain, writing ref's own next slot to
// the bucket's previous head before swinging the head via CAS. Safe to call
// from multiple workers concurrently, including multiple workers racing to
// insert rows that hash to the same bucket.
func (pt *PointerTable) Insert(blocks *BlockCollection, hash uint64, ref RowRef) {
	idx := pt.bucketIdx(hash)
	blk, offset := blocks.Row(ref)
	for {
		old := atomic.LoadUint64(&pt.buckets[idx])
		blk.setNext(offset, unpackRowRef(old))
		if atomic.CompareAndSwapUint64(&pt.buckets[idx], old, packRowRef(ref)) {
			return
		}
	}
}

// Lookup returns the head RowRef of hash's bucket chain, or NilRowRef if
// empty.
func (pt *PointerTable) Lookup(hash uint64) RowRef {
	idx := pt.bucketIdx(hash)
	return unpackRowRef(atomic.LoadUint64(&pt.buckets[idx]))
}

// NumBuckets reports the bucket array length, used when estimating the
// build side's total memory footprint.
func (pt *PointerTable) NumBuckets() int { return len(pt.buckets) }

// LocalHashTable is one worker's private accumulator of build rows, filled
// during the sink stage before any cross-worker coordination happens. It
// owns no pointer table: that is only built once, after every worker's
// local table has been merged into the single JoinHashTable at finalize.
type LocalHashTable struct {
	cfg    Config
	Blocks *BlockCollection
}

// NewLocalHashTable allocates an empty per-worker build accumulator.
func NewLocalHashTable(cfg Config) *LocalHashTable {
	var payloadTypes []coldata.T
	if cfg.JoinType.StoresPayload() {
		payloadTypes = cfg.BuildTypes
	}
	return &LocalHashTable{
		cfg:    cfg,
		Blocks: newBlockCollection(cfg.ConditionTypes, payloadTypes),
	}
}

// Sink hashes and appends the n rows (optionally restricted to sel) of
// keys/payload to the local table, returning the packed hash for each row
// so callers that also feed the external radix partitioner don't have to
// rehash.
func (l *LocalHashTable) Sink(keys, payload *coldata.Batch, n int, sel []int) ([]uint64, error) {
	hashes := make([]uint64, n)
	coldata.InitHash(hashes)
	for _, col := range keys.ColVecs() {
		coldata.Rehash(hashes, col, n, sel)
	}
	for i := 0; i < n; i++ {
		srcIdx := i
		if sel != nil {
			srcIdx = sel[i]
		}
		l.Blocks.Append(keys, payload, srcIdx, hashes[i])
	}
	return hashes, nil
}

// JoinHashTable is the single, merged build-side table a query's finalize
// stage produces: every worker's rows in one BlockCollection, addressed
// through one PointerTable. Perfect is non-nil only when the perfect-hash
// fast path was chosen, in which case Pointers stays nil; the nilable
// Perfect field is what the call sites branch on to tell the two finalized
// states apart.
type JoinHashTable struct {
	cfg      Config
	Blocks   *BlockCollection
	Pointers *PointerTable
	Perfect  *PerfectTable
}

// NewJoinHashTable allocates an empty global table ready to receive merged
// local tables.
func NewJoinHashTable(cfg Config) *JoinHashTable {
	var payloadTypes []coldata.T
	if cfg.JoinType.StoresPayload() {
		payloadTypes = cfg.BuildTypes
	}
	return &JoinHashTable{
		cfg:    cfg,
		Blocks: newBlockCollection(cfg.ConditionTypes, payloadTypes),
	}
}

// Merge absorbs every worker's local table into the global BlockCollection
// by appending their blocks. No pointer table exists yet, so no RowRef
// needs rewriting for the shifted block indices.
func (ht *JoinHashTable) Merge(locals []*LocalHashTable) {
	for _, l := range locals {
		ht.Blocks.Merge(l.Blocks)
	}
}

// Count returns the total number of build rows merged so far.
func (ht *JoinHashTable) Count() uint64 { return ht.Blocks.Count() }

// SizeInBytes estimates the table's resident memory: block payload plus
// the hash/next/matched side arrays plus, once built, the pointer table.
// The sink does not call it: GlobalSinkState.ShouldGoExternal compares the
// bytes monitor's usage against Config.MaxHTSize instead.
func (ht *JoinHashTable) SizeInBytes() int64 {
	var total int64
	perRow := int64(8 /* hash */ + 8 /* next */ + 4 /* matched, amortized */)
	for _, t := range ht.cfg.ConditionTypes {
		perRow += physicalSize(t)
	}
	if ht.cfg.JoinType.StoresPayload() {
		for _, t := range ht.cfg.BuildTypes {
			perRow += physicalSize(t)
		}
	}
	total += int64(ht.Count()) * perRow
	if ht.Pointers != nil {
		total += int64(ht.Pointers.NumBuckets()) * 8
	}
	return total
}

func physicalSize(t coldata.T) int64 {
	switch t {
	case coldata.Bool, coldata.Int8, coldata.Uint8:
		return 1
	case coldata.Int16, coldata.Uint16:
		return 2
	case coldata.Int32, coldata.Uint32:
		return 4
	case coldata.Int64, coldata.Uint64, coldata.Float64:
		return 8
	case coldata.Bytes:
		return 32 // amortized estimate, mirrors the source system's string heuristic
	default:
		return 16
	}
}

// SwizzleBlocks marks every full block as swizzle-safe, the point past
// which a buffer manager may evict block contents without invalidating any
// RowRef a probe holds, since addressing never depended on residency.
func (ht *JoinHashTable) SwizzleBlocks() { ht.Blocks.SwizzleBlocks() }

// InitializePointerTable builds the single shared pointer table by
// rehashing (cheaply, from each block's stored per-row hash) and chaining
// every build row. Must run after every worker's local table has been
// merged and after swizzling, matching the source system's
// InitializePointerTable ordering.
//
// Per §4.4, one task is scheduled per contiguous block range and run
// through ht.cfg.WorkerCount workers when the row count clears
// parallelConstructThreshold; below that, single-threaded construction
// avoids paying for the goroutine fan-out on a table too small to need it.
func (ht *JoinHashTable) InitializePointerTable() error {
	ht.Pointers = NewPointerTable(ht.Blocks.Count())

	workers := ht.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	if ht.Blocks.Count() < parallelConstructThreshold || workers <= 1 || len(ht.Blocks.Blocks) <= 1 {
		for blockIdx, blk := range ht.Blocks.Blocks {
			ht.finalizeBlockRange(blockIdx, blk)
		}
		return nil
	}

	sem := semaphore.New(workers)
	g, ctx := errgroup.WithContext(context.Background())
	for blockIdx, blk := range ht.Blocks.Blocks {
		blockIdx, blk := blockIdx, blk
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return errors.Wrapf(err, "colexecjoin: pointer table build")
			}
			defer sem.Release(1)
			ht.finalizeBlockRange(blockIdx, blk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NewError(AllocationFailure, "finalize", -1, err)
	}
	return nil
}

// finalizeBlockRange is one finalize task: it CASes every row of a single
// block onto its bucket chain. Distinct blocks never share rows, so tasks
// covering different blocks never contend on anything but the (already
// atomic) bucket heads themselves.
func (ht *JoinHashTable) finalizeBlockRange(blockIdx int, blk *Block) {
	for offset := 0; offset < blk.count; offset++ {
		ref := RowRef{Block: uint32(blockIdx), Offset: uint32(offset)}
		ht.Pointers.Insert(ht.Blocks, blk.hash[offset], ref)
	}
}

// Lookup returns the head of hash's bucket chain. Callers walk the chain
// with Blocks.Row and Block.loadNext.
func (ht *JoinHashTable) Lookup(hash uint64) RowRef {
	if ht.Pointers == nil {
		return NilRowRef
	}
	return ht.Pointers.Lookup(hash)
}

// Reset empties the table: its blocks, pointer table and perfect table.
func (ht *JoinHashTable) Reset() {
	ht.Blocks.Reset()
	ht.Pointers = nil
	ht.Perfect = nil
}

