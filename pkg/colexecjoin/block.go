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
	"math"
	"sync/atomic"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

// RowRef addresses a build row by (block, offset) instead of an interior
// pointer into a row-major buffer, per DESIGN NOTES §9: this is what makes
// swizzle/unswizzle the identity function and lets a block be written out
// and reloaded without fixing up any addresses.
type RowRef struct {
	Block  uint32
	Offset uint32
}

// NilRowRef is the chain terminator, analogous to keyID 0 in the source
// system's densely-packed next array.
var NilRowRef = RowRef{Block: math.MaxUint32, Offset: 0}

func (r RowRef) IsNil() bool { return r.Block == NilRowRef.Block }

func packRowRef(r RowRef) uint64 {
	return uint64(r.Block)<<32 | uint64(r.Offset)
}

func unpackRowRef(v uint64) RowRef {
	return RowRef{Block: uint32(v >> 32), Offset: uint32(v)}
}

// BlockCapacity is the fixed row capacity of every block in a block
// collection, playing the role of a row-major block's fixed capacity in
// the source system.
const BlockCapacity = coldata.BatchSize

// Block is one fixed-capacity, append-only slice of build rows: the equi-
// key columns, the (possibly empty) payload columns, each row's hash, its
// pointer-table chain slot, and, for outer/mark joins, whether it has been
// matched by a probe row.
type Block struct {
	keys    *coldata.Batch
	payload *coldata.Batch
	hash    []uint64
	next    []uint64 // atomically accessed; packed RowRef, NilRowRef packed by default is not zero so it is explicitly initialized.
	matched []uint32 // bitset, 32 rows per word

	count int

	// swizzled records whether this block has been converted to relative
	// addressing and may safely be evicted by a buffer manager. Since rows
	// are already addressed by (block, offset), swizzling is the identity
	// transform; this flag only tracks the invariant for callers.
	swizzled bool
}

func newBlock(keyTypes, payloadTypes []coldata.T) *Block {
	b := &Block{
		keys:    coldata.NewBatch(keyTypes),
		hash:    make([]uint64, 0, BlockCapacity),
		next:    make([]uint64, 0, BlockCapacity),
		matched: make([]uint32, (BlockCapacity+31)/32),
	}
	if len(payloadTypes) > 0 {
		b.payload = coldata.NewBatch(payloadTypes)
	}
	return b
}

func (b *Block) full() bool { return b.count >= BlockCapacity }

// appendRow appends one row's keys, payload and hash, returning its
// offset within the block. The row's next slot starts out nil.
func (b *Block) appendRow(keys *coldata.Batch, payload *coldata.Batch, srcIdx int, hash uint64) int {
	offset := b.count
	for i, v := range b.keys.ColVecs() {
		v.AppendFrom(keys.ColVec(i), srcIdx)
	}
	if b.payload != nil && payload != nil {
		for i, v := range b.payload.ColVecs() {
			v.AppendFrom(payload.ColVec(i), srcIdx)
		}
	}
	b.hash = append(b.hash, hash)
	b.next = append(b.next, packRowRef(NilRowRef))
	b.count++
	b.keys.SetLength(b.count)
	if b.payload != nil {
		b.payload.SetLength(b.count)
	}
	return offset
}

func (b *Block) setNext(offset int, ref RowRef) {
	atomic.StoreUint64(&b.next[offset], packRowRef(ref))
}

func (b *Block) loadNext(offset int) RowRef {
	return unpackRowRef(atomic.LoadUint64(&b.next[offset]))
}

// casNext compare-and-swaps the row's own next slot from old to new and
// reports whether it succeeded. It does not touch any bucket head;
// PointerTable.Insert writes the next slot with setNext and swings the
// bucket head with its own CAS.
func (b *Block) casNext(offset int, old uint64, new uint64) bool {
	return atomic.CompareAndSwapUint64(&b.next[offset], old, new)
}

func (b *Block) setMatched(offset int) {
	word := offset / 32
	bit := uint32(1) << uint(offset%32)
	for {
		old := atomic.LoadUint32(&b.matched[word])
		if old&bit != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&b.matched[word], old, old|bit) {
			return
		}
	}
}

func (b *Block) isMatched(offset int) bool {
	word := offset / 32
	bit := uint32(1) << uint(offset%32)
	return atomic.LoadUint32(&b.matched[word])&bit != 0
}

// BlockCollection is an append-only ordered sequence of Blocks, owned by a
// single hash table.
type BlockCollection struct {
	Blocks       []*Block
	keyTypes     []coldata.T
	payloadTypes []coldata.T
	count        uint64
}

func newBlockCollection(keyTypes, payloadTypes []coldata.T) *BlockCollection {
	return &BlockCollection{keyTypes: keyTypes, payloadTypes: payloadTypes}
}

// Count returns the total number of rows across every block.
func (bc *BlockCollection) Count() uint64 { return bc.count }

// activeBlock returns the block new rows should be appended to, allocating
// a fresh one if the collection is empty or the last block is full.
func (bc *BlockCollection) activeBlock() *Block {
	if len(bc.Blocks) == 0 || bc.Blocks[len(bc.Blocks)-1].full() {
		bc.Blocks = append(bc.Blocks, newBlock(bc.keyTypes, bc.payloadTypes))
	}
	return bc.Blocks[len(bc.Blocks)-1]
}

// Append adds one row to the collection and returns its RowRef.
func (bc *BlockCollection) Append(keys, payload *coldata.Batch, srcIdx int, hash uint64) RowRef {
	blk := bc.activeBlock()
	blockIdx := uint32(len(bc.Blocks) - 1)
	offset := blk.appendRow(keys, payload, srcIdx, hash)
	bc.count++
	return RowRef{Block: blockIdx, Offset: uint32(offset)}
}

// AppendRaw copies one row directly from another block (as opposed to from
// a coldata.Batch), preserving its hash. Used by the radix partitioner to
// redistribute already-built rows across partitions without rehashing.
func (bc *BlockCollection) AppendRaw(src *Block, srcOffset int) RowRef {
	blk := bc.activeBlock()
	blockIdx := uint32(len(bc.Blocks) - 1)
	offset := blk.count
	for i, v := range blk.keys.ColVecs() {
		v.AppendFrom(src.keys.ColVec(i), srcOffset)
	}
	if blk.payload != nil && src.payload != nil {
		for i, v := range blk.payload.ColVecs() {
			v.AppendFrom(src.payload.ColVec(i), srcOffset)
		}
	}
	blk.hash = append(blk.hash, src.hash[srcOffset])
	blk.next = append(blk.next, packRowRef(NilRowRef))
	blk.count++
	blk.keys.SetLength(blk.count)
	if blk.payload != nil {
		blk.payload.SetLength(blk.count)
	}
	bc.count++
	return RowRef{Block: blockIdx, Offset: uint32(offset)}
}

// Row resolves a RowRef to its owning block and offset.
func (bc *BlockCollection) Row(ref RowRef) (*Block, int) {
	return bc.Blocks[ref.Block], int(ref.Offset)
}

// SwizzleBlocks converts every full, unswizzled block to swizzled form.
// Addressing here is already relative (block id + offset), so this is the
// identity transform on data; it only flips the bookkeeping flag, leaving
// at most the current partial (write-cursor) block unswizzled, matching
// the source system's invariant.
func (bc *BlockCollection) SwizzleBlocks() {
	for i, blk := range bc.Blocks {
		if blk.full() || i < len(bc.Blocks)-1 {
			blk.swizzled = true
		}
	}
}

// Merge moves other's blocks into bc by appending them, leaving other
// empty. No RowRef is rewritten: a reference into other's block i now
// names bc's block len(bc.Blocks)+i as it was before the call, so Merge is
// only safe while nobody holds RowRefs into other, as when finalize merges
// per-worker local tables before any pointer table exists.
func (bc *BlockCollection) Merge(other *BlockCollection) {
	bc.Blocks = append(bc.Blocks, other.Blocks...)
	bc.count += other.count
	other.Blocks = nil
	other.count = 0
}

// Reset empties the collection.
func (bc *BlockCollection) Reset() {
	bc.Blocks = nil
	bc.count = 0
}
