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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

func TestRowRefPackUnpackRoundTrip(t *testing.T) {
	ref := RowRef{Block: 7, Offset: 129}
	require.Equal(t, ref, unpackRowRef(packRowRef(ref)))
	require.False(t, ref.IsNil())
	require.True(t, NilRowRef.IsNil())
}

func makeInt64Batch(vals ...int64) *coldata.Batch {
	b := coldata.NewBatch([]coldata.T{coldata.Int64})
	for i, v := range vals {
		b.ColVec(0).SetInt64(i, v)
	}
	b.SetLength(len(vals))
	return b
}

func TestBlockCollectionAppendSpansMultipleBlocks(t *testing.T) {
	bc := newBlockCollection([]coldata.T{coldata.Int64}, nil)
	total := BlockCapacity + 5
	for i := 0; i < total; i++ {
		keys := makeInt64Batch(int64(i))
		bc.Append(keys, nil, 0, uint64(i))
	}
	require.Equal(t, uint64(total), bc.Count())
	require.Len(t, bc.Blocks, 2)

	blk, offset := bc.Row(RowRef{Block: 1, Offset: 3})
	require.Equal(t, int64(BlockCapacity+3), blk.keys.ColVec(0).AsInt64(offset))
}

func TestSwizzleBlocksMarksOnlyFullOrNonTrailingBlocks(t *testing.T) {
	bc := newBlockCollection([]coldata.T{coldata.Int64}, nil)
	total := BlockCapacity + 5
	for i := 0; i < total; i++ {
		keys := makeInt64Batch(int64(i))
		bc.Append(keys, nil, 0, uint64(i))
	}
	bc.SwizzleBlocks()
	require.True(t, bc.Blocks[0].swizzled)
	require.False(t, bc.Blocks[1].swizzled)
}

func TestMergeConcatenatesBlocksAndCounts(t *testing.T) {
	a := newBlockCollection([]coldata.T{coldata.Int64}, nil)
	b := newBlockCollection([]coldata.T{coldata.Int64}, nil)
	a.Append(makeInt64Batch(1), nil, 0, 1)
	b.Append(makeInt64Batch(2), nil, 0, 2)
	b.Append(makeInt64Batch(3), nil, 0, 3)

	a.Merge(b)
	require.Equal(t, uint64(3), a.Count())
	require.Len(t, a.Blocks, 2)
	require.Equal(t, uint64(0), b.Count())
	require.Nil(t, b.Blocks)
}

func TestBlockSetNextLoadNextAndMatched(t *testing.T) {
	blk := newBlock([]coldata.T{coldata.Int64}, nil)
	keys := makeInt64Batch(10)
	blk.appendRow(keys, nil, 0, 42)

	require.True(t, blk.loadNext(0).IsNil())
	blk.setNext(0, RowRef{Block: 3, Offset: 9})
	require.Equal(t, RowRef{Block: 3, Offset: 9}, blk.loadNext(0))

	require.False(t, blk.isMatched(0))
	blk.setMatched(0)
	require.True(t, blk.isMatched(0))
}
