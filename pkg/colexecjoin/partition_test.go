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
)

func TestPartitionOfUsesHighBits(t *testing.T) {
	require.Equal(t, 0, PartitionOf(0, 1))
	require.Equal(t, 3, PartitionOf(uint64(3)<<62, 4))
	require.Equal(t, 0, PartitionOf(1, 4)) // low bits never affect partition choice
}

func TestChoosePartitionCountUnderBudgetIsOne(t *testing.T) {
	require.Equal(t, 1, ChoosePartitionCount(100, 1000))
	require.Equal(t, 1, ChoosePartitionCount(100, 0))
}

func TestChoosePartitionCountScalesWithSize(t *testing.T) {
	n := ChoosePartitionCount(1<<20, 1<<16)
	require.GreaterOrEqual(t, n, 2)
	require.LessOrEqual(t, n, maxPartitions)
}

func TestRadixPartitionBuildPreservesRowCount(t *testing.T) {
	cfg := testConfig()
	l1 := NewLocalHashTable(cfg)
	_, err := l1.Sink(makeInt64Batch(1, 2, 3), makeInt64Batch(1, 2, 3), 3, nil)
	require.NoError(t, err)
	l2 := NewLocalHashTable(cfg)
	_, err = l2.Sink(makeInt64Batch(4, 5), makeInt64Batch(4, 5), 2, nil)
	require.NoError(t, err)

	partitions := RadixPartitionBuild(cfg, []*LocalHashTable{l1, l2}, 4)
	require.Len(t, partitions, 4)

	var total uint64
	for _, p := range partitions {
		total += p.Blocks.Count()
	}
	require.Equal(t, uint64(5), total)
}

func TestRadixPartitionBuildRoutesByHighBitsOfHash(t *testing.T) {
	cfg := testConfig()
	local := NewLocalHashTable(cfg)
	_, err := local.Sink(makeInt64Batch(1), makeInt64Batch(1), 1, nil)
	require.NoError(t, err)

	hash := local.Blocks.Blocks[0].hash[0]
	partitions := RadixPartitionBuild(cfg, []*LocalHashTable{local}, 4)
	expected := PartitionOf(hash, 4)

	for i, p := range partitions {
		if i == expected {
			require.Equal(t, uint64(1), p.Blocks.Count())
		} else {
			require.Equal(t, uint64(0), p.Blocks.Count())
		}
	}
}
