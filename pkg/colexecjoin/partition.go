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
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/ratchetdb/hashjoin/pkg/util/syncutil"
)

// maxPartitions caps how finely the external path will ever radix-split
// the build side, independent of how small the resulting partitions would
// otherwise get.
const maxPartitions = 1024

// radixBitsFor returns the number of high-order hash bits used to assign a
// row to a partition, given a desired partition count already rounded up
// to a power of two by ChoosePartitionCount.
func radixBitsFor(numPartitions int) uint {
	return uint(bits.Len(uint(numPartitions - 1)))
}

// PartitionOf assigns hash to one of numPartitions partitions using its
// top radixBitsFor(numPartitions) bits. The pointer table indexes build
// rows by the hash's low bits (see PointerTable.bucketIdx); partitioning
// from the high end keeps the two independent, so a row's partition
// assignment says nothing about where it will land in its partition's own
// pointer table.
func PartitionOf(hash uint64, numPartitions int) int {
	if numPartitions <= 1 {
		return 0
	}
	shift := 64 - radixBitsFor(numPartitions)
	return int(hash >> shift)
}

// ChoosePartitionCount returns the smallest power-of-two partition count
// that brings each partition's expected build footprint under budget,
// capped at maxPartitions. ComputePartitionSizes-style estimation: this
// assumes a roughly uniform hash distribution across rows, which is the
// same assumption the source system's radix partitioner makes.
func ChoosePartitionCount(buildSizeBytes int64, budget int64) int {
	if budget <= 0 || buildSizeBytes <= budget {
		return 1
	}
	n := 1
	for int64(float64(buildSizeBytes)/float64(n)) > budget && n < maxPartitions {
		n <<= 1
	}
	return n
}

// RadixPartitionBuild redistributes every row across locals into
// numPartitions fresh per-partition LocalHashTables, reusing each row's
// already-computed hash rather than rehashing. This is the build-side half
// of going external: after partitioning, each partition's worth of build
// rows is small enough to finalize (and, if needed, spill/suspend)
// independently of the others.
//
// Per §4.1/§4.4, one partition task runs per local HT; since every task may
// route rows into any of the numPartitions output tables, each output
// table's append is guarded by its own mutex rather than by per-task output
// buffers, so two tasks writing into the same partition never race on its
// BlockCollection.
func RadixPartitionBuild(cfg Config, locals []*LocalHashTable, numPartitions int) []*LocalHashTable {
	partitions := make([]*LocalHashTable, numPartitions)
	mus := make([]syncutil.Mutex, numPartitions)
	for i := range partitions {
		partitions[i] = NewLocalHashTable(cfg)
	}
	if len(locals) <= 1 {
		for _, l := range locals {
			partitionOneLocal(l, partitions, mus, numPartitions)
		}
		return partitions
	}
	var g errgroup.Group
	for _, l := range locals {
		l := l
		g.Go(func() error {
			partitionOneLocal(l, partitions, mus, numPartitions)
			return nil
		})
	}
	_ = g.Wait() // partitionOneLocal never errors; Wait only synchronizes.
	return partitions
}

func partitionOneLocal(l *LocalHashTable, partitions []*LocalHashTable, mus []syncutil.Mutex, numPartitions int) {
	for _, blk := range l.Blocks.Blocks {
		for offset := 0; offset < blk.count; offset++ {
			p := PartitionOf(blk.hash[offset], numPartitions)
			mus[p].Lock()
			partitions[p].Blocks.AppendRaw(blk, offset)
			mus[p].Unlock()
		}
	}
}
