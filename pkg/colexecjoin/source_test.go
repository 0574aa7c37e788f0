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

func TestNewGlobalSourceStateInitialStage(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, StageDone, NewGlobalSourceState(cfg, nil).Stage())
	require.Equal(t, StageDone, NewGlobalSourceState(cfg, &FinalizeResult{Suspended: true}).Stage())
	require.Equal(t, StageProbe, NewGlobalSourceState(cfg, &FinalizeResult{Table: NewJoinHashTable(cfg)}).Stage())
}

func TestAdvanceToScanHTOnlyForRightOuter(t *testing.T) {
	cfg := testConfig()
	cfg.JoinType = InnerJoin
	inner := NewGlobalSourceState(cfg, &FinalizeResult{Table: NewJoinHashTable(cfg)})
	require.False(t, inner.AdvanceToScanHT())
	require.Equal(t, StageDone, inner.Stage())

	cfg.JoinType = RightJoin
	right := NewGlobalSourceState(cfg, &FinalizeResult{Table: NewJoinHashTable(cfg)})
	require.True(t, right.AdvanceToScanHT())
	require.Equal(t, StageScanHT, right.Stage())
	require.False(t, right.AdvanceToScanHT(), "second caller must not re-claim the transition")

	right.AdvanceToDone()
	require.Equal(t, StageDone, right.Stage())
}

func TestProberDispatchesToInMemoryTable(t *testing.T) {
	cfg := testConfig()
	ht := buildHashedTable(t, cfg, 1, 2)
	g := NewGlobalSourceState(cfg, &FinalizeResult{Table: ht})

	p := g.Prober()
	require.NotNil(t, p)
	require.Nil(t, g.ProberFor(1))
}

func TestProberForPartitionsAndNextPartitionHandOut(t *testing.T) {
	cfg := testConfig()
	ht1 := buildHashedTable(t, cfg, 1)
	ht2 := buildHashedTable(t, cfg, 2)
	g := NewGlobalSourceState(cfg, &FinalizeResult{External: true, Partitions: []*JoinHashTable{ht1, ht2}})

	require.NotNil(t, g.ProberFor(0))
	require.NotNil(t, g.ProberFor(1))
	require.Nil(t, g.ProberFor(2))

	idx0, ok := g.NextPartition()
	require.True(t, ok)
	idx1, ok := g.NextPartition()
	require.True(t, ok)
	_, ok = g.NextPartition()
	require.False(t, ok)
	require.ElementsMatch(t, []int{0, 1}, []int{idx0, idx1})
}
