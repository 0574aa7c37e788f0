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

func perfectEligibleConfig() Config {
	return Config{
		Conditions:     []JoinCondition{{Comparator: CompEQ}},
		ConditionTypes: []coldata.T{coldata.Int64},
		PerfectJoinStats: PerfectJoinStats{
			Min: 0, Max: 99, HasStats: true, IsBuildSmall: true,
		},
	}
}

func TestEligibleAcceptsDenseSmallIntegerEquiJoin(t *testing.T) {
	require.True(t, Eligible(perfectEligibleConfig()))
}

func TestEligibleRejectsMultipleConditions(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.Conditions = append(cfg.Conditions, JoinCondition{Comparator: CompEQ})
	require.False(t, Eligible(cfg))
}

func TestEligibleRejectsNonIntegerColumn(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.ConditionTypes = []coldata.T{coldata.Bytes}
	require.False(t, Eligible(cfg))
}

func TestEligibleRejectsMissingStats(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.PerfectJoinStats.HasStats = false
	require.False(t, Eligible(cfg))
}

func TestEligibleRejectsRangeTooLarge(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.PerfectJoinStats.Max = cfg.PerfectJoinStats.Min + maxPerfectRange + 1
	require.False(t, Eligible(cfg))
}

func TestPerfectTableInsertLookupAndDuplicate(t *testing.T) {
	stats := PerfectJoinStats{Min: 10, Max: 20}
	pt := NewPerfectTable(stats)

	require.NoError(t, pt.Insert(15, RowRef{Block: 1, Offset: 2}))
	ref, ok := pt.Lookup(15)
	require.True(t, ok)
	require.Equal(t, RowRef{Block: 1, Offset: 2}, ref)

	_, ok = pt.Lookup(11)
	require.False(t, ok)

	err := pt.Insert(15, RowRef{Block: 3, Offset: 4})
	require.Error(t, err)
	var joinErr *Error
	require.ErrorAs(t, err, &joinErr)
	require.Equal(t, DuplicateOrOutOfRangeKey, joinErr.Kind)
}

func TestPerfectTableInsertOutOfRange(t *testing.T) {
	pt := NewPerfectTable(PerfectJoinStats{Min: 0, Max: 5})
	err := pt.Insert(6, RowRef{})
	require.Error(t, err)
}

func TestBuildPerfectTableFromBlocks(t *testing.T) {
	cfg := perfectEligibleConfig()
	bc := newBlockCollection(cfg.ConditionTypes, nil)
	bc.Append(makeInt64Batch(3), nil, 0, 0)
	bc.Append(makeInt64Batch(7), nil, 0, 0)

	pt, err := BuildPerfectTable(cfg, bc)
	require.NoError(t, err)
	ref, ok := pt.Lookup(3)
	require.True(t, ok)
	blk, offset := bc.Row(ref)
	require.Equal(t, int64(3), blk.keys.ColVec(0).AsInt64(offset))

	_, ok = pt.Lookup(4)
	require.False(t, ok)
}

func TestBuildPerfectTableDuplicateKeyFails(t *testing.T) {
	cfg := perfectEligibleConfig()
	bc := newBlockCollection(cfg.ConditionTypes, nil)
	bc.Append(makeInt64Batch(3), nil, 0, 0)
	bc.Append(makeInt64Batch(3), nil, 0, 0)

	_, err := BuildPerfectTable(cfg, bc)
	require.Error(t, err)
}
