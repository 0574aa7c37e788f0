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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

// fakeBatchSource replays a fixed list of batches, then nil forever, the
// same exhaustion convention real upstream operators use.
type fakeBatchSource struct {
	batches []*coldata.Batch
	idx     int
}

func (f *fakeBatchSource) Init(context.Context) {}

func (f *fakeBatchSource) Next(context.Context) *coldata.Batch {
	if f.idx >= len(f.batches) {
		return nil
	}
	b := f.batches[f.idx]
	f.idx++
	return b
}

func singleColBatch(vals ...int64) *coldata.Batch {
	b := coldata.NewBatch([]coldata.T{coldata.Int64})
	for i, v := range vals {
		b.ColVec(0).SetInt64(i, v)
	}
	b.SetLength(len(vals))
	return b
}

func TestHashJoinOperatorInnerJoinEndToEnd(t *testing.T) {
	cfg := Config{
		JoinType:       InnerJoin,
		Conditions:     []JoinCondition{{Comparator: CompEQ}},
		ConditionTypes: []coldata.T{coldata.Int64},
		BuildTypes:     []coldata.T{coldata.Int64},
		WorkerCount:    1,
	}
	build := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(1, 2, 3)}}
	probe := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(2, 4)}}

	op := NewHashJoinOperator(cfg, probe, build, mon.NewBytesMonitor("test", 0), nil, 1, "")
	op.Init(context.Background())

	out := op.Next(context.Background())
	require.NotNil(t, out)
	require.Equal(t, 1, out.Length())
	require.Equal(t, int64(2), out.ColVec(0).AsInt64(0))
	require.Equal(t, int64(2), out.ColVec(1).AsInt64(0))

	require.Nil(t, op.Next(context.Background()))
}

func TestHashJoinOperatorLeftJoinNullExtendsUnmatched(t *testing.T) {
	cfg := Config{
		JoinType:       LeftJoin,
		Conditions:     []JoinCondition{{Comparator: CompEQ}},
		ConditionTypes: []coldata.T{coldata.Int64},
		BuildTypes:     []coldata.T{coldata.Int64},
		WorkerCount:    1,
	}
	build := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(1)}}
	probe := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(1, 99)}}

	op := NewHashJoinOperator(cfg, probe, build, mon.NewBytesMonitor("test", 0), nil, 1, "")
	op.Init(context.Background())

	out := op.Next(context.Background())
	require.NotNil(t, out)
	require.Equal(t, 2, out.Length())

	foundNull := false
	for i := 0; i < out.Length(); i++ {
		if out.ColVec(1).Nulls().NullAt(i) {
			foundNull = true
		}
	}
	require.True(t, foundNull, "unmatched probe row must produce a null-extended build side")
}

func TestHashJoinOperatorInnerJoinPullsPastAnEmptyProbeChunk(t *testing.T) {
	cfg := Config{
		JoinType:       InnerJoin,
		Conditions:     []JoinCondition{{Comparator: CompEQ}},
		ConditionTypes: []coldata.T{coldata.Int64},
		BuildTypes:     []coldata.T{coldata.Int64},
		WorkerCount:    1,
	}
	build := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(1)}}
	// The first probe batch matches nothing; buildOutput must not be
	// mistaken for exhaustion, or the second batch's match is lost.
	probe := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(99), singleColBatch(1)}}

	op := NewHashJoinOperator(cfg, probe, build, mon.NewBytesMonitor("test", 0), nil, 1, "")
	op.Init(context.Background())

	out := op.Next(context.Background())
	require.NotNil(t, out, "must not stop at the first, empty-output probe chunk")
	require.Equal(t, 1, out.Length())
	require.Equal(t, int64(1), out.ColVec(0).AsInt64(0))

	require.Nil(t, op.Next(context.Background()))
}

func TestHashJoinOperatorEmptyBuildSideProducesNoOutputForInner(t *testing.T) {
	cfg := Config{
		JoinType:       InnerJoin,
		Conditions:     []JoinCondition{{Comparator: CompEQ}},
		ConditionTypes: []coldata.T{coldata.Int64},
		BuildTypes:     []coldata.T{coldata.Int64},
		WorkerCount:    1,
	}
	build := &fakeBatchSource{}
	probe := &fakeBatchSource{batches: []*coldata.Batch{singleColBatch(1)}}

	op := NewHashJoinOperator(cfg, probe, build, mon.NewBytesMonitor("test", 0), nil, 1, "")
	op.Init(context.Background())

	require.Nil(t, op.Next(context.Background()))
}
