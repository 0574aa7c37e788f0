// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// hashjoindemo drives a single HashJoinOperator over synthetic integer
// columns end to end, the way a planner would wire a real physical plan,
// and prints the resulting row count. It exists to exercise the operator
// outside of a test binary, not as a benchmark harness.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/colexecjoin"
	"github.com/ratchetdb/hashjoin/pkg/colexecop"
	"github.com/ratchetdb/hashjoin/pkg/util/log"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

var (
	buildRows  = flag.Int("build-rows", 1_000_000, "number of build-side rows")
	probeRows  = flag.Int("probe-rows", 1_000_000, "number of probe-side rows")
	keyRange   = flag.Int64("key-range", 1_000_000, "range of join key values, [0, key-range)")
	memBudget  = flag.Int64("mem-budget", 512<<20, "buffer pool budget in bytes, used for MaxHTSize/external fallback")
	joinType   = flag.String("join-type", "inner", "inner|left|right|full|semi|anti")
	batchSize  = flag.Int("batch-size", coldata.BatchSize, "rows per generated batch")
)

func parseJoinType(s string) (colexecjoin.JoinType, error) {
	switch s {
	case "inner":
		return colexecjoin.InnerJoin, nil
	case "left":
		return colexecjoin.LeftJoin, nil
	case "right":
		return colexecjoin.RightJoin, nil
	case "full":
		return colexecjoin.FullJoin, nil
	case "semi":
		return colexecjoin.SemiJoin, nil
	case "anti":
		return colexecjoin.AntiJoin, nil
	default:
		return 0, fmt.Errorf("unknown join type %q", s)
	}
}

// intColumnSource emits n rows of a single int64 key column plus a
// matching payload column, in batches of batchSize, drawing keys uniformly
// from [0, keyRange).
type intColumnSource struct {
	remaining int
	batchSize int
	keyRange  int64
	rnd       *rand.Rand
}

func (s *intColumnSource) Init(context.Context) {}

func (s *intColumnSource) Next(context.Context) *coldata.Batch {
	if s.remaining <= 0 {
		return nil
	}
	n := s.batchSize
	if n > s.remaining {
		n = s.remaining
	}
	s.remaining -= n

	b := coldata.NewBatch([]coldata.T{coldata.Int64, coldata.Int64})
	keys := b.ColVec(0)
	payload := b.ColVec(1)
	for i := 0; i < n; i++ {
		k := s.rnd.Int63n(s.keyRange)
		keys.SetInt64(i, k)
		payload.SetInt64(i, k*7+1)
	}
	b.SetLength(n)
	return b
}

func main() {
	flag.Parse()

	jt, err := parseJoinType(*joinType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := colexecjoin.Config{
		JoinType:           jt,
		Conditions:         []colexecjoin.JoinCondition{{LeftCol: 0, RightCol: 0, Comparator: colexecjoin.CompEQ}},
		ConditionTypes:     []coldata.T{coldata.Int64},
		BuildTypes:         []coldata.T{coldata.Int64},
		RightProjectionMap: []int{0},
		CanGoExternal:      true,
		BufferPoolMaxBytes: *memBudget,
		WorkerCount:        1,
	}

	build := &intColumnSource{remaining: *buildRows, batchSize: *batchSize, keyRange: *keyRange, rnd: rand.New(rand.NewSource(1))}
	probe := &intColumnSource{remaining: *probeRows, batchSize: *batchSize, keyRange: *keyRange, rnd: rand.New(rand.NewSource(2))}

	monitor := mon.NewBytesMonitor("hashjoindemo", *memBudget)
	op := colexecjoin.NewHashJoinOperator(cfg, colexecop.Operator(probe), colexecop.Operator(build), monitor, nil, 1, "")

	ctx := log.WithPipelineID(context.Background(), 1)
	op.Init(ctx)

	var totalRows int
	var totalBatches int
	for {
		batch := op.Next(ctx)
		if batch == nil {
			break
		}
		totalRows += batch.Length()
		totalBatches++
	}

	fmt.Printf("join_type=%s build_rows=%d probe_rows=%d key_range=%d -> %d output rows in %d batches\n",
		*joinType, *buildRows, *probeRows, *keyRange, totalRows, totalBatches)
}
