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

	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/colexecerror"
	"github.com/ratchetdb/hashjoin/pkg/colexecop"
	"github.com/ratchetdb/hashjoin/pkg/colmem"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

// HashJoinOperator is the push-based sink -> finalize -> probe -> source
// pipeline as a single colexecop.Operator: InputOne is the probe side,
// InputTwo is the build side. Both inputs carry the equi-key columns first;
// the build payload stored per row is InputTwo's leading
// len(Config.BuildTypes) columns (which include those key columns), and
// output batches carry the probe keys, the projected build payload and, for
// MARK, a Bool mark column; evaluating richer
// expressions into those columns is a planner concern upstream of this
// operator, not something it does itself.
type HashJoinOperator struct {
	colexecop.TwoInputNode

	cfg        Config
	controller *checkpoint.Controller
	pipelineID uint64
	spillDir   string

	monitor *mon.BytesMonitor
	global  *GlobalSinkState
	result  *FinalizeResult
	gsrc    *GlobalSourceState

	numPartitions    int
	currentPartition int
	spill            *ProbeSpill
	replayer         *ProbeSpillReplayer
	probeDone        bool

	outBatch *coldata.Batch
	outAlloc *colmem.Allocator
	outAcc   mon.BoundAccount
}

// NewHashJoinOperator wires a new operator. spillDir is used only if the
// build side ends up going external; it must already exist.
func NewHashJoinOperator(cfg Config, probe, build colexecop.Operator, monitor *mon.BytesMonitor, controller *checkpoint.Controller, pipelineID uint64, spillDir string) *HashJoinOperator {
	return &HashJoinOperator{
		TwoInputNode: colexecop.NewTwoInputNode(probe, build),
		cfg:          cfg,
		controller:   controller,
		pipelineID:   pipelineID,
		spillDir:     spillDir,
		monitor:      monitor,
	}
}

// Init drains the entire build side and runs finalize, exactly once,
// before any probe batch is produced; this mirrors the source system's
// blocking build phase that precedes probing even though the rest of this
// operator is push-based chunk at a time.
func (op *HashJoinOperator) Init(ctx context.Context) {
	op.TwoInputNode.InputOne.Init(ctx)
	op.TwoInputNode.InputTwo.Init(ctx)

	op.global = NewGlobalSinkState(op.cfg, op.monitor, op.controller, op.pipelineID)

	if op.controller == nil || !op.controller.IsResumable(op.pipelineID) {
		local := NewLocalSinkState(op.cfg, op.monitor)
		for {
			batch := op.TwoInputNode.InputTwo.Next(ctx)
			if batch == nil || batch.Length() == 0 {
				break
			}
			var payload *coldata.Batch
			if op.cfg.JoinType.StoresPayload() {
				payload = batch
			}
			keys := projectKeys(op.cfg, batch)
			if err := local.Sink(ctx, keys, payload, batch.Length(), batch.Selection()); err != nil {
				colexecerror.InternalError(err)
			}
			if op.global.ShouldGoExternal() {
				op.global.MarkExternal()
			}
		}
		op.global.Combine(local.local)
	}

	result, err := Finalize(ctx, op.cfg, op.global, op.pipelineID)
	if err != nil {
		colexecerror.InternalError(err)
	}
	op.result = result
	op.gsrc = NewGlobalSourceState(op.cfg, result)
	if result != nil && result.External {
		op.numPartitions = len(result.Partitions)
	}
	op.outBatch = coldata.NewBatch(op.outputTypes())
	op.outAcc = op.monitor.MakeBoundAccount()
	op.outAlloc = colmem.NewAllocator(&op.outAcc)
}

// projectKeys extracts the equi-key columns from a Right-shaped batch into
// a fresh Batch of just those columns, so Sink/Probe never have to know
// about trailing payload columns.
func projectKeys(cfg Config, batch *coldata.Batch) *coldata.Batch {
	keys := coldata.NewBatch(cfg.ConditionTypes)
	n := batch.Length()
	sel := batch.Selection()
	for i := range cfg.ConditionTypes {
		src := batch.ColVec(i)
		for j := 0; j < n; j++ {
			srcIdx := j
			if sel != nil {
				srcIdx = sel[j]
			}
			keys.ColVec(i).AppendFrom(src, srcIdx)
		}
	}
	keys.SetLength(n)
	return keys
}

func (op *HashJoinOperator) outputTypes() []coldata.T {
	types := append([]coldata.T(nil), op.cfg.ConditionTypes...)
	if op.cfg.JoinType.StoresPayload() {
		types = append(types, op.projectedBuildTypes()...)
	}
	if op.cfg.JoinType == MarkJoin {
		types = append(types, coldata.Bool)
	}
	return types
}

func (op *HashJoinOperator) projectedBuildTypes() []coldata.T {
	if len(op.cfg.RightProjectionMap) == 0 {
		return op.cfg.BuildTypes
	}
	out := make([]coldata.T, len(op.cfg.RightProjectionMap))
	for i, idx := range op.cfg.RightProjectionMap {
		out[i] = op.cfg.BuildTypes[idx]
	}
	return out
}

// Next drives the PROBE and, for RIGHT/FULL joins, SCAN_HT stages.
func (op *HashJoinOperator) Next(ctx context.Context) *coldata.Batch {
	if op.result != nil && op.result.Suspended {
		return nil
	}
	for {
		switch op.gsrc.Stage() {
		case StageProbe:
			batch := op.nextProbeBatch(ctx)
			if batch != nil {
				return batch
			}
			op.gsrc.AdvanceToScanHT()
		case StageScanHT:
			batch := op.nextScanBatch()
			if batch != nil {
				return batch
			}
			op.gsrc.AdvanceToDone()
		case StageDone:
			return nil
		default:
			return nil
		}
	}
}

// nextProbeBatch pulls and probes the next probe-side chunk, from the live
// probe input while on partition 0 (spilling rows bound for later
// partitions along the way) and from that partition's spill replay
// afterward. Returns nil once every partition's probe input is exhausted.
func (op *HashJoinOperator) nextProbeBatch(ctx context.Context) *coldata.Batch {
	if op.result == nil || (op.result.Table == nil && len(op.result.Partitions) == 0) {
		return nil
	}
	for {
		keys, fromPartition, ok := op.pullProbeKeys(ctx)
		if !ok {
			return nil
		}
		if keys == nil || keys.Length() == 0 {
			continue
		}
		prober := op.gsrc.Prober()
		if op.result.External {
			prober = op.gsrc.ProberFor(fromPartition)
		}
		if prober == nil {
			continue
		}
		res, err := prober.Probe(keys, keys.Length(), nil)
		if err != nil {
			colexecerror.InternalError(err)
		}
		var buildBlocks *BlockCollection
		if op.result.External {
			buildBlocks = op.result.Partitions[fromPartition].Blocks
		} else {
			buildBlocks = op.result.Table.Blocks
		}
		if out := op.buildOutput(keys, res, buildBlocks); out != nil {
			return out
		}
		// This chunk produced zero output rows (no matches for this
		// INNER/SEMI/RIGHT chunk, or every row matched for ANTI) - that is
		// not the same thing as probe-input exhaustion, so keep pulling
		// rather than letting the caller mistake it for end of stage.
	}
}

// pullProbeKeys returns the next probe batch's key columns plus which
// partition it belongs to (always 0 for the in-memory path), spilling rows
// destined for other partitions as a side effect while on partition 0.
func (op *HashJoinOperator) pullProbeKeys(ctx context.Context) (*coldata.Batch, int, bool) {
	if !op.result.External {
		if op.probeDone {
			return nil, 0, false
		}
		batch := op.TwoInputNode.InputOne.Next(ctx)
		if batch == nil || batch.Length() == 0 {
			op.probeDone = true
			return nil, 0, false
		}
		return projectKeys(op.cfg, batch), 0, true
	}

	if op.currentPartition == 0 && !op.probeDone {
		batch := op.TwoInputNode.InputOne.Next(ctx)
		if batch == nil || batch.Length() == 0 {
			op.probeDone = true
			op.finishPartitionZeroSpill()
			return op.advancePartitionAndPull(ctx)
		}
		keys := projectKeys(op.cfg, batch)
		return op.splitAndSpill(ctx, keys)
	}
	return op.advancePartitionAndPull(ctx)
}

// splitAndSpill routes each row of keys to its partition, probing the rows
// bound for partition 0 immediately and spilling the rest.
func (op *HashJoinOperator) splitAndSpill(ctx context.Context, keys *coldata.Batch) (*coldata.Batch, int, bool) {
	n := keys.Length()
	hashes := make([]uint64, n)
	coldata.InitHash(hashes)
	for _, col := range keys.ColVecs() {
		coldata.Rehash(hashes, col, n, nil)
	}
	byPartition := make(map[int][]int)
	for i := 0; i < n; i++ {
		p := PartitionOf(hashes[i], op.numPartitions)
		byPartition[p] = append(byPartition[p], i)
	}
	if sel, ok := byPartition[0]; ok {
		if op.spill == nil {
			op.spill = NewProbeSpill(op.spillDir, op.cfg.ConditionTypes)
		}
		for p, sel := range byPartition {
			if p == 0 {
				continue
			}
			if err := op.spill.Spill(p, keys, len(sel), sel); err != nil {
				colexecerror.InternalError(err)
			}
		}
		part0 := coldata.NewBatch(op.cfg.ConditionTypes)
		for c, v := range part0.ColVecs() {
			for _, r := range sel {
				v.AppendFrom(keys.ColVec(c), r)
			}
		}
		part0.SetLength(len(sel))
		return part0, 0, true
	}
	for p, sel := range byPartition {
		if op.spill == nil {
			op.spill = NewProbeSpill(op.spillDir, op.cfg.ConditionTypes)
		}
		if err := op.spill.Spill(p, keys, len(sel), sel); err != nil {
			colexecerror.InternalError(err)
		}
	}
	// No rows in this chunk belonged to partition 0; report an empty batch
	// so the caller keeps pulling from the live probe input rather than
	// moving on to replaying later partitions before it is drained.
	empty := coldata.NewBatch(op.cfg.ConditionTypes)
	return empty, 0, true
}

func (op *HashJoinOperator) finishPartitionZeroSpill() {
	if op.spill != nil {
		if err := op.spill.Close(); err != nil {
			colexecerror.InternalError(err)
		}
	}
}

func (op *HashJoinOperator) advancePartitionAndPull(ctx context.Context) (*coldata.Batch, int, bool) {
	for {
		if op.replayer != nil {
			batch, ok, err := op.replayer.Next()
			if err != nil {
				colexecerror.InternalError(err)
			}
			if ok {
				return batch, op.currentPartition, true
			}
			op.replayer.Close()
			op.replayer = nil
		}
		op.currentPartition++
		if op.currentPartition >= op.numPartitions {
			return nil, 0, false
		}
		replayer, ok, err := OpenReplay(op.spillDir, op.cfg.ConditionTypes, op.currentPartition)
		if err != nil {
			colexecerror.InternalError(err)
		}
		if !ok {
			continue
		}
		op.replayer = replayer
	}
}

// buildOutput materializes the output rows for one probed batch: matched
// rows, plus NULL-extended unmatched probe rows for LEFT/FULL/SINGLE; SEMI
// and ANTI emit only the matched or unmatched probe keys, and MARK emits
// every probe key with its match flag.
func (op *HashJoinOperator) buildOutput(keys *coldata.Batch, res *ProbeResult, buildBlocks *BlockCollection) *coldata.Batch {
	op.outBatch.Reset()
	op.outAlloc.PerformOperation(op.outBatch.ColVecs(), func() {
		switch op.cfg.JoinType {
		case SemiJoin:
			appendKeyRows(op.outBatch, keys, res.ProbeIdx)
		case AntiJoin:
			appendKeyRows(op.outBatch, keys, res.Unmatched)
		case MarkJoin:
			appendKeyRows(op.outBatch, keys, allIndices(keys.Length()))
			markCol := op.outBatch.ColVec(len(op.cfg.ConditionTypes))
			for i := 0; i < keys.Length(); i++ {
				markCol.SetBool(i, res.Marked[i])
			}
		default:
			for i, probeIdx := range res.ProbeIdx {
				appendKeyRow(op.outBatch, keys, probeIdx)
				appendBuildRow(op, buildBlocks, res.BuildRef[i])
			}
			if op.cfg.JoinType == LeftJoin || op.cfg.JoinType == FullJoin || op.cfg.JoinType == SingleJoin {
				for _, probeIdx := range res.Unmatched {
					appendKeyRow(op.outBatch, keys, probeIdx)
					appendNullBuildRow(op)
				}
			}
		}
	})
	if op.outBatch.Length() == 0 {
		return nil
	}
	return op.outBatch
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func appendKeyRows(batch *coldata.Batch, keys *coldata.Batch, idxs []int) {
	for _, i := range idxs {
		appendKeyRow(batch, keys, i)
	}
}

func appendKeyRow(batch *coldata.Batch, keys *coldata.Batch, probeIdx int) {
	for i, v := range keys.ColVecs() {
		batch.ColVec(i).AppendFrom(v, probeIdx)
	}
	batch.SetLength(batch.Length() + 1)
}

func appendBuildRow(op *HashJoinOperator, blocks *BlockCollection, ref RowRef) {
	base := len(op.cfg.ConditionTypes)
	if ref.IsNil() || blocks == nil {
		appendNullBuildRow(op)
		return
	}
	blk, offset := blocks.Row(ref)
	if blk.payload == nil {
		return
	}
	proj := op.cfg.RightProjectionMap
	for outI := 0; outI < len(op.projectedBuildTypes()); outI++ {
		srcCol := outI
		if len(proj) > 0 {
			srcCol = proj[outI]
		}
		batchCol := op.outBatch.ColVec(base + outI)
		batchCol.AppendFrom(blk.payload.ColVec(srcCol), offset)
	}
}

func appendNullBuildRow(op *HashJoinOperator) {
	base := len(op.cfg.ConditionTypes)
	for outI := 0; outI < len(op.projectedBuildTypes()); outI++ {
		op.outBatch.ColVec(base + outI).AppendNull()
	}
}

// nextScanBatch drains the shared unmatched-build-row cursor for RIGHT and
// FULL joins, null-extending the probe side.
func (op *HashJoinOperator) nextScanBatch() *coldata.Batch {
	scan := op.gsrc.ScanState()
	if scan == nil {
		return nil
	}
	op.outBatch.Reset()
	refs := make([]RowRef, 0, coldata.BatchSize)
	refs = GatherFullOuter(scan, refs[:cap(refs)])
	if len(refs) == 0 {
		return nil
	}
	for i := range op.cfg.ConditionTypes {
		v := op.outBatch.ColVec(i)
		for range refs {
			v.AppendNull()
		}
	}
	for _, ref := range refs {
		appendBuildRow(op, op.result.Table.Blocks, ref)
	}
	op.outBatch.SetLength(len(refs))
	return op.outBatch
}
