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

	"github.com/ratchetdb/hashjoin/pkg/util/log"
)

// FinalizeResult is what the sink -> finalize transition hands the source
// stage: either one in-memory table (perfect or hashed), a set of
// independently-probeable external partitions, or a signal that this
// worker suspended instead of finishing the build.
type FinalizeResult struct {
	Table      *JoinHashTable
	Partitions []*JoinHashTable
	External   bool
	Suspended  bool

	// NoOutputPossible is set when the build side drained empty and the
	// join type can never produce a row from an empty build side
	// (JoinType.EmptyResultIfRHSIsEmpty); it tells the source side to
	// skip straight to StageDone without pulling a single probe batch.
	NoOutputPossible bool
}

// Finalize runs the finalize stage: it decides, in order, whether to
// resume from a prior suspension, whether the accumulated build side must
// go external, and whether the in-memory path qualifies for the perfect
// dense fast path, falling back to the hashed pointer-table path on any
// recoverable perfect-build error.
func Finalize(ctx context.Context, cfg Config, global *GlobalSinkState, pipelineID uint64) (*FinalizeResult, error) {
	if global.controller != nil && global.controller.IsResumable(pipelineID) {
		return finalizeResume(cfg, global)
	}

	locals := global.Locals()

	if global.TotalCount() == 0 && cfg.JoinType.EmptyResultIfRHSIsEmpty() {
		log.Infof(ctx, "colexecjoin: pipeline %d build side empty, no probe output possible for this join type", pipelineID)
		return &FinalizeResult{NoOutputPossible: true}, nil
	}

	if global.ShouldSuspend() {
		return finalizeSuspend(ctx, cfg, global, pipelineID, locals)
	}

	if global.ShouldGoExternal() {
		return finalizeExternal(cfg, locals)
	}

	return finalizeInMemory(ctx, cfg, locals)
}

func finalizeResume(cfg Config, global *GlobalSinkState) (*FinalizeResult, error) {
	ckCfg := global.controller.Config()
	if ckCfg.ResumeFolder != "" {
		locals, err := ResumeExternal(ckCfg.ResumeFolder, ckCfg.Format, cfg)
		if err != nil {
			return nil, err
		}
		partitions := make([]*JoinHashTable, 0, len(locals))
		for _, l := range locals {
			ht := NewJoinHashTable(cfg)
			ht.Merge([]*LocalHashTable{l})
			ht.SwizzleBlocks()
			if err := ht.InitializePointerTable(); err != nil {
				return nil, err
			}
			partitions = append(partitions, ht)
		}
		return &FinalizeResult{Partitions: partitions, External: true}, nil
	}

	local, err := ResumeInMemory(ckCfg.ResumeFile, ckCfg.Format, cfg)
	if err != nil {
		return nil, err
	}
	ht := NewJoinHashTable(cfg)
	ht.Merge([]*LocalHashTable{local})
	ht.SwizzleBlocks()
	if err := ht.InitializePointerTable(); err != nil {
		return nil, err
	}
	return &FinalizeResult{Table: ht}, nil
}

func finalizeSuspend(ctx context.Context, cfg Config, global *GlobalSinkState, pipelineID uint64, locals []*LocalHashTable) (*FinalizeResult, error) {
	ckCfg := global.controller.Config()
	if global.SinkIsExternal() {
		numPartitions := ChoosePartitionCount(int64(global.TotalCount())*64, cfg.SinkMemoryPerWorker())
		partitioned := RadixPartitionBuild(cfg, locals, numPartitions)
		for i, l := range partitioned {
			if err := SuspendExternalPartition(ckCfg.SuspendFolder, ckCfg.Format, pipelineID, uint64(i), cfg, l); err != nil {
				return nil, err
			}
		}
	} else {
		if err := SuspendInMemory(ckCfg.SuspendFile, ckCfg.Format, pipelineID, cfg, locals); err != nil {
			return nil, err
		}
	}
	global.controller.MarkPipelineFinalized(pipelineID)
	log.Infof(ctx, "colexecjoin: pipeline %d suspended, %d rows persisted", pipelineID, global.TotalCount())
	return &FinalizeResult{Suspended: true}, nil
}

func finalizeExternal(cfg Config, locals []*LocalHashTable) (*FinalizeResult, error) {
	var sizeBytes int64
	for _, l := range locals {
		for range l.Blocks.Blocks {
			sizeBytes += estimateChunkBytes(cfg, BlockCapacity)
		}
	}
	numPartitions := ChoosePartitionCount(sizeBytes, cfg.SinkMemoryPerWorker())
	partitioned := RadixPartitionBuild(cfg, locals, numPartitions)
	result := &FinalizeResult{External: true}
	for _, l := range partitioned {
		ht := NewJoinHashTable(cfg)
		ht.Merge([]*LocalHashTable{l})
		ht.SwizzleBlocks()
		if err := ht.InitializePointerTable(); err != nil {
			return nil, err
		}
		result.Partitions = append(result.Partitions, ht)
	}
	return result, nil
}

func finalizeInMemory(ctx context.Context, cfg Config, locals []*LocalHashTable) (*FinalizeResult, error) {
	ht := NewJoinHashTable(cfg)
	ht.Merge(locals)
	ht.SwizzleBlocks()

	if Eligible(cfg) {
		perfect, err := BuildPerfectTable(cfg, ht.Blocks)
		if err == nil {
			ht.Perfect = perfect
			return &FinalizeResult{Table: ht}, nil
		}
		if jerr, ok := err.(*Error); !ok || !jerr.Kind.Recoverable() {
			return nil, err
		}
		log.Warningf(ctx, "colexecjoin: perfect-hash build fell back to hashed path: %v", err)
	}

	if err := ht.InitializePointerTable(); err != nil {
		return nil, err
	}
	return &FinalizeResult{Table: ht}, nil
}
