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
	"sync"
	"sync/atomic"
)

// Stage is the source side's tagged state, gated purely by counters rather
// than a nullable-pointer union, per DESIGN NOTES §9.
type Stage int32

const (
	StageInit Stage = iota
	StageBuild
	StageProbe
	StageScanHT
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageBuild:
		return "BUILD"
	case StageProbe:
		return "PROBE"
	case StageScanHT:
		return "SCAN_HT"
	case StageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// GlobalSourceState is the single coordination point for the probe/scan
// half of the pipeline: which stage the query is in, the finalized table
// (or partition set) to probe, and, once probing is done, the shared
// cursor over unmatched build rows that a right/full outer join still
// needs to emit.
type GlobalSourceState struct {
	cfg    Config
	result *FinalizeResult

	stage int32 // atomic Stage

	probersOnce sync.Once
	probers     []*Prober

	scanOnce  sync.Once
	scanState *JoinHTScanState

	// partitionCursor hands out external partitions to workers one at a
	// time; each partition is probed to completion by a single worker
	// before the next is handed out, since a partition's pointer table
	// isn't built for concurrent cross-partition access.
	partitionCursor int32
}

// NewGlobalSourceState creates the post-finalize coordination state. The
// initial stage is DONE if result is nil, the worker suspended, or no
// output is possible, and PROBE otherwise.
func NewGlobalSourceState(cfg Config, result *FinalizeResult) *GlobalSourceState {
	g := &GlobalSourceState{cfg: cfg, result: result}
	if result == nil || result.Suspended || result.NoOutputPossible {
		g.stage = int32(StageDone)
	} else {
		g.stage = int32(StageProbe)
	}
	return g
}

// Stage returns the current stage.
func (g *GlobalSourceState) Stage() Stage { return Stage(atomic.LoadInt32(&g.stage)) }

// AdvanceToScanHT transitions PROBE -> SCAN_HT, idempotently; only the
// first caller gets true, mirroring MarkSuspendStarted's CAS shape so
// exactly one worker initializes the scan cursor.
func (g *GlobalSourceState) AdvanceToScanHT() bool {
	if !g.cfg.JoinType.IsRightOuter() {
		atomic.StoreInt32(&g.stage, int32(StageDone))
		return false
	}
	return atomic.CompareAndSwapInt32(&g.stage, int32(StageProbe), int32(StageScanHT))
}

// AdvanceToDone transitions SCAN_HT -> DONE.
func (g *GlobalSourceState) AdvanceToDone() {
	atomic.StoreInt32(&g.stage, int32(StageDone))
}

// Prober returns the shared prober for the in-memory table, or for
// partition index 0 in the external case (callers iterating partitions
// explicitly should use ProberFor).
func (g *GlobalSourceState) Prober() *Prober {
	g.probersOnce.Do(g.initProbers)
	if len(g.probers) == 0 {
		return nil
	}
	return g.probers[0]
}

// ProberFor returns the prober for external partition i.
func (g *GlobalSourceState) ProberFor(i int) *Prober {
	g.probersOnce.Do(g.initProbers)
	if i < 0 || i >= len(g.probers) {
		return nil
	}
	return g.probers[i]
}

func (g *GlobalSourceState) initProbers() {
	if g.result == nil {
		return
	}
	if g.result.Table != nil {
		g.probers = []*Prober{NewProber(g.cfg, g.result.Table)}
		return
	}
	g.probers = make([]*Prober, len(g.result.Partitions))
	for i, p := range g.result.Partitions {
		g.probers[i] = NewProber(g.cfg, p)
	}
}

// NextPartition hands out the next unclaimed external partition index, or
// ok=false once every partition has been claimed.
func (g *GlobalSourceState) NextPartition() (idx int, ok bool) {
	if g.result == nil {
		return 0, false
	}
	n := int32(len(g.result.Partitions))
	i := atomic.AddInt32(&g.partitionCursor, 1) - 1
	if i >= n {
		return 0, false
	}
	return int(i), true
}

// ScanState returns the shared build-row scan cursor for SCAN_HT,
// initializing it against the in-memory table (or, in the external case,
// against whichever partition the caller is currently responsible for;
// callers in the external case should instead construct their own
// per-partition JoinHTScanState directly via NewJoinHTScanState, since each
// partition's unmatched rows are independent of every other partition's).
func (g *GlobalSourceState) ScanState() *JoinHTScanState {
	g.scanOnce.Do(func() {
		if g.result != nil && g.result.Table != nil {
			g.scanState = NewJoinHTScanState(g.result.Table)
		}
	})
	return g.scanState
}

// LocalSourceState is one worker's private probe-side cursor: nothing
// needs to be shared beyond what GlobalSourceState already coordinates, so
// today this only tracks which external partition (if any) this worker
// has claimed.
type LocalSourceState struct {
	partition int
	hasPart   bool
}
