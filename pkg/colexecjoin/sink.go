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
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
	"github.com/ratchetdb/hashjoin/pkg/util/syncutil"
)

// LocalSinkState is one worker's private build-side accumulator: its
// LocalHashTable plus the bound account tracking how much memory it has
// claimed against the operator's shared budget.
type LocalSinkState struct {
	cfg     Config
	local   *LocalHashTable
	account mon.BoundAccount
}

// NewLocalSinkState creates a worker's sink state, with its bound account
// opened against monitor; the account has no limit of its own, so Grow
// fails only when the monitor's shared limit is exceeded.
func NewLocalSinkState(cfg Config, monitor *mon.BytesMonitor) *LocalSinkState {
	return &LocalSinkState{
		cfg:     cfg,
		local:   NewLocalHashTable(cfg),
		account: monitor.MakeBoundAccount(),
	}
}

// Sink hashes and appends a build chunk to this worker's local table,
// growing its bound account by the chunk's estimated footprint first. A
// failed Grow surfaces as a recoverable-at-the-query-level
// AllocationFailure, per the error handling design; the caller decides
// whether to fall back to going external rather than failing the query.
func (s *LocalSinkState) Sink(ctx context.Context, keys, payload *coldata.Batch, n int, sel []int) error {
	estimate := estimateChunkBytes(s.cfg, n)
	if err := s.account.Grow(estimate); err != nil {
		return NewError(AllocationFailure, "sink", -1, err)
	}
	if _, err := s.local.Sink(keys, payload, n, sel); err != nil {
		return err
	}
	return nil
}

// Close releases this worker's claimed memory.
func (s *LocalSinkState) Close(ctx context.Context) { s.account.Close() }

func estimateChunkBytes(cfg Config, n int) int64 {
	perRow := int64(16)
	for _, t := range cfg.ConditionTypes {
		perRow += physicalSize(t)
	}
	if cfg.JoinType.StoresPayload() {
		for _, t := range cfg.BuildTypes {
			perRow += physicalSize(t)
		}
	}
	return int64(n) * perRow
}

// GlobalSinkState is the single coordination point every worker's sink
// reports into: it owns the shared bytes monitor, the controller deciding
// suspension, and the decision of whether the build side must go external.
// This is the value DESIGN NOTES §9 calls for in place of ambient globals:
// the operator factory constructs exactly one per query and every worker
// is handed a reference, never a copy.
type GlobalSinkState struct {
	cfg        Config
	monitor    *mon.BytesMonitor
	controller *checkpoint.Controller
	pipelineID uint64

	mu struct {
		syncutil.Mutex
		locals   []*LocalHashTable
		external bool
	}
}

// NewGlobalSinkState creates the shared sink coordinator for one pipeline.
func NewGlobalSinkState(cfg Config, monitor *mon.BytesMonitor, controller *checkpoint.Controller, pipelineID uint64) *GlobalSinkState {
	return &GlobalSinkState{cfg: cfg, monitor: monitor, controller: controller, pipelineID: pipelineID}
}

// Combine registers a worker's finished local table with the global state.
func (g *GlobalSinkState) Combine(local *LocalHashTable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mu.locals = append(g.mu.locals, local)
}

// Locals returns every combined local table.
func (g *GlobalSinkState) Locals() []*LocalHashTable {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*LocalHashTable, len(g.mu.locals))
	copy(out, g.mu.locals)
	return out
}

// TotalCount sums every combined local table's row count.
func (g *GlobalSinkState) TotalCount() uint64 {
	var total uint64
	for _, l := range g.Locals() {
		total += l.Blocks.Count()
	}
	return total
}

// MarkExternal records that the build side has gone external. Per open
// question 3 / the LatchExternal fix, the controller (not this flag
// directly) is the single source of truth once a suspend has started;
// SinkIsExternal always consults the controller's latch first.
func (g *GlobalSinkState) MarkExternal() {
	g.mu.Lock()
	g.mu.external = true
	g.mu.Unlock()
}

// SinkIsExternal reports whether the build side has gone external, latched
// through the controller once suspension begins so a race between a
// worker's swizzle call and another worker's suspend check can't observe a
// torn value.
func (g *GlobalSinkState) SinkIsExternal() bool {
	g.mu.Lock()
	external := g.mu.external
	g.mu.Unlock()
	if g.controller != nil {
		return g.controller.LatchExternal(external)
	}
	return external
}

// ShouldGoExternal reports whether the accumulated build size has crossed
// the operator's memory ceiling and the operator is configured to permit
// spilling at all.
func (g *GlobalSinkState) ShouldGoExternal() bool {
	if !g.cfg.CanGoExternal {
		return false
	}
	return g.monitor.Used()+estimateChunkBytes(g.cfg, 0) > g.cfg.MaxHTSize()
}

// ShouldSuspend reports whether this worker should perform a ratchet
// suspension: the controller's deadline has passed and this worker is the
// first to claim MarkSuspendStarted. At most one call across every worker
// in a query ever observes true, since MarkSuspendStarted is a CAS.
func (g *GlobalSinkState) ShouldSuspend() bool {
	if g.controller == nil || !g.controller.DeadlinePassed() {
		return false
	}
	return g.controller.MarkSuspendStarted()
}
